package peer

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	handshakePeriod   = 3 * time.Minute
	handshakeOvertime = 30 * time.Second
	checkPeriod       = handshakePeriod + handshakeOvertime
)

// HandshakeStater reports the age of the last completed handshake, Peer implements it
type HandshakeStater interface {
	TimeSinceLastHandshake() (time.Duration, bool)
}

// HandshakeWatcher calls back once the handshake of a peer goes stale
type HandshakeWatcher struct {
	log    *log.Entry
	stater HandshakeStater

	// overtime is the grace period of the first handshake, checkPeriod the longest gap between two
	overtime    time.Duration
	checkPeriod time.Duration

	ctx       context.Context
	ctxCancel context.CancelFunc
	ctxLock   sync.Mutex
	done      chan struct{}
}

func NewHandshakeWatcher(log *log.Entry, stater HandshakeStater) *HandshakeWatcher {
	return &HandshakeWatcher{
		log:         log,
		stater:      stater,
		overtime:    handshakeOvertime,
		checkPeriod: checkPeriod,
	}
}

// Enable starts watching. onStale runs at most once per Enable, from the watcher goroutine.
// Enabling a running watcher does nothing.
func (w *HandshakeWatcher) Enable(parentCtx context.Context, onStale func()) {
	w.ctxLock.Lock()
	defer w.ctxLock.Unlock()

	if w.ctx != nil && w.ctx.Err() == nil {
		return
	}

	w.log.Debugf("enable handshake watcher")

	ctx, ctxCancel := context.WithCancel(parentCtx)
	w.ctx = ctx
	w.ctxCancel = ctxCancel

	done := make(chan struct{})
	w.done = done
	go func() {
		defer close(done)
		w.watch(ctx, ctxCancel, onStale)
	}()
}

// Disable stops watching and waits for the watch to return, onStale is not called afterwards.
// It must not be called from onStale.
func (w *HandshakeWatcher) Disable() {
	w.ctxLock.Lock()
	defer w.ctxLock.Unlock()

	if w.ctxCancel == nil {
		return
	}

	w.log.Debugf("disable handshake watcher")
	w.ctxCancel()
	<-w.done
}

// watch gives the first handshake the overtime to complete, then expects a new one
// within checkPeriod of the previous
func (w *HandshakeWatcher) watch(ctx context.Context, ctxCancel context.CancelFunc, onStale func()) {
	defer ctxCancel()

	timer := time.NewTimer(w.overtime)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			since, ok := w.stater.TimeSinceLastHandshake()
			if ctx.Err() != nil {
				return
			}
			if !ok || since >= w.checkPeriod {
				w.log.Infof("handshake timed out, last handshake: %v", since)
				ctxCancel()
				onStale()
				return
			}

			w.log.Tracef("last handshake %s ago", since)
			timer.Reset(w.checkPeriod - since)
		case <-ctx.Done():
			w.log.Debugf("handshake watcher stopped")
			return
		}
	}
}
