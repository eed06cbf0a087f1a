package peer

import (
	"io"
	"iter"
	"net/netip"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	nberrors "github.com/netbirdio/wgpeer/client/errors"
	"github.com/netbirdio/wgpeer/client/iface/allowedip"
)

// Peer is a remote WireGuard peer: its tunnel state, where it is reachable and which
// source and destination addresses may flow through it.
// All methods are safe for concurrent use.
type Peer struct {
	tunnel Tunnel
	index  uint32

	endpoint endpoint

	allowedIPs   *allowedip.Table[struct{}]
	presharedKey *wgtypes.Key

	log *log.Entry
}

// NewPeer creates a peer. An invalid endpoint leaves the endpoint unknown until SetEndpoint is called.
// The allowed IPs are fixed for the lifetime of the peer, the pre-shared key is copied.
func NewPeer(tunnel Tunnel, index uint32, endpoint netip.AddrPort, allowedIPs []allowedip.AllowedIP, presharedKey *wgtypes.Key) *Peer {
	p := &Peer{
		tunnel:     tunnel,
		index:      index,
		allowedIPs: allowedip.NewSet(allowedIPs),
		log:        log.WithField("peer", index),
	}

	if endpoint.IsValid() {
		p.endpoint.addr = endpoint
	}

	if presharedKey != nil {
		key := *presharedKey
		p.presharedKey = &key
	}

	return p
}

// Index is the identifier of the peer within its device
func (p *Peer) Index() uint32 {
	return p.index
}

func (p *Peer) Tunnel() Tunnel {
	return p.tunnel
}

// PresharedKey returns a copy of the pre-shared key, false if none is configured
func (p *Peer) PresharedKey() (wgtypes.Key, bool) {
	if p.presharedKey == nil {
		return wgtypes.Key{}, false
	}
	return *p.presharedKey, true
}

// IsAllowedIP reports whether addr is covered by one of the allowed IP ranges
func (p *Peer) IsAllowedIP(addr netip.Addr) bool {
	_, ok := p.allowedIPs.Find(addr)
	return ok
}

// AllowedIPs yields every configured range once, in no particular order
func (p *Peer) AllowedIPs() iter.Seq[allowedip.AllowedIP] {
	return func(yield func(allowedip.AllowedIP) bool) {
		for ip := range p.allowedIPs.All() {
			if !yield(ip) {
				return
			}
		}
	}
}

func (p *Peer) TimeSinceLastHandshake() (time.Duration, bool) {
	return p.tunnel.TimeSinceLastHandshake()
}

func (p *Peer) PersistentKeepalive() (uint16, bool) {
	return p.tunnel.PersistentKeepalive()
}

// UpdateTimers runs the tunnel timers. A packet in the result must be sent to the endpoint.
func (p *Peer) UpdateTimers(dst []byte) TunnelResult {
	return p.tunnel.UpdateTimers(dst)
}

// Close shuts the endpoint down and closes the tunnel when it holds resources
func (p *Peer) Close() error {
	shutdownErr := p.ShutdownEndpoint()

	var closeErr error
	if closer, ok := p.tunnel.(io.Closer); ok {
		closeErr = closer.Close()
	}

	return nberrors.Join(shutdownErr, closeErr)
}
