package peer

import (
	"errors"
	"time"
)

// ErrConnectionExpired is reported by a Tunnel whose session can no longer be used
var ErrConnectionExpired = errors.New("connection expired")

// TunnelOp tells the caller of Tunnel.UpdateTimers what to do next
type TunnelOp int

const (
	// TunnelDone means there is nothing to send
	TunnelDone TunnelOp = iota
	// TunnelWriteToNetwork means TunnelResult.Packet must be sent to the endpoint
	TunnelWriteToNetwork
	// TunnelErr carries a protocol error in TunnelResult.Err
	TunnelErr
)

func (o TunnelOp) String() string {
	switch o {
	case TunnelDone:
		return "Done"
	case TunnelWriteToNetwork:
		return "WriteToNetwork"
	case TunnelErr:
		return "Err"
	default:
		return "Unknown"
	}
}

// TunnelResult is the action produced by a timer update
type TunnelResult struct {
	Op TunnelOp
	// Packet is a slice of the buffer passed to UpdateTimers
	Packet []byte
	Err    error
}

// Tunnel is the handshake and transport state machine of one peer
type Tunnel interface {
	// UpdateTimers runs the protocol timers and may write a packet into dst
	UpdateTimers(dst []byte) TunnelResult
	// TimeSinceLastHandshake returns false if no handshake has completed yet
	TimeSinceLastHandshake() (time.Duration, bool)
	// PersistentKeepalive returns the keepalive interval in seconds, false when disabled
	PersistentKeepalive() (uint16, bool)
}
