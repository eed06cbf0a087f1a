package net

import (
	"fmt"
	"syscall"

	"github.com/google/uuid"
)

// DefaultFwmark is the fwmark suggested for tunnel traffic when policy routing is used
const DefaultFwmark = 0x1BD00

// ConnectionID provides a globally unique identifier for network connections.
// It's used to correlate log lines of one endpoint socket from connect to close.
type ConnectionID string

// GenerateConnID generates a unique identifier for each connection.
func GenerateConnID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

// SocketOptions are applied to a socket after creation and before bind
type SocketOptions struct {
	// Fwmark is set as SO_MARK when non-zero. Platforms without mark support skip it silently.
	Fwmark    uint32
	ReuseAddr bool
}

func (o SocketOptions) control(_, _ string, c syscall.RawConn) error {
	var setErr error

	err := c.Control(func(fd uintptr) {
		if o.ReuseAddr {
			if err := setReuseAddr(fd); err != nil {
				setErr = fmt.Errorf("set SO_REUSEADDR: %w", err)
				return
			}
		}

		if o.Fwmark != 0 {
			if err := setMark(fd, o.Fwmark); err != nil {
				setErr = fmt.Errorf("set SO_MARK: %w", err)
			}
		}
	})
	if err != nil {
		return fmt.Errorf("control: %w", err)
	}

	return setErr
}
