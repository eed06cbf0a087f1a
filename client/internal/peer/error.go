package peer

import (
	"errors"
	"fmt"
	"net/netip"
)

var (
	// ErrAlreadyConnected is returned by ConnectEndpoint when the endpoint already holds a socket
	ErrAlreadyConnected = errors.New("endpoint already connected")
	// ErrEndpointUnset is returned by ConnectEndpoint before any endpoint address is known
	ErrEndpointUnset = errors.New("endpoint address is not set")
	// ErrEndpointChanged is returned when the endpoint address was replaced while its socket was being established
	ErrEndpointChanged = errors.New("endpoint changed while connecting")
)

// EndpointChangedError reports the address a socket was built for and the address found at install time
type EndpointChangedError struct {
	dialed  netip.AddrPort
	current netip.AddrPort
}

func (e *EndpointChangedError) Error() string {
	return fmt.Sprintf("endpoint changed from %s to %s while connecting", e.dialed, e.current)
}

func (e *EndpointChangedError) Is(target error) bool {
	return target == ErrEndpointChanged
}

// NewEndpointChangedError creates a new EndpointChangedError error
func NewEndpointChangedError(dialed, current netip.AddrPort) error {
	return &EndpointChangedError{
		dialed:  dialed,
		current: current,
	}
}
