package peer

import (
	"net"
	"net/netip"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/wgpeer/client/internal/socks5"
	nbnet "github.com/netbirdio/wgpeer/util/net"
)

// Conn is the UDP socket of a connected endpoint.
// The handle stored in the endpoint is the one returned by ConnectEndpoint, so closing it
// from either side closes the socket for both. Close is idempotent.
type Conn struct {
	id  nbnet.ConnectionID
	udp *net.UDPConn

	// relayTo is set when udp is connected to a SOCKS5 relay, datagrams are framed for this address
	relayTo netip.AddrPort

	closeOnce sync.Once
	closeErr  error
}

func newConn(udp *net.UDPConn, relayTo netip.AddrPort) *Conn {
	if relayTo.IsValid() {
		relayTo = netip.AddrPortFrom(relayTo.Addr().Unmap(), relayTo.Port())
	}
	return &Conn{
		id:      nbnet.GenerateConnID(),
		udp:     udp,
		relayTo: relayTo,
	}
}

func (c *Conn) ID() nbnet.ConnectionID {
	return c.id
}

// Relayed reports whether the socket sends through a SOCKS5 UDP relay
func (c *Conn) Relayed() bool {
	return c.relayTo.IsValid()
}

func (c *Conn) LocalAddr() net.Addr {
	return c.udp.LocalAddr()
}

// RemoteAddr returns the address the socket is connected to, the relay for relayed sockets
func (c *Conn) RemoteAddr() net.Addr {
	return c.udp.RemoteAddr()
}

func (c *Conn) SetDeadline(t time.Time) error {
	return c.udp.SetDeadline(t)
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.udp.SetReadDeadline(t)
}

// Write sends b as one datagram to the peer
func (c *Conn) Write(b []byte) (int, error) {
	if !c.Relayed() {
		return c.udp.Write(b)
	}

	buf := make([]byte, 0, socks5.MaxUDPHeaderLen+len(b))
	buf = socks5.AppendUDPHeader(buf, c.relayTo)
	buf = append(buf, b...)
	if _, err := c.udp.Write(buf); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Read reads one datagram from the peer into b.
// On a relayed socket, datagrams the relay forwards from other sources are dropped.
func (c *Conn) Read(b []byte) (int, error) {
	if !c.Relayed() {
		return c.udp.Read(b)
	}

	buf := make([]byte, socks5.MaxUDPHeaderLen+len(b))
	for {
		n, err := c.udp.Read(buf)
		if err != nil {
			return 0, err
		}

		offset, from, err := socks5.ParseUDPHeader(buf[:n])
		if err != nil {
			log.Debugf("dropping relayed datagram on %s: %v", c.id, err)
			continue
		}
		if netip.AddrPortFrom(from.Addr().Unmap(), from.Port()) != c.relayTo {
			log.Tracef("dropping relayed datagram from %s on %s", from, c.id)
			continue
		}

		return copy(b, buf[offset:n]), nil
	}
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.udp.Close()
	})
	return c.closeErr
}
