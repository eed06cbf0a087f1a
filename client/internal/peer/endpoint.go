package peer

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/wgpeer/client/internal/proxy"
	"github.com/netbirdio/wgpeer/client/internal/socks5"
	nbnet "github.com/netbirdio/wgpeer/util/net"
)

// endpoint holds where the peer is reachable. conn is only set while it was built for addr.
type endpoint struct {
	mu   sync.RWMutex
	addr netip.AddrPort
	conn *Conn
}

// EndpointState is a point in time copy of a peer endpoint
type EndpointState struct {
	// Addr is invalid while the endpoint is unknown
	Addr netip.AddrPort
	Conn *Conn
}

func (s EndpointState) HasAddr() bool {
	return s.Addr.IsValid()
}

func (s EndpointState) HasConn() bool {
	return s.Conn != nil
}

// Endpoint returns a consistent snapshot of the endpoint address and socket.
// The socket may be closed by a concurrent SetEndpoint or ShutdownEndpoint after the snapshot is taken.
func (p *Peer) Endpoint() EndpointState {
	p.endpoint.mu.RLock()
	defer p.endpoint.mu.RUnlock()

	return EndpointState{
		Addr: p.endpoint.addr,
		Conn: p.endpoint.conn,
	}
}

// SetEndpoint moves the peer to addr. Setting the current address again does nothing.
// An open socket for the previous address is closed; the address is replaced even if closing fails.
func (p *Peer) SetEndpoint(addr netip.AddrPort) error {
	if !addr.IsValid() {
		return fmt.Errorf("invalid endpoint address %s", addr)
	}

	p.endpoint.mu.RLock()
	unchanged := p.endpoint.addr == addr
	p.endpoint.mu.RUnlock()
	if unchanged {
		return nil
	}

	p.endpoint.mu.Lock()
	defer p.endpoint.mu.Unlock()

	if p.endpoint.addr == addr {
		return nil
	}

	var err error
	if p.endpoint.conn != nil {
		err = p.closeConnLocked()
	}

	p.log.Debugf("endpoint set to %s", addr)
	p.endpoint.addr = addr
	return err
}

// ConnectEndpoint creates the socket for the current endpoint address, bound to port on the
// wildcard address and marked with fwmark when it is not zero. With a SOCKS5 proxy configured
// the socket goes through a UDP relay of the proxy; other proxy types connect directly.
//
// The returned Conn is the same handle later returned by Endpoint.
// The socket is built without holding the endpoint lock, so readers are not blocked by the
// proxy handshake. If another socket was installed meanwhile ErrAlreadyConnected is returned,
// if the address moved ErrEndpointChanged is returned; the new socket is discarded in both cases.
func (p *Peer) ConnectEndpoint(ctx context.Context, port uint16, fwmark uint32, proxyCfg *proxy.Config) (*Conn, error) {
	state := p.Endpoint()
	if state.HasConn() {
		return nil, ErrAlreadyConnected
	}
	if !state.HasAddr() {
		return nil, ErrEndpointUnset
	}

	conn, err := p.dial(ctx, state.Addr, port, fwmark, proxyCfg)
	if err != nil {
		return nil, err
	}

	p.endpoint.mu.Lock()
	defer p.endpoint.mu.Unlock()

	if p.endpoint.conn != nil {
		p.discard(conn)
		return nil, ErrAlreadyConnected
	}
	if p.endpoint.addr != state.Addr {
		p.discard(conn)
		return nil, NewEndpointChangedError(state.Addr, p.endpoint.addr)
	}

	p.endpoint.conn = conn

	p.log.WithFields(log.Fields{
		"port":     port,
		"endpoint": state.Addr,
		"conn":     conn.ID(),
	}).Info("Connected endpoint")

	return conn, nil
}

// ShutdownEndpoint closes the endpoint socket, keeping the address. It is a no-op without a socket.
func (p *Peer) ShutdownEndpoint() error {
	p.endpoint.mu.Lock()
	defer p.endpoint.mu.Unlock()

	if p.endpoint.conn == nil {
		return nil
	}

	p.log.Info("Disconnecting from endpoint")
	return p.closeConnLocked()
}

// closeConnLocked closes and clears the endpoint socket. Caller must hold the write lock.
func (p *Peer) closeConnLocked() error {
	conn := p.endpoint.conn
	p.endpoint.conn = nil

	if err := conn.Close(); err != nil {
		p.log.Errorf("failed to close endpoint socket %s: %v", conn.ID(), err)
		return fmt.Errorf("close endpoint socket: %w", err)
	}
	return nil
}

func (p *Peer) discard(conn *Conn) {
	if err := conn.Close(); err != nil {
		p.log.Debugf("failed to close discarded socket %s: %v", conn.ID(), err)
	}
}

func (p *Peer) dial(ctx context.Context, addr netip.AddrPort, port uint16, fwmark uint32, proxyCfg *proxy.Config) (*Conn, error) {
	opts := nbnet.SocketOptions{Fwmark: fwmark}

	if proxyCfg != nil {
		switch proxyCfg.Type {
		case proxy.TypeSocks5:
			udp, err := socks5.UDPAssociate(ctx, proxyCfg.Address, port, opts)
			if err != nil {
				return nil, fmt.Errorf("connect to %s through proxy %s: %w", addr, proxyCfg.Address, err)
			}
			return newConn(udp, addr), nil
		case proxy.TypeHTTP:
			p.log.Warnf("HTTP proxy cannot carry UDP, connecting to %s directly", addr)
		default:
			p.log.Warnf("Unknown proxy type %q, connecting to %s directly", proxyCfg.Tag, addr)
		}
	}

	opts.ReuseAddr = true
	udp, err := nbnet.DialUDP(ctx, port, addr, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return newConn(udp, netip.AddrPort{}), nil
}
