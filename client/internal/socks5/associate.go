package socks5

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"time"

	log "github.com/sirupsen/logrus"

	nbnet "github.com/netbirdio/wgpeer/util/net"
)

const (
	socks5Version = 0x05

	methodNoAuth       = 0x00
	methodNoAcceptable = 0xFF

	cmdUDPAssociate = 0x03

	atypIPv4   = 0x01
	atypDomain = 0x03
	atypIPv6   = 0x04

	repSucceeded = 0x00
)

var (
	// ErrProxyAddressInvalid is returned when the proxy address is not an "ip:port" pair
	ErrProxyAddressInvalid = errors.New("invalid proxy address")
	// ErrConnect is returned when the TCP control connection cannot be established
	ErrConnect = errors.New("failed to connect to proxy")
	// ErrHandshakeFailed is returned when the proxy rejects the greeting or the associate request
	ErrHandshakeFailed = errors.New("SOCKS5 handshake failed")
	// ErrUnsupportedAddressType is returned for relay addresses other than IPv4 and IPv6
	ErrUnsupportedAddressType = errors.New("unsupported address type in SOCKS5 response")
)

// ReplyError carries the REP code of a failed UDP ASSOCIATE reply. It matches ErrHandshakeFailed.
type ReplyError struct {
	Code byte
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("SOCKS5 UDP ASSOCIATE failed: REP=%d", e.Code)
}

func (e *ReplyError) Is(target error) bool {
	return target == ErrHandshakeFailed
}

// UDPAssociate asks the SOCKS5 proxy at proxyAddr for a UDP relay and returns a UDP socket
// bound to the wildcard address on localPort and connected to the relay.
//
// Only the "no authentication" method is offered. The TCP control connection is closed
// as soon as the relay address is known, so proxies that drop the association together
// with the control connection are not supported.
func UDPAssociate(ctx context.Context, proxyAddr string, localPort uint16, opts nbnet.SocketOptions) (*net.UDPConn, error) {
	server, err := netip.ParseAddrPort(proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrProxyAddressInvalid, proxyAddr, err)
	}

	ctrl, err := nbnet.DialTCP(ctx, server, nbnet.SocketOptions{Fwmark: opts.Fwmark})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	relay, err := negotiate(ctx, ctrl, localPort)
	if closeErr := ctrl.Close(); closeErr != nil {
		log.Debugf("failed to close SOCKS5 control connection: %v", closeErr)
	}
	if err != nil {
		return nil, err
	}

	// BND.ADDR 0.0.0.0 or :: means the relay listens on the address we reached the proxy at
	if relay.Addr().IsUnspecified() {
		relay = netip.AddrPortFrom(server.Addr(), relay.Port())
	}

	log.Infof("SOCKS5 UDP relay address: %s", relay)

	opts.ReuseAddr = true
	conn, err := nbnet.DialUDP(ctx, localPort, relay, opts)
	if err != nil {
		return nil, fmt.Errorf("create relay socket: %w", err)
	}
	return conn, nil
}

// negotiate runs the greeting and the UDP ASSOCIATE exchange on an established control connection
func negotiate(ctx context.Context, conn net.Conn, localPort uint16) (netip.AddrPort, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return netip.AddrPort{}, fmt.Errorf("set deadline: %w", err)
		}
	}
	stop := context.AfterFunc(ctx, func() {
		// unblock pending reads and writes
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.Write([]byte{socks5Version, 1, methodNoAuth}); err != nil {
		return netip.AddrPort{}, fmt.Errorf("write greeting: %w", err)
	}

	reply := make([]byte, 2)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return netip.AddrPort{}, fmt.Errorf("read method selection: %w", err)
	}
	if reply[0] != socks5Version || reply[1] != methodNoAuth {
		if reply[1] == methodNoAcceptable {
			return netip.AddrPort{}, fmt.Errorf("%w: proxy requires authentication", ErrHandshakeFailed)
		}
		return netip.AddrPort{}, ErrHandshakeFailed
	}

	// VER CMD RSV ATYP DST.ADDR(0.0.0.0) DST.PORT
	req := make([]byte, 0, 10)
	req = append(req, socks5Version, cmdUDPAssociate, 0x00, atypIPv4, 0, 0, 0, 0)
	req = binary.BigEndian.AppendUint16(req, localPort)
	if _, err := conn.Write(req); err != nil {
		return netip.AddrPort{}, fmt.Errorf("write UDP ASSOCIATE request: %w", err)
	}

	// VER REP RSV ATYP BND.ADDR BND.PORT
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return netip.AddrPort{}, fmt.Errorf("read UDP ASSOCIATE reply: %w", err)
	}
	if hdr[0] != socks5Version || hdr[1] != repSucceeded {
		return netip.AddrPort{}, &ReplyError{Code: hdr[1]}
	}

	return readAddrPort(conn, hdr[3])
}

func readAddrPort(r io.Reader, atyp byte) (netip.AddrPort, error) {
	var addrLen int
	switch atyp {
	case atypIPv4:
		addrLen = net.IPv4len
	case atypIPv6:
		addrLen = net.IPv6len
	default:
		return netip.AddrPort{}, fmt.Errorf("%w: 0x%02x", ErrUnsupportedAddressType, atyp)
	}

	buf := make([]byte, addrLen+2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return netip.AddrPort{}, fmt.Errorf("read relay address: %w", err)
	}

	addr, _ := netip.AddrFromSlice(buf[:addrLen])
	return netip.AddrPortFrom(addr, binary.BigEndian.Uint16(buf[addrLen:])), nil
}
