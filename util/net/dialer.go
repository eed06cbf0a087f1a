package net

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	log "github.com/sirupsen/logrus"
)

// DialUDP creates a UDP socket of raddr's address family, binds it to the wildcard
// address on localPort and connects it to raddr. A localPort of 0 picks an ephemeral port.
// The returned socket is registered with the runtime poller and never blocks an OS thread.
func DialUDP(ctx context.Context, localPort uint16, raddr netip.AddrPort, opts SocketOptions) (*net.UDPConn, error) {
	raddr = netip.AddrPortFrom(raddr.Addr().Unmap(), raddr.Port())
	if !raddr.IsValid() {
		return nil, fmt.Errorf("invalid remote address %s", raddr)
	}

	network, wildcard := "udp4", netip.IPv4Unspecified()
	if raddr.Addr().Is6() {
		network, wildcard = "udp6", netip.IPv6Unspecified()
	}

	dialer := &net.Dialer{
		LocalAddr: net.UDPAddrFromAddrPort(netip.AddrPortFrom(wildcard, localPort)),
		Control:   opts.control,
	}

	conn, err := dialer.DialContext(ctx, network, raddr.String())
	if err != nil {
		return nil, fmt.Errorf("dialing UDP %s: %w", raddr, err)
	}

	udpConn, ok := conn.(*net.UDPConn)
	if !ok {
		if err := conn.Close(); err != nil {
			log.Errorf("Failed to close connection: %v", err)
		}
		return nil, fmt.Errorf("expected UDP connection, got different type: %T", conn)
	}

	return udpConn, nil
}

// DialTCP opens a TCP connection to raddr with the given socket options
func DialTCP(ctx context.Context, raddr netip.AddrPort, opts SocketOptions) (*net.TCPConn, error) {
	dialer := &net.Dialer{
		Control: opts.control,
	}

	conn, err := dialer.DialContext(ctx, "tcp", raddr.String())
	if err != nil {
		return nil, fmt.Errorf("dialing TCP %s: %w", raddr, err)
	}

	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		if err := conn.Close(); err != nil {
			log.Errorf("Failed to close connection: %v", err)
		}
		return nil, fmt.Errorf("expected TCP connection, got different type: %T", conn)
	}

	return tcpConn, nil
}
