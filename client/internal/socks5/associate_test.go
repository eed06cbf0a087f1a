package socks5

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gosocks5 "github.com/things-go/go-socks5"

	"github.com/netbirdio/wgpeer/util"
	nbnet "github.com/netbirdio/wgpeer/util/net"
)

func TestMain(m *testing.M) {
	_ = util.InitLog("trace", util.LogConsole)
	code := m.Run()
	os.Exit(code)
}

// startMockProxy serves one control connection: it answers the greeting with greetingReply
// and, if the method was accepted, records the associate request and writes associateReply.
func startMockProxy(t *testing.T, greetingReply, associateReply []byte) (string, <-chan []byte) {
	t.Helper()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ln.Close()
	})

	requests := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		greeting := make([]byte, 3)
		if _, err := io.ReadFull(conn, greeting); err != nil {
			return
		}
		if _, err := conn.Write(greetingReply); err != nil {
			return
		}
		if len(greetingReply) != 2 || greetingReply[0] != socks5Version || greetingReply[1] != methodNoAuth {
			return
		}

		req := make([]byte, 10)
		if _, err := io.ReadFull(conn, req); err != nil {
			return
		}
		requests <- append(greeting, req...)

		if associateReply == nil {
			// never answer
			_, _ = io.Copy(io.Discard, conn)
			return
		}
		_, _ = conn.Write(associateReply)
		_, _ = io.Copy(io.Discard, conn)
	}()

	return ln.Addr().String(), requests
}

func listenRelay(t *testing.T, network, addr string) *net.UDPConn {
	t.Helper()

	laddr, err := net.ResolveUDPAddr(network, addr)
	require.NoError(t, err)
	relay, err := net.ListenUDP(network, laddr)
	if err != nil {
		t.Skipf("cannot listen on %s %s: %v", network, addr, err)
	}
	t.Cleanup(func() {
		_ = relay.Close()
	})
	return relay
}

func associateReplyFor(addr netip.AddrPort) []byte {
	reply := []byte{socks5Version, repSucceeded, 0x00}
	if addr.Addr().Is4() {
		ip := addr.Addr().As4()
		reply = append(reply, atypIPv4)
		reply = append(reply, ip[:]...)
	} else {
		ip := addr.Addr().As16()
		reply = append(reply, atypIPv6)
		reply = append(reply, ip[:]...)
	}
	return binary.BigEndian.AppendUint16(reply, addr.Port())
}

func freeUDPPort(t *testing.T) uint16 {
	t.Helper()

	c, err := net.ListenUDP("udp4", &net.UDPAddr{})
	require.NoError(t, err)
	port := uint16(c.LocalAddr().(*net.UDPAddr).Port)
	require.NoError(t, c.Close())
	return port
}

func TestUDPAssociate_IPv4Relay(t *testing.T) {
	relay := listenRelay(t, "udp4", "127.0.0.1:0")
	relayAddr := relay.LocalAddr().(*net.UDPAddr).AddrPort()

	proxyAddr, requests := startMockProxy(t, []byte{0x05, 0x00}, associateReplyFor(relayAddr))
	localPort := freeUDPPort(t)

	conn, err := UDPAssociate(context.Background(), proxyAddr, localPort, nbnet.SocketOptions{})
	require.NoError(t, err)
	defer conn.Close()

	var req []byte
	select {
	case req = <-requests:
	case <-time.After(2 * time.Second):
		t.Fatal("proxy did not receive the associate request")
	}
	expected := []byte{0x05, 0x01, 0x00, 0x05, 0x03, 0x00, 0x01, 0, 0, 0, 0}
	expected = binary.BigEndian.AppendUint16(expected, localPort)
	assert.Equal(t, expected, req)

	assert.Equal(t, relayAddr, conn.RemoteAddr().(*net.UDPAddr).AddrPort())
	assert.Equal(t, int(localPort), conn.LocalAddr().(*net.UDPAddr).Port)

	_, err = conn.Write([]byte("handshake"))
	require.NoError(t, err)

	buf := make([]byte, 32)
	require.NoError(t, relay.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, from, err := relay.ReadFromUDPAddrPort(buf)
	require.NoError(t, err)
	assert.Equal(t, "handshake", string(buf[:n]))
	assert.Equal(t, localPort, from.Port())
}

func TestUDPAssociate_IPv6Relay(t *testing.T) {
	relay := listenRelay(t, "udp6", "[::1]:0")
	relayAddr := relay.LocalAddr().(*net.UDPAddr).AddrPort()

	proxyAddr, _ := startMockProxy(t, []byte{0x05, 0x00}, associateReplyFor(relayAddr))

	conn, err := UDPAssociate(context.Background(), proxyAddr, 0, nbnet.SocketOptions{})
	require.NoError(t, err)
	defer conn.Close()

	remote := conn.RemoteAddr().(*net.UDPAddr).AddrPort()
	assert.Equal(t, relayAddr, remote)
	assert.True(t, conn.LocalAddr().(*net.UDPAddr).AddrPort().Addr().Is6())
}

func TestUDPAssociate_UnspecifiedRelayUsesProxyAddress(t *testing.T) {
	relay := listenRelay(t, "udp4", "127.0.0.1:0")
	relayPort := relay.LocalAddr().(*net.UDPAddr).AddrPort().Port()

	reply := associateReplyFor(netip.AddrPortFrom(netip.IPv4Unspecified(), relayPort))
	proxyAddr, _ := startMockProxy(t, []byte{0x05, 0x00}, reply)

	conn, err := UDPAssociate(context.Background(), proxyAddr, 0, nbnet.SocketOptions{})
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), relayPort), conn.RemoteAddr().(*net.UDPAddr).AddrPort())
}

func TestUDPAssociate_HandshakeRejected(t *testing.T) {
	testCases := []struct {
		name  string
		reply []byte
	}{
		{name: "no acceptable methods", reply: []byte{0x05, 0xFF}},
		{name: "username password demanded", reply: []byte{0x05, 0x02}},
		{name: "wrong version", reply: []byte{0x04, 0x00}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			proxyAddr, _ := startMockProxy(t, tc.reply, nil)

			conn, err := UDPAssociate(context.Background(), proxyAddr, 0, nbnet.SocketOptions{})
			assert.ErrorIs(t, err, ErrHandshakeFailed)
			assert.Nil(t, conn)
		})
	}
}

func TestUDPAssociate_AssociateRefused(t *testing.T) {
	reply := []byte{0x05, 0x07, 0x00, 0x01, 0, 0, 0, 0, 0, 0}
	proxyAddr, _ := startMockProxy(t, []byte{0x05, 0x00}, reply)

	_, err := UDPAssociate(context.Background(), proxyAddr, 0, nbnet.SocketOptions{})
	require.ErrorIs(t, err, ErrHandshakeFailed)

	var replyErr *ReplyError
	require.True(t, errors.As(err, &replyErr))
	assert.Equal(t, byte(0x07), replyErr.Code)
	assert.Contains(t, err.Error(), "REP=7")
}

func TestUDPAssociate_UnsupportedAddressType(t *testing.T) {
	testCases := []struct {
		name  string
		reply []byte
	}{
		{name: "unknown atyp", reply: []byte{0x05, 0x00, 0x00, 0x07, 127, 0, 0, 1, 0x1F, 0x90}},
		{name: "domain name", reply: []byte{0x05, 0x00, 0x00, 0x03, 9, 'l', 'o', 'c', 'a', 'l', 'h', 'o', 's', 't', 0x1F, 0x90}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			proxyAddr, _ := startMockProxy(t, []byte{0x05, 0x00}, tc.reply)

			_, err := UDPAssociate(context.Background(), proxyAddr, 0, nbnet.SocketOptions{})
			assert.ErrorIs(t, err, ErrUnsupportedAddressType)
		})
	}
}

func TestUDPAssociate_TruncatedReply(t *testing.T) {
	proxyAddr, _ := startMockProxy(t, []byte{0x05, 0x00}, []byte{0x05, 0x00, 0x00, 0x01, 127, 0})

	// the mock keeps the connection open after the short reply, bound the wait
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := UDPAssociate(ctx, proxyAddr, 0, nbnet.SocketOptions{})
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
}

func TestUDPAssociate_ContextBoundsHungProxy(t *testing.T) {
	proxyAddr, _ := startMockProxy(t, []byte{0x05, 0x00}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	start := time.Now()
	_, err := UDPAssociate(ctx, proxyAddr, 0, nbnet.SocketOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestUDPAssociate_InvalidProxyAddress(t *testing.T) {
	for _, addr := range []string{"", "localhost:1080", "10.0.0.1", "10.0.0.1:port"} {
		t.Run(addr, func(t *testing.T) {
			_, err := UDPAssociate(context.Background(), addr, 0, nbnet.SocketOptions{})
			assert.ErrorIs(t, err, ErrProxyAddressInvalid)
		})
	}
}

func TestUDPAssociate_ProxyUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = UDPAssociate(context.Background(), addr, 0, nbnet.SocketOptions{})
	assert.ErrorIs(t, err, ErrConnect)
}

func TestUDPAssociate_ProxyRequiringCredentials(t *testing.T) {
	server := gosocks5.NewServer(
		gosocks5.WithCredential(gosocks5.StaticCredentials{"user": "secret"}),
	)

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		_ = server.Serve(ln)
	}()

	_, err = UDPAssociate(context.Background(), ln.Addr().String(), 0, nbnet.SocketOptions{})
	assert.ErrorIs(t, err, ErrHandshakeFailed)
	assert.Contains(t, err.Error(), "requires authentication")
}
