package socks5

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

// MaxUDPHeaderLen is the size of the largest header AppendUDPHeader produces
const MaxUDPHeaderLen = 4 + 16 + 2

var (
	ErrShortDatagram = errors.New("socks5 udp: short datagram")
	// ErrFragmented is returned for datagrams with a non-zero FRAG field, reassembly is not supported
	ErrFragmented = errors.New("socks5 udp: fragmented datagram")
)

// AppendUDPHeader appends the relay request header addressing dst to b.
// Layout: RSV(2) FRAG(1) ATYP(1) DST.ADDR DST.PORT(2)
func AppendUDPHeader(b []byte, dst netip.AddrPort) []byte {
	addr := dst.Addr().Unmap()

	b = append(b, 0x00, 0x00, 0x00)
	if addr.Is4() {
		ip := addr.As4()
		b = append(b, atypIPv4)
		b = append(b, ip[:]...)
	} else {
		ip := addr.As16()
		b = append(b, atypIPv6)
		b = append(b, ip[:]...)
	}
	return binary.BigEndian.AppendUint16(b, dst.Port())
}

// ParseUDPHeader parses the header of a datagram received from the relay and returns the
// offset of the payload and the address the payload came from.
func ParseUDPHeader(b []byte) (int, netip.AddrPort, error) {
	if len(b) < 4 {
		return 0, netip.AddrPort{}, ErrShortDatagram
	}
	if b[2] != 0x00 {
		return 0, netip.AddrPort{}, ErrFragmented
	}

	var addrLen int
	switch b[3] {
	case atypIPv4:
		addrLen = 4
	case atypIPv6:
		addrLen = 16
	case atypDomain:
		return 0, netip.AddrPort{}, fmt.Errorf("%w: domain name", ErrUnsupportedAddressType)
	default:
		return 0, netip.AddrPort{}, fmt.Errorf("%w: 0x%02x", ErrUnsupportedAddressType, b[3])
	}

	end := 4 + addrLen + 2
	if len(b) < end {
		return 0, netip.AddrPort{}, ErrShortDatagram
	}

	addr, _ := netip.AddrFromSlice(b[4 : 4+addrLen])
	port := binary.BigEndian.Uint16(b[4+addrLen : end])
	return end, netip.AddrPortFrom(addr, port), nil
}
