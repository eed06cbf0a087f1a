package allowedip

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// ErrInvalidFormat is returned for text that is not a valid "addr/cidr" range
var ErrInvalidFormat = errors.New("invalid IP format")

// AllowedIP is one CIDR range authorizing traffic for a peer. The address keeps the host
// bits it was configured with, Prefix returns the masked form.
type AllowedIP struct {
	Addr netip.Addr
	Cidr uint8
}

// Parse parses an "addr/cidr" string. The prefix length must not exceed 32 for IPv4 and
// 128 for IPv6 addresses.
func Parse(s string) (AllowedIP, error) {
	fields := strings.Split(s, "/")
	if len(fields) != 2 {
		return AllowedIP{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}

	addr, err := netip.ParseAddr(fields[0])
	if err != nil || addr.Zone() != "" {
		return AllowedIP{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}

	// a single leading plus sign is accepted
	cidr, err := strconv.ParseUint(strings.TrimPrefix(fields[1], "+"), 10, 8)
	if err != nil {
		return AllowedIP{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}

	ip, err := New(addr, uint8(cidr))
	if err != nil {
		return AllowedIP{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	return ip, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) AllowedIP {
	ip, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return ip
}

// ParseList parses a comma separated list of ranges, empty items are ignored
func ParseList(csv string) ([]AllowedIP, error) {
	var ips []AllowedIP
	for _, item := range strings.Split(csv, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		ip, err := Parse(item)
		if err != nil {
			return nil, err
		}
		ips = append(ips, ip)
	}
	return ips, nil
}

// New validates the prefix length against the address family
func New(addr netip.Addr, cidr uint8) (AllowedIP, error) {
	if !addr.IsValid() || int(cidr) > addr.BitLen() {
		return AllowedIP{}, ErrInvalidFormat
	}
	return AllowedIP{Addr: addr, Cidr: cidr}, nil
}

// FromPrefix converts a netip.Prefix
func FromPrefix(p netip.Prefix) (AllowedIP, error) {
	if !p.IsValid() {
		return AllowedIP{}, ErrInvalidFormat
	}
	return New(p.Addr(), uint8(p.Bits()))
}

// Prefix returns the masked prefix
func (a AllowedIP) Prefix() netip.Prefix {
	return netip.PrefixFrom(a.Addr, int(a.Cidr)).Masked()
}

// Contains reports whether ip falls in the range
func (a AllowedIP) Contains(ip netip.Addr) bool {
	return a.Prefix().Contains(ip)
}

// Compare orders by address first, IPv4 before IPv6, then by prefix length
func (a AllowedIP) Compare(b AllowedIP) int {
	if c := a.Addr.Compare(b.Addr); c != 0 {
		return c
	}
	switch {
	case a.Cidr < b.Cidr:
		return -1
	case a.Cidr > b.Cidr:
		return 1
	default:
		return 0
	}
}

func (a AllowedIP) String() string {
	return a.Addr.String() + "/" + strconv.Itoa(int(a.Cidr))
}

// MarshalText implements encoding.TextMarshaler
func (a AllowedIP) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (a *AllowedIP) UnmarshalText(text []byte) error {
	ip, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = ip
	return nil
}
