package proxy

import "strings"

// Type is the kind of proxy the endpoint socket is established through
type Type int

const (
	// TypeUnrecognized keeps the raw tag in Config.Tag and falls back to a direct connection
	TypeUnrecognized Type = iota
	TypeSocks5
	// TypeHTTP cannot relay UDP, connections fall back to direct
	TypeHTTP
)

const (
	tagSocks5 = "socks5"
	tagHTTP   = "http"
)

func (t Type) String() string {
	switch t {
	case TypeSocks5:
		return tagSocks5
	case TypeHTTP:
		return tagHTTP
	default:
		return "unrecognized"
	}
}

// ParseType maps a configured proxy tag to its Type. Matching is case-insensitive.
func ParseType(tag string) Type {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case tagSocks5:
		return TypeSocks5
	case tagHTTP:
		return TypeHTTP
	default:
		return TypeUnrecognized
	}
}

// Config is the read-only proxy configuration of a device
type Config struct {
	Type Type
	// Tag is the proxy type as configured
	Tag string
	// Address is the proxy "host:port"
	Address string
}

// NewConfig builds a Config from its textual form
func NewConfig(tag, address string) Config {
	return Config{
		Type:    ParseType(tag),
		Tag:     tag,
		Address: address,
	}
}

func (c Config) String() string {
	return c.Tag + "://" + c.Address
}
