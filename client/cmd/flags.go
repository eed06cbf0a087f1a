package cmd

import (
	"strings"

	"github.com/spf13/pflag"

	"github.com/netbirdio/wgpeer/client/iface/allowedip"
)

const (
	interfaceNameFlag   = "interface-name"
	peerKeyFlag         = "peer-key"
	preSharedKeyFlag    = "preshared-key"
	endpointFlag        = "endpoint"
	allowedIPsFlag      = "allowed-ips"
	wireguardPortFlag   = "wireguard-port"
	fwmarkFlag          = "fwmark"
	proxyTypeFlag       = "proxy-type"
	proxyAddressFlag    = "proxy-address"
	indexFlag           = "index"
	keepAliveFlag       = "persistent-keepalive"
	configureDeviceFlag = "configure-device"
)

const (
	defaultInterfaceName = "wt0"
	defaultWgPort        = 51820
	defaultKeepAlive     = 25
)

// allowedIPsValue is a pflag.Value collecting comma separated CIDR ranges.
// Repeating the flag appends, the first use replaces the default.
type allowedIPsValue struct {
	ips     *[]allowedip.AllowedIP
	changed bool
}

func newAllowedIPsValue(ips *[]allowedip.AllowedIP) *allowedIPsValue {
	return &allowedIPsValue{ips: ips}
}

func (v *allowedIPsValue) Set(s string) error {
	parsed, err := allowedip.ParseList(s)
	if err != nil {
		return err
	}

	if v.changed {
		*v.ips = append(*v.ips, parsed...)
	} else {
		*v.ips = parsed
	}
	v.changed = true
	return nil
}

func (v *allowedIPsValue) Type() string {
	return "allowedIPs"
}

func (v *allowedIPsValue) String() string {
	strs := make([]string, 0, len(*v.ips))
	for _, ip := range *v.ips {
		strs = append(strs, ip.String())
	}
	return "[" + strings.Join(strs, ",") + "]"
}

// addConnectFlags binds the peer flags to cfg
func addConnectFlags(flags *pflag.FlagSet, cfg *PeerConfig) {
	flags.StringVar(&cfg.InterfaceName, interfaceNameFlag, defaultInterfaceName, "Wireguard interface name")
	flags.StringVar(&cfg.PeerKey, peerKeyFlag, "", "Public key of the remote peer (base64)")
	flags.StringVar(&cfg.PresharedKey, preSharedKeyFlag, "", "Sets Wireguard PreSharedKey property. If set, then only peers that have the same key can communicate.")
	flags.StringVar(&cfg.Endpoint, endpointFlag, "", "Remote peer endpoint ip:port")
	flags.Var(newAllowedIPsValue(&cfg.AllowedIPs), allowedIPsFlag, "Comma separated list of IP ranges routed to the peer, e.g. 10.0.0.0/8,fd00::/64")
	flags.Uint16Var(&cfg.WireguardPort, wireguardPortFlag, defaultWgPort, "Local port the endpoint socket is bound to, 0 picks a free one")
	flags.Uint32Var(&cfg.Fwmark, fwmarkFlag, 0, "Mark set on endpoint sockets for policy routing, 0 disables marking")
	flags.StringVar(&cfg.ProxyType, proxyTypeFlag, "", "Proxy the endpoint socket goes through [socks5|http]. Only socks5 relays UDP, others connect directly")
	flags.StringVar(&cfg.ProxyAddress, proxyAddressFlag, "", "Proxy address ip:port")
	flags.Uint32Var(&cfg.Index, indexFlag, 0, "Index of the peer within the device")
	flags.Uint16Var(&cfg.PersistentKeepalive, keepAliveFlag, defaultKeepAlive, "Persistent keepalive interval in seconds, set on the interface with --configure-device")
	flags.BoolVar(&cfg.ConfigureDevice, configureDeviceFlag, false, "Add the peer to the WireGuard interface before connecting and remove it on exit")
}

// applyChangedFlags copies the values of the flags set on the command line or from the
// environment into cfg
func applyChangedFlags(flags *pflag.FlagSet, from *PeerConfig, cfg *PeerConfig) {
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case interfaceNameFlag:
			cfg.InterfaceName = from.InterfaceName
		case peerKeyFlag:
			cfg.PeerKey = from.PeerKey
		case preSharedKeyFlag:
			cfg.PresharedKey = from.PresharedKey
		case endpointFlag:
			cfg.Endpoint = from.Endpoint
		case allowedIPsFlag:
			cfg.AllowedIPs = from.AllowedIPs
		case wireguardPortFlag:
			cfg.WireguardPort = from.WireguardPort
		case fwmarkFlag:
			cfg.Fwmark = from.Fwmark
		case proxyTypeFlag:
			cfg.ProxyType = from.ProxyType
		case proxyAddressFlag:
			cfg.ProxyAddress = from.ProxyAddress
		case indexFlag:
			cfg.Index = from.Index
		case keepAliveFlag:
			cfg.PersistentKeepalive = from.PersistentKeepalive
		case configureDeviceFlag:
			cfg.ConfigureDevice = from.ConfigureDevice
		}
	})
}
