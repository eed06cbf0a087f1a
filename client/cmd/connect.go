package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/netbirdio/wgpeer/client/iface/allowedip"
	"github.com/netbirdio/wgpeer/client/iface/wgtunnel"
	"github.com/netbirdio/wgpeer/client/internal/peer"
	"github.com/netbirdio/wgpeer/client/internal/proxy"
	"github.com/netbirdio/wgpeer/client/internal/socks5"
	"github.com/netbirdio/wgpeer/formatter"
	"github.com/netbirdio/wgpeer/util"
	nbnet "github.com/netbirdio/wgpeer/util/net"
)

// timerTick is how often the peer timers are updated
const timerTick = 250 * time.Millisecond

// PeerConfig is the content of the peer config file
type PeerConfig struct {
	InterfaceName       string
	PeerKey             string
	PresharedKey        string `json:",omitempty"`
	Endpoint            string
	AllowedIPs          []allowedip.AllowedIP
	WireguardPort       uint16
	Fwmark              uint32
	ProxyType           string `json:",omitempty"`
	ProxyAddress        string `json:",omitempty"`
	Index               uint32
	PersistentKeepalive uint16
	ConfigureDevice     bool
}

// peerSettings are the parsed values of a PeerConfig
type peerSettings struct {
	peerKey      wgtypes.Key
	presharedKey *wgtypes.Key
	endpoint     netip.AddrPort
	keepAlive    time.Duration
	proxy        *proxy.Config
}

// peerState is written to the state file while the endpoint is connected
type peerState struct {
	Index       uint32
	Endpoint    string
	ConnID      string
	LocalAddr   string
	RemoteAddr  string
	Relayed     bool
	ConnectedAt time.Time
}

var (
	connectFlagsConfig PeerConfig
	connectRetries     uint64
	stateFile          string

	connectCmd = &cobra.Command{
		Use:   "connect",
		Short: "connect the endpoint of a peer and keep it connected",
		RunE:  connectFunc,
	}
)

func init() {
	addConnectFlags(connectCmd.Flags(), &connectFlagsConfig)
	connectCmd.Flags().Uint64Var(&connectRetries, "retries", 0, "Maximum connection attempts after the first failure, 0 retries until the backoff gives up")
	connectCmd.Flags().StringVar(&stateFile, "state-file", "", "Writes the endpoint state as JSON to this file while connected")
}

func connectFunc(cmd *cobra.Command, _ []string) error {
	util.SetFlagsFromEnvVars(rootCmd)
	util.SetFlagsFromEnvVars(cmd)

	cmd.SetOut(cmd.OutOrStdout())

	err := util.InitLog(logLevel, logFile)
	if err != nil {
		return fmt.Errorf("failed initializing log %v", err)
	}
	if err := formatter.SetFormatter(log.StandardLogger(), logFormat); err != nil {
		return err
	}

	cfg, err := loadPeerConfig(cmd.Flags(), configPath, &connectFlagsConfig)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	SetupCloseHandler(ctx, cancel)

	return runConnect(ctx, cmd, cfg)
}

// loadPeerConfig reads the config file when one is given, flags that were set override its values
func loadPeerConfig(flags *pflag.FlagSet, path string, flagsConfig *PeerConfig) (*PeerConfig, error) {
	if path == "" {
		cfg := *flagsConfig
		return &cfg, nil
	}

	cfg := &PeerConfig{
		InterfaceName:       defaultInterfaceName,
		WireguardPort:       defaultWgPort,
		PersistentKeepalive: defaultKeepAlive,
	}
	if _, err := util.ReadJsonWithEnvSub(path, cfg); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyChangedFlags(flags, flagsConfig, cfg)
	return cfg, nil
}

func (c *PeerConfig) parse() (*peerSettings, error) {
	if c.PeerKey == "" {
		return nil, fmt.Errorf("--%s is required", peerKeyFlag)
	}

	peerKey, err := wgtypes.ParseKey(c.PeerKey)
	if err != nil {
		return nil, fmt.Errorf("invalid peer key: %w", err)
	}

	settings := &peerSettings{
		peerKey:   peerKey,
		keepAlive: time.Duration(c.PersistentKeepalive) * time.Second,
	}

	if c.PresharedKey != "" {
		psk, err := wgtypes.ParseKey(c.PresharedKey)
		if err != nil {
			return nil, fmt.Errorf("invalid pre-shared key: %w", err)
		}
		settings.presharedKey = &psk
	}

	if c.Endpoint != "" {
		settings.endpoint, err = netip.ParseAddrPort(c.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint %q: %w", c.Endpoint, err)
		}
	}

	if c.ProxyType != "" {
		proxyCfg := proxy.NewConfig(c.ProxyType, c.ProxyAddress)
		settings.proxy = &proxyCfg
	}

	return settings, nil
}

func runConnect(ctx context.Context, cmd *cobra.Command, cfg *PeerConfig) error {
	settings, err := cfg.parse()
	if err != nil {
		return err
	}

	tunnel := wgtunnel.NewDevice(cfg.InterfaceName, settings.peerKey)
	if cfg.ConfigureDevice {
		if err := util.CheckAdmin(); err != nil {
			log.Warnf("%v, configuring interface %s may fail", err, cfg.InterfaceName)
		}
		if err := tunnel.ConfigurePeer(settings.endpoint, cfg.AllowedIPs, settings.keepAlive, settings.presharedKey); err != nil {
			return err
		}
	}

	fwmark := cfg.Fwmark
	if fwmark != 0 && !nbnet.CheckFwmarkSupport() {
		log.Warnf("fwmark %#x is not supported, endpoint sockets are not marked", fwmark)
		fwmark = 0
	}

	p := peer.NewPeer(tunnel, cfg.Index, settings.endpoint, cfg.AllowedIPs, settings.presharedKey)
	defer func() {
		if err := p.Close(); err != nil {
			log.Errorf("failed closing peer %d: %v", cfg.Index, err)
		}
	}()

	connect := func() error {
		if err := connectWithRetry(ctx, p, cfg.WireguardPort, fwmark, settings.proxy, connectRetries); err != nil {
			return err
		}
		printStatus(cmd, p)
		if stateFile != "" {
			if err := writeState(ctx, stateFile, p); err != nil {
				log.Warnf("failed to write state file %s: %v", stateFile, err)
			}
		}
		return nil
	}

	if err := connect(); err != nil {
		return err
	}
	if stateFile != "" {
		defer func() {
			if err := util.RemoveJson(stateFile); err != nil {
				log.Warnf("failed to remove state file: %v", err)
			}
		}()
	}

	stale := make(chan struct{}, 1)
	onStale := func() {
		select {
		case stale <- struct{}{}:
		default:
		}
	}

	watcher := peer.NewHandshakeWatcher(log.WithField("peer", cfg.Index), p)
	watcher.Enable(ctx, onStale)
	defer watcher.Disable()

	ticker := time.NewTicker(timerTick)
	defer ticker.Stop()

	buf := make([]byte, 148)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			handleTimers(p, buf)
		case <-stale:
			log.Infof("reconnecting endpoint of peer %d", cfg.Index)
			if err := p.ShutdownEndpoint(); err != nil {
				log.Warnf("failed to shut down endpoint: %v", err)
			}
			if err := connect(); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			watcher.Enable(ctx, onStale)
		}
	}
}

// handleTimers runs the peer timers once and sends what they produce
func handleTimers(p *peer.Peer, buf []byte) {
	res := p.UpdateTimers(buf)
	switch res.Op {
	case peer.TunnelDone:
	case peer.TunnelWriteToNetwork:
		state := p.Endpoint()
		if !state.HasConn() {
			log.Tracef("peer %d has no endpoint socket, dropping timer packet", p.Index())
			return
		}
		if _, err := state.Conn.Write(res.Packet); err != nil {
			log.Debugf("failed to send timer packet to %s: %v", state.Addr, err)
		}
	case peer.TunnelErr:
		if errors.Is(res.Err, peer.ErrConnectionExpired) {
			if err := p.ShutdownEndpoint(); err != nil {
				log.Warnf("failed to shut down endpoint: %v", err)
			}
			return
		}
		log.Errorf("timer error on peer %d: %v", p.Index(), res.Err)
	}
}

// connectWithRetry connects the peer endpoint, retrying transient failures with backoff.
// The socket is read back through p.Endpoint.
func connectWithRetry(ctx context.Context, p *peer.Peer, port uint16, fwmark uint32, proxyCfg *proxy.Config, retries uint64) error {
	err := WithBackOff(ctx, retries, func() error {
		if _, err := p.ConnectEndpoint(ctx, port, fwmark, proxyCfg); err != nil {
			if isPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("connect endpoint of peer %d: %w", p.Index(), err)
	}
	return nil
}

func isPermanent(err error) bool {
	return errors.Is(err, peer.ErrAlreadyConnected) ||
		errors.Is(err, peer.ErrEndpointUnset) ||
		errors.Is(err, socks5.ErrProxyAddressInvalid)
}

func printStatus(cmd *cobra.Command, p *peer.Peer) {
	state := p.Endpoint()
	if !state.HasConn() {
		cmd.Printf("Peer %d: endpoint %s not connected\n", p.Index(), state.Addr)
		return
	}

	if state.Conn.Relayed() {
		cmd.Printf("Peer %d: connected to %s through relay %s\n", p.Index(), state.Addr, state.Conn.RemoteAddr())
		return
	}
	cmd.Printf("Peer %d: connected to %s from %s\n", p.Index(), state.Addr, state.Conn.LocalAddr())
}

func writeState(ctx context.Context, path string, p *peer.Peer) error {
	state := p.Endpoint()
	s := peerState{
		Index:       p.Index(),
		Endpoint:    state.Addr.String(),
		ConnectedAt: time.Now().UTC(),
	}
	if state.HasConn() {
		s.ConnID = string(state.Conn.ID())
		s.LocalAddr = state.Conn.LocalAddr().String()
		s.RemoteAddr = state.Conn.RemoteAddr().String()
		s.Relayed = state.Conn.Relayed()
	}

	return util.WriteJson(ctx, path, s)
}
