package wgtunnel

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/netbirdio/wgpeer/client/iface/allowedip"
	"github.com/netbirdio/wgpeer/client/internal/peer"
)

var ErrPeerNotFound = errors.New("peer not found")

var _ peer.Tunnel = (*Device)(nil)

type deviceClient interface {
	Device(name string) (*wgtypes.Device, error)
	ConfigureDevice(name string, cfg wgtypes.Config) error
	Close() error
}

func newWgctrlClient() (deviceClient, error) {
	return wgctrl.New()
}

// Device is a peer.Tunnel backed by one peer of a kernel or userspace WireGuard interface.
// Handshakes and timers run inside the interface, Device only reads their state.
type Device struct {
	deviceName string
	peerKey    wgtypes.Key

	// configured is set once ConfigurePeer added the peer, Close only removes peers it added
	configured atomic.Bool

	newClient func() (deviceClient, error)
}

func NewDevice(deviceName string, peerKey wgtypes.Key) *Device {
	return &Device{
		deviceName: deviceName,
		peerKey:    peerKey,
		newClient:  newWgctrlClient,
	}
}

// UpdateTimers never has anything to send, the interface runs its own timers
func (d *Device) UpdateTimers(_ []byte) peer.TunnelResult {
	return peer.TunnelResult{Op: peer.TunnelDone}
}

func (d *Device) TimeSinceLastHandshake() (time.Duration, bool) {
	p, err := d.getPeer()
	if err != nil {
		log.Debugf("failed to read handshake of peer %s on %s: %v", d.peerKey, d.deviceName, err)
		return 0, false
	}
	if p.LastHandshakeTime.IsZero() {
		return 0, false
	}
	return time.Since(p.LastHandshakeTime), true
}

func (d *Device) PersistentKeepalive() (uint16, bool) {
	p, err := d.getPeer()
	if err != nil {
		log.Debugf("failed to read keepalive of peer %s on %s: %v", d.peerKey, d.deviceName, err)
		return 0, false
	}

	secs := p.PersistentKeepaliveInterval / time.Second
	if secs <= 0 {
		return 0, false
	}
	return uint16(min(secs, 1<<16-1)), true
}

// ConfigurePeer adds the peer to the interface or updates it in place
func (d *Device) ConfigurePeer(endpoint netip.AddrPort, allowedIPs []allowedip.AllowedIP, keepAlive time.Duration, presharedKey *wgtypes.Key) error {
	ipNets := make([]net.IPNet, 0, len(allowedIPs))
	for _, ip := range allowedIPs {
		prefix := ip.Prefix()
		ipNets = append(ipNets, net.IPNet{
			IP:   prefix.Addr().AsSlice(),
			Mask: net.CIDRMask(prefix.Bits(), prefix.Addr().BitLen()),
		})
	}

	peerCfg := wgtypes.PeerConfig{
		PublicKey:                   d.peerKey,
		ReplaceAllowedIPs:           true,
		AllowedIPs:                  ipNets,
		PersistentKeepaliveInterval: &keepAlive,
		PresharedKey:                presharedKey,
	}
	if endpoint.IsValid() {
		peerCfg.Endpoint = net.UDPAddrFromAddrPort(endpoint)
	}

	err := d.configure(wgtypes.Config{Peers: []wgtypes.PeerConfig{peerCfg}})
	if err != nil {
		return fmt.Errorf(`received error "%w" while updating peer on interface %s with settings: allowed ips %v, endpoint %s`, err, d.deviceName, allowedIPs, endpoint)
	}
	d.configured.Store(true)
	return nil
}

// Close removes the peer from the interface if ConfigurePeer added it
func (d *Device) Close() error {
	if !d.configured.Swap(false) {
		return nil
	}

	peerCfg := wgtypes.PeerConfig{
		PublicKey: d.peerKey,
		Remove:    true,
	}

	err := d.configure(wgtypes.Config{Peers: []wgtypes.PeerConfig{peerCfg}})
	if err != nil {
		return fmt.Errorf(`received error "%w" while removing peer %s from interface %s`, err, d.peerKey, d.deviceName)
	}
	return nil
}

func (d *Device) getPeer() (wgtypes.Peer, error) {
	wg, err := d.newClient()
	if err != nil {
		return wgtypes.Peer{}, err
	}
	defer func() {
		if err := wg.Close(); err != nil {
			log.Errorf("got error while closing wgctl: %v", err)
		}
	}()

	wgDevice, err := wg.Device(d.deviceName)
	if err != nil {
		return wgtypes.Peer{}, err
	}
	for _, p := range wgDevice.Peers {
		if p.PublicKey == d.peerKey {
			return p, nil
		}
	}
	return wgtypes.Peer{}, ErrPeerNotFound
}

func (d *Device) configure(config wgtypes.Config) error {
	wg, err := d.newClient()
	if err != nil {
		return err
	}
	defer func() {
		if err := wg.Close(); err != nil {
			log.Errorf("got error while closing wgctl: %v", err)
		}
	}()

	// validate if device with name exists
	if _, err := wg.Device(d.deviceName); err != nil {
		return err
	}
	log.Tracef("got WireGuard device %s", d.deviceName)

	return wg.ConfigureDevice(d.deviceName, config)
}
