// Package discovery announces the presence of a node on the local network
// over UDP and connects to the nodes it hears from.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/peer"
	"golang.org/x/time/rate"
)

// TypeDiscovery is the type carried by every announcement.
const TypeDiscovery = "DISCOVERY"

// Set of default values for the discovery configuration.
const (
	DefaultPort       = 5001
	DefaultInterval   = 30 * time.Second
	DefaultNetTimeout = 5 * time.Second
	DefaultDialRate   = 1
	DefaultDialBurst  = 5
)

// maxPacketSize is the largest announcement read from the socket.
const maxPacketSize = 1024

// EventHandler defines a function that is called when events
// occur in the processing of announcements.
type EventHandler func(v string, args ...any)

// Node represents the behavior discovery needs from the peer to peer node.
type Node interface {
	Addr() string
	IsPeer(address string) bool
	ConnectToAddress(ctx context.Context, address string) error
}

// Announcement is the presence message sent over UDP.
type Announcement struct {
	Type string `json:"type"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Address returns the host:port the announced node accepts peers on.
func (a Announcement) Address() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// =============================================================================

// Config represents the configuration required to run discovery.
type Config struct {
	Host       string   // Host the UDP socket binds to, empty for all.
	Port       int      // Port the UDP socket binds to.
	Targets    []string // Destinations of the announcements, defaults to the broadcast address.
	Interval   time.Duration
	NetTimeout time.Duration
	DialRate   float64 // Dials to newly heard nodes per second.
	DialBurst  int
	Node       Node
	EvHandler  EventHandler
}

// Discovery manages the announcer and listener goroutines.
type Discovery struct {
	node       Node
	conn       *net.UDPConn
	targets    []*net.UDPAddr
	interval   time.Duration
	netTimeout time.Duration
	limiter    *rate.Limiter
	evHandler  EventHandler
	wg         sync.WaitGroup
	shut       chan struct{}
}

// Run binds the UDP socket and starts the announcer and listener goroutines.
func Run(cfg Config) (*Discovery, error) {
	if cfg.Node == nil {
		return nil, errors.New("node is required")
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	netTimeout := cfg.NetTimeout
	if netTimeout <= 0 {
		netTimeout = DefaultNetTimeout
	}

	dialRate := cfg.DialRate
	if dialRate <= 0 {
		dialRate = DefaultDialRate
	}

	dialBurst := cfg.DialBurst
	if dialBurst <= 0 {
		dialBurst = DefaultDialBurst
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP(cfg.Host), Port: cfg.Port})
	if err != nil {
		return nil, fmt.Errorf("listen udp %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	targets := cfg.Targets
	if len(targets) == 0 {
		targets = []string{net.JoinHostPort("255.255.255.255", strconv.Itoa(conn.LocalAddr().(*net.UDPAddr).Port))}
	}

	d := Discovery{
		node:       cfg.Node,
		conn:       conn,
		interval:   interval,
		netTimeout: netTimeout,
		limiter:    rate.NewLimiter(rate.Limit(dialRate), dialBurst),
		evHandler:  ev,
		shut:       make(chan struct{}),
	}

	for _, target := range targets {
		addr, err := net.ResolveUDPAddr("udp4", target)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("resolve target %s: %w", target, err)
		}
		d.targets = append(d.targets, addr)
	}

	ev("discovery: Run: listening[%s]: targets[%v]", conn.LocalAddr(), targets)

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.announceOperations()
	}()
	go func() {
		defer d.wg.Done()
		d.listenOperations()
	}()

	return &d, nil
}

// LocalAddr returns the address of the UDP socket.
func (d *Discovery) LocalAddr() *net.UDPAddr {
	return d.conn.LocalAddr().(*net.UDPAddr)
}

// Shutdown closes the socket and waits for the goroutines to terminate.
func (d *Discovery) Shutdown() {
	d.evHandler("discovery: shutdown: started")
	defer d.evHandler("discovery: shutdown: completed")

	close(d.shut)
	d.conn.Close()
	d.wg.Wait()
}

// =============================================================================

// announceOperations sends an announcement right away and then on every
// interval until shutdown.
func (d *Discovery) announceOperations() {
	d.evHandler("discovery: announceOperations: G started")
	defer d.evHandler("discovery: announceOperations: G completed")

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		d.announce()

		select {
		case <-ticker.C:
		case <-d.shut:
			return
		}
	}
}

// announce sends the presence of the node to every target.
func (d *Discovery) announce() {
	host, port, err := net.SplitHostPort(d.node.Addr())
	if err != nil {
		d.evHandler("discovery: announce: ERROR: node address: %s", err)
		return
	}

	p, err := strconv.Atoi(port)
	if err != nil {
		d.evHandler("discovery: announce: ERROR: node port: %s", err)
		return
	}

	data, err := json.Marshal(Announcement{Type: TypeDiscovery, Host: host, Port: p})
	if err != nil {
		d.evHandler("discovery: announce: ERROR: %s", err)
		return
	}

	for _, target := range d.targets {
		if _, err := d.conn.WriteToUDP(data, target); err != nil {
			d.evHandler("discovery: announce: target[%s]: WARNING: %s", target, err)
		}
	}
}

// listenOperations reads announcements until the socket is closed.
func (d *Discovery) listenOperations() {
	d.evHandler("discovery: listenOperations: G started")
	defer d.evHandler("discovery: listenOperations: G completed")

	buf := make([]byte, maxPacketSize)
	for {
		n, from, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			if d.isShutdown() || errors.Is(err, net.ErrClosed) {
				return
			}
			d.evHandler("discovery: listenOperations: ERROR: %s", err)
			continue
		}

		d.received(buf[:n], from)
	}
}

// received handles one announcement, dialing the node when it isn't known.
// A loopback host is replaced by the address the packet came from.
func (d *Discovery) received(data []byte, from *net.UDPAddr) {
	var a Announcement
	if err := json.Unmarshal(data, &a); err != nil || a.Type != TypeDiscovery || a.Host == "" || a.Port <= 0 {
		d.evHandler("discovery: received: from[%s]: WARNING: malformed announcement", from)
		return
	}

	address := peer.New(a.Host, a.Port).Observed(from.IP).Address
	if address == d.node.Addr() || d.node.IsPeer(address) {
		return
	}

	if !d.limiter.Allow() {
		d.evHandler("discovery: received: peer[%s]: rate limited", address)
		return
	}

	d.evHandler("discovery: received: peer[%s]: connecting", address)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 2*d.netTimeout)
		defer cancel()

		if err := d.node.ConnectToAddress(ctx, address); err != nil {
			d.evHandler("discovery: received: peer[%s]: WARNING: %s", address, err)
		}
	}()
}

// isShutdown is used to test if a shutdown has been signaled.
func (d *Discovery) isShutdown() bool {
	select {
	case <-d.shut:
		return true
	default:
		return false
	}
}
