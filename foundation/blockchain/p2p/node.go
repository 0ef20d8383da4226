// Package p2p implements the peer to peer protocol that keeps the ledgers
// of the nodes in the network synchronized. Every exchange is a short lived
// TCP connection carrying one request frame and at most one response frame.
package p2p

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/ledger"
	"github.com/ardanlabs/powledger/foundation/blockchain/miner"
	"github.com/ardanlabs/powledger/foundation/blockchain/peer"
	"golang.org/x/time/rate"
)

// Set of errors returned by the node.
var (
	ErrPeerUnreachable = errors.New("peer unreachable")
	ErrSelfConnect     = errors.New("can't connect to self")
	ErrNotStarted      = errors.New("node not started")
)

// Set of default values for the node configuration.
const (
	DefaultNetTimeout   = 5 * time.Second
	DefaultInboundRate  = 100
	DefaultInboundBurst = 50
)

// EventHandler defines a function that is called when events
// occur in the processing of peer messages.
type EventHandler func(v string, args ...any)

// =============================================================================

// Config represents the configuration required to construct a node.
type Config struct {
	Host          string // Address the node listens on.
	AdvertiseAddr string // Address given to peers, defaults to the listener address.
	Ledger        *ledger.Ledger
	Miner         *miner.Miner
	KnownPeers    *peer.PeerSet
	NetTimeout    time.Duration
	InboundRate   float64 // Accepted connections per second.
	InboundBurst  int
	EvHandler     EventHandler
}

// Node manages the peer connections for a ledger.
type Node struct {
	host       string
	ledger     *ledger.Ledger
	miner      *miner.Miner
	peers      *peer.PeerSet
	netTimeout time.Duration
	limiter    *rate.Limiter
	evHandler  EventHandler

	mu       sync.Mutex
	addr     string
	listener net.Listener
	closed   bool
	wg       sync.WaitGroup
}

// New constructs a node. Start must be called before the node can accept
// connections from peers.
func New(cfg Config) (*Node, error) {
	if cfg.Ledger == nil || cfg.Miner == nil {
		return nil, errors.New("ledger and miner are required")
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	peers := cfg.KnownPeers
	if peers == nil {
		peers = peer.NewPeerSet()
	}

	netTimeout := cfg.NetTimeout
	if netTimeout <= 0 {
		netTimeout = DefaultNetTimeout
	}

	inboundRate := cfg.InboundRate
	if inboundRate <= 0 {
		inboundRate = DefaultInboundRate
	}

	inboundBurst := cfg.InboundBurst
	if inboundBurst <= 0 {
		inboundBurst = DefaultInboundBurst
	}

	n := Node{
		host:       cfg.Host,
		addr:       cfg.AdvertiseAddr,
		ledger:     cfg.Ledger,
		miner:      cfg.Miner,
		peers:      peers,
		netTimeout: netTimeout,
		limiter:    rate.NewLimiter(rate.Limit(inboundRate), inboundBurst),
		evHandler:  ev,
	}

	return &n, nil
}

// Start binds the listener and starts accepting connections from peers.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.listener != nil || n.closed {
		return errors.New("node already started")
	}

	listener, err := net.Listen("tcp", n.host)
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.host, err)
	}
	n.listener = listener

	if n.addr == "" {
		n.addr = advertised(listener.Addr())
	}

	n.evHandler("p2p: Start: listening[%s]: advertise[%s]", listener.Addr(), n.addr)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.acceptLoop(listener)
	}()

	return nil
}

// Shutdown closes the listener and waits for every connection being
// handled to complete.
func (n *Node) Shutdown() error {
	n.evHandler("p2p: Shutdown: started")
	defer n.evHandler("p2p: Shutdown: completed")

	n.mu.Lock()
	n.closed = true
	listener := n.listener
	n.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}

	n.wg.Wait()

	return err
}

// Addr returns the address the node gives to its peers.
func (n *Node) Addr() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.addr
}

// Ledger returns the ledger managed by the node.
func (n *Node) Ledger() *ledger.Ledger {
	return n.ledger
}

// Miner returns the miner used by the node.
func (n *Node) Miner() *miner.Miner {
	return n.miner
}

// CancelMining signals the running mining attempt to stop. It reports
// whether an attempt was running.
func (n *Node) CancelMining() bool {
	return n.miner.Cancel()
}

// Peers returns the addresses of the known peers.
func (n *Node) Peers() []string {
	peers := n.peers.Copy(n.Addr())

	addrs := make([]string, len(peers))
	for i, p := range peers {
		addrs[i] = p.Address
	}

	return addrs
}

// IsPeer reports whether the address belongs to a known peer.
func (n *Node) IsPeer(address string) bool {
	return n.peers.Contains(peer.Peer{Address: address})
}

// Disconnect forgets the peer. It reports whether the peer was known.
func (n *Node) Disconnect(address string) bool {
	removed := n.peers.Remove(peer.Peer{Address: address})
	if removed {
		n.evHandler("p2p: Disconnect: peer[%s]", address)
	}

	return removed
}

// =============================================================================

// SubmitTransaction adds the transfer to the ledger and shares it with
// every peer.
func (n *Node) SubmitTransaction(ctx context.Context, sender string, receiver string, amount float64) (database.Tx, error) {
	tx, err := n.ledger.SubmitTransaction(sender, receiver, amount)
	if err != nil {
		return database.Tx{}, err
	}

	n.Broadcast(ctx, NewTransaction{Tx: tx})

	return tx, nil
}

// Mine seals a new block for the beneficiary and shares it with every peer.
func (n *Node) Mine(ctx context.Context, beneficiary string) (database.Block, error) {
	block, err := n.miner.Mine(ctx, beneficiary)
	if err != nil {
		return database.Block{}, err
	}

	n.Broadcast(ctx, NewBlock{Block: block})

	return block, nil
}

// =============================================================================

// spawn runs the function in a goroutine the node waits on during
// shutdown. Nothing is started once the node is shutting down.
func (n *Node) spawn(f func()) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return false
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		f()
	}()

	return true
}

// isClosed is used to test if a shutdown has been signaled.
func (n *Node) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.closed
}

// advertised converts the listener address into one peers can dial.
func advertised(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return addr.String()
	}

	host := tcp.IP.String()
	if tcp.IP == nil || tcp.IP.IsUnspecified() {
		host = "127.0.0.1"
	}

	return peer.New(host, tcp.Port).Address
}
