// Package peer maintains the peer related information such as the set
// of known peers.
package peer

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
)

// Peer represents information about a Node in the network. The address
// is the host:port the node accepts peer connections on.
type Peer struct {
	Address string `json:"address"`
}

// New contructs a new peer value from the host and port.
func New(host string, port int) Peer {
	return Peer{
		Address: net.JoinHostPort(host, strconv.Itoa(port)),
	}
}

// Parse validates the host:port address and constructs a peer value.
func Parse(address string) (Peer, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return Peer{}, err
	}

	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 {
		return Peer{}, fmt.Errorf("invalid port %q", port)
	}

	return New(host, p), nil
}

// Observed replaces a loopback or unspecified host in the address with
// the IP the peer was actually heard from. A node listening on all
// interfaces advertises a loopback host that only works on its own machine.
func (p Peer) Observed(ip net.IP) Peer {
	host, port, err := net.SplitHostPort(p.Address)
	if err != nil || ip == nil || ip.IsLoopback() || ip.IsUnspecified() {
		return p
	}

	hostIP := net.ParseIP(host)
	if hostIP == nil || !(hostIP.IsLoopback() || hostIP.IsUnspecified()) {
		return p
	}

	return Peer{Address: net.JoinHostPort(ip.String(), port)}
}

// Match validates if the specified address matches this node.
func (p Peer) Match(address string) bool {
	return p.Address == address
}

// String implements the fmt.Stringer interface.
func (p Peer) String() string {
	return p.Address
}

// =============================================================================

// PeerSet represents the data representation to maintain a set of known peers.
type PeerSet struct {
	mu  sync.RWMutex
	set map[Peer]struct{}
}

// NewPeerSet constructs a new info set to manage node peer information.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		set: make(map[Peer]struct{}),
	}
}

// Add adds a new node to the set. It reports whether the peer was new.
func (ps *PeerSet) Add(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	_, exists := ps.set[peer]
	if !exists {
		ps.set[peer] = struct{}{}
		return true
	}

	return false
}

// Remove removes a node from the set. It reports whether the peer was known.
func (ps *PeerSet) Remove(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	_, exists := ps.set[peer]
	delete(ps.set, peer)

	return exists
}

// Contains reports whether the peer is in the set.
func (ps *PeerSet) Contains(peer Peer) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	_, exists := ps.set[peer]
	return exists
}

// Len returns the number of known peers.
func (ps *PeerSet) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return len(ps.set)
}

// Copy returns a sorted list of the known peers, leaving out the
// specified address.
func (ps *PeerSet) Copy(address string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	peers := make([]Peer, 0, len(ps.set))
	for peer := range ps.set {
		if !peer.Match(address) {
			peers = append(peers, peer)
		}
	}

	sort.Slice(peers, func(i, j int) bool {
		return peers[i].Address < peers[j].Address
	})

	return peers
}
