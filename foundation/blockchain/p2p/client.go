package p2p

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/peer"
)

// ConnectToPeer introduces this node to the peer at host and port and
// synchronizes with its ledger.
func (n *Node) ConnectToPeer(ctx context.Context, host string, port int) error {
	return n.ConnectToAddress(ctx, net.JoinHostPort(host, strconv.Itoa(port)))
}

// ConnectToAddress introduces this node to the peer at the host:port
// address. The first session exchanges CONNECT and CONNECT_ACK and the
// second pulls the peer's ledger. Peers learned from the ack are dialed
// in the background.
func (n *Node) ConnectToAddress(ctx context.Context, address string) error {
	p, err := peer.Parse(address)
	if err != nil {
		return fmt.Errorf("peer[%s]: %w", address, err)
	}

	self := n.Addr()
	if self == "" {
		return ErrNotStarted
	}

	if p.Match(self) {
		return ErrSelfConnect
	}

	if n.peers.Contains(p) {
		n.evHandler("p2p: ConnectToAddress: peer[%s]: already known", p)
		return nil
	}

	n.evHandler("p2p: ConnectToAddress: peer[%s]: started", p)

	resp, err := n.request(ctx, p.Address, Connect{Address: self})
	if err != nil {
		return err
	}

	ack, ok := resp.(ConnectAck)
	if !ok {
		return fmt.Errorf("peer[%s]: %w: unexpected response %s", p, ErrMalformedMessage, resp.Type())
	}

	if n.peers.Add(p) {
		n.evHandler("p2p: ConnectToAddress: peer[%s]: added", p)
	}

	for _, address := range ack.Peers {
		n.discovered(address)
	}

	if err := n.syncWith(ctx, p.Address); err != nil {
		return err
	}

	n.evHandler("p2p: ConnectToAddress: peer[%s]: completed: height[%d]", p, n.ledger.Height())

	return nil
}

// Resync pulls the ledger of every known peer and adopts the longest valid
// chain. Peers that can't be reached are forgotten.
func (n *Node) Resync(ctx context.Context) {
	n.evHandler("p2p: Resync: started")
	defer n.evHandler("p2p: Resync: completed: height[%d]", n.ledger.Height())

	for _, p := range n.peers.Copy(n.Addr()) {
		if ctx.Err() != nil {
			return
		}

		err := n.syncWith(ctx, p.Address)
		switch {
		case err == nil:
		case errors.Is(err, ErrPeerUnreachable):
			n.peers.Remove(p)
			n.evHandler("p2p: Resync: peer[%s]: removed: %s", p, err)
		default:
			n.evHandler("p2p: Resync: peer[%s]: WARNING: %s", p, err)
		}
	}
}

// Broadcast sends the message to every known peer at the same time. A peer
// that can't be reached is forgotten. There is no retry.
func (n *Node) Broadcast(ctx context.Context, msg Message) {
	peers := n.peers.Copy(n.Addr())
	if len(peers) == 0 {
		return
	}

	n.evHandler("p2p: Broadcast: %s: peers[%d]", msg.Type(), len(peers))

	var wg sync.WaitGroup
	wg.Add(len(peers))

	for _, p := range peers {
		go func(p peer.Peer) {
			defer wg.Done()

			if err := n.send(ctx, p.Address, msg); err != nil {
				n.peers.Remove(p)
				n.evHandler("p2p: Broadcast: %s: peer[%s]: removed: %s", msg.Type(), p, err)
			}
		}(p)
	}

	wg.Wait()
}

// =============================================================================

// syncWith pulls the ledger of the peer and adopts its chain when it is
// longer and valid.
func (n *Node) syncWith(ctx context.Context, address string) error {
	resp, err := n.request(ctx, address, GetBlockchain{})
	if err != nil {
		return err
	}

	bc, ok := resp.(Blockchain)
	if !ok {
		return fmt.Errorf("peer[%s]: %w: unexpected response %s", address, ErrMalformedMessage, resp.Type())
	}

	err = n.ledger.ReplaceChain(bc.Snapshot.Chain)
	switch {
	case err == nil:
		n.miner.Cancel()
		n.evHandler("p2p: syncWith: peer[%s]: chain replaced: height[%d]", address, len(bc.Snapshot.Chain))

	case errors.Is(err, database.ErrChainNotLonger):

	default:
		return fmt.Errorf("peer[%s]: chain rejected: %w", address, err)
	}

	for _, tx := range bc.Snapshot.Pending {
		if err := n.ledger.UpsertTransaction(tx); err == nil {
			n.evHandler("p2p: syncWith: peer[%s]: pending tx[%s] added", address, tx.ID)
		}
	}

	return nil
}

// discovered dials a peer learned from another peer in the background.
func (n *Node) discovered(address string) {
	p, err := peer.Parse(address)
	if err != nil || p.Match(n.Addr()) || n.peers.Contains(p) {
		return
	}

	n.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*n.netTimeout)
		defer cancel()

		if err := n.ConnectToAddress(ctx, p.Address); err != nil {
			n.evHandler("p2p: discovered: peer[%s]: WARNING: %s", p, err)
		}
	})
}

// request sends the message on a new connection and reads the response.
func (n *Node) request(ctx context.Context, address string, msg Message) (Message, error) {
	conn, err := n.dial(ctx, address)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := WriteMessage(conn, msg); err != nil {
		return nil, fmt.Errorf("peer[%s]: %w: %s", address, ErrPeerUnreachable, err)
	}

	resp, err := ReadMessage(conn)
	if err != nil {
		if errors.Is(err, ErrMalformedMessage) {
			return nil, fmt.Errorf("peer[%s]: %w", address, err)
		}
		return nil, fmt.Errorf("peer[%s]: %w: %s", address, ErrPeerUnreachable, err)
	}

	return resp, nil
}

// send writes the message on a new connection without waiting for a
// response.
func (n *Node) send(ctx context.Context, address string, msg Message) error {
	conn, err := n.dial(ctx, address)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := WriteMessage(conn, msg); err != nil {
		return fmt.Errorf("peer[%s]: %w: %s", address, ErrPeerUnreachable, err)
	}

	return nil
}

// dial opens a connection to the peer with the network timeout applied to
// the whole exchange.
func (n *Node) dial(ctx context.Context, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: n.netTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("peer[%s]: %w: %s", address, ErrPeerUnreachable, err)
	}

	deadline := time.Now().Add(n.netTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	return conn, nil
}
