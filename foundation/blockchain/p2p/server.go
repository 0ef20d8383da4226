package p2p

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/peer"
)

// acceptLoop accepts connections until the listener is closed.
func (n *Node) acceptLoop(listener net.Listener) {
	n.evHandler("p2p: acceptLoop: G started")
	defer n.evHandler("p2p: acceptLoop: G completed")

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || n.isClosed() {
				return
			}
			n.evHandler("p2p: acceptLoop: ERROR: %s", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if !n.limiter.Allow() {
			n.evHandler("p2p: acceptLoop: remote[%s]: rate limited", conn.RemoteAddr())
			conn.Close()
			continue
		}

		if !n.spawn(func() { n.handleConn(conn) }) {
			conn.Close()
			return
		}
	}
}

// handleConn reads one message, dispatches it and writes the response
// if there is one.
func (n *Node) handleConn(conn net.Conn) {
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(n.netTimeout))

	msg, err := ReadMessage(conn)
	if err != nil {
		n.evHandler("p2p: handleConn: remote[%s]: ERROR: %s", conn.RemoteAddr(), err)
		return
	}

	resp := n.dispatch(msg, conn.RemoteAddr())
	if resp == nil {
		return
	}

	if err := WriteMessage(conn, resp); err != nil {
		n.evHandler("p2p: handleConn: remote[%s]: ERROR: %s", conn.RemoteAddr(), err)
	}
}

// dispatch routes the message to its handler.
func (n *Node) dispatch(msg Message, remote net.Addr) Message {
	switch m := msg.(type) {
	case Connect:
		return n.handleConnect(m, remote)
	case GetBlockchain:
		return Blockchain{Snapshot: n.ledger.Snapshot()}
	case NewTransaction:
		n.handleNewTransaction(m)
	case NewBlock:
		n.handleNewBlock(m)
	default:
		n.evHandler("p2p: dispatch: WARNING: unsolicited %s", msg.Type())
	}

	return nil
}

// =============================================================================

// handleConnect adds the initiator to the known peers and answers with the
// rest of the peers. The initiator's ledger is pulled in the background so
// both nodes converge whichever side connected. A loopback address from a
// remote initiator is replaced with the IP the connection came from.
func (n *Node) handleConnect(m Connect, remote net.Addr) Message {
	p, err := peer.Parse(m.Address)
	if err != nil {
		n.evHandler("p2p: handleConnect: peer[%s]: ERROR: %s", m.Address, err)
		return nil
	}

	if tcp, ok := remote.(*net.TCPAddr); ok {
		p = p.Observed(tcp.IP)
	}

	self := n.Addr()
	if p.Match(self) {
		n.evHandler("p2p: handleConnect: peer[%s]: ignore self", p)
		return nil
	}

	if n.peers.Add(p) {
		n.evHandler("p2p: handleConnect: peer[%s]: added", p)
	}

	peers := n.peers.Copy(p.Address)
	ack := ConnectAck{
		Address: self,
		Peers:   make([]string, 0, len(peers)),
	}
	for _, known := range peers {
		if !known.Match(self) {
			ack.Peers = append(ack.Peers, known.Address)
		}
	}

	n.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*n.netTimeout)
		defer cancel()

		if err := n.syncWith(ctx, p.Address); err != nil {
			n.evHandler("p2p: handleConnect: peer[%s]: sync: WARNING: %s", p, err)
		}
	})

	return ack
}

// handleNewTransaction adds a transaction shared by a peer and forwards it
// when it was new to this node.
func (n *Node) handleNewTransaction(m NewTransaction) {
	err := n.ledger.UpsertTransaction(m.Tx)
	switch {
	case err == nil:
		n.evHandler("p2p: handleNewTransaction: tx[%s]: added", m.Tx)
		n.forward(NewTransaction{Tx: m.Tx})

	case errors.Is(err, database.ErrDuplicateTx):

	default:
		n.evHandler("p2p: handleNewTransaction: tx[%s]: WARNING: %s", m.Tx, err)
	}
}

// handleNewBlock appends a block shared by a peer and forwards it when it
// was new to this node. A block that doesn't follow the local tip means the
// nodes have forked or this node is behind, so a resync is started.
func (n *Node) handleNewBlock(m NewBlock) {
	block := m.Block

	if n.ledger.HasBlock(block) {
		return
	}

	err := n.ledger.AppendBlock(block)
	switch {
	case err == nil:
		n.miner.Cancel()
		n.evHandler("p2p: handleNewBlock: blk[%d]: hash[%s]: appended", block.Index, block.Hash)
		n.forward(NewBlock{Block: block})

	case errors.Is(err, database.ErrStaleBlock),
		errors.Is(err, database.ErrChainAhead),
		errors.Is(err, database.ErrInvalidLink):
		n.evHandler("p2p: handleNewBlock: blk[%d]: %s: resync", block.Index, err)
		n.spawn(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 4*n.netTimeout)
			defer cancel()

			n.Resync(ctx)
		})

	default:
		n.evHandler("p2p: handleNewBlock: blk[%d]: WARNING: rejected: %s", block.Index, err)
	}
}

// forward shares an item accepted from a peer with every known peer in the
// background. The sender gets the item back and drops it as already known.
func (n *Node) forward(msg Message) {
	n.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*n.netTimeout)
		defer cancel()

		n.Broadcast(ctx, msg)
	})
}
