package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/worker"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// fakeNode counts the calls the worker makes.
type fakeNode struct {
	mu       sync.Mutex
	mined    int
	resyncs  int
	cancels  int
	connects []string
}

func (n *fakeNode) ConnectToAddress(ctx context.Context, address string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.connects = append(n.connects, address)
	return nil
}

func (n *fakeNode) Resync(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.resyncs++
}

func (n *fakeNode) Mine(ctx context.Context, beneficiary string) (database.Block, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.mined++
	return database.Block{Index: uint64(n.mined)}, nil
}

func (n *fakeNode) CancelMining() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.cancels++
	return true
}

func (n *fakeNode) counts() (mined int, resyncs int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.mined, n.resyncs
}

func wait(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// =============================================================================

func Test_Mining(t *testing.T) {
	t.Log("Given the need to mine on request.")
	{
		var node fakeNode

		w := worker.Run(&node, worker.Config{
			Beneficiary:  "TU1111111111111111111111111111111111111111",
			PeerInterval: time.Hour,
			KnownPeers:   []string{"127.0.0.1:5000", "127.0.0.1:5001"},
			EvHandler:    func(v string, args ...any) { t.Logf(v, args...) },
		})

		if len(node.connects) != 2 {
			t.Fatalf("\t%s\tShould connect to the known peers on start: %v", failed, node.connects)
		}
		t.Logf("\t%s\tShould connect to the known peers on start.", success)

		w.SignalStartMining()

		if !wait(func() bool { mined, _ := node.counts(); return mined == 1 }) {
			t.Fatalf("\t%s\tShould mine one block when signaled.", failed)
		}
		t.Logf("\t%s\tShould mine one block when signaled.", success)

		time.Sleep(50 * time.Millisecond)
		if mined, _ := node.counts(); mined != 1 {
			t.Fatalf("\t%s\tShould not mine again without auto mining: %d", failed, mined)
		}
		t.Logf("\t%s\tShould not mine again without auto mining.", success)

		w.Shutdown()
	}
}

func Test_AutoMine(t *testing.T) {
	t.Log("Given the need to mine continuously.")
	{
		var node fakeNode

		w := worker.Run(&node, worker.Config{
			AutoMine:      true,
			AutoMineDelay: 10 * time.Millisecond,
			PeerInterval:  20 * time.Millisecond,
			EvHandler:     func(v string, args ...any) { t.Logf(v, args...) },
		})

		if !wait(func() bool { mined, resyncs := node.counts(); return mined >= 3 && resyncs >= 1 }) {
			t.Fatalf("\t%s\tShould keep mining and resyncing.", failed)
		}
		t.Logf("\t%s\tShould keep mining and resyncing.", success)

		w.SetAutoMine(false)
		if w.AutoMine() {
			t.Fatalf("\t%s\tShould turn auto mining off.", failed)
		}

		w.Shutdown()

		mined, _ := node.counts()
		time.Sleep(50 * time.Millisecond)
		if after, _ := node.counts(); after != mined {
			t.Fatalf("\t%s\tShould stop mining after shutdown: %d %d", failed, mined, after)
		}
		t.Logf("\t%s\tShould stop mining after shutdown.", success)
	}
}
