// Package worker implements mining and peer updates for the blockchain.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
)

// Set of default intervals used by the worker.
const (
	DefaultAutoMineDelay = time.Second
	DefaultPeerInterval  = time.Minute
)

// EventHandler defines a function that is called when events
// occur in the background workflows.
type EventHandler func(v string, args ...any)

// Node represents the behavior the worker needs from the peer to peer node.
type Node interface {
	ConnectToAddress(ctx context.Context, address string) error
	Resync(ctx context.Context)
	Mine(ctx context.Context, beneficiary string) (database.Block, error)
	CancelMining() bool
}

// Config represents the configuration required to run the worker.
type Config struct {
	Beneficiary   string
	AutoMine      bool
	AutoMineDelay time.Duration
	PeerInterval  time.Duration
	NetTimeout    time.Duration
	KnownPeers    []string
	EvHandler     EventHandler
}

// =============================================================================

// Worker manages the POW workflows for the blockchain.
type Worker struct {
	node          Node
	beneficiary   string
	autoMine      atomic.Bool
	autoMineDelay time.Duration
	netTimeout    time.Duration
	knownPeers    []string
	wg            sync.WaitGroup
	ticker        *time.Ticker
	shut          chan struct{}
	startMining   chan bool
	evHandler     EventHandler
}

// Run creates a worker, connects to the known peers and starts up all the
// background processes.
func Run(node Node, cfg Config) *Worker {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	autoMineDelay := cfg.AutoMineDelay
	if autoMineDelay <= 0 {
		autoMineDelay = DefaultAutoMineDelay
	}

	peerInterval := cfg.PeerInterval
	if peerInterval <= 0 {
		peerInterval = DefaultPeerInterval
	}

	netTimeout := cfg.NetTimeout
	if netTimeout <= 0 {
		netTimeout = 5 * time.Second
	}

	w := Worker{
		node:          node,
		beneficiary:   cfg.Beneficiary,
		autoMineDelay: autoMineDelay,
		netTimeout:    netTimeout,
		knownPeers:    cfg.KnownPeers,
		ticker:        time.NewTicker(peerInterval),
		shut:          make(chan struct{}),
		startMining:   make(chan bool, 1),
		evHandler:     ev,
	}
	w.autoMine.Store(cfg.AutoMine)

	// Update this node before starting any support G's.
	w.Sync()

	// Load the set of operations we need to run.
	operations := []func(){
		w.peerOperations,
		w.miningOperations,
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}

	if cfg.AutoMine {
		w.SignalStartMining()
	}

	return &w
}

// Shutdown terminates the goroutines performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: stop ticker")
	w.ticker.Stop()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)

	w.evHandler("worker: shutdown: signal cancel mining")
	w.SignalCancelMining()

	w.wg.Wait()
}

// SignalStartMining starts a mining operation. If there is already a signal
// pending in the channel, just return since a mining operation will start.
func (w *Worker) SignalStartMining() {
	select {
	case w.startMining <- true:
	default:
	}
	w.evHandler("worker: SignalStartMining: mining signaled")
}

// SignalCancelMining signals the running mining operation to stop
// immediately.
func (w *Worker) SignalCancelMining() {
	if w.node.CancelMining() {
		w.evHandler("worker: SignalCancelMining: MINING: CANCEL: signaled")
	}
}

// SetAutoMine turns continuous mining on or off. Turning it on starts a
// mining operation right away.
func (w *Worker) SetAutoMine(on bool) {
	w.autoMine.Store(on)
	w.evHandler("worker: SetAutoMine: autoMine[%v]", on)

	if on {
		w.SignalStartMining()
	}
}

// AutoMine reports whether continuous mining is on.
func (w *Worker) AutoMine() bool {
	return w.autoMine.Load()
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
