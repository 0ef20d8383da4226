package worker

import (
	"context"
	"errors"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/miner"
)

// miningOperations handles mining. When auto mining is on, a new operation
// is scheduled after each one completes.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	var next <-chan time.Time

	for {
		select {
		case <-w.startMining:
		case <-next:
		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}

		next = nil
		if w.isShutdown() {
			continue
		}

		w.runMiningOperation()

		if w.autoMine.Load() {
			next = time.After(w.autoMineDelay)
		}
	}
}

// runMiningOperation mines a block for the beneficiary and shares it.
func (w *Worker) runMiningOperation() {
	w.evHandler("worker: runMiningOperation: MINING: started")
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	// Create a context so mining can be cancelled by a shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-w.shut:
			cancel()
		case <-ctx.Done():
		}
	}()

	t := time.Now()
	block, err := w.node.Mine(ctx, w.beneficiary)
	duration := time.Since(t)

	w.evHandler("worker: runMiningOperation: MINING: mining duration[%v]", duration)

	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: complete")
		case errors.Is(err, database.ErrStaleBlock), errors.Is(err, database.ErrChainAhead):
			w.evHandler("worker: runMiningOperation: MINING: WARNING: chain moved: %s", err)
		case errors.Is(err, miner.ErrMiningBusy):
			w.evHandler("worker: runMiningOperation: MINING: WARNING: %s", err)
		default:
			w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
		}
		return
	}

	w.evHandler("worker: runMiningOperation: MINING: blk[%d]: hash[%s]", block.Index, block.Hash)
}
