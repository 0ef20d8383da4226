// Package miner implements the proof of work search used to seal new blocks.
// A node runs at most one mining attempt at a time.
package miner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/ledger"
)

// cancelCheckInterval is the number of hash evaluations between checks of
// the cancellation signal.
const cancelCheckInterval = 1024

// DefaultWaitTimeout is how long a new mining request waits for the running
// attempt to observe its cancellation.
const DefaultWaitTimeout = 5 * time.Second

// ErrMiningBusy is returned when the running attempt doesn't stop in time
// for a new one to start.
var ErrMiningBusy = errors.New("mining attempt still running")

// =============================================================================

// Solve searches for the proof that gives the block body a hash with at
// least difficulty leading zeros. The search stops with the context error
// when the context is cancelled.
func Solve(ctx context.Context, body database.BlockBody, difficulty uint) (uint64, error) {
	for proof := uint64(0); ; proof++ {
		if proof%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}

		if database.IsHashSolved(body.Hash(proof), difficulty) {
			return proof, nil
		}
	}
}

// =============================================================================

// EventHandler defines a function that is called when events
// occur while mining.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to construct a miner.
type Config struct {
	Ledger          *ledger.Ledger
	WaitTimeout     time.Duration
	TargetBlockTime time.Duration
	EvHandler       EventHandler
}

// attempt represents a running mining operation.
type attempt struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Miner seals new blocks on top of the ledger.
type Miner struct {
	ledger      *ledger.Ledger
	waitTimeout time.Duration
	evHandler   EventHandler

	mu     sync.Mutex
	active *attempt

	stats *stats
}

// New constructs a miner for the ledger.
func New(cfg Config) *Miner {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	waitTimeout := cfg.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = DefaultWaitTimeout
	}

	return &Miner{
		ledger:      cfg.Ledger,
		waitTimeout: waitTimeout,
		evHandler:   ev,
		stats:       newStats(cfg.TargetBlockTime),
	}
}

// Mine builds the next block for the beneficiary, solves the puzzle and
// appends the block to the ledger. A running attempt is cancelled first.
// When the ledger moves while the puzzle is being solved the block is
// rejected by the ledger and the error is returned.
func (m *Miner) Mine(ctx context.Context, beneficiary string) (database.Block, error) {
	m.evHandler("miner: Mine: MINING: started")
	defer m.evHandler("miner: Mine: MINING: completed")

	ctx, att, err := m.claim(ctx)
	if err != nil {
		return database.Block{}, err
	}
	defer m.release(att)

	body, err := m.ledger.NextBlockBody(beneficiary)
	if err != nil {
		return database.Block{}, err
	}

	for _, tx := range body.Transactions {
		m.evHandler("miner: Mine: MINING: blk[%d]: tx[%s]", body.Index, tx)
	}

	t := time.Now()
	proof, err := Solve(ctx, body, m.ledger.Difficulty())
	duration := time.Since(t)

	if err != nil {
		m.evHandler("miner: Mine: MINING: CANCEL: blk[%d]: duration[%v]", body.Index, duration)
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if err := ctx.Err(); err != nil {
		return database.Block{}, err
	}

	block := database.NewBlock(body, proof)
	if err := m.ledger.AppendBlock(block); err != nil {
		return database.Block{}, err
	}

	m.evHandler("miner: Mine: MINING: SOLVED: blk[%d]: proof[%d]: duration[%v]", block.Index, proof, duration)
	m.stats.record(duration, m.evHandler)

	return block, nil
}

// Cancel signals the running attempt to stop. It reports whether an
// attempt was running.
func (m *Miner) Cancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return false
	}

	m.active.cancel()
	m.evHandler("miner: Cancel: MINING: CANCEL: signaled")

	return true
}

// IsMining reports whether an attempt is running.
func (m *Miner) IsMining() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.active != nil
}

// Stats returns the statistics for the recently mined blocks.
func (m *Miner) Stats() Stats {
	return m.stats.snapshot()
}

// =============================================================================

// claim takes the single attempt slot, cancelling and waiting on the running
// attempt if there is one.
func (m *Miner) claim(ctx context.Context) (context.Context, *attempt, error) {
	timer := time.NewTimer(m.waitTimeout)
	defer timer.Stop()

	for {
		m.mu.Lock()
		prev := m.active
		if prev == nil {
			ctx, cancel := context.WithCancel(ctx)
			att := attempt{
				cancel: cancel,
				done:   make(chan struct{}),
			}
			m.active = &att
			m.mu.Unlock()

			return ctx, &att, nil
		}
		m.mu.Unlock()

		m.evHandler("miner: claim: MINING: cancel running attempt")
		prev.cancel()

		select {
		case <-prev.done:
		case <-timer.C:
			return nil, nil, ErrMiningBusy
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
}

// release gives up the attempt slot.
func (m *Miner) release(att *attempt) {
	m.mu.Lock()
	if m.active == att {
		m.active = nil
	}
	m.mu.Unlock()

	att.cancel()
	close(att.done)
}
