package ledger

import (
	"fmt"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
)

// ValidateChain checks the chain could be adopted by this ledger. It must
// start with the same genesis block and every block must follow its parent
// and solve the puzzle at the local difficulty.
func (l *Ledger) ValidateChain(chain []database.Block) error {
	return l.validateChain(chain)
}

// ReplaceChain adopts the candidate chain when it is valid and longer than
// the current chain. Pending transactions committed by the candidate are
// dropped from the pool.
func (l *Ledger) ReplaceChain(candidate []database.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(candidate) <= len(l.chain) {
		return fmt.Errorf("%w: candidate %d, current %d", database.ErrChainNotLonger, len(candidate), len(l.chain))
	}

	if err := l.validateChain(candidate); err != nil {
		return err
	}

	l.chain = copyBlocks(candidate)
	l.indexCommitted()
	l.prunePending()

	l.persist()

	tip := l.chain[len(l.chain)-1]
	l.evHandler("ledger: ReplaceChain: height[%d]: tip[%s]: pending[%d]", len(l.chain), tip.Hash, len(l.pending))
	l.event("chain", struct {
		Height int    `json:"height"`
		Tip    string `json:"tip"`
	}{len(l.chain), tip.Hash})

	return nil
}

// =============================================================================

// validateChain performs the chain validation. It reads nothing but
// immutable fields so no lock is required.
func (l *Ledger) validateChain(chain []database.Block) error {
	if err := database.ValidateChain(chain, l.difficulty); err != nil {
		return err
	}

	if !sameBlock(chain[0], l.genesisBlock) {
		return fmt.Errorf("%w: got %s, exp %s", database.ErrInvalidGenesis, chain[0].Hash, l.genesisBlock.Hash)
	}

	return nil
}

// sameBlock compares every field of the two blocks.
func sameBlock(a database.Block, b database.Block) bool {
	if a.Index != b.Index || a.TimeStamp != b.TimeStamp || a.Proof != b.Proof ||
		a.PreviousHash != b.PreviousHash || a.Hash != b.Hash {
		return false
	}

	if len(a.Transactions) != len(b.Transactions) {
		return false
	}

	for i := range a.Transactions {
		if a.Transactions[i] != b.Transactions[i] {
			return false
		}
	}

	return true
}
