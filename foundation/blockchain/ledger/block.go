package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
)

// NextBlockBody builds the body of the block that would follow the current
// tip. The body carries the mining reward for the beneficiary followed by
// every pending transaction.
func (l *Ledger) NextBlockBody(beneficiary string) (database.BlockBody, error) {
	reward, err := database.NewRewardTx(beneficiary, l.genesis.MiningReward)
	if err != nil {
		return database.BlockBody{}, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	tip := l.chain[len(l.chain)-1]

	trans := make([]database.Tx, 0, len(l.pending)+1)
	trans = append(trans, reward)
	trans = append(trans, l.pending...)

	body := database.BlockBody{
		Index:        tip.Index + 1,
		TimeStamp:    uint64(time.Now().UTC().UnixMilli()),
		Transactions: trans,
		PreviousHash: tip.Hash,
	}

	return body, nil
}

// AppendBlock takes a block that was mined locally or received from a peer,
// validates it follows the current tip and adds it to the chain. The
// transactions in the block are removed from the pending pool.
func (l *Ledger) AppendBlock(block database.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	height := uint64(len(l.chain))

	switch {
	case block.Index < height:
		return fmt.Errorf("blk[%d]: %w: height %d", block.Index, database.ErrStaleBlock, height)

	case block.Index > height:
		return fmt.Errorf("blk[%d]: %w: height %d", block.Index, database.ErrChainAhead, height)
	}

	if err := block.ValidateBlock(l.chain[height-1], l.difficulty); err != nil {
		return err
	}

	ids := make(map[string]struct{}, len(block.Transactions))
	for _, tx := range block.Transactions {
		_, committed := l.committed[tx.ID]
		_, repeated := ids[tx.ID]
		if committed || repeated {
			return fmt.Errorf("blk[%d]: %w: tx[%s]", block.Index, database.ErrDuplicateTx, tx.ID)
		}
		ids[tx.ID] = struct{}{}
	}

	block = copyBlocks([]database.Block{block})[0]
	l.chain = append(l.chain, block)

	for _, tx := range block.Transactions {
		l.committed[tx.ID] = struct{}{}
	}
	l.prunePending()

	l.persist()

	l.evHandler("ledger: AppendBlock: blk[%d]: hash[%s]: trans[%d]", block.Index, block.Hash, len(block.Transactions))
	l.event("block", block)

	return nil
}

// HasBlock reports whether the block is already part of the chain.
func (l *Ledger) HasBlock(block database.Block) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if block.Index >= uint64(len(l.chain)) {
		return false
	}

	return l.chain[block.Index].Hash == block.Hash
}

// =============================================================================

// prunePending removes every pending transaction that has been committed.
// The caller must hold the lock.
func (l *Ledger) prunePending() {
	pending := make([]database.Tx, 0, len(l.pending))
	for _, tx := range l.pending {
		if _, exists := l.committed[tx.ID]; exists {
			continue
		}
		pending = append(pending, tx)
	}
	l.pending = pending
}

// event provides a specific event about a change in the ledger for
// clients of the node. The value is sent in its JSON form.
func (l *Ledger) event(kind string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(fmt.Sprintf("%q", err.Error()))
	}

	l.evHandler("%s %s: %s", EventPrefix, kind, string(data))
}
