package ledger

import (
	"fmt"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
)

// SubmitTransaction accepts a transfer from a wallet for inclusion in the
// next block. The new transaction is returned so its id can be reported
// and shared with peers.
func (l *Ledger) SubmitTransaction(sender string, receiver string, amount float64) (database.Tx, error) {
	tx, err := database.NewTx(sender, receiver, amount)
	if err != nil {
		return database.Tx{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.validateTransaction(tx); err != nil {
		return database.Tx{}, err
	}

	l.addPending(tx)

	return tx, nil
}

// UpsertTransaction accepts a transaction shared by a peer for inclusion.
// A transaction that is already known is rejected with ErrDuplicateTx.
func (l *Ledger) UpsertTransaction(tx database.Tx) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.isKnownTx(tx.ID) {
		return fmt.Errorf("tx[%s]: %w", tx.ID, database.ErrDuplicateTx)
	}

	if err := l.validateTransaction(tx); err != nil {
		return err
	}

	l.addPending(tx)

	return nil
}

// Balance returns the balance of the address by replaying every transaction
// in the chain and the pending pool.
func (l *Ledger) Balance(address string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.balance(address)
}

// Balances returns the balance of every address that has taken part in
// a transaction.
func (l *Ledger) Balances() map[string]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	balances := make(map[string]float64)
	apply := func(tx database.Tx) {
		if !tx.IsReward() {
			balances[tx.Sender] -= tx.Amount
		}
		balances[tx.Receiver] += tx.Amount
	}

	for _, block := range l.chain {
		for _, tx := range block.Transactions {
			apply(tx)
		}
	}
	for _, tx := range l.pending {
		apply(tx)
	}

	return balances
}

// =============================================================================

// validateTransaction checks the transaction against the current state of
// the ledger. The caller must hold the lock.
func (l *Ledger) validateTransaction(tx database.Tx) error {
	if tx.Amount <= 0 {
		return fmt.Errorf("tx[%s]: %w: %v", tx.ID, database.ErrInvalidAmount, tx.Amount)
	}

	if !l.validAddress(tx.Receiver) {
		return fmt.Errorf("tx[%s]: %w: receiver %q", tx.ID, database.ErrInvalidAddress, tx.Receiver)
	}

	if !tx.IsReward() {
		if balance := l.balance(tx.Sender); balance < tx.Amount {
			return fmt.Errorf("tx[%s]: %w: balance %v, amount %v", tx.ID, database.ErrInsufficientBalance, balance, tx.Amount)
		}
	}

	return nil
}

// addPending places the transaction in the pending pool and persists the
// change. The caller must hold the lock.
func (l *Ledger) addPending(tx database.Tx) {
	l.pending = append(l.pending, tx)
	l.persist()

	l.evHandler("ledger: addPending: tx[%s]: pending[%d]", tx, len(l.pending))
	l.event("tx", tx)
}

// isKnownTx reports whether the id is pending or already committed. The
// caller must hold the lock.
func (l *Ledger) isKnownTx(id string) bool {
	if _, exists := l.committed[id]; exists {
		return true
	}

	for _, tx := range l.pending {
		if tx.ID == id {
			return true
		}
	}

	return false
}

// balance replays the chain and the pending pool for the address. The
// caller must hold the lock.
func (l *Ledger) balance(address string) float64 {
	var balance float64
	apply := func(tx database.Tx) {
		if tx.Sender == address && !tx.IsReward() {
			balance -= tx.Amount
		}
		if tx.Receiver == address {
			balance += tx.Amount
		}
	}

	for _, block := range l.chain {
		for _, tx := range block.Transactions {
			apply(tx)
		}
	}
	for _, tx := range l.pending {
		apply(tx)
	}

	return balance
}
