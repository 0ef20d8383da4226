package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RewardSender is the sender used by transactions the system mints to
// reward a miner. These transactions are exempt from balance checks.
const RewardSender = "0"

// =============================================================================

// Tx is the value transfer between two parties. The fields are declared in
// key order so the JSON encoding is canonical.
type Tx struct {
	Amount    float64 `json:"amount"`    // Value being transferred, always greater than zero.
	ID        string  `json:"id"`        // Unique id for the transaction.
	Receiver  string  `json:"receiver"`  // Address receiving the value.
	Sender    string  `json:"sender"`    // Address sending the value, "0" for rewards.
	TimeStamp uint64  `json:"timestamp"` // Unix milliseconds the transaction was created.
}

// NewTx constructs a new transaction with a unique id.
func NewTx(sender string, receiver string, amount float64) (Tx, error) {
	if amount <= 0 {
		return Tx{}, ErrInvalidAmount
	}

	tx := Tx{
		Amount:    amount,
		ID:        uuid.NewString(),
		Receiver:  receiver,
		Sender:    sender,
		TimeStamp: uint64(time.Now().UTC().UnixMilli()),
	}

	return tx, nil
}

// NewRewardTx constructs the transaction that credits a miner for a block.
func NewRewardTx(beneficiary string, reward float64) (Tx, error) {
	return NewTx(RewardSender, beneficiary, reward)
}

// IsReward tests if the transaction was minted by the system.
func (tx Tx) IsReward() bool {
	return tx.Sender == RewardSender
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	return fmt.Sprintf("%s:%s->%s:%v", tx.ID, tx.Sender, tx.Receiver, tx.Amount)
}
