package public

import (
	"time"

	"github.com/ardanlabs/powledger/business/sys/validate"
	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/miner"
	"github.com/ardanlabs/powledger/foundation/nameservice"
)

// submitTx is the payload for submitting a new transaction. The sender and
// receiver can be an address or a name known to the name service.
type submitTx struct {
	From   string  `json:"from" validate:"required"`
	To     string  `json:"to" validate:"required"`
	Amount float64 `json:"amount"`
}

// Validate checks the payload has the required fields.
func (s submitTx) Validate() error {
	return validate.Check(s)
}

// connectPeer is the payload for connecting to a peer.
type connectPeer struct {
	Address string `json:"address" validate:"required,hostname_port"`
}

// Validate checks the payload has a host:port address.
func (c connectPeer) Validate() error {
	return validate.Check(c)
}

// mineBlock is the payload for mining a single block. The node's configured
// beneficiary is used when none is provided.
type mineBlock struct {
	Beneficiary string `json:"beneficiary"`
}

// =============================================================================

type tx struct {
	ID           string  `json:"id"`
	Sender       string  `json:"sender"`
	SenderName   string  `json:"sender_name"`
	Receiver     string  `json:"receiver"`
	ReceiverName string  `json:"receiver_name"`
	Amount       float64 `json:"amount"`
	TimeStamp    uint64  `json:"timestamp"`
}

func toTx(ns *nameservice.NameService, t database.Tx) tx {
	return tx{
		ID:           t.ID,
		Sender:       t.Sender,
		SenderName:   ns.Lookup(t.Sender),
		Receiver:     t.Receiver,
		ReceiverName: ns.Lookup(t.Receiver),
		Amount:       t.Amount,
		TimeStamp:    t.TimeStamp,
	}
}

func toTxs(ns *nameservice.NameService, trans []database.Tx) []tx {
	txs := make([]tx, len(trans))
	for i, t := range trans {
		txs[i] = toTx(ns, t)
	}
	return txs
}

type block struct {
	Index        uint64 `json:"index"`
	TimeStamp    uint64 `json:"timestamp"`
	Proof        uint64 `json:"proof"`
	PreviousHash string `json:"previous_hash"`
	Hash         string `json:"hash"`
	Transactions []tx   `json:"transactions"`
}

func toBlock(ns *nameservice.NameService, b database.Block) block {
	return block{
		Index:        b.Index,
		TimeStamp:    b.TimeStamp,
		Proof:        b.Proof,
		PreviousHash: b.PreviousHash,
		Hash:         b.Hash,
		Transactions: toTxs(ns, b.Transactions),
	}
}

type balance struct {
	Address string  `json:"address"`
	Name    string  `json:"name"`
	Balance float64 `json:"balance"`
}

type balances struct {
	LatestBlock string    `json:"latest_block"`
	Height      int       `json:"height"`
	Pending     int       `json:"pending"`
	Balances    []balance `json:"balances"`
}

type genesisInfo struct {
	Date         time.Time `json:"date"`
	Difficulty   uint      `json:"difficulty"`
	MiningReward float64   `json:"mining_reward"`
	Hash         string    `json:"hash"`
}

type miningStatus struct {
	Mining   bool        `json:"mining"`
	AutoMine bool        `json:"auto_mine"`
	Stats    miner.Stats `json:"stats"`
}
