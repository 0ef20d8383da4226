package ledger_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/database/storage/memory"
	"github.com/ardanlabs/powledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/powledger/foundation/blockchain/ledger"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	minerAddr = "TU1111111111111111111111111111111111111111"
	aliceAddr = "TU2222222222222222222222222222222222222222"
	bobAddr   = "TU3333333333333333333333333333333333333333"
)

var gen = genesis.Genesis{
	Date:         time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
	Difficulty:   2,
	MiningReward: 100,
}

func newLedger(t *testing.T, strg database.Storage) *ledger.Ledger {
	if strg == nil {
		strg = memory.New()
	}

	l, err := ledger.New(ledger.Config{
		Genesis: gen,
		Storage: strg,
		EvHandler: func(v string, args ...any) {
			t.Logf(v, args...)
		},
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a ledger: %v", failed, err)
	}

	return l
}

// mine solves the next block for the beneficiary and appends it.
func mine(t *testing.T, l *ledger.Ledger, beneficiary string) database.Block {
	body, err := l.NextBlockBody(beneficiary)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to build the next block body: %v", failed, err)
	}

	var proof uint64
	for !database.IsHashSolved(body.Hash(proof), l.Difficulty()) {
		proof++
	}

	block := database.NewBlock(body, proof)
	if err := l.AppendBlock(block); err != nil {
		t.Fatalf("\t%s\tShould be able to append the mined block: %v", failed, err)
	}

	return block
}

// remine rebuilds every block after the genesis block so the links and
// proofs hold again after the chain was modified.
func remine(chain []database.Block, difficulty uint) []database.Block {
	for i := 1; i < len(chain); i++ {
		body := chain[i].Body()
		body.PreviousHash = chain[i-1].Hash

		var proof uint64
		for !database.IsHashSolved(body.Hash(proof), difficulty) {
			proof++
		}

		chain[i] = database.NewBlock(body, proof)
	}

	return chain
}

// =============================================================================

func Test_Genesis(t *testing.T) {
	t.Log("Given the need to start a new ledger.")
	{
		l1 := newLedger(t, nil)
		l2 := newLedger(t, nil)

		if l1.Height() != 1 {
			t.Fatalf("\t%s\tShould start with only the genesis block: %d", failed, l1.Height())
		}
		t.Logf("\t%s\tShould start with only the genesis block.", success)

		if l1.LatestBlock().Hash != l2.LatestBlock().Hash {
			t.Fatalf("\t%s\tShould get the same genesis block on every ledger.", failed)
		}
		t.Logf("\t%s\tShould get the same genesis block on every ledger.", success)

		if err := l1.ValidateChain(l1.Chain()); err != nil {
			t.Fatalf("\t%s\tShould validate a genesis only chain: %v", failed, err)
		}
		t.Logf("\t%s\tShould validate a genesis only chain.", success)
	}
}

func Test_Balance(t *testing.T) {
	t.Log("Given the need to derive balances from the chain.")
	{
		l := newLedger(t, nil)
		mine(t, l, minerAddr)

		if got := l.Balance(minerAddr); got != 100 {
			t.Fatalf("\t%s\tShould credit the mining reward: got %v", failed, got)
		}
		t.Logf("\t%s\tShould credit the mining reward.", success)

		tx, err := l.SubmitTransaction(minerAddr, aliceAddr, 10)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to submit a transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to submit a transaction.", success)

		if tx.ID == "" {
			t.Fatalf("\t%s\tShould get back a transaction id.", failed)
		}

		if m, a := l.Balance(minerAddr), l.Balance(aliceAddr); m != 90 || a != 10 {
			t.Fatalf("\t%s\tShould see balances of 90 and 10: got %v and %v", failed, m, a)
		}
		t.Logf("\t%s\tShould see balances of 90 and 10.", success)

		block := mine(t, l, bobAddr)
		if len(block.Transactions) != 2 || len(l.Pending()) != 0 {
			t.Fatalf("\t%s\tShould commit the pending transaction: trans %d, pending %d", failed, len(block.Transactions), len(l.Pending()))
		}
		t.Logf("\t%s\tShould commit the pending transaction.", success)

		balances := l.Balances()
		if balances[minerAddr] != 90 || balances[aliceAddr] != 10 || balances[bobAddr] != 100 {
			t.Fatalf("\t%s\tShould see the same balances after mining: %v", failed, balances)
		}
		t.Logf("\t%s\tShould see the same balances after mining.", success)
	}
}

func Test_SubmitTransaction(t *testing.T) {
	type table struct {
		name     string
		sender   string
		receiver string
		amount   float64
		err      error
	}

	tt := []table{
		{name: "zero", sender: minerAddr, receiver: aliceAddr, amount: 0, err: database.ErrInvalidAmount},
		{name: "negative", sender: minerAddr, receiver: aliceAddr, amount: -5, err: database.ErrInvalidAmount},
		{name: "receiver", sender: minerAddr, receiver: "alice", amount: 5, err: database.ErrInvalidAddress},
		{name: "balance", sender: aliceAddr, receiver: minerAddr, amount: 5, err: database.ErrInsufficientBalance},
		{name: "overdraw", sender: minerAddr, receiver: aliceAddr, amount: 100.5, err: database.ErrInsufficientBalance},
	}

	l := newLedger(t, nil)
	mine(t, l, minerAddr)

	t.Log("Given the need to reject invalid transactions.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen submitting a %s transaction.", testID, tst.name)
			{
				f := func(t *testing.T) {
					before := len(l.Pending())

					_, err := l.SubmitTransaction(tst.sender, tst.receiver, tst.amount)
					if !errors.Is(err, tst.err) {
						t.Logf("\t\tTest %d:\tgot: %v", testID, err)
						t.Logf("\t\tTest %d:\texp: %v", testID, tst.err)
						t.Fatalf("\t%s\tTest %d:\tShould get back the right error.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould get back the right error.", success, testID)

					if len(l.Pending()) != before {
						t.Fatalf("\t%s\tTest %d:\tShould leave the pending pool unchanged.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould leave the pending pool unchanged.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_UpsertTransaction(t *testing.T) {
	t.Log("Given the need to accept transactions from peers.")
	{
		l := newLedger(t, nil)
		mine(t, l, minerAddr)

		tx, err := database.NewTx(minerAddr, aliceAddr, 25)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create a transaction: %v", failed, err)
		}

		if err := l.UpsertTransaction(tx); err != nil {
			t.Fatalf("\t%s\tShould accept a new transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould accept a new transaction.", success)

		if err := l.UpsertTransaction(tx); !errors.Is(err, database.ErrDuplicateTx) {
			t.Fatalf("\t%s\tShould reject a pending duplicate: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a pending duplicate.", success)

		mine(t, l, minerAddr)

		if err := l.UpsertTransaction(tx); !errors.Is(err, database.ErrDuplicateTx) {
			t.Fatalf("\t%s\tShould reject a committed duplicate: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a committed duplicate.", success)
	}
}

func Test_AppendBlock(t *testing.T) {
	t.Log("Given the need to append blocks received from peers.")
	{
		l1 := newLedger(t, nil)
		l2 := newLedger(t, nil)

		b1 := mine(t, l1, minerAddr)
		b2 := mine(t, l1, minerAddr)

		if err := l2.AppendBlock(b2); !errors.Is(err, database.ErrChainAhead) {
			t.Fatalf("\t%s\tShould detect a block ahead of the chain: %v", failed, err)
		}
		t.Logf("\t%s\tShould detect a block ahead of the chain.", success)

		if err := l2.AppendBlock(b1); err != nil {
			t.Fatalf("\t%s\tShould append the next block: %v", failed, err)
		}
		t.Logf("\t%s\tShould append the next block.", success)

		if !l2.HasBlock(b1) {
			t.Fatalf("\t%s\tShould report holding the block.", failed)
		}

		if err := l2.AppendBlock(b1); !errors.Is(err, database.ErrStaleBlock) {
			t.Fatalf("\t%s\tShould detect a stale block: %v", failed, err)
		}
		t.Logf("\t%s\tShould detect a stale block.", success)

		bad := b2
		bad.PreviousHash = l2.Chain()[0].Hash
		if err := l2.AppendBlock(bad); !errors.Is(err, database.ErrInvalidLink) {
			t.Fatalf("\t%s\tShould detect a block with a broken link: %v", failed, err)
		}
		t.Logf("\t%s\tShould detect a block with a broken link.", success)

		if err := l2.AppendBlock(b2); err != nil {
			t.Fatalf("\t%s\tShould append the last block: %v", failed, err)
		}

		if l1.LatestBlock().Hash != l2.LatestBlock().Hash {
			t.Fatalf("\t%s\tShould end with the same tip.", failed)
		}
		t.Logf("\t%s\tShould end with the same tip.", success)
	}
}

func Test_ReplaceChain(t *testing.T) {
	t.Log("Given the need to adopt the longest valid chain.")
	{
		l1 := newLedger(t, nil)
		l2 := newLedger(t, nil)

		mine(t, l1, minerAddr)
		mine(t, l1, minerAddr)
		mine(t, l2, aliceAddr)

		tx, err := l2.SubmitTransaction(aliceAddr, bobAddr, 5)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to submit a transaction: %v", failed, err)
		}

		if err := l1.ReplaceChain(l2.Chain()); !errors.Is(err, database.ErrChainNotLonger) {
			t.Fatalf("\t%s\tShould reject a shorter chain: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a shorter chain.", success)

		invalid := l1.Chain()
		invalid = append(invalid, invalid[len(invalid)-1])
		if err := l2.ReplaceChain(invalid); !errors.Is(err, database.ErrInvalidIndex) {
			t.Fatalf("\t%s\tShould reject a longer invalid chain: %v", failed, err)
		}
		if l2.Height() != 2 {
			t.Fatalf("\t%s\tShould leave the chain unchanged: %d", failed, l2.Height())
		}
		t.Logf("\t%s\tShould reject a longer invalid chain.", success)

		if err := l2.ReplaceChain(l1.Chain()); err != nil {
			t.Fatalf("\t%s\tShould adopt a longer valid chain: %v", failed, err)
		}
		t.Logf("\t%s\tShould adopt a longer valid chain.", success)

		if l2.LatestBlock().Hash != l1.LatestBlock().Hash {
			t.Fatalf("\t%s\tShould get the same tip after replacing.", failed)
		}
		t.Logf("\t%s\tShould get the same tip after replacing.", success)

		pending := l2.Pending()
		if len(pending) != 1 || pending[0].ID != tx.ID {
			t.Fatalf("\t%s\tShould keep transactions the new chain doesn't hold: %v", failed, pending)
		}
		t.Logf("\t%s\tShould keep transactions the new chain doesn't hold.", success)
	}
}

func Test_ReplaceChainGenesis(t *testing.T) {
	t.Log("Given the need to reject a chain built on a different genesis block.")
	{
		l1 := newLedger(t, nil)
		l2 := newLedger(t, nil)

		mine(t, l1, minerAddr)
		mine(t, l1, minerAddr)

		minted := database.Tx{
			Amount:    1_000_000,
			ID:        "minted",
			Receiver:  bobAddr,
			Sender:    database.RewardSender,
			TimeStamp: l1.Chain()[0].TimeStamp,
		}

		t.Logf("\tTest 0:\tWhen the genesis block carries a transaction but keeps its hash.")
		{
			tampered := l1.Chain()
			tampered[0].Transactions = append(tampered[0].Transactions, minted)

			if err := l2.ReplaceChain(tampered); !errors.Is(err, database.ErrInvalidHash) {
				t.Fatalf("\t%s\tTest 0:\tShould reject the chain: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject the chain.", success)

			if bal := l2.Balance(bobAddr); bal != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould not credit the receiver: %v", failed, bal)
			}
			t.Logf("\t%s\tTest 0:\tShould not credit the receiver.", success)
		}

		t.Logf("\tTest 1:\tWhen the genesis block carries a transaction and is rehashed.")
		{
			tampered := l1.Chain()
			tampered[0] = database.NewBlock(database.BlockBody{
				Index:        0,
				TimeStamp:    tampered[0].TimeStamp,
				Transactions: []database.Tx{minted},
				PreviousHash: database.GenesisPreviousHash,
			}, 0)
			tampered = remine(tampered, l1.Difficulty())

			if err := database.ValidateChain(tampered, l1.Difficulty()); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould build an internally consistent chain: %v", failed, err)
			}

			if err := l2.ReplaceChain(tampered); !errors.Is(err, database.ErrInvalidGenesis) {
				t.Fatalf("\t%s\tTest 1:\tShould reject the chain: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould reject the chain.", success)

			if l2.Height() != 1 {
				t.Fatalf("\t%s\tTest 1:\tShould leave the chain unchanged: %d", failed, l2.Height())
			}

			if bal := l2.Balance(bobAddr); bal != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould not credit the receiver: %v", failed, bal)
			}
			t.Logf("\t%s\tTest 1:\tShould not credit the receiver.", success)
		}
	}
}

func Test_AppendBlockDuplicateTx(t *testing.T) {
	t.Log("Given the need to commit a transaction only once.")
	{
		l1 := newLedger(t, nil)
		l2 := newLedger(t, nil)

		mine(t, l1, minerAddr)
		if _, err := l1.SubmitTransaction(minerAddr, aliceAddr, 10); err != nil {
			t.Fatalf("\t%s\tShould be able to submit a transaction: %v", failed, err)
		}
		b2 := mine(t, l1, minerAddr)
		committed := b2.Transactions[1]

		for _, blk := range l1.Chain()[1:] {
			if err := l2.AppendBlock(blk); err != nil {
				t.Fatalf("\t%s\tShould be able to sync the chain: %v", failed, err)
			}
		}

		solveBody := func(body database.BlockBody) database.Block {
			var proof uint64
			for !database.IsHashSolved(body.Hash(proof), l1.Difficulty()) {
				proof++
			}
			return database.NewBlock(body, proof)
		}

		t.Logf("\tTest 0:\tWhen a block carries a transaction already committed.")
		{
			body, err := l2.NextBlockBody(minerAddr)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to build the next block body: %v", failed, err)
			}
			body.Transactions = append(body.Transactions, committed)

			if err := l2.AppendBlock(solveBody(body)); !errors.Is(err, database.ErrDuplicateTx) {
				t.Fatalf("\t%s\tTest 0:\tShould reject the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject the block.", success)
		}

		t.Logf("\tTest 1:\tWhen a block carries the same transaction twice.")
		{
			tx, err := database.NewTx(minerAddr, bobAddr, 5)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to create a transaction: %v", failed, err)
			}

			body, err := l2.NextBlockBody(minerAddr)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to build the next block body: %v", failed, err)
			}
			body.Transactions = append(body.Transactions, tx, tx)

			if err := l2.AppendBlock(solveBody(body)); !errors.Is(err, database.ErrDuplicateTx) {
				t.Fatalf("\t%s\tTest 1:\tShould reject the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould reject the block.", success)
		}

		if l2.Height() != 3 {
			t.Fatalf("\t%s\tShould leave the chain unchanged: %d", failed, l2.Height())
		}

		if bal := l2.Balance(aliceAddr); bal != 10 {
			t.Fatalf("\t%s\tShould credit the receiver once: %v", failed, bal)
		}
		t.Logf("\t%s\tShould credit the receiver once.", success)
	}
}

func Test_Restore(t *testing.T) {
	t.Log("Given the need to restore a ledger from storage.")
	{
		strg := memory.New()

		l1 := newLedger(t, strg)
		mine(t, l1, minerAddr)
		if _, err := l1.SubmitTransaction(minerAddr, aliceAddr, 30); err != nil {
			t.Fatalf("\t%s\tShould be able to submit a transaction: %v", failed, err)
		}

		l2 := newLedger(t, strg)
		if l2.Height() != 2 || len(l2.Pending()) != 1 {
			t.Fatalf("\t%s\tShould restore the chain and pending pool: height %d, pending %d", failed, l2.Height(), len(l2.Pending()))
		}
		t.Logf("\t%s\tShould restore the chain and pending pool.", success)

		snapshot := l2.Snapshot()
		snapshot.Chain[1].Proof++
		if err := strg.Save(snapshot); err != nil {
			t.Fatalf("\t%s\tShould be able to save a snapshot: %v", failed, err)
		}

		l3 := newLedger(t, strg)
		if l3.Height() != 1 || len(l3.Pending()) != 0 {
			t.Fatalf("\t%s\tShould fall back to genesis for an invalid snapshot: height %d", failed, l3.Height())
		}
		t.Logf("\t%s\tShould fall back to genesis for an invalid snapshot.", success)
	}
}
