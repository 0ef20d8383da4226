package miner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/database/storage/memory"
	"github.com/ardanlabs/powledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/powledger/foundation/blockchain/ledger"
	"github.com/ardanlabs/powledger/foundation/blockchain/miner"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const minerAddr = "TU1111111111111111111111111111111111111111"

// unsolvable is a difficulty no hash can satisfy.
const unsolvable = 65

func newMiner(t *testing.T, difficulty uint) (*miner.Miner, *ledger.Ledger) {
	ev := func(v string, args ...any) {
		t.Logf(v, args...)
	}

	l, err := ledger.New(ledger.Config{
		Genesis: genesis.Genesis{
			Date:         time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
			Difficulty:   difficulty,
			MiningReward: 100,
		},
		Storage:   memory.New(),
		EvHandler: ev,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a ledger: %v", failed, err)
	}

	m := miner.New(miner.Config{
		Ledger:      l,
		WaitTimeout: time.Second,
		EvHandler:   ev,
	})

	return m, l
}

// waitMining blocks until the miner reports a running attempt.
func waitMining(t *testing.T, m *miner.Miner) {
	deadline := time.Now().Add(5 * time.Second)
	for !m.IsMining() {
		if time.Now().After(deadline) {
			t.Fatalf("\t%s\tShould see a mining attempt start.", failed)
		}
		time.Sleep(time.Millisecond)
	}
}

// =============================================================================

func Test_Solve(t *testing.T) {
	t.Log("Given the need to solve the proof of work puzzle.")
	{
		body := database.BlockBody{
			Index:        1,
			TimeStamp:    1700000000000,
			PreviousHash: database.NewGenesisBlock(1700000000000).Hash,
		}

		const difficulty = 3

		proof, err := miner.Solve(context.Background(), body, difficulty)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to solve the puzzle: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to solve the puzzle.", success)

		if !database.IsHashSolved(body.Hash(proof), difficulty) {
			t.Fatalf("\t%s\tShould get a proof that meets the difficulty.", failed)
		}
		t.Logf("\t%s\tShould get a proof that meets the difficulty.", success)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := miner.Solve(ctx, body, unsolvable); !errors.Is(err, context.Canceled) {
			t.Fatalf("\t%s\tShould stop when cancelled: %v", failed, err)
		}
		t.Logf("\t%s\tShould stop when cancelled.", success)
	}
}

func Test_Mine(t *testing.T) {
	t.Log("Given the need to mine a block.")
	{
		m, l := newMiner(t, 2)

		block, err := m.Mine(context.Background(), minerAddr)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine a block: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to mine a block.", success)

		if !database.IsHashSolved(block.Hash, l.Difficulty()) || block.ComputeHash() != block.Hash {
			t.Fatalf("\t%s\tShould get a block that meets the difficulty.", failed)
		}
		t.Logf("\t%s\tShould get a block that meets the difficulty.", success)

		if l.Height() != 2 || l.Balance(minerAddr) != 100 {
			t.Fatalf("\t%s\tShould append the block with the reward: height %d", failed, l.Height())
		}
		t.Logf("\t%s\tShould append the block with the reward.", success)

		if st := m.Stats(); st.Blocks != 1 {
			t.Fatalf("\t%s\tShould record the solve duration: %+v", failed, st)
		}
		t.Logf("\t%s\tShould record the solve duration.", success)
	}
}

func Test_CancelMining(t *testing.T) {
	t.Log("Given the need to cancel a mining attempt.")
	{
		m, l := newMiner(t, unsolvable)
		before := l.Snapshot()

		errs := make(chan error, 1)
		go func() {
			_, err := m.Mine(context.Background(), minerAddr)
			errs <- err
		}()

		waitMining(t, m)

		if !m.Cancel() {
			t.Fatalf("\t%s\tShould find a running attempt to cancel.", failed)
		}

		select {
		case err := <-errs:
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("\t%s\tShould get a cancelled error: %v", failed, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("\t%s\tShould stop the attempt in time.", failed)
		}
		t.Logf("\t%s\tShould stop the attempt in time.", success)

		after := l.Snapshot()
		if len(after.Chain) != len(before.Chain) || len(after.Pending) != len(before.Pending) {
			t.Fatalf("\t%s\tShould leave the ledger unchanged.", failed)
		}
		t.Logf("\t%s\tShould leave the ledger unchanged.", success)

		if m.IsMining() || m.Cancel() {
			t.Fatalf("\t%s\tShould release the attempt slot.", failed)
		}
		t.Logf("\t%s\tShould release the attempt slot.", success)
	}
}

func Test_SingleAttempt(t *testing.T) {
	t.Log("Given the need to run a single mining attempt at a time.")
	{
		m, _ := newMiner(t, unsolvable)

		first := make(chan error, 1)
		go func() {
			_, err := m.Mine(context.Background(), minerAddr)
			first <- err
		}()

		waitMining(t, m)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		if _, err := m.Mine(ctx, minerAddr); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("\t%s\tShould run the second attempt until its deadline: %v", failed, err)
		}
		t.Logf("\t%s\tShould run the second attempt until its deadline.", success)

		select {
		case err := <-first:
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("\t%s\tShould cancel the first attempt: %v", failed, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("\t%s\tShould cancel the first attempt in time.", failed)
		}
		t.Logf("\t%s\tShould cancel the first attempt.", success)
	}
}
