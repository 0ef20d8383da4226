// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/ardanlabs/powledger/business/sys/validate"
	"github.com/ardanlabs/powledger/business/web/errs"
	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/ledger"
	"github.com/ardanlabs/powledger/foundation/blockchain/miner"
	"github.com/ardanlabs/powledger/foundation/blockchain/p2p"
	"github.com/ardanlabs/powledger/foundation/blockchain/worker"
	"github.com/ardanlabs/powledger/foundation/events"
	"github.com/ardanlabs/powledger/foundation/nameservice"
	"github.com/ardanlabs/powledger/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of ledger endpoints.
type Handlers struct {
	Log         *zap.SugaredLogger
	Node        *p2p.Node
	Worker      *worker.Worker
	NS          *nameservice.NameService
	WS          websocket.Upgrader
	Evts        *events.Events
	Beneficiary string
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case evt, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteJSON(evt); err != nil {
				return nil
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	ldg := h.Node.Ledger()
	gen := ldg.Genesis()

	info := genesisInfo{
		Date:         gen.Date,
		Difficulty:   gen.Difficulty,
		MiningReward: gen.MiningReward,
		Hash:         ldg.Chain()[0].Hash,
	}

	return web.Respond(ctx, w, info, http.StatusOK)
}

// Balances returns the balances derived from the chain. A single address or
// wallet name can be specified.
func (h Handlers) Balances(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	ldg := h.Node.Ledger()

	bals := []balance{}
	switch account := web.Param(r, "address"); account {
	case "":
		for address, amount := range ldg.Balances() {
			bals = append(bals, balance{
				Address: address,
				Name:    h.NS.Lookup(address),
				Balance: amount,
			})
		}
		sort.Slice(bals, func(i, j int) bool { return bals[i].Address < bals[j].Address })

	default:
		address, err := h.NS.Resolve(account)
		if err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
		bals = []balance{{
			Address: address,
			Name:    h.NS.Lookup(address),
			Balance: ldg.Balance(address),
		}}
	}

	resp := balances{
		LatestBlock: ldg.LatestBlock().Hash,
		Height:      ldg.Height(),
		Pending:     len(ldg.Pending()),
		Balances:    bals,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Blocks returns the full chain or the block at the specified index.
func (h Handlers) Blocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	ldg := h.Node.Ledger()

	param := web.Param(r, "index")
	if param == "" {
		chain := ldg.Chain()

		blocks := make([]block, len(chain))
		for i, blk := range chain {
			blocks[i] = toBlock(h.NS, blk)
		}

		return web.Respond(ctx, w, blocks, http.StatusOK)
	}

	index, err := strconv.ParseUint(param, 10, 64)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid block index %q", param), http.StatusBadRequest)
	}

	blk, err := ldg.BlockByIndex(index)
	if err != nil {
		return trusted(err)
	}

	return web.Respond(ctx, w, toBlock(h.NS, blk), http.StatusOK)
}

// Pending returns the set of transactions waiting for a block.
func (h Handlers) Pending(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	trans := toTxs(h.NS, h.Node.Ledger().Pending())
	return web.Respond(ctx, w, trans, http.StatusOK)
}

// SubmitTransaction adds a new transaction to the pending pool and shares
// it with the peers.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var req submitTx
	if err := web.Decode(r, &req); err != nil {
		return decodeError(err)
	}

	sender, err := h.NS.Resolve(req.From)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	receiver, err := h.NS.Resolve(req.To)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.Log.Infow("submit tran", "traceid", v.TraceID, "from", sender, "to", receiver, "amount", req.Amount)

	tran, err := h.Node.SubmitTransaction(ctx, sender, receiver, req.Amount)
	if err != nil {
		return trusted(err)
	}

	return web.Respond(ctx, w, toTx(h.NS, tran), http.StatusCreated)
}

// Peers returns the set of known peers.
func (h Handlers) Peers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := struct {
		Host  string   `json:"host"`
		Peers []string `json:"peers"`
	}{
		Host:  h.Node.Addr(),
		Peers: h.Node.Peers(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ConnectPeer connects the node to a peer and synchronizes the ledgers.
func (h Handlers) ConnectPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req connectPeer
	if err := web.Decode(r, &req); err != nil {
		return decodeError(err)
	}

	if err := h.Node.ConnectToAddress(ctx, req.Address); err != nil {
		return trusted(err)
	}

	return web.Respond(ctx, w, toBlock(h.NS, h.Node.Ledger().LatestBlock()), http.StatusOK)
}

// DisconnectPeer forgets the specified peer.
func (h Handlers) DisconnectPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := web.Param(r, "address")
	if !h.Node.Disconnect(address) {
		return errs.NewTrusted(fmt.Errorf("peer %q: %w", address, ledger.ErrNotFound), http.StatusNotFound)
	}

	return web.Respond(ctx, w, nil, http.StatusNoContent)
}

// MineBlock mines a single block and returns it once it is appended.
func (h Handlers) MineBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req mineBlock
	if r.ContentLength != 0 {
		if err := web.Decode(r, &req); err != nil {
			return decodeError(err)
		}
	}

	account := req.Beneficiary
	if account == "" {
		account = h.Beneficiary
	}

	beneficiary, err := h.NS.Resolve(account)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	blk, err := h.Node.Mine(ctx, beneficiary)
	if err != nil {
		return trusted(err)
	}

	return web.Respond(ctx, w, toBlock(h.NS, blk), http.StatusCreated)
}

// StartMining turns on continuous mining for the configured beneficiary.
func (h Handlers) StartMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.Worker.SetAutoMine(true)
	return web.Respond(ctx, w, h.status(), http.StatusAccepted)
}

// CancelMining turns off continuous mining and stops the running attempt.
func (h Handlers) CancelMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.Worker.SetAutoMine(false)
	h.Worker.SignalCancelMining()
	return web.Respond(ctx, w, h.status(), http.StatusOK)
}

// MiningStats returns the mining status and the solve time statistics.
func (h Handlers) MiningStats(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.status(), http.StatusOK)
}

func (h Handlers) status() miningStatus {
	return miningStatus{
		Mining:   h.Node.Miner().IsMining(),
		AutoMine: h.Worker.AutoMine(),
		Stats:    h.Node.Miner().Stats(),
	}
}

// =============================================================================

// decodeError keeps field errors intact so they are rendered with the field
// map and marks everything else as a bad request.
func decodeError(err error) error {
	if validate.IsFieldErrors(err) {
		return err
	}
	return errs.NewTrusted(err, http.StatusBadRequest)
}

// trusted maps the errors returned by the ledger, miner and node to the
// status code the client should see.
func trusted(err error) error {
	switch {
	case errors.Is(err, database.ErrInvalidAmount),
		errors.Is(err, database.ErrInsufficientBalance),
		errors.Is(err, database.ErrInvalidAddress),
		errors.Is(err, database.ErrDuplicateTx),
		errors.Is(err, p2p.ErrSelfConnect):
		return errs.NewTrusted(err, http.StatusBadRequest)

	case errors.Is(err, ledger.ErrNotFound):
		return errs.NewTrusted(err, http.StatusNotFound)

	case errors.Is(err, miner.ErrMiningBusy),
		errors.Is(err, database.ErrStaleBlock),
		errors.Is(err, database.ErrChainAhead),
		errors.Is(err, context.Canceled):
		return errs.NewTrusted(err, http.StatusConflict)

	case errors.Is(err, p2p.ErrPeerUnreachable):
		return errs.NewTrusted(err, http.StatusBadGateway)
	}

	return err
}
