// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/ardanlabs/powledger/app/services/node/handlers/v1/public"
	"github.com/ardanlabs/powledger/foundation/blockchain/p2p"
	"github.com/ardanlabs/powledger/foundation/blockchain/worker"
	"github.com/ardanlabs/powledger/foundation/events"
	"github.com/ardanlabs/powledger/foundation/nameservice"
	"github.com/ardanlabs/powledger/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log         *zap.SugaredLogger
	Node        *p2p.Node
	Worker      *worker.Worker
	NS          *nameservice.NameService
	Evts        *events.Events
	Beneficiary string
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:         cfg.Log,
		Node:        cfg.Node,
		Worker:      cfg.Worker,
		NS:          cfg.NS,
		WS:          websocket.Upgrader{},
		Evts:        cfg.Evts,
		Beneficiary: cfg.Beneficiary,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/genesis/list", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/balances/list", pbl.Balances)
	app.Handle(http.MethodGet, version, "/balances/list/:address", pbl.Balances)
	app.Handle(http.MethodGet, version, "/blocks/list", pbl.Blocks)
	app.Handle(http.MethodGet, version, "/blocks/list/:index", pbl.Blocks)
	app.Handle(http.MethodGet, version, "/tx/pending/list", pbl.Pending)
	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitTransaction)
	app.Handle(http.MethodGet, version, "/peers/list", pbl.Peers)
	app.Handle(http.MethodPost, version, "/peers/connect", pbl.ConnectPeer)
	app.Handle(http.MethodDelete, version, "/peers/:address", pbl.DisconnectPeer)
	app.Handle(http.MethodPost, version, "/mining/mine", pbl.MineBlock)
	app.Handle(http.MethodPost, version, "/mining/start", pbl.StartMining)
	app.Handle(http.MethodPost, version, "/mining/cancel", pbl.CancelMining)
	app.Handle(http.MethodGet, version, "/mining/stats", pbl.MiningStats)
}
