package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/powledger/app/services/node/handlers"
	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/database/storage/disk"
	"github.com/ardanlabs/powledger/foundation/blockchain/database/storage/leveldb"
	"github.com/ardanlabs/powledger/foundation/blockchain/database/storage/memory"
	"github.com/ardanlabs/powledger/foundation/blockchain/discovery"
	"github.com/ardanlabs/powledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/powledger/foundation/blockchain/ledger"
	"github.com/ardanlabs/powledger/foundation/blockchain/miner"
	"github.com/ardanlabs/powledger/foundation/blockchain/p2p"
	"github.com/ardanlabs/powledger/foundation/blockchain/peer"
	"github.com/ardanlabs/powledger/foundation/blockchain/worker"
	"github.com/ardanlabs/powledger/foundation/events"
	"github.com/ardanlabs/powledger/foundation/logger"
	"github.com/ardanlabs/powledger/foundation/nameservice"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:30s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			CORSOrigins     []string      `conf:"default:*"`
		}
		Node struct {
			Host          string        `conf:"default:0.0.0.0:5000"`
			AdvertiseAddr string        `conf:"help:address given to peers when it differs from the listener"`
			KnownPeers    []string      `conf:"help:host:port of the peers to connect to on startup"`
			NetTimeout    time.Duration `conf:"default:5s"`
			Storage       string        `conf:"default:disk,help:disk|leveldb|memory"`
			DBPath        string        `conf:"default:zblock/ledger.json"`
			GenesisPath   string        `conf:"default:zblock/genesis.json"`
			Beneficiary   string        `conf:"default:miner1"`
			AutoMine      bool          `conf:"default:false"`
			PeerInterval  time.Duration `conf:"default:1m"`
		}
		Discovery struct {
			Enabled  bool          `conf:"default:true"`
			Port     int           `conf:"default:5001"`
			Interval time.Duration `conf:"default:30s"`
			Targets  []string      `conf:"help:announcement destinations other than the broadcast address"`
		}
		NameService struct {
			Folder string `conf:"default:zblock/accounts/"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "proof of work ledger node",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Name Service Support

	// The nameservice package provides name resolution for wallet addresses.
	// The names come from the file names in the zblock/accounts folder.
	ns, err := nameservice.New(cfg.NameService.Folder)
	if err != nil {
		return fmt.Errorf("unable to load account name service: %w", err)
	}

	for address, name := range ns.Copy() {
		log.Infow("startup", "status", "nameservice", "name", name, "address", address)
	}

	beneficiary, err := ns.Resolve(cfg.Node.Beneficiary)
	if err != nil {
		return fmt.Errorf("resolving beneficiary: %w", err)
	}

	// =========================================================================
	// Blockchain Support

	// The blockchain packages accept a function of this signature to allow the
	// application to log. Ledger events are also sent to any websocket client
	// that is connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")

		if evt, ok := events.Parse(ledger.EventPrefix, s); ok {
			evts.Send(evt)
		}
	}

	gen := genesis.Default()
	if cfg.Node.GenesisPath != "" {
		gen, err = genesis.Load(cfg.Node.GenesisPath)
		if err != nil {
			return fmt.Errorf("loading genesis: %w", err)
		}
	}

	strg, err := openStorage(cfg.Node.Storage, cfg.Node.DBPath)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}

	ldg, err := ledger.New(ledger.Config{
		Genesis:   gen,
		Storage:   strg,
		EvHandler: ev,
	})
	if err != nil {
		strg.Close()
		return err
	}
	defer func() {
		if err := ldg.Close(); err != nil {
			log.Errorw("shutdown", "status", "closing ledger", "ERROR", err)
		}
	}()

	mnr := miner.New(miner.Config{
		Ledger:    ldg,
		EvHandler: ev,
	})

	// The node accepts peer connections and shares transactions and blocks
	// with the network.
	node, err := p2p.New(p2p.Config{
		Host:          cfg.Node.Host,
		AdvertiseAddr: cfg.Node.AdvertiseAddr,
		Ledger:        ldg,
		Miner:         mnr,
		KnownPeers:    peer.NewPeerSet(),
		NetTimeout:    cfg.Node.NetTimeout,
		EvHandler:     ev,
	})
	if err != nil {
		return err
	}

	if err := node.Start(); err != nil {
		return err
	}
	defer node.Shutdown()

	// The worker package implements the background workflows such as auto
	// mining and periodic peer resyncs.
	wrk := worker.Run(node, worker.Config{
		Beneficiary:  beneficiary,
		AutoMine:     cfg.Node.AutoMine,
		PeerInterval: cfg.Node.PeerInterval,
		NetTimeout:   cfg.Node.NetTimeout,
		KnownPeers:   cfg.Node.KnownPeers,
		EvHandler:    ev,
	})
	defer wrk.Shutdown()

	if cfg.Discovery.Enabled {
		dsc, err := discovery.Run(discovery.Config{
			Port:       cfg.Discovery.Port,
			Targets:    cfg.Discovery.Targets,
			Interval:   cfg.Discovery.Interval,
			NetTimeout: cfg.Node.NetTimeout,
			Node:       node,
			EvHandler:  ev,
		})
		if err != nil {
			return fmt.Errorf("starting discovery: %w", err)
		}
		defer dsc.Shutdown()
	}

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// Construct the mux for the debug calls.
	debugMux := handlers.DebugMux(build, log, node)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	// Construct the mux for the public API calls.
	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown:    shutdown,
		Log:         log,
		Node:        node,
		Worker:      wrk,
		NS:          ns,
		Evts:        evts,
		Beneficiary: beneficiary,
		CORSOrigins: cfg.Web.CORSOrigins,
	})

	// Construct a server to service the requests against the mux.
	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}

// openStorage constructs the snapshot store selected in the configuration.
func openStorage(kind string, dbPath string) (database.Storage, error) {
	switch kind {
	case "disk":
		d, err := disk.New(dbPath)
		if err != nil {
			return nil, err
		}
		return d, nil

	case "leveldb":
		db, err := leveldb.New(dbPath)
		if err != nil {
			return nil, err
		}
		return db, nil

	case "memory":
		return memory.New(), nil
	}

	return nil, fmt.Errorf("unknown storage %q", kind)
}
