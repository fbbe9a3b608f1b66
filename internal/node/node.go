// Package node wires a ledger to its storage, transports and RPC server so
// it can be embedded in any binary.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Klingon-tech/ftledger/config"
	"github.com/Klingon-tech/ftledger/internal/ledger"
	klog "github.com/Klingon-tech/ftledger/internal/log"
	"github.com/Klingon-tech/ftledger/internal/metrics"
	"github.com/Klingon-tech/ftledger/internal/notify"
	"github.com/Klingon-tech/ftledger/internal/rpc"
	"github.com/Klingon-tech/ftledger/internal/storage"
)

// ErrGenesisMismatch is returned when the genesis file disagrees with the
// genesis recorded in an existing ledger.
var ErrGenesisMismatch = errors.New("genesis file does not match ledger")

// Node is a fully-initialized ledger daemon.
type Node struct {
	cfg     *config.Config
	genesis *config.Genesis
	logger  zerolog.Logger

	// Core
	db      storage.DB
	ledger  *ledger.Ledger
	router  *notify.Router
	metrics *metrics.Metrics

	// NATS
	nc   *nats.Conn
	sink *notify.JetStreamSink

	// RPC
	rpcServer *rpc.Server

	// Lifecycle
	ctx      context.Context
	cancel   context.CancelFunc
	group    *errgroup.Group
	stopOnce sync.Once
}

// New creates and initializes a new Node. It performs all setup steps
// (logger, genesis, storage, NATS, ledger, RPC) but does NOT start
// listeners or background goroutines. Call Start() for that.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "ftledgerd.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.Node

	// ── 2. Genesis ──────────────────────────────────────────────────
	genesis, created, err := config.LoadOrInitGenesis(cfg.GenesisFile())
	if err != nil {
		return nil, fmt.Errorf("load genesis: %w", err)
	}
	if err := genesis.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis %s: %w", cfg.GenesisFile(), err)
	}
	if created {
		logger.Warn().Str("path", cfg.GenesisFile()).Msg("No genesis file found, wrote default genesis")
	}
	genesisHash, err := genesis.Hash()
	if err != nil {
		return nil, fmt.Errorf("hash genesis: %w", err)
	}

	logger.Info().
		Str("owner", genesis.Owner.String()).
		Str("symbol", genesis.Metadata.Symbol).
		Str("total_supply", genesis.TotalSupply.String()).
		Str("genesis", genesisHash.String()[:16]+"...").
		Msg("Starting FT ledger node")

	// ── 3. Open storage ─────────────────────────────────────────────
	db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	ns := storage.NewPrefixDB(db, []byte(cfg.Ledger.Namespace+"/"))
	ledgerLogger := klog.WithNamespace(cfg.Ledger.Namespace)

	n := &Node{
		cfg:     cfg,
		genesis: genesis,
		logger:  logger,
		db:      db,
	}
	n.ctx, n.cancel = context.WithCancel(context.Background())

	// ── 4. Metrics ──────────────────────────────────────────────────
	if cfg.Metrics.Enabled {
		n.metrics = metrics.New()
	}

	// ── 5. NATS ─────────────────────────────────────────────────────
	var fallback ledger.Receiver
	sinks := ledger.MultiSink{ledger.LogSink{Logger: ledgerLogger}}
	if cfg.NATS.Enabled {
		nc, js, err := notify.Connect(cfg.NATS.URL, "ftledgerd")
		if err != nil {
			n.Stop()
			return nil, err
		}
		n.nc = nc

		ctx, cancel := context.WithTimeout(n.ctx, 10*time.Second)
		err = notify.EnsureStream(ctx, js, cfg.NATS.Stream, cfg.NATS.EventSubject)
		cancel()
		if err != nil {
			n.Stop()
			return nil, err
		}

		n.sink = notify.NewJetStreamSink(js, cfg.NATS.EventSubject, cfg.NATS.EventBuffer)
		sinks = append(sinks, n.sink)
		fallback = notify.NewNATSReceiver(nc, cfg.NATS.ReceiverSubject)
		logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS connected")
	} else {
		logger.Warn().Msg("NATS disabled by config; receivers must be registered in-process")
	}
	n.router = notify.NewRouter(fallback)

	// ── 6. Ledger ───────────────────────────────────────────────────
	l, fresh, err := ledger.OpenOrCreate(ns,
		ledger.Genesis{Owner: genesis.Owner, TotalSupply: genesis.TotalSupply},
		ledger.WithStorageFee(genesis.StorageFee),
		ledger.WithReceiver(n.router),
		ledger.WithNotifyTimeout(cfg.Ledger.NotifyTimeout),
		ledger.WithEventSink(sinks),
		ledger.WithMetrics(n.metrics),
		ledger.WithLogger(ledgerLogger),
	)
	if err != nil {
		n.Stop()
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	n.ledger = l
	if !fresh {
		if err := checkGenesis(l, genesis); err != nil {
			n.Stop()
			return nil, err
		}
	}
	logger.Info().
		Bool("created", fresh).
		Str("namespace", cfg.Ledger.Namespace).
		Str("supply", l.TotalSupply().String()).
		Msg("Ledger opened")

	// ── 7. RPC server ───────────────────────────────────────────────
	if cfg.RPC.Enabled {
		addr := net.JoinHostPort(cfg.RPC.Addr, strconv.Itoa(cfg.RPC.Port))
		n.rpcServer = rpc.New(addr, l, genesis, cfg.RPC)
		if n.metrics != nil {
			n.rpcServer.EnableMetrics(n.metrics)
		}
	} else {
		logger.Warn().Msg("RPC disabled by config")
	}

	return n, nil
}

// Start binds the RPC listener and launches the event publisher.
func (n *Node) Start() error {
	var ctx context.Context
	n.group, ctx = errgroup.WithContext(n.ctx)

	if n.sink != nil {
		n.group.Go(func() error {
			err := n.sink.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if n.rpcServer != nil {
		if err := n.rpcServer.Start(); err != nil {
			return fmt.Errorf("start rpc: %w", err)
		}
	}

	done := klog.Benchmark("startup audit")
	report, err := n.ledger.Audit()
	done()
	if err != nil {
		return fmt.Errorf("startup audit: %w", err)
	}
	root, err := n.ledger.StateRoot()
	if err != nil {
		return fmt.Errorf("state root: %w", err)
	}

	n.logger.Info().
		Int("accounts", report.Accounts).
		Str("supply", report.TotalSupply.String()).
		Str("state_root", root.String()[:16]+"...").
		Str("rpc", n.RPCAddr()).
		Bool("nats", n.nc != nil).
		Msg("Node started successfully")

	return nil
}

// Stop performs graceful shutdown in reverse order. It is safe to call
// more than once.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		if n.rpcServer != nil {
			n.rpcServer.Stop()
		}

		n.cancel()
		if n.group != nil {
			if err := n.group.Wait(); err != nil {
				n.logger.Error().Err(err).Msg("Background task failed")
			}
		}
		if n.sink != nil && n.sink.Dropped() > 0 {
			n.logger.Warn().Uint64("dropped", n.sink.Dropped()).Msg("Events dropped by full publish queue")
		}

		if n.nc != nil {
			if err := n.nc.Drain(); err != nil {
				n.nc.Close()
			}
		}
		if n.db != nil {
			n.db.Close()
		}

		n.logger.Info().Msg("Goodbye!")
	})
}

// Ledger returns the node's ledger.
func (n *Node) Ledger() *ledger.Ledger {
	return n.ledger
}

// Router returns the receiver router. In-process receivers registered on
// it take precedence over NATS.
func (n *Node) Router() *notify.Router {
	return n.router
}

// Genesis returns the genesis configuration the node was started with.
func (n *Node) Genesis() *config.Genesis {
	return n.genesis
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}
