package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/m3rciful/flowbot/core/buildinfo"
	coreconfig "github.com/m3rciful/flowbot/core/config"
	coredatabase "github.com/m3rciful/flowbot/core/database"
	"github.com/m3rciful/flowbot/core/flow/engine"
	"github.com/m3rciful/flowbot/core/flow/graph"
	"github.com/m3rciful/flowbot/core/flow/session"
	"github.com/m3rciful/flowbot/core/flow/vars"
	"github.com/m3rciful/flowbot/core/history"
	"github.com/m3rciful/flowbot/core/logger"
	"github.com/m3rciful/flowbot/core/ops"
	coretelegram "github.com/m3rciful/flowbot/core/telegram"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("flowbot: %v", err)
	}
}

func run() error {
	// .env is optional, real deployments set the environment directly
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}
	cfg, err := coreconfig.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.Settings{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		KeysOrder:   cfg.Logging.KeysOrder,
		DebugSample: cfg.Logging.DebugSample,
		Dir:         cfg.Logging.Dir,
		File:        cfg.Logging.File,
		Profile:     cfg.Logging.Profile,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Shutdown() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.L.Info("starting",
		slog.String("event", "boot"),
		slog.String("payload", buildinfo.Version),
	)

	g, err := graph.Load(cfg.Engine.GraphPath)
	if err != nil {
		return fmt.Errorf("load flow graph: %w", err)
	}

	var db *sqlx.DB
	if cfg.Vars.Backend == coreconfig.VarsBackendPostgres {
		if err := coredatabase.RunMigrations(cfg.Database); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		db, err = coredatabase.Connect(cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()
	}

	store, closeStore, err := buildVarsStore(cfg, db)
	if err != nil {
		return fmt.Errorf("build vars store: %w", err)
	}
	defer closeStore()

	metrics := engine.NewMetrics(prometheus.DefaultRegisterer)
	sender := coretelegram.NewSender(metrics)
	sessions := session.NewStore()

	var recorder *history.Recorder
	var observer engine.Observer
	if cfg.History.Enabled {
		recorder = history.New(db, cfg.History.QueueSize, cfg.History.Workers)
		defer recorder.Close()
		observer = recorder
	}

	ctl := engine.New(g, sessions, store, sender, engine.Options{
		Observer: observer,
		Metrics:  metrics,
		MaxHops:  cfg.Engine.MaxHops,
	})

	if cfg.Ops.Listen != "" {
		checks := map[string]ops.Health{}
		if db != nil {
			checks["db"] = func(ctx context.Context) error { return db.PingContext(ctx) }
		}
		go ops.New(cfg.Ops.Listen, checks).Start(ctx)
	}

	return coretelegram.Run(ctx, coretelegram.RunOptions{
		Config: cfg,
		Sender: sender,
		Handlers: &coretelegram.Handlers{
			Controller:           ctl,
			Sessions:             sessions,
			Recorder:             recorder,
			AdminID:              cfg.Telegram.AdminID,
			ResetClearsVariables: cfg.Engine.ResetClearsVariables,
		},
	})
}

// buildVarsStore wires the configured durable backend behind the memory
// fallback. The returned closer releases backend resources on shutdown.
func buildVarsStore(cfg *coreconfig.Config, db *sqlx.DB) (vars.Store, func(), error) {
	noop := func() {}
	switch cfg.Vars.Backend {
	case coreconfig.VarsBackendPostgres:
		return vars.NewFallback(vars.NewPostgres(db)), noop, nil
	case coreconfig.VarsBackendBolt:
		bolt, err := vars.NewBolt(cfg.Vars.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return vars.NewFallback(bolt), func() { _ = bolt.Close() }, nil
	default:
		return vars.NewFallback(nil), noop, nil
	}
}
