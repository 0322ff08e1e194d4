package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/emiliaharju/whodunit/internal/engine"
	"github.com/emiliaharju/whodunit/internal/envstruct"
	"github.com/emiliaharju/whodunit/internal/errors"
	"github.com/emiliaharju/whodunit/internal/logging"
	"github.com/emiliaharju/whodunit/internal/notify"
	"github.com/emiliaharju/whodunit/internal/pprofserver"
	"github.com/emiliaharju/whodunit/internal/sqlite"
	"github.com/joho/godotenv"
)

type config struct {
	Addr      string `env:"WHODUNIT_ADDR" envDefault:"localhost:4000"`
	PprofPort string `env:"WHODUNIT_PPROF_PORT" envDefault:":6060"`
	SqliteURL string `env:"WHODUNIT_SQLITE_URL" envDefault:"./whodunit.sqlite"`
}

type application struct {
	logger *slog.Logger
	engine *engine.Engine
	hub    *notify.Hub[int64, *engine.SessionSnapshot]
}

func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	var cfg config
	if err := envstruct.Populate(&cfg, lookupEnv); err != nil {
		return errors.Wrap(err, "parse config")
	}

	// Initialise pprof listening on localhost so that it's not open to the world.
	pprofserver.Launch(cfg.PprofPort, logger)

	db, err := sqlite.NewDatabase(ctx, cfg.SqliteURL, logger)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer func() {
		_ = db.Close()
	}()

	logger.LogAttrs(ctx, slog.LevelInfo, "connected to db")

	go db.StartOptimizer(ctx)

	hub := notify.NewHub[int64, *engine.SessionSnapshot]()
	go hub.Start()
	defer hub.Stop()

	app := application{
		logger: logger,
		engine: engine.New(db, logger),
		hub:    hub,
	}

	return app.configureAndStartServer(ctx, cfg.Addr)
}

func main() {
	ctx := context.Background()

	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	}))
	logger := slog.New(loggerHandler)

	// The .env file is optional; the environment may already be set.
	_ = godotenv.Load()

	if err := run(ctx, logger, os.LookupEnv); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}
