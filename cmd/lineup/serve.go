package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/abelbrown/lineup/internal/logging"
	"github.com/abelbrown/lineup/internal/model"
	"github.com/abelbrown/lineup/internal/otel"
	"github.com/abelbrown/lineup/internal/ranking"
	"github.com/abelbrown/lineup/internal/server"
	"github.com/abelbrown/lineup/internal/store"
)

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Config file (default ~/.lineup/config.json)")
	addr := fs.String("addr", "", "Listen address (default from config)")
	dbPath := fs.String("db", "", "sqlite database (default from config)")
	rowsPath := fs.String("rows", "", "JSON row file to load (default: generated rows)")
	n := fs.Int("n", 100, "Number of generated rows when -rows is empty")
	seed := fs.Int64("seed", 1, "Random seed for generated rows")
	keep := fs.Bool("keep", false, "Serve the rows already in the database without loading any")
	fs.Parse(os.Args[1:])

	cfg := loadConfig(*cfgPath)
	initLogging(cfg)
	defer logging.Close()

	if *addr == "" {
		*addr = cfg.Remote.Listen
	}
	if *dbPath == "" {
		*dbPath = cfg.Store.Path
	}

	events, closeEvents := openEvents()
	defer closeEvents()
	events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindStartup, Comp: "server", Msg: *addr})
	defer events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindShutdown, Comp: "server"})

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer st.Close()

	if !*keep {
		count, err := st.SaveRows(model.NewRows(records(*rowsPath, *n, *seed)))
		if err != nil {
			log.Fatalf("failed to load rows: %v", err)
		}
		logging.Info("Rows loaded", "count", count, "db", *dbPath)
	}

	var opts ranking.Options
	if cfg.Provider.NullsFirst {
		opts.Nulls = ranking.NullsFirst
	}
	backend, err := server.NewBackend(st, opts)
	if err != nil {
		log.Fatalf("failed to start backend: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info("Serving", "addr", *addr, "rows", backend.Count())
	if err := server.Serve(ctx, *addr, server.NewHandler(backend)); err != nil {
		events.Emit(otel.Event{Level: otel.LevelError, Kind: otel.KindError, Comp: "server", Err: err.Error()})
		logging.Error("Server stopped", "error", err)
	}
}
