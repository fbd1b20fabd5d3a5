package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/lineup/internal/logging"
	"github.com/abelbrown/lineup/internal/model"
	"github.com/abelbrown/lineup/internal/otel"
	"github.com/abelbrown/lineup/internal/provider"
	"github.com/abelbrown/lineup/internal/server"
	"github.com/abelbrown/lineup/internal/ui"
)

// sampleSize is the number of remote rows used to derive descriptors.
const sampleSize = 200

func runView() {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Config file (default ~/.lineup/config.json)")
	rowsPath := fs.String("rows", "", "JSON row file (default: generated rows)")
	n := fs.Int("n", 100, "Number of generated rows when -rows is empty")
	seed := fs.Int64("seed", 1, "Random seed for generated rows")
	remote := fs.Bool("remote", false, "Sort and view through a lineup server")
	endpoint := fs.String("endpoint", "", "Server endpoint (default from config)")
	dump := fs.String("dump", "", "Restore a saved ranking dump by name")
	save := fs.String("save", "", "Save the ranking dump under this name on exit")
	fs.Parse(os.Args[1:])

	cfg := loadConfig(*cfgPath)
	if *endpoint != "" {
		cfg.Remote.Endpoint = *endpoint
	}
	// The TUI owns the terminal, so logs always go to a file.
	if err := logging.Init(cfg.Log.Dir, cfg.Log.Level); err != nil {
		log.Fatalf("failed to init logging: %v", err)
	}
	defer logging.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, closeEvents := openEvents()
	defer closeEvents()
	ring := otel.NewRingBuffer(500)
	events.SetRingBuffer(ring)

	opts, stopPool := providerOptions(ctx, cfg, events)
	defer stopPool()

	var (
		p      provider.DataProvider
		client *server.Client
		descs  []model.Desc
	)
	if *remote {
		client = server.NewClient(cfg.Remote)
		client.SetEvents(events)
		count, err := client.Count(ctx)
		if err != nil {
			log.Fatalf("server unavailable at %s: %v", cfg.Remote.Endpoint, err)
		}
		rp, err := provider.NewRemote(client, count, opts)
		if err != nil {
			log.Fatalf("failed to create provider: %v", err)
		}
		p = rp
		if *dump == "" {
			descs = remoteDescs(ctx, rp, count)
		}
	} else {
		var recs []map[string]any
		if *rowsPath == "" {
			recs = generateRows(*n, *seed)
			descs = demoDescs()
		} else {
			recs = records(*rowsPath, 0, 0)
		}
		rows := model.NewRows(recs)
		if descs == nil {
			descs = model.DeriveDescs(rows)
		}
		lp, err := provider.NewLocal(rows, opts)
		if err != nil {
			log.Fatalf("failed to create provider: %v", err)
		}
		p = lp
	}

	r, err := initialRanking(ctx, p, client, *dump, descs)
	if err != nil {
		log.Fatalf("failed to build ranking: %v", err)
	}

	events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindStartup, Comp: "main", Provider: p.ID()})
	app := ui.NewApp(p, r, ring)
	program := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		logging.Error("Error running program", "error", err)
		fmt.Fprintf(os.Stderr, "error: %v (see %s)\n", err, logging.Path())
	}
	app.Close()
	events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindShutdown, Comp: "main", Provider: p.ID()})

	if *save != "" {
		if err := saveDump(ctx, client, *save, r.Dump()); err != nil {
			fmt.Fprintf(os.Stderr, "error: saving dump: %v\n", err)
			os.Exit(1)
		}
	}
}

// initialRanking restores the named dump when given, otherwise builds a
// ranking from descs. Dumps come from the server in remote mode and from
// the local dump directory otherwise.
func initialRanking(ctx context.Context, p provider.DataProvider, client *server.Client, name string, descs []model.Desc) (*model.Ranking, error) {
	if name == "" {
		return pushRanking(p, descs)
	}
	var (
		d   model.RankingDump
		err error
	)
	if client != nil {
		d, err = client.LoadDump(ctx, name)
	} else {
		d, err = loadLocalDump(name)
	}
	if err != nil {
		return nil, err
	}
	return p.Restore(d)
}

func saveDump(ctx context.Context, client *server.Client, name string, d model.RankingDump) error {
	if client != nil {
		return client.SaveDump(ctx, name, d)
	}
	return saveLocalDump(name, d)
}

// remoteDescs derives descriptors from the first rows of a remote provider.
func remoteDescs(ctx context.Context, p provider.DataProvider, count int) []model.Desc {
	indices := make([]int, min(count, sampleSize))
	for i := range indices {
		indices[i] = i
	}
	rows, err := p.View(ctx, indices)
	if err != nil {
		log.Fatalf("failed to sample rows: %v", err)
	}
	return model.DeriveDescs(rows)
}
