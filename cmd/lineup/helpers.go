package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/abelbrown/lineup/internal/config"
	"github.com/abelbrown/lineup/internal/logging"
	"github.com/abelbrown/lineup/internal/model"
	"github.com/abelbrown/lineup/internal/otel"
	"github.com/abelbrown/lineup/internal/provider"
	"github.com/abelbrown/lineup/internal/store"
	"github.com/abelbrown/lineup/internal/work"
)

// dataDir returns ~/.lineup/, creating it if needed.
func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("failed to get home directory: %v", err)
	}
	dir := filepath.Join(home, ".lineup")
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatalf("failed to create data directory: %v", err)
	}
	return dir
}

// eventLogPath returns the path to lineup.events.jsonl.
func eventLogPath() string {
	return filepath.Join(dataDir(), "lineup.events.jsonl")
}

// loadConfig reads the config file or fatals.
func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// initLogging points the process logger at stderr, or at a dated file
// under cfg.Log.Dir when one is configured.
func initLogging(cfg *config.Config) {
	var err error
	if cfg.Log.Dir != "" {
		err = logging.Init(cfg.Log.Dir, cfg.Log.Level)
	} else {
		err = logging.InitWriter(os.Stderr, cfg.Log.Level)
	}
	if err != nil {
		log.Fatalf("failed to init logging: %v", err)
	}
}

// openEvents opens the JSONL event log. The returned close func flushes it.
func openEvents() (*otel.Logger, func()) {
	f, err := os.OpenFile(eventLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logging.Warn("event log disabled", "error", err)
		l := otel.NewNullLogger()
		return l, l.Close
	}
	l := otel.NewLogger(f)
	return l, func() {
		l.Close()
		f.Close()
	}
}

// providerOptions builds provider options from cfg, starting a work pool
// when the scheduled executor is configured. stop releases the pool.
func providerOptions(ctx context.Context, cfg *config.Config, events *otel.Logger) (provider.Options, func()) {
	var pool *work.Pool
	stop := func() {}
	if cfg.Provider.Executor == config.ExecutorScheduled {
		pool = work.NewPool(cfg.Provider.Workers)
		pool.Start(ctx)
		stop = pool.Stop
	}
	opts, err := provider.OptionsFromConfig(cfg.Provider, pool)
	if err != nil {
		stop()
		log.Fatalf("invalid provider config: %v", err)
	}
	opts.Events = events
	return opts, stop
}

var demoCategories = []string{"alpha", "beta", "gamma"}

// generateRows builds n demo records: a name, a score in [0, 10], one of
// three categories and a date within the last year. About one score in
// twenty is missing.
func generateRows(n int, seed int64) []map[string]any {
	rng := rand.New(rand.NewSource(seed))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := make([]map[string]any, n)
	for i := range records {
		rec := map[string]any{
			"name":     fmt.Sprintf("Row %d", i),
			"category": demoCategories[rng.Intn(len(demoCategories))],
			"date":     base.AddDate(0, 0, rng.Intn(365)).Format("2006-01-02"),
		}
		if rng.Intn(20) != 0 {
			rec["score"] = float64(rng.Intn(1001)) / 100
		}
		records[i] = rec
	}
	return records
}

// demoDescs describes the columns of generateRows.
func demoDescs() []model.Desc {
	return []model.Desc{
		{Type: model.TypeString, Column: "name", Label: "Name", Width: 120},
		{Type: model.TypeCategorical, Column: "category", Label: "Category", Categories: demoCategories},
		{Type: model.TypeNumber, Column: "score", Label: "Score", Domain: []float64{0, 10}},
		{Type: model.TypeDate, Column: "date", Label: "Date", Granularity: "month"},
	}
}

// loadRecords reads a JSON array of objects.
func loadRecords(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return records, nil
}

// records returns the rows of path, or n generated rows when path is empty.
func records(path string, n int, seed int64) []map[string]any {
	if path == "" {
		return generateRows(n, seed)
	}
	recs, err := loadRecords(path)
	if err != nil {
		log.Fatalf("failed to load rows: %v", err)
	}
	return recs
}

// pushRanking adds a ranking to p with one column per descriptor.
func pushRanking(p provider.DataProvider, descs []model.Desc) (*model.Ranking, error) {
	r, err := p.PushRanking(nil)
	if err != nil {
		return nil, err
	}
	for _, d := range descs {
		c, err := p.Create(d)
		if err != nil {
			p.RemoveRanking(r)
			return nil, fmt.Errorf("column %s: %w", d.Column, err)
		}
		r.Push(c)
	}
	return r, nil
}

// findColumn returns the first column of r reading field.
func findColumn(r *model.Ranking, field string) model.Column {
	for _, c := range r.Flatten() {
		if c.Desc().Column == field {
			return c
		}
	}
	return nil
}

// dumpDBPath returns the sqlite file holding locally saved ranking dumps.
func dumpDBPath() string {
	return filepath.Join(dataDir(), "lineup.db")
}

func loadLocalDump(name string) (model.RankingDump, error) {
	st, err := store.Open(dumpDBPath())
	if err != nil {
		return model.RankingDump{}, err
	}
	defer st.Close()
	return st.LoadDump(name)
}

func saveLocalDump(name string, d model.RankingDump) error {
	st, err := store.Open(dumpDBPath())
	if err != nil {
		return err
	}
	defer st.Close()
	return st.SaveDump(name, d)
}
