package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/abelbrown/lineup/internal/model"
	"github.com/abelbrown/lineup/internal/provider"
	"github.com/abelbrown/lineup/internal/ui"
)

func runDemo() {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	n := fs.Int("rows", 100, "Number of generated rows")
	seed := fs.Int64("seed", 1, "Random seed for generated rows")
	top := fs.Int("top", 5, "Rows to print per group")
	groupBy := fs.String("group", "category", "Field to group by (empty = no grouping)")
	cfgPath := fs.String("config", "", "Config file (default ~/.lineup/config.json)")
	fs.Parse(os.Args[1:])

	cfg := loadConfig(*cfgPath)
	initLogging(cfg)

	ctx := context.Background()
	opts, stop := providerOptions(ctx, cfg, nil)
	defer stop()

	p, err := provider.NewLocal(model.NewRows(generateRows(*n, *seed)), opts)
	if err != nil {
		log.Fatalf("failed to create provider: %v", err)
	}
	r, err := pushRanking(p, demoDescs())
	if err != nil {
		log.Fatalf("failed to build ranking: %v", err)
	}

	score := findColumn(r, "score")
	r.SortBy(score, false)
	if *groupBy != "" {
		if c := findColumn(r, *groupBy); c == nil || !r.GroupBy(c) {
			log.Fatalf("cannot group by %q", *groupBy)
		}
	}

	start := time.Now()
	order, err := p.Sort(ctx, r)
	if err != nil {
		log.Fatalf("sort failed: %v", err)
	}
	fmt.Printf("%s  %d rows sorted in %s (%s executor)\n\n",
		ui.Title.Render(r.Label()), len(order), time.Since(start).Round(time.Microsecond), p.Executor().Name())

	name := findColumn(r, "name")
	category := findColumn(r, "category")
	for _, g := range r.FlatGroups() {
		fmt.Println(ui.GroupHeader.Render(g.Name) + " " + ui.GroupCount.Render(fmt.Sprintf("(%d)", len(g.Order))))

		if box, err := p.Summary(r, g.Name, score); err == nil && !box.Empty() {
			fmt.Printf("  score  min %.2f  q1 %.2f  median %.2f  q3 %.2f  max %.2f  missing %d\n",
				box.Min, box.Q1, box.Median, box.Q3, box.Max, box.Missing)
		}

		rows, err := p.View(ctx, g.Order[:min(*top, len(g.Order))])
		if err != nil {
			log.Fatalf("view failed: %v", err)
		}
		for _, row := range rows {
			pos, _ := r.Rank(row.Index)
			fmt.Printf("  %4d  %-10s %-8s %s\n", pos+1,
				fmt.Sprint(name.Value(row)), fmt.Sprint(category.Value(row)), formatScore(score, row))
		}
		fmt.Println()
	}
}

func formatScore(c model.Column, row model.Row) string {
	num, ok := c.(model.NumericLike)
	if !ok {
		return fmt.Sprint(c.Value(row))
	}
	v := num.RawValue(row)
	if math.IsNaN(v) {
		return "   NA"
	}
	return fmt.Sprintf("%5.2f", v)
}
