package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/abelbrown/lineup/internal/model"
	"github.com/abelbrown/lineup/internal/otel"
	"github.com/abelbrown/lineup/internal/provider"
)

func TestGenerateRowsDeterministic(t *testing.T) {
	a := generateRows(50, 7)
	b := generateRows(50, 7)
	for i := range a {
		if a[i]["category"] != b[i]["category"] || a[i]["score"] != b[i]["score"] {
			t.Fatalf("row %d differs between runs with the same seed", i)
		}
		if s, ok := a[i]["score"].(float64); ok && (s < 0 || s > 10) {
			t.Errorf("row %d score %v outside [0, 10]", i, s)
		}
	}
}

func TestDemoRanking(t *testing.T) {
	p, err := provider.NewLocal(model.NewRows(generateRows(100, 1)), provider.Options{})
	if err != nil {
		t.Fatal(err)
	}
	r, err := pushRanking(p, demoDescs())
	if err != nil {
		t.Fatal(err)
	}
	if !r.GroupBy(findColumn(r, "category")) {
		t.Fatal("GroupBy(category) failed")
	}
	if !r.SortBy(findColumn(r, "score"), false) {
		t.Fatal("SortBy(score) failed")
	}
	order, err := p.Sort(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	if len(order) != 100 {
		t.Errorf("order has %d rows, want 100", len(order))
	}
	if n := len(r.FlatGroups()); n != len(demoCategories) {
		t.Errorf("got %d groups, want %d", n, len(demoCategories))
	}
}

func TestPushRankingBadDescRemovesRanking(t *testing.T) {
	p, err := provider.NewLocal(nil, provider.Options{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = pushRanking(p, []model.Desc{{Type: "bogus", Column: "x"}})
	if err == nil {
		t.Fatal("expected an error for an unknown column type")
	}
	if n := len(p.Rankings()); n != 0 {
		t.Errorf("%d rankings left behind", n)
	}
}

func writeEvents(t *testing.T, events ...otel.Event) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	for _, e := range events {
		line, err := json.Marshal(e)
		if err != nil {
			t.Fatal(err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return &buf
}

func TestReadTailLines(t *testing.T) {
	now := time.Now()
	buf := writeEvents(t,
		otel.Event{Time: now, Level: otel.LevelInfo, Kind: otel.KindSortStart, Comp: "local", Ranking: 1},
		otel.Event{Time: now, Level: otel.LevelInfo, Kind: otel.KindSortComplete, Comp: "local", Ranking: 1, Count: 10},
		otel.Event{Time: now, Level: otel.LevelError, Kind: otel.KindSortError, Comp: "remote", Ranking: 2, Err: "boom"},
		otel.Event{Time: now, Level: otel.LevelInfo, Kind: otel.KindViewComplete, Comp: "local", Ranking: 1},
	)
	buf.WriteString("not json\n\n")

	all := readTailLines(bytes.NewReader(buf.Bytes()), 10, eventFilter{}.match)
	if len(all) != 4 {
		t.Fatalf("got %d lines, want 4", len(all))
	}

	last := readTailLines(bytes.NewReader(buf.Bytes()), 2, eventFilter{}.match)
	if len(last) != 2 || last[0].ev.Kind != otel.KindSortError {
		t.Errorf("tail 2 = %+v", last)
	}

	sorts := readTailLines(bytes.NewReader(buf.Bytes()), 10, eventFilter{kind: "sort"}.match)
	if len(sorts) != 3 {
		t.Errorf("kind=sort matched %d lines, want 3", len(sorts))
	}

	errs := readTailLines(bytes.NewReader(buf.Bytes()), 10, eventFilter{level: "warn"}.match)
	if len(errs) != 1 || errs[0].ev.Err != "boom" {
		t.Errorf("level=warn = %+v", errs)
	}

	r2 := readTailLines(bytes.NewReader(buf.Bytes()), 10, eventFilter{ranking: 2, comp: "remote"}.match)
	if len(r2) != 1 {
		t.Errorf("ranking=2 comp=remote matched %d lines, want 1", len(r2))
	}
}

func TestFormatEvent(t *testing.T) {
	out := formatEvent(otel.Event{
		Level: otel.LevelInfo, Kind: otel.KindSortComplete, Comp: "local",
		Ranking: 3, Seq: 4, Executor: "direct", DurMs: 1.5, Count: 100, Groups: 3,
	})
	for _, want := range []string{"INFO", "sort.complete", "r3", "seq=4", "exec=direct", "(1.5ms)", "n=100", "groups=3"} {
		if !strings.Contains(out, want) {
			t.Errorf("formatEvent missing %q in %q", want, out)
		}
	}
}
