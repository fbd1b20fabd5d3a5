package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abelbrown/lineup/internal/otel"
)

var levelOrder = map[otel.Level]int{
	otel.LevelDebug: 0,
	otel.LevelInfo:  1,
	otel.LevelWarn:  2,
	otel.LevelError: 3,
}

// eventFilter keeps events matching every non-zero field. kind and
// provider match by prefix, level is a minimum.
type eventFilter struct {
	kind     string
	level    string
	comp     string
	provider string
	ranking  int
}

func (f eventFilter) match(e otel.Event) bool {
	switch {
	case f.kind != "" && !strings.HasPrefix(string(e.Kind), f.kind):
		return false
	case f.level != "" && levelOrder[e.Level] < levelOrder[otel.Level(f.level)]:
		return false
	case f.comp != "" && e.Comp != f.comp:
		return false
	case f.provider != "" && !strings.HasPrefix(e.Provider, f.provider):
		return false
	case f.ranking != 0 && e.Ranking != f.ranking:
		return false
	}
	return true
}

// eventLine is one decoded log line with its original bytes.
type eventLine struct {
	ev  otel.Event
	raw []byte
}

// decodeEvent parses one JSONL line. Blank and malformed lines report false.
func decodeEvent(raw []byte) (eventLine, bool) {
	raw = bytes.TrimRight(raw, "\r\n")
	if len(raw) == 0 {
		return eventLine{}, false
	}
	var e otel.Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return eventLine{}, false
	}
	return eventLine{ev: e, raw: bytes.Clone(raw)}, true
}

func formatEvent(e otel.Event) string {
	lvl := strings.ToUpper(string(e.Level))
	if lvl == "" {
		lvl = "?"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s [%-6s] %-18s", e.Time.Format("15:04:05.000"), lvl, e.Comp, e.Kind)

	field := func(ok bool, format string, args ...any) {
		if ok {
			b.WriteByte(' ')
			fmt.Fprintf(&b, format, args...)
		}
	}
	field(e.Ranking != 0, "r%d", e.Ranking)
	field(e.Seq > 0, "seq=%d", e.Seq)
	field(e.Executor != "", "exec=%s", e.Executor)
	field(e.Msg != "", "%s", e.Msg)
	field(e.DurMs > 0, "(%s)", formatMs(e.DurMs))
	field(e.Count > 0, "n=%d", e.Count)
	field(e.Groups > 0, "groups=%d", e.Groups)
	field(e.Err != "", "err=%s", e.Err)
	return b.String()
}

// formatMs keeps roughly three significant digits.
func formatMs(ms float64) string {
	switch {
	case ms >= 100:
		return fmt.Sprintf("%.0fms", ms)
	case ms >= 1:
		return fmt.Sprintf("%.1fms", ms)
	default:
		return fmt.Sprintf("%.2fms", ms)
	}
}

func runEvents() {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	tail := fs.Int("tail", 50, "Number of recent lines to show")
	follow := fs.Bool("f", false, "Keep reading as events are appended")
	var filter eventFilter
	fs.StringVar(&filter.kind, "kind", "", "Event kind prefix, e.g. sort or ranking.added")
	fs.StringVar(&filter.level, "level", "", "Minimum level: debug, info, warn, error")
	fs.StringVar(&filter.comp, "comp", "", "Component: local, remote, client, main, server")
	fs.StringVar(&filter.provider, "provider", "", "Provider id prefix")
	fs.IntVar(&filter.ranking, "ranking", 0, "Ranking id")
	raw := fs.Bool("json", false, "Print the JSON lines unformatted")
	fs.Parse(os.Args[1:])

	path := eventLogPath()
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\nNo event log at %s; run 'lineup view' or 'lineup serve' first.\n", err, path)
		os.Exit(1)
	}
	defer f.Close()

	show := func(l eventLine) {
		if *raw {
			os.Stdout.Write(append(l.raw, '\n'))
		} else {
			fmt.Println(formatEvent(l.ev))
		}
	}
	for _, l := range readTailLines(f, *tail, filter.match) {
		show(l)
	}
	if *follow {
		followEvents(f, filter.match, show)
	}
}

// followEvents polls r for appended lines until a read fails.
func followEvents(r io.Reader, match func(otel.Event) bool, emit func(eventLine)) {
	br := bufio.NewReader(r)
	var partial []byte
	for {
		chunk, err := br.ReadBytes('\n')
		partial = append(partial, chunk...)
		if errors.Is(err, io.EOF) {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if err != nil {
			return
		}
		if l, ok := decodeEvent(partial); ok && match(l.ev) {
			emit(l)
		}
		partial = partial[:0]
	}
}

// readTailLines returns the last n lines of r whose events pass match,
// oldest first.
func readTailLines(r io.Reader, n int, match func(otel.Event) bool) []eventLine {
	if n <= 0 {
		return nil
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	window := make([]eventLine, n)
	seen := 0
	for sc.Scan() {
		l, ok := decodeEvent(sc.Bytes())
		if !ok || !match(l.ev) {
			continue
		}
		window[seen%n] = l
		seen++
	}
	if seen <= n {
		return window[:seen]
	}
	start := seen % n
	return append(window[start:], window[:start]...)
}
