// Command lineup sorts, groups and views tabular rows.
//
// Usage:
//
//	lineup                  Show help
//	lineup demo             Group and sort generated rows, print the groups
//	lineup serve            Load rows into sqlite and serve them over HTTP
//	lineup view             Interactive table viewer (local or -remote)
//	lineup derive <file>    Print derived column descriptors for a row file
//	lineup events           JSONL event log viewer
package main

import (
	"fmt"
	"os"
)

const usage = `lineup: ranking and grouping for tabular rows

Usage:
  lineup <command> [flags]

Commands:
  demo        Group generated rows by category and sort by score
  serve       Load rows into the sqlite store and serve sort/view over HTTP
  view        Interactive table viewer over a local or remote provider
  derive      Print derived column descriptors for a JSON row file
  events      JSONL event log viewer

Configuration is read from ~/.lineup/config.json unless -config is given.
Files ending in .yaml or .yml are read as YAML.

Run 'lineup <command> -h' for command-specific help.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(0)
	}

	cmd := os.Args[1]
	// Strip the program name + subcommand so flag sets see only their flags
	os.Args = os.Args[1:]

	switch cmd {
	case "demo":
		runDemo()
	case "serve":
		runServe()
	case "view":
		runView()
	case "derive":
		runDerive()
	case "events":
		runEvents()
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "lineup: unknown command %q\n\n", cmd)
		fmt.Print(usage)
		os.Exit(1)
	}
}
