package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/abelbrown/lineup/internal/model"
)

func runDerive() {
	fs := flag.NewFlagSet("derive", flag.ExitOnError)
	format := fs.String("format", "table", "Output format: table, json or yaml")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: lineup derive [-format table|json|yaml] <rows.json>")
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	recs, err := loadRecords(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	descs := model.DeriveDescs(model.NewRows(recs))

	switch *format {
	case "json":
		out, _ := json.MarshalIndent(descs, "", "  ")
		fmt.Println(string(out))
	case "yaml":
		out, err := yaml.Marshal(descs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(string(out))
	case "table":
		fmt.Printf("%d rows, %d fields\n\n", len(recs), len(descs))
		for _, d := range descs {
			fmt.Printf("  %-20s %-12s %s\n", truncate(d.Column, 20), d.Type, describe(d))
		}
	default:
		fmt.Fprintf(os.Stderr, "error: unknown format %q\n", *format)
		os.Exit(2)
	}
}

func describe(d model.Desc) string {
	switch d.Type {
	case model.TypeNumber:
		return fmt.Sprintf("domain [%g, %g]", d.Domain[0], d.Domain[1])
	case model.TypeCategorical:
		return strings.Join(d.Categories, ", ")
	}
	return ""
}

// truncate shortens a string to max runes, appending "..." if truncated.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
