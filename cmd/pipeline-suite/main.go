// Command pipeline-suite runs self-check suites against a throwaway local
// store. It exits 0 when every selected suite passes and 1 otherwise.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

var (
	suiteName string
	runAll    bool
	keepDir   bool
	showHelp  bool
)

func init() {
	flag.StringVar(&suiteName, "suite", "", "Run a single suite by name")
	flag.BoolVar(&runAll, "all", false, "Run every suite")
	flag.BoolVar(&keepDir, "keep", false, "Keep the scratch directory after the run")
	flag.BoolVar(&showHelp, "help", false, "Show usage")
	flag.Usage = usage
}

func main() {
	flag.Parse()

	if showHelp {
		usage()
		os.Exit(0)
	}

	_ = godotenv.Load() // Ignore error if .env doesn't exist

	var selected []string
	switch {
	case runAll:
		selected = suiteNames()
	case suiteName != "":
		if _, ok := suites[suiteName]; !ok {
			fmt.Fprintf(os.Stderr, "Error: unknown suite %q\n\n", suiteName)
			usage()
			os.Exit(1)
		}
		selected = []string{suiteName}
	default:
		fmt.Fprintf(os.Stderr, "Error: pass --suite=<name> or --all\n\n")
		usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir, err := os.MkdirTemp("", "pipeline-suite-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if !keepDir {
		defer os.RemoveAll(dir)
	}

	if !runSuites(ctx, dir, selected) {
		if !keepDir {
			os.RemoveAll(dir)
		}
		os.Exit(1)
	}
}

func runSuites(ctx context.Context, dir string, names []string) bool {
	pass := color.New(color.FgGreen, color.Bold).SprintFunc()
	fail := color.New(color.FgRed, color.Bold).SprintFunc()

	failed := 0
	start := time.Now()
	for _, name := range names {
		suiteStart := time.Now()
		err := suites[name].run(ctx, scratch(dir, name))
		elapsed := time.Since(suiteStart).Round(time.Millisecond)
		if err != nil {
			failed++
			fmt.Printf("%s %-12s %v (%s)\n", fail("FAIL"), name, err, elapsed)
			continue
		}
		fmt.Printf("%s %-12s (%s)\n", pass("PASS"), name, elapsed)
	}

	fmt.Printf("\n%d/%d suites passed in %s\n", len(names)-failed, len(names), time.Since(start).Round(time.Millisecond))
	return failed == 0
}

func suiteNames() []string {
	names := make([]string, 0, len(suites))
	for name := range suites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func usage() {
	fmt.Fprintf(os.Stderr, `pipeline-suite - content pipeline self checks

Usage:
  pipeline-suite --suite=<name>
  pipeline-suite --all

Options:
  --suite string   Run a single suite
  --all            Run every suite
  --keep           Keep the scratch directory
  --help           Show this help

Suites:
`)
	for _, name := range suiteNames() {
		fmt.Fprintf(os.Stderr, "  %-12s %s\n", name, suites[name].desc)
	}
}
