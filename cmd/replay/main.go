package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danielpatrickdp/association-learning/go-learner/internal/manager"
	"github.com/danielpatrickdp/association-learning/go-learner/internal/replay"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "path to fixture JSON")
	dbPath := flag.String("db", "", "replay into this database (default: throwaway temp db)")
	epochFlag := flag.String("epoch", "", "anchor for fixture day offsets, RFC3339 (default: now minus the fixture span)")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json [--db path] [--epoch 2026-01-01T00:00:00Z]")
		os.Exit(2)
	}

	os.Exit(run(*fixturePath, *dbPath, *epochFlag))
}

func run(fixturePath, dbPath, epochFlag string) int {
	f, err := replay.LoadFixture(fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}

	epoch, err := resolveEpoch(epochFlag, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse epoch: %v\n", err)
		return 2
	}

	if dbPath == "" {
		dir, err := os.MkdirTemp("", "replay-*")
		if err != nil {
			fmt.Fprintf(os.Stderr, "temp dir: %v\n", err)
			return 2
		}
		defer os.RemoveAll(dir)
		dbPath = filepath.Join(dir, "replay.db")
	}

	// Replays always run against a permissive gate; the fixture encodes
	// which turns should have been skipped via message lengths.
	mgr, err := manager.NewManager(dbPath, manager.DefaultConfig(), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open manager: %v\n", err)
		return 2
	}
	defer mgr.Close()

	summary, err := replay.Replay(context.Background(), mgr, f, epoch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 2
	}

	return printSummary(f, summary)
}

// resolveEpoch picks the fixture anchor. Without an explicit epoch the
// fixture is anchored so its last observation lands on today, keeping
// expiration windows out of the replayed span.
func resolveEpoch(epochFlag string, f *replay.Fixture) (time.Time, error) {
	if epochFlag != "" {
		return time.Parse(time.RFC3339, epochFlag)
	}
	maxDay := 0
	for _, o := range f.Observations {
		if o.Day > maxDay {
			maxDay = o.Day
		}
	}
	return time.Now().UTC().AddDate(0, 0, -maxDay), nil
}

// #endregion main

// #region output

func printSummary(f *replay.Fixture, s replay.Summary) int {
	if f.Description != "" {
		fmt.Printf("Fixture: %s\n\n", f.Description)
	}
	fmt.Printf("Replayed %d turns: %d skipped, %d writes, %d promotions, %d invalid inputs\n",
		s.TotalTurns, s.TurnsSkipped, s.WritesTotal, s.Promotions, s.InvalidInputs)

	fmt.Printf("\n%-12s  %-40s  %-10s  %-10s  %s\n", "Namespace", "Key", "Expected", "Got", "Match")
	fmt.Printf("%-12s+-%-40s+-%-10s+-%-10s+-%s\n",
		"------------", "----------------------------------------",
		"----------", "----------", "------")

	mismatched := make(map[string]replay.Mismatch, len(s.Mismatches))
	for _, m := range s.Mismatches {
		mismatched[m.Namespace+" "+m.Key] = m
	}
	for _, e := range f.Expectations {
		key := e.KeyA + "|" + e.KeyB
		got := e.Status
		match := "OK"
		if m, ok := mismatched[e.Namespace+" "+key]; ok {
			got = m.Got
			match = "DIFF"
		}
		fmt.Printf("%-12s  %-40s  %-10s  %-10s  %s\n", e.Namespace, key, e.Status, got, match)
	}

	fmt.Printf("\nSummary: %d expectations, %d diverge\n", len(f.Expectations), len(s.Mismatches))
	if !s.Passed() {
		return 1
	}
	return 0
}

// #endregion output
