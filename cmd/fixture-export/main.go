package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/focus-monitor/internal/journal"
	"github.com/danielpatrickdp/focus-monitor/internal/replay"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to focus journal")
	session := flag.String("session", "", "session ID to export (default: latest)")
	last := flag.Int("last", 0, "keep only the N most recent evaluations of the session (0 = all)")
	green := flag.Int("green", 0, "green threshold to record in the fixture (0 = default)")
	yellow := flag.Int("yellow", 0, "yellow threshold to record in the fixture (0 = default)")
	cooldown := flag.Duration("cooldown", 0, "action cooldown to record in the fixture (0 = default)")
	outPath := flag.String("out", "", "output fixture YAML path")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/focus.db --out path/to/fixture.yaml [--session id] [--last N]")
		os.Exit(2)
	}

	cfg := replay.FixtureConfig{ActionCooldown: *cooldown}
	if *green > 0 {
		cfg.GreenThreshold = green
	}
	if *yellow > 0 {
		cfg.YellowThreshold = yellow
	}

	if err := run(*dbPath, *session, *last, cfg, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region export

func run(dbPath, session string, last int, cfg replay.FixtureConfig, outPath string) error {
	j, err := journal.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	if session == "" {
		session, err = j.LatestSession()
		if err != nil {
			return err
		}
		if session == "" {
			return fmt.Errorf("journal is empty")
		}
	}

	entries, err := j.Session(session)
	if err != nil {
		return err
	}
	if last > 0 && len(entries) > last {
		entries = entries[len(entries)-last:]
	}

	desc := fmt.Sprintf("session %s exported %s", session, time.Now().UTC().Format(time.RFC3339))
	f, err := replay.FromEntries(desc, cfg, entries)
	if err != nil {
		return err
	}

	data, err := f.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	fmt.Printf("exported %d steps from session %s to %s\n", len(f.Steps), session, outPath)
	return nil
}

// #endregion export
