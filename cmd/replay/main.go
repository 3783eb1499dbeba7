package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/danielpatrickdp/focus-monitor/internal/journal"
	"github.com/danielpatrickdp/focus-monitor/internal/replay"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to focus journal (DB mode)")
	session := flag.String("session", "", "session ID to replay in DB mode (default: latest)")
	fixturePath := flag.String("fixture", "", "path to fixture YAML (fixture mode)")
	verbose := flag.Bool("v", false, "print every step, not only mismatches")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/focus.db [--session id] [-v]")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.yaml [-v]")
		os.Exit(2)
	}

	var (
		f   *replay.Fixture
		err error
	)
	if *fixturePath != "" {
		f, err = replay.LoadFixture(*fixturePath)
	} else {
		f, err = loadSession(*dbPath, *session)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	os.Exit(run(f, *verbose))
}

// #endregion main

// #region db-mode

func loadSession(dbPath, session string) (*replay.Fixture, error) {
	j, err := journal.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	if session == "" {
		session, err = j.LatestSession()
		if err != nil {
			return nil, err
		}
		if session == "" {
			return nil, fmt.Errorf("journal is empty")
		}
	}
	entries, err := j.Session(session)
	if err != nil {
		return nil, err
	}
	return replay.FromEntries("session "+session, replay.FixtureConfig{}, entries)
}

// #endregion db-mode

// #region run

func run(f *replay.Fixture, verbose bool) int {
	results, final := replay.Replay(f)
	sum := replay.Summarize(results, final)

	if f.Description != "" {
		fmt.Printf("Fixture: %s\n\n", f.Description)
	}
	fmt.Printf("%-5s  %8s  %5s  %-10s  %-7s  %-7s  %s\n",
		"Step", "At", "Score", "Source", "State", "Action", "Result")
	fmt.Printf("%-5s+-%8s+-%5s+-%-10s+-%-7s+-%-7s+-%s\n",
		"-----", "--------", "-----", "----------", "-------", "-------", "------")
	for _, r := range results {
		if !verbose && r.Passed() {
			continue
		}
		outcome := "ok"
		if !r.Passed() {
			outcome = "FAIL: " + strings.Join(r.Mismatches, "; ")
		}
		fmt.Printf("%-5d  %8s  %5d  %-10s  %-7s  %-7v  %s\n",
			r.Index, r.At, r.Score, r.Source, r.State, r.Action, outcome)
	}

	fmt.Printf("\nSteps: %d  Failed: %d  Actions: %d  Final: %s\n",
		sum.TotalSteps, sum.Failed, sum.Actions, sum.Final.Current)
	if sum.Failed > 0 {
		return 1
	}
	return 0
}

// #endregion run
