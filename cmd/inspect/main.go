package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/danielpatrickdp/focus-monitor/internal/journal"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to focus journal")
	last := flag.Int("last", 20, "show N most recent evaluations")
	session := flag.String("session", "", "show one session in chronological order")
	since := flag.Duration("since", 24*time.Hour, "summary window")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/focus.db [--last N] [--session id] [--since 24h] [--json]")
		os.Exit(2)
	}

	j, err := journal.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer j.Close()

	if err := run(j, *last, *session, *since, *jsonOut); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region run

type report struct {
	Entries []row   `json:"entries"`
	Summary summary `json:"summary"`
}

type row struct {
	ID        string `json:"id"`
	Session   string `json:"session_id"`
	State     string `json:"state"`
	Previous  string `json:"previous_state"`
	Score     int    `json:"focus_score"`
	Source    string `json:"parse_source"`
	Action    string `json:"action,omitempty"`
	Persona   string `json:"persona,omitempty"`
	CreatedAt string `json:"created_at"`
}

type summary struct {
	Window       string         `json:"window"`
	Total        int            `json:"total"`
	ByState      map[string]int `json:"by_state"`
	Actions      int            `json:"actions"`
	Fallbacks    int            `json:"fallback_actions"`
	ParseFailure int            `json:"parse_failures"`
	AverageScore float64        `json:"average_score"`
}

func run(j *journal.Journal, last int, session string, since time.Duration, jsonOut bool) error {
	var (
		entries []journal.Entry
		err     error
	)
	if session != "" {
		entries, err = j.Session(session)
	} else {
		entries, err = j.Recent(last)
	}
	if err != nil {
		return err
	}

	sum, err := j.Summarize(time.Now().Add(-since))
	if err != nil {
		return err
	}

	rep := report{
		Entries: make([]row, len(entries)),
		Summary: summary{
			Window:       since.String(),
			Total:        sum.Total,
			ByState:      sum.ByState,
			Actions:      sum.Actions,
			Fallbacks:    sum.Fallbacks,
			ParseFailure: sum.ParseFailure,
			AverageScore: sum.AverageScore,
		},
	}
	for i, e := range entries {
		rep.Entries[i] = row{
			ID:        e.ID,
			Session:   e.SessionID,
			State:     e.State,
			Previous:  e.PreviousState,
			Score:     e.Score,
			Source:    e.ParseSource,
			Action:    e.Action,
			Persona:   e.Persona,
			CreatedAt: e.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOut {
		return printJSON(rep)
	}
	printTable(rep)
	return nil
}

// #endregion run

// #region output

func printTable(rep report) {
	if len(rep.Entries) == 0 {
		fmt.Fprintln(os.Stderr, "no evaluations found")
	} else {
		fmt.Printf("%-8s  %-8s  %-7s  %5s  %-16s  %-20s  %s\n",
			"ID", "Session", "State", "Score", "Source", "Time", "Action")
		fmt.Printf("%-8s+-%-8s+-%-7s+-%5s+-%-16s+-%-20s+-%s\n",
			"--------", "--------", "-------", "-----", "----------------", "--------------------", "------")
		for _, r := range rep.Entries {
			fmt.Printf("%-8s  %-8s  %-7s  %5d  %-16s  %-20s  %s\n",
				short(r.ID), short(r.Session), r.State, r.Score, r.Source, r.CreatedAt, r.Action)
		}
	}

	s := rep.Summary
	fmt.Printf("\nLast %s: %d evaluations, avg score %.1f, %d actions (%d canned), %d parse failures\n",
		s.Window, s.Total, s.AverageScore, s.Actions, s.Fallbacks, s.ParseFailure)
	states := make([]string, 0, len(s.ByState))
	for st := range s.ByState {
		states = append(states, st)
	}
	sort.Strings(states)
	for _, st := range states {
		fmt.Printf("  %-7s %d\n", st, s.ByState[st])
	}
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// #endregion output
