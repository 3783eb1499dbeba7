package journal

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS evaluations (
	id             TEXT PRIMARY KEY,
	session_id     TEXT NOT NULL,
	state          TEXT NOT NULL,
	previous_state TEXT NOT NULL,
	score          INTEGER NOT NULL,
	parse_source   TEXT NOT NULL,
	observation    TEXT,
	action         TEXT,
	action_source  TEXT,
	persona        TEXT,
	created_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_created ON evaluations(created_at);
CREATE INDEX IF NOT EXISTS idx_evaluations_session ON evaluations(session_id, created_at);
`
// #endregion schema

// timeFormat is fixed width so created_at sorts lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// #region journal-struct
// Journal stores evaluation records in SQLite for later diagnosis and replay.
// It is an audit trail only; the live status history stays in memory.
type Journal struct {
	db *sql.DB
}
// #endregion journal-struct

// #region constructor
// Open opens (or creates) a SQLite journal and runs migrations.
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Journal{db: db}, nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}
// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for stores sharing the file (calibration).
func (j *Journal) DB() *sql.DB {
	return j.db
}
// #endregion db-accessor

// #region record
// Record inserts one evaluation. ID and CreatedAt are filled in when empty.
func (j *Journal) Record(e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := j.db.Exec(
		`INSERT INTO evaluations (id, session_id, state, previous_state, score, parse_source, observation, action, action_source, persona, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.State, e.PreviousState, e.Score, e.ParseSource,
		nullIfEmpty(e.Observation), nullIfEmpty(e.Action), nullIfEmpty(e.ActionSource), nullIfEmpty(e.Persona),
		e.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("record evaluation: %w", err)
	}
	return e, nil
}
// #endregion record

// #region recent
// Recent returns the newest entries, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	rows, err := j.db.Query(selectColumns+` ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Session returns one session's entries in chronological order.
func (j *Journal) Session(sessionID string) ([]Entry, error) {
	rows, err := j.db.Query(selectColumns+` WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session %s: %w", sessionID, err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// LatestSession returns the session ID of the newest entry, or "" if the
// journal is empty.
func (j *Journal) LatestSession() (string, error) {
	var id string
	err := j.db.QueryRow(`SELECT session_id FROM evaluations ORDER BY created_at DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest session: %w", err)
	}
	return id, nil
}
// #endregion recent

// #region summarize
// Summarize aggregates all entries created at or after since.
func (j *Journal) Summarize(since time.Time) (Summary, error) {
	rows, err := j.db.Query(selectColumns+` WHERE created_at >= ? ORDER BY created_at ASC`,
		since.UTC().Format(timeFormat))
	if err != nil {
		return Summary{}, fmt.Errorf("summarize: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{ByState: map[string]int{}}
	var total int
	for _, e := range entries {
		s.Total++
		s.ByState[e.State]++
		total += e.Score
		if e.Action != "" {
			s.Actions++
			if e.ActionSource == "fallback" {
				s.Fallbacks++
			}
		}
		if e.ParseSource == "fallback" {
			s.ParseFailure++
		}
	}
	if s.Total > 0 {
		s.AverageScore = float64(total) / float64(s.Total)
		s.First = entries[0].CreatedAt
		s.Last = entries[len(entries)-1].CreatedAt
	}
	return s, nil
}
// #endregion summarize

// #region scan
const selectColumns = `SELECT id, session_id, state, previous_state, score, parse_source, observation, action, action_source, persona, created_at FROM evaluations`

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var observation, action, actionSource, persona sql.NullString
		var createdStr string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.State, &e.PreviousState, &e.Score, &e.ParseSource,
			&observation, &action, &actionSource, &persona, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.Observation = observation.String
		e.Action = action.String
		e.ActionSource = actionSource.String
		e.Persona = persona.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion scan
