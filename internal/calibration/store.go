package calibration

// #region imports
import (
	"database/sql"
	"fmt"
	"time"
)

// #endregion imports

// #region types

// Baseline is the scene description captured while the user was focused.
// Later frames are scored against it.
type Baseline struct {
	ID          int64
	Description string
	Image       []byte // raw frame bytes, nil when not retained
	CreatedAt   time.Time
}

// #endregion types

// #region store

// Store persists calibration baselines in SQLite. Only the newest row is
// consulted; older rows remain for inspection.
type Store struct {
	db *sql.DB
}

// NewStore creates the calibrations table if needed and returns a store.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.init(); err != nil {
		return nil, fmt.Errorf("init calibrations: %w", err)
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS calibrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		description TEXT NOT NULL,
		image BLOB,
		created_at TEXT NOT NULL
	)`)
	return err
}

// Save stores a new baseline and returns it with its ID and timestamp.
func (s *Store) Save(description string, image []byte) (*Baseline, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO calibrations (description, image, created_at) VALUES (?, ?, ?)`,
		description, image, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("save calibration: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("calibration id: %w", err)
	}
	return &Baseline{ID: id, Description: description, Image: image, CreatedAt: now}, nil
}

// Latest returns the most recent baseline, or nil if none exists.
func (s *Store) Latest() (*Baseline, error) {
	row := s.db.QueryRow(
		`SELECT id, description, image, created_at FROM calibrations ORDER BY id DESC LIMIT 1`,
	)
	var b Baseline
	var createdAt string
	if err := row.Scan(&b.ID, &b.Description, &b.Image, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("latest calibration: %w", err)
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &b, nil
}

// #endregion store
