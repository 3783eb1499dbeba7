package calibration

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/focus-monitor/internal/journal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "focus.db"))
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })

	s, err := NewStore(j.DB())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestLatest_EmptyReturnsNil(t *testing.T) {
	s := newTestStore(t)
	b, err := s.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if b != nil {
		t.Fatalf("expected nil baseline, got %+v", b)
	}
}

func TestSave_LatestWins(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Save("desk with laptop", []byte{0x1}); err != nil {
		t.Fatalf("Save 1: %v", err)
	}
	saved, err := s.Save("desk with laptop and notebook", []byte{0xff, 0xd8})
	if err != nil {
		t.Fatalf("Save 2: %v", err)
	}

	got, err := s.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got == nil {
		t.Fatal("expected a baseline")
	}
	if got.ID != saved.ID || got.Description != "desk with laptop and notebook" {
		t.Errorf("unexpected latest: %+v", got)
	}
	if !bytes.Equal(got.Image, []byte{0xff, 0xd8}) {
		t.Errorf("Image = %x", got.Image)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to parse")
	}
}
