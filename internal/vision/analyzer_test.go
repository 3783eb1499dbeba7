package vision

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/focus-monitor/internal/calibration"
	"github.com/danielpatrickdp/focus-monitor/internal/focus"
	"github.com/danielpatrickdp/focus-monitor/internal/journal"
	"github.com/danielpatrickdp/focus-monitor/internal/score"
)

type fakeDescriber struct {
	mu      sync.Mutex
	replies []string
	err     error
	block   bool
	prompts []string
}

func (f *fakeDescriber) Describe(ctx context.Context, prompt string, _ []byte) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

func newBaselineStore(t *testing.T) *calibration.Store {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "focus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	s, err := calibration.NewStore(j.DB())
	require.NoError(t, err)
	return s
}

func newAnalyzer(t *testing.T, d Describer) (*Analyzer, *calibration.Store) {
	store := newBaselineStore(t)
	return NewAnalyzer(d, store, focus.DefaultConfig(), time.Second, zerolog.Nop()), store
}

func TestAnalyze_NotCalibrated(t *testing.T) {
	d := &fakeDescriber{replies: []string{"unused"}}
	a, _ := newAnalyzer(t, d)

	got := a.Analyze(context.Background(), []byte("frame"))
	assert.Equal(t, 0, got.Score)
	assert.Equal(t, focus.StateRed, got.State)
	assert.Equal(t, NotCalibratedObservation, got.Observations)
	assert.Equal(t, SourceUncalibrated, got.Source)
	assert.False(t, got.Focused)
	assert.Empty(t, d.prompts, "describer must not be called without a baseline")

	_, err := a.Baseline()
	assert.ErrorIs(t, err, ErrNotCalibrated)
}

func TestCalibrateThenAnalyze(t *testing.T) {
	d := &fakeDescriber{replies: []string{
		"Person typing at a desk.",
		`Sure! {"focus_score": 82, "observations": "typing at desk"}`,
	}}
	a, store := newAnalyzer(t, d)

	b, err := a.Calibrate(context.Background(), []byte("baseline"))
	require.NoError(t, err)
	assert.Equal(t, "Person typing at a desk.", b.Description)

	persisted, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, "Person typing at a desk.", persisted.Description)

	got := a.Analyze(context.Background(), []byte("frame"))
	assert.Equal(t, 82, got.Score)
	assert.Equal(t, focus.StateGreen, got.State)
	assert.True(t, got.Focused)
	assert.Equal(t, "typing at desk", got.Observations)
	assert.Equal(t, string(score.SourceStructured), got.Source)

	require.Len(t, d.prompts, 2)
	assert.Equal(t, CalibrationPrompt, d.prompts[0])
	assert.Contains(t, d.prompts[1], "Person typing at a desk.")
}

func TestAnalyze_BaselineLoadedFromStore(t *testing.T) {
	store := newBaselineStore(t)
	_, err := store.Save("Person reading.", []byte("img"))
	require.NoError(t, err)

	d := &fakeDescriber{replies: []string{`{"focus_score": 30, "observations": "glancing at phone"}`}}
	a := NewAnalyzer(d, store, focus.DefaultConfig(), time.Second, zerolog.Nop())

	got := a.Analyze(context.Background(), []byte("frame"))
	assert.Equal(t, 30, got.Score)
	assert.Equal(t, focus.StateYellow, got.State)
	assert.Contains(t, d.prompts[0], "Person reading.")
}

func TestAnalyze_UnparseableIsUncertainYellow(t *testing.T) {
	d := &fakeDescriber{replies: []string{"baseline", "the user seems okay"}}
	a, _ := newAnalyzer(t, d)
	_, err := a.Calibrate(context.Background(), []byte("b"))
	require.NoError(t, err)

	got := a.Analyze(context.Background(), []byte("frame"))
	assert.Equal(t, 50, got.Score)
	assert.Equal(t, focus.StateYellow, got.State)
	assert.True(t, got.Uncertain)
	assert.Equal(t, score.FallbackObservation, got.Observations)
}

func TestAnalyze_PerceptionErrorDegrades(t *testing.T) {
	d := &fakeDescriber{replies: []string{"baseline"}}
	a, _ := newAnalyzer(t, d)
	_, err := a.Calibrate(context.Background(), []byte("b"))
	require.NoError(t, err)

	d.err = errors.New("connection refused")
	got := a.Analyze(context.Background(), []byte("frame"))
	assert.Equal(t, score.DefaultScore, got.Score)
	assert.Equal(t, focus.StateYellow, got.State)
	assert.Equal(t, SourcePerceptionError, got.Source)
	assert.True(t, strings.HasPrefix(got.Observations, "Analysis error: "))
	assert.Contains(t, got.Observations, "connection refused")
}

func TestAnalyze_TimeoutDegrades(t *testing.T) {
	store := newBaselineStore(t)
	_, err := store.Save("baseline", nil)
	require.NoError(t, err)

	a := NewAnalyzer(&fakeDescriber{block: true}, store, focus.DefaultConfig(), 20*time.Millisecond, zerolog.Nop())
	got := a.Analyze(context.Background(), []byte("frame"))
	assert.Equal(t, SourcePerceptionError, got.Source)
	assert.Contains(t, got.Observations, context.DeadlineExceeded.Error())
}

func TestCalibrate_FailureKeepsPreviousBaseline(t *testing.T) {
	d := &fakeDescriber{replies: []string{"first baseline"}}
	a, _ := newAnalyzer(t, d)
	_, err := a.Calibrate(context.Background(), []byte("b"))
	require.NoError(t, err)

	d.err = errors.New("boom")
	_, err = a.Calibrate(context.Background(), []byte("b2"))
	require.Error(t, err)

	b, err := a.Baseline()
	require.NoError(t, err)
	assert.Equal(t, "first baseline", b.Description)
}

func TestCalibrate_EmptyImage(t *testing.T) {
	a, _ := newAnalyzer(t, &fakeDescriber{replies: []string{"x"}})
	_, err := a.Calibrate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestCalibrate_EmptyDescription(t *testing.T) {
	a, _ := newAnalyzer(t, &fakeDescriber{replies: []string{"   "}})
	_, err := a.Calibrate(context.Background(), []byte("b"))
	assert.Error(t, err)
	_, err = a.Baseline()
	assert.ErrorIs(t, err, ErrNotCalibrated)
}

func TestStatusConversion(t *testing.T) {
	a := Analysis{Score: 70, State: focus.StateGreen, Observations: "ok", Focused: true, Source: "structured"}
	s := a.Status()
	assert.Equal(t, 70, s.FocusScore)
	assert.Equal(t, focus.StateGreen, s.State)
	assert.True(t, s.Focused)
}
