package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/danielpatrickdp/focus-monitor/internal/calibration"
	"github.com/danielpatrickdp/focus-monitor/internal/focus"
	"github.com/danielpatrickdp/focus-monitor/internal/persona"
	"github.com/danielpatrickdp/focus-monitor/internal/speech"
	"github.com/danielpatrickdp/focus-monitor/internal/status"
	"github.com/danielpatrickdp/focus-monitor/internal/vision"
)

// #region fakes

type fakeAnalyzer struct {
	mu       sync.Mutex
	baseline *calibration.Baseline
	lastImg  []byte
	err      error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, image []byte) vision.Analysis {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastImg = image
	return vision.Analysis{Score: 77, State: focus.StateGreen, Observations: "at desk", Focused: true, Source: "structured"}
}

func (f *fakeAnalyzer) Calibrate(_ context.Context, image []byte) (*calibration.Baseline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.baseline = &calibration.Baseline{ID: 1, Description: "person at desk", Image: image}
	return f.baseline, nil
}

func (f *fakeAnalyzer) Baseline() (*calibration.Baseline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.baseline == nil {
		return nil, vision.ErrNotCalibrated
	}
	return f.baseline, nil
}

type fakeSpeaker struct{}

func (fakeSpeaker) Synthesize(_ context.Context, text, p string) ([]byte, error) {
	if p == "pirate" {
		return nil, fmt.Errorf("%w: %s", speech.ErrUnknownVoice, p)
	}
	if p == "broken" {
		return nil, errors.New("piper crashed")
	}
	return []byte("RIFF" + text), nil
}

func (fakeSpeaker) Voices() []persona.Persona {
	return []persona.Persona{{Key: "hal", DisplayName: "Hal", VoiceModel: "en_GB-alan-medium"}}
}

func (fakeSpeaker) DefaultVoice() persona.Persona {
	return persona.Persona{Key: "hal", DisplayName: "Hal"}
}

// #endregion fakes

// #region helpers

type testEnv struct {
	srv      *Server
	store    *status.Store
	analyzer *fakeAnalyzer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := status.NewStore(status.DefaultCapacity)
	analyzer := &fakeAnalyzer{}
	srv := New(Config{Addr: "127.0.0.1:0", StreamInterval: 10 * time.Millisecond}, Deps{
		Store:      store,
		Classifier: focus.NewClassifier(focus.DefaultConfig(), nil, zerolog.Nop()),
		Analyzer:   analyzer,
		Speaker:    fakeSpeaker{},
		Health: map[string]HealthCheck{
			"ollama": func(context.Context) error { return nil },
		},
	}, zerolog.Nop())
	return &testEnv{srv: srv, store: store, analyzer: analyzer}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func multipartImage(t *testing.T, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "capture.jpg")
	require.NoError(t, err)
	fw.Write(data)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

// #endregion helpers

// #region health-and-state

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	hr := decode[healthResponse](t, w)
	assert.Equal(t, "healthy", hr.Status)
	assert.True(t, hr.Services["ollama"].Healthy)
}

func TestHealth_Degraded(t *testing.T) {
	e := newTestEnv(t)
	e.srv.deps.Health["codec"] = func(context.Context) error { return errors.New("unreachable") }

	hr := decode[healthResponse](t, e.do(t, http.MethodGet, "/health", ""))
	assert.Equal(t, "degraded", hr.Status)
	assert.Equal(t, "unreachable", hr.Services["codec"].Message)
}

func TestGetState_Defaults(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, w.Code)

	snap := decode[status.Snapshot](t, w)
	assert.Equal(t, focus.StateUnknown, snap.State)
	assert.Equal(t, "Hal", snap.Persona)
	assert.Nil(t, snap.Score)
	assert.Equal(t, "00:00:00", snap.Uptime)
}

func TestPostStatus_MergesAndLogsStateChange(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, "/status", `{"state":"RED","focus_score":12,"persona":"Drill Sergeant","bogus":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	snap := e.store.Read()
	assert.Equal(t, focus.StateRed, snap.State)
	assert.Equal(t, 12, *snap.Score)
	assert.Equal(t, "Drill Sergeant", snap.Persona)
	require.Len(t, snap.Events, 1)
	assert.Equal(t, "State changed to RED", snap.Events[0].Message)
}

func TestPostStatus_SamplingToggleDoesNotLog(t *testing.T) {
	e := newTestEnv(t)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/status", `{"sampling_active":true}`).Code)
	assert.True(t, e.store.SamplingActive())
	assert.Empty(t, e.store.Read().Events)
}

func TestPostStatus_BadRequestsLeaveStoreUntouched(t *testing.T) {
	e := newTestEnv(t)
	before := e.store.Version()

	for name, body := range map[string]string{
		"empty":        "",
		"empty object": "{}",
		"unknown keys": `{"bogus":1,"mood":"fine"}`,
		"malformed":    `{"state":`,
		"bad state":    `{"state":"PURPLE"}`,
		"bad score":    `{"focus_score":150}`,
		"wrong type":   `{"focus_score":"high"}`,
	} {
		w := e.do(t, http.MethodPost, "/status", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
		assert.Contains(t, w.Body.String(), `"error"`, name)
	}
	assert.Equal(t, before, e.store.Version())
}

func TestPostLog(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, "/log", `{"message":"Hal: eyes front","response":"eyes front"}`)
	require.Equal(t, http.StatusOK, w.Code)

	snap := e.store.Read()
	require.Len(t, snap.Events, 1)
	assert.Equal(t, "Hal: eyes front", snap.Events[0].Message)
	require.NotNil(t, snap.LastAction)
	assert.Equal(t, "eyes front", *snap.LastAction)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/log", `{"response":"x"}`).Code)
}

func TestFocusHistory(t *testing.T) {
	e := newTestEnv(t)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/focus-history", `{"score":70,"timestamp":"2026-01-01T09:00:00Z"}`).Code)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/focus-history", `{"score":40,"timestamp":"2026-01-01T09:00:10.123456"}`).Code)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/focus-history", `{"score":20}`).Code)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/focus-history", `{"timestamp":"2026-01-01T09:00:00Z"}`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/focus-history", `{"score":1,"timestamp":"yesterday"}`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/focus-history", `{"score":500}`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/focus-history", `{"score":-7}`).Code)

	points := decode[[]status.ScorePoint](t, e.do(t, http.MethodGet, "/focus-history", ""))
	require.Len(t, points, 3)
	assert.Equal(t, []int{70, 40, 20}, []int{points[0].Score, points[1].Score, points[2].Score})
	assert.True(t, points[0].Timestamp.Equal(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)))
}

// #endregion health-and-state

// #region mind

func TestEvaluate_RedThenCooldown(t *testing.T) {
	e := newTestEnv(t)
	body := `{"analysis":{"focus_score":10,"observations":"on phone"},"persona":"drill_sergeant"}`

	first := decode[evaluateResponse](t, e.do(t, http.MethodPost, "/mind/evaluate", body))
	assert.Equal(t, focus.StateRed, first.State)
	assert.Equal(t, focus.StateGreen, first.PreviousState)
	require.NotNil(t, first.Response)
	assert.Equal(t, focus.FallbackAction("drill_sergeant"), *first.Response)

	second := decode[evaluateResponse](t, e.do(t, http.MethodPost, "/mind/evaluate", body))
	assert.Equal(t, focus.StateRed, second.State)
	assert.Nil(t, second.Response)

	w := e.do(t, http.MethodPost, "/mind/evaluate", body)
	assert.NotContains(t, w.Body.String(), "fallback", "action source must not be exposed")
}

func TestEvaluate_MissingScoreIsUncertain(t *testing.T) {
	e := newTestEnv(t)
	res := decode[evaluateResponse](t, e.do(t, http.MethodPost, "/mind/evaluate", `{"analysis":{"observations":"?"}}`))
	assert.Equal(t, 50, res.Score)
	assert.Equal(t, focus.StateYellow, res.State)
	assert.Equal(t, "hal", res.Persona)
}

func TestEvaluate_BadBody(t *testing.T) {
	e := newTestEnv(t)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/mind/evaluate", "").Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/mind/evaluate", "[").Code)
}

func TestMindState(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, http.MethodPost, "/mind/evaluate", `{"analysis":{"focus_score":40}}`)

	ss := decode[focus.SessionState](t, e.do(t, http.MethodGet, "/mind/state", ""))
	assert.Equal(t, focus.StateYellow, ss.Current)
	require.NotNil(t, ss.LastScore)
	assert.Equal(t, 40, *ss.LastScore)
	assert.NotNil(t, ss.YellowEnteredAt)
}

// #endregion mind

// #region vision

func TestAnalyze_Multipart(t *testing.T) {
	e := newTestEnv(t)
	body, ct := multipartImage(t, []byte{0xff, 0xd8})
	req := httptest.NewRequest(http.MethodPost, "/vision/analyze", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	a := decode[vision.Analysis](t, w)
	assert.Equal(t, 77, a.Score)
	assert.Equal(t, []byte{0xff, 0xd8}, e.analyzer.lastImg)
}

func TestAnalyze_RawBodyAndEmpty(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/vision/analyze", bytes.NewReader([]byte("jpeg")))
	req.Header.Set("Content-Type", "image/jpeg")
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/vision/analyze", "").Code)
}

func TestCalibrateAndFetch(t *testing.T) {
	e := newTestEnv(t)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/calibration", "").Code)

	img := []byte{0xff, 0xd8, 0xff, 0xe0}
	req := httptest.NewRequest(http.MethodPost, "/vision/calibrate", bytes.NewReader(img))
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "calibrated")

	got := e.do(t, http.MethodGet, "/calibration", "")
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, "image/jpeg", got.Header().Get("Content-Type"))
	assert.Equal(t, img, got.Body.Bytes())
}

func TestCalibrate_BackendFailure(t *testing.T) {
	e := newTestEnv(t)
	e.analyzer.err = errors.New("describe baseline: timeout")
	req := httptest.NewRequest(http.MethodPost, "/vision/calibrate", strings.NewReader("img"))
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestVisionRoutes_NotConfigured(t *testing.T) {
	e := newTestEnv(t)
	e.srv.deps.Analyzer = nil
	assert.Equal(t, http.StatusServiceUnavailable, e.do(t, http.MethodGet, "/calibration", "").Code)
}

// #endregion vision

// #region speech

func TestSpeak(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, "/speech/speak", `{"text":"Back to work.","persona":"hal"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/wav", w.Header().Get("Content-Type"))
	assert.Equal(t, "RIFFBack to work.", w.Body.String())
}

func TestSpeak_Errors(t *testing.T) {
	e := newTestEnv(t)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/speech/speak", `{"persona":"hal"}`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/speech/speak", `{"text":"x","persona":"pirate"}`).Code)
	assert.Equal(t, http.StatusInternalServerError, e.do(t, http.MethodPost, "/speech/speak", `{"text":"x","persona":"broken"}`).Code)

	e.srv.deps.Speaker = nil
	assert.Equal(t, http.StatusServiceUnavailable, e.do(t, http.MethodPost, "/speech/speak", `{"text":"x"}`).Code)
}

func TestVoices(t *testing.T) {
	e := newTestEnv(t)
	var out struct {
		Voices  []persona.Persona `json:"voices"`
		Default string            `json:"default"`
	}
	w := e.do(t, http.MethodGet, "/speech/voices", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "hal", out.Default)
	require.Len(t, out.Voices, 1)
	assert.Equal(t, "en_GB-alan-medium", out.Voices[0].VoiceModel)
}

// #endregion speech

// #region routing-and-metrics

func TestMethodNotAllowed(t *testing.T) {
	e := newTestEnv(t)
	assert.Equal(t, http.StatusMethodNotAllowed, e.do(t, http.MethodDelete, "/state", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, http.MethodGet, "/state", "")

	w := e.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "focus_monitor_requests_total")
	assert.Contains(t, w.Body.String(), `endpoint="GET /state"`)
}

// #endregion routing-and-metrics

// #region websocket

func TestWebsocket_StreamsChanges(t *testing.T) {
	e := newTestEnv(t)
	ts := httptest.NewServer(e.srv.Handler())
	defer ts.Close()
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	var first status.Snapshot
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, focus.StateUnknown, first.State)

	red := focus.StateRed
	e.store.Update(status.Patch{State: &red})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var next status.Snapshot
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, focus.StateRed, next.State)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.srv.Shutdown(ctx))

	// The server sends a close frame on shutdown.
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	conn.Close()
}

// #endregion websocket

// #region lifecycle

func TestShutdown(t *testing.T) {
	e := newTestEnv(t)
	errCh := make(chan error, 1)
	go func() { errCh <- e.srv.Start() }()
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.srv.Shutdown(ctx))
	assert.NoError(t, <-errCh)
}

// #endregion lifecycle
