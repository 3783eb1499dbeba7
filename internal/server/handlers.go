package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/danielpatrickdp/focus-monitor/internal/focus"
	"github.com/danielpatrickdp/focus-monitor/internal/journal"
	"github.com/danielpatrickdp/focus-monitor/internal/metrics"
	"github.com/danielpatrickdp/focus-monitor/internal/score"
	"github.com/danielpatrickdp/focus-monitor/internal/speech"
	"github.com/danielpatrickdp/focus-monitor/internal/status"
	"github.com/danielpatrickdp/focus-monitor/internal/vision"
)

const (
	maxJSONBytes  = 1 << 20
	maxImageBytes = 16 << 20
)

var errNoData = errors.New("no data provided")

// decodeJSON rejects empty bodies, empty objects and malformed JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) || bytes.Equal(body, []byte("{}")) {
		return errNoData
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// readImage accepts a multipart "image" file or a raw request body.
func readImage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var data []byte
	if mediaType == "multipart/form-data" {
		f, _, err := r.FormFile("image")
		if err != nil {
			return nil, errors.New("no image file provided")
		}
		defer f.Close()
		if data, err = io.ReadAll(f); err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
	} else {
		var err error
		if data, err = io.ReadAll(r.Body); err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
	}
	if len(data) == 0 {
		return nil, errors.New("no image file provided")
	}
	return data, nil
}

// #region health

type serviceHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status   string                   `json:"status"`
	Uptime   string                   `json:"uptime"`
	Services map[string]serviceHealth `json:"services"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "healthy",
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		Services: map[string]serviceHealth{},
	}
	for name, check := range s.deps.Health {
		if err := check(r.Context()); err != nil {
			resp.Services[name] = serviceHealth{Healthy: false, Message: err.Error()}
			resp.Status = "degraded"
			continue
		}
		resp.Services[name] = serviceHealth{Healthy: true}
	}
	writeJSON(w, http.StatusOK, resp)
}

// #endregion health

// #region status

func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Store.Read())
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	var p status.Patch
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if p.Empty() {
		writeError(w, http.StatusBadRequest, errNoData.Error())
		return
	}
	if p.State != nil && !p.State.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown state %q", *p.State))
		return
	}
	if p.Score != nil && !validScore(*p.Score) {
		writeError(w, http.StatusBadRequest, "focus_score must be within [0, 100]")
		return
	}
	s.deps.Store.Update(p)
	if p.SamplingActive != nil {
		metrics.SetSampling(*p.SamplingActive)
	}
	writeOK(w)
}

func validScore(n int) bool {
	return n >= 0 && n <= 100
}

type logRequest struct {
	Message  string  `json:"message"`
	Response *string `json:"response"`
}

func (s *Server) logHandler(w http.ResponseWriter, r *http.Request) {
	var req logRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "No message provided")
		return
	}
	s.deps.Store.Log(req.Message, req.Response)
	writeOK(w)
}

func (s *Server) focusHistoryHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Store.ScoreHistory())
}

type focusHistoryRequest struct {
	Score     *int   `json:"score"`
	Timestamp string `json:"timestamp"`
}

// isoLocal matches timestamps without a zone, as produced by Python's isoformat.
const isoLocal = "2006-01-02T15:04:05.999999999"

func (s *Server) addFocusHistoryHandler(w http.ResponseWriter, r *http.Request) {
	var req focusHistoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Score == nil {
		writeError(w, http.StatusBadRequest, "No score provided")
		return
	}
	if !validScore(*req.Score) {
		writeError(w, http.StatusBadRequest, "score must be within [0, 100]")
		return
	}
	ts := time.Now()
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339Nano, req.Timestamp)
		if err != nil {
			parsed, err = time.ParseInLocation(isoLocal, req.Timestamp, time.Local)
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid timestamp %q", req.Timestamp))
			return
		}
		ts = parsed
	}
	s.deps.Store.AppendScore(ts, *req.Score)
	writeOK(w)
}

// #endregion status

// #region mind

type evaluateRequest struct {
	Analysis struct {
		FocusScore   *int   `json:"focus_score"`
		Observations string `json:"observations"`
	} `json:"analysis"`
	Persona string `json:"persona"`
}

// evaluateResponse omits the action source; it is kept for logs and the journal.
type evaluateResponse struct {
	State         focus.State `json:"state"`
	PreviousState focus.State `json:"previous_state"`
	Score         int         `json:"focus_score"`
	Response      *string     `json:"response"`
	Persona       string      `json:"persona"`
}

func (s *Server) evaluateHandler(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in := focus.Input{
		Score:       score.DefaultScore,
		Observation: req.Analysis.Observations,
		Persona:     req.Persona,
		Now:         time.Now(),
		Uncertain:   true,
	}
	if req.Analysis.FocusScore != nil {
		in.Score = clamp(*req.Analysis.FocusScore)
		in.Uncertain = false
	}
	if in.Persona == "" {
		in.Persona = "hal"
	}

	res := s.deps.Classifier.Evaluate(r.Context(), in)

	var actionSource string
	resp := evaluateResponse{State: res.State, PreviousState: res.PreviousState, Score: res.Score, Persona: res.Persona}
	if res.Action != nil {
		text := res.Action.Text
		resp.Response = &text
		actionSource = string(res.Action.Source)
	}
	metrics.ObserveEvaluation(string(res.State), res.Score, actionSource)
	s.record(res, in, actionSource)

	s.logger.Info().
		Str("state", string(res.State)).
		Bool("response_generated", res.Action != nil).
		Str("action_source", actionSource).
		Msg("evaluation")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) record(res focus.Result, in focus.Input, actionSource string) {
	if s.deps.Journal == nil {
		return
	}
	parseSource := "api"
	if in.Uncertain {
		parseSource = string(score.SourceFallback)
	}
	_, err := s.deps.Journal.Record(journal.Entry{
		SessionID:     "api",
		State:         string(res.State),
		PreviousState: string(res.PreviousState),
		Score:         res.Score,
		ParseSource:   parseSource,
		Observation:   in.Observation,
		Action:        res.ActionText(),
		ActionSource:  actionSource,
		Persona:       res.Persona,
		CreatedAt:     in.Now,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("journal write failed")
	}
}

func (s *Server) mindStateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Classifier.Snapshot())
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// #endregion mind

// #region vision

func (s *Server) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "vision is not configured")
		return
	}
	image, err := readImage(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a := s.deps.Analyzer.Analyze(r.Context(), image)
	metrics.ParseResults.WithLabelValues(a.Source).Inc()
	s.logger.Info().Int("score", a.Score).Str("state", string(a.State)).Msg("analysis complete")
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) calibrateHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "vision is not configured")
		return
	}
	image, err := readImage(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := s.deps.Analyzer.Calibrate(r.Context(), image)
	if err != nil {
		if errors.Is(err, vision.ErrEmptyImage) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("calibration failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "calibrated", "description": b.Description})
}

func (s *Server) calibrationHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "vision is not configured")
		return
	}
	b, err := s.deps.Analyzer.Baseline()
	if err != nil {
		if errors.Is(err, vision.ErrNotCalibrated) {
			writeError(w, http.StatusNotFound, "No calibration image")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(b.Image) == 0 {
		writeError(w, http.StatusNotFound, "No calibration image")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(b.Image))
	w.Write(b.Image)
}

// #endregion vision

// #region speech

type speakRequest struct {
	Text    string `json:"text"`
	Persona string `json:"persona"`
}

func (s *Server) speakHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Speaker == nil {
		writeError(w, http.StatusServiceUnavailable, "speech is not configured")
		return
	}
	var req speakRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "No text provided")
		return
	}
	audio, err := s.deps.Speaker.Synthesize(r.Context(), req.Text, req.Persona)
	if err != nil {
		if errors.Is(err, speech.ErrUnknownVoice) || errors.Is(err, speech.ErrEmptyText) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("TTS failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info().Str("persona", req.Persona).Int("bytes", len(audio)).Msg("synthesized speech")
	w.Header().Set("Content-Type", "audio/wav")
	w.Write(audio)
}

func (s *Server) voicesHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Speaker == nil {
		writeError(w, http.StatusServiceUnavailable, "speech is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"voices":  s.deps.Speaker.Voices(),
		"default": s.deps.Speaker.DefaultVoice().Key,
	})
}

// #endregion speech
