package score

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	objectPattern = regexp.MustCompile(`\{[^{}]+\}`)
	scalarPattern = regexp.MustCompile(`\b(\d{1,3})\b`)
)

// scoreKeys and textKeys are checked in order.
var (
	scoreKeys = []string{"focus_score", "score"}
	textKeys  = []string{"observations", "observation"}
)

// #region parse

// Parse turns a model's free-text assessment into a bounded score.
// It never fails: structured JSON is tried first, then the first bare
// number, then DefaultScore with FallbackObservation.
func Parse(raw string) ParsedScore {
	var result ParsedScore
	if obj := objectPattern.FindString(raw); obj != "" {
		parsed, ok := parseStructured(obj)
		if !ok {
			return fallback()
		}
		result = parsed
	} else if parsed, ok := parseScalar(raw); ok {
		result = parsed
	} else {
		return fallback()
	}

	result.Score = clamp(result.Score)
	if strings.TrimSpace(result.Observation) == "" {
		result.Observation = MissingObservation
	}
	return result
}

// #endregion parse

// #region structured

// parseStructured decodes a single JSON object. ok is false when the object
// is not valid JSON or the score field is not integral.
func parseStructured(obj string) (ParsedScore, bool) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return ParsedScore{}, false
	}

	score := DefaultScore
	for _, k := range scoreKeys {
		v, present := fields[k]
		if !present {
			continue
		}
		n, ok := toInt(v)
		if !ok {
			return ParsedScore{}, false
		}
		score = n
		break
	}

	observation := MissingObservation
	for _, k := range textKeys {
		if s, ok := fields[k].(string); ok && strings.TrimSpace(s) != "" {
			observation = s
			break
		}
	}

	return ParsedScore{Score: score, Observation: observation, Source: SourceStructured}, true
}

// toInt accepts JSON numbers (truncated toward zero) and integer strings.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		if n > math.MaxInt32 {
			return maxScore, true
		}
		if n < math.MinInt32 {
			return minScore, true
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// #endregion structured

// #region scalar

func parseScalar(raw string) (ParsedScore, bool) {
	m := scalarPattern.FindStringSubmatch(raw)
	if m == nil {
		return ParsedScore{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return ParsedScore{}, false
	}
	return ParsedScore{Score: n, Observation: truncate(raw, maxObservationRunes), Source: SourceScalar}, true
}

// #endregion scalar

// #region helpers

func fallback() ParsedScore {
	return ParsedScore{Score: DefaultScore, Observation: FallbackObservation, Source: SourceFallback}
}

// clamp restricts v to [0, 100].
func clamp(v int) int {
	if v < minScore {
		return minScore
	}
	if v > maxScore {
		return maxScore
	}
	return v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// #endregion helpers
