package focus

import (
	"context"
	"strings"
)

// #region writer-interface

// ActionWriter produces persona-flavoured corrective text for a situation.
// Implementations call out to a text model and may fail or time out.
type ActionWriter interface {
	WriteAction(ctx context.Context, persona, situation string) (string, error)
}

// #endregion writer-interface

// #region fallbacks

// DefaultFallback is used for personas without a canned phrase.
const DefaultFallback = "Please return to your work."

var fallbackPhrases = map[string]string{
	"hal":                "I'm afraid I can't let you continue this distraction, Dave.",
	"sarcastic_friend":   "Oh sure, take your time. It's not like you have work to do or anything.",
	"motivational_coach": "Hey! You've got this! Let's get back on track!",
	"drill_sergeant":     "Back to work, soldier! No excuses!",
}

// FallbackAction returns the canned phrase for persona.
func FallbackAction(persona string) string {
	if phrase, ok := fallbackPhrases[NormalizePersona(persona)]; ok {
		return phrase
	}
	return DefaultFallback
}

// #endregion fallbacks

// #region normalize

// NormalizePersona maps display names like "Drill Sergeant" to keys like "drill_sergeant".
func NormalizePersona(persona string) string {
	p := strings.ToLower(strings.TrimSpace(persona))
	return strings.Join(strings.Fields(p), "_")
}

// #endregion normalize

// #region trim

// trimSentences keeps at most the first two sentences of generated text.
func trimSentences(text string) string {
	text = strings.TrimSpace(text)
	parts := strings.Split(text, ".")
	if len(parts) > 2 {
		return strings.TrimSpace(strings.Join(parts[:2], ".")) + "."
	}
	return text
}

// #endregion trim
