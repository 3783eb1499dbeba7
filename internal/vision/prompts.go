package vision

import "fmt"

// CalibrationPrompt asks for a short description of the focused baseline.
const CalibrationPrompt = `Describe this image briefly. Focus on:
- Is there a person visible?
- What is their posture and position?
- Are they at a desk/workstation?
- What are they doing (working, looking at phone, away, etc.)?
Keep response under 50 words.`

// AssessmentPrompt asks the model to score the current frame against baseline.
func AssessmentPrompt(baseline string) string {
	return fmt.Sprintf(`You are analyzing a webcam image to determine if a person is focused on their work.

CALIBRATION BASELINE (what focused looks like):
%s

TASK: Compare the current image to the baseline and rate focus from 0-100.

Scoring guide:
- 90-100: Person in same focused position as baseline
- 70-89: Person at desk, minor posture differences
- 50-69: Person present but attention may be divided
- 25-49: Person distracted (phone, looking away, different activity)
- 0-24: Person not at desk or major scene change

Respond with ONLY a JSON object in this exact format:
{"focus_score": <number 0-100>, "observations": "<brief reason>"}`, baseline)
}
