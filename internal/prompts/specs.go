package prompts

const classifySpec = `Respond with a JSON object matching this exact structure:

{
  "unit_id": <integer or null>,
  "unit_confidence": <number 0-1>,
  "alternatives": [{"unit_id": <integer>, "confidence": <number 0-1>}],
  "bloom_level": <integer 1-6 or null>,
  "bloom_confidence": <number 0-1>,
  "marks": <integer or null>,
  "difficulty": "<Easy|Medium|Hard>",
  "topic_tags": ["<topic>"]
}

Field constraints:
- unit_id: The id of the best matching syllabus unit, taken from the
  provided unit list. Use null when no unit fits.
- unit_confidence: Certainty of the unit assignment.
- alternatives: Other plausible units ordered by confidence. Empty when
  the assignment is clear.
- bloom_level: Bloom's taxonomy level of the question.
- bloom_confidence: Certainty of the Bloom level.
- marks: Marks printed with the question, null when absent.
- difficulty: Expected difficulty for a typical student.
- topic_tags: Topics from the selected unit's topic list only.

Behavioral constraints:
- Always respond with valid JSON, no markdown fencing
- Never invent unit ids that are not in the provided list
- Use null rather than guessing when a field cannot be determined`

const transcribeSpec = `Respond with a JSON object matching this exact structure:

{
  "text": "<transcribed page text>",
  "confidence": <number 0-1>
}

Field constraints:
- text: The full transcription with line breaks preserved as \n.
- confidence: Overall legibility of the page. Use values below 0.4 for
  pages that are mostly unreadable.

Behavioral constraints:
- Always respond with valid JSON, no markdown fencing
- Transcribe only this page`

var specs = map[Stage]string{
	StageClassify:   classifySpec,
	StageTranscribe: transcribeSpec,
}

// Spec returns the hardcoded specification for a pipeline stage.
// Specifications define the expected output format and behavioral constraints.
// Returns ErrInvalidStage if the stage is not recognized.
func Spec(stage Stage) (string, error) {
	text, ok := specs[stage]
	if !ok {
		return "", ErrInvalidStage
	}
	return text, nil
}

// Compose joins stage instructions with the stage's fixed response specification.
func Compose(instructions string, stage Stage) (string, error) {
	spec, err := Spec(stage)
	if err != nil {
		return "", err
	}
	return instructions + "\n\n" + spec, nil
}
