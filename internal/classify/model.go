package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/JaimeStill/qbank/internal/prompts"
	"github.com/JaimeStill/qbank/pkg/formatting"
)

// Completer sends a system and user message and returns the raw model output.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Instructor resolves the instructions for a pipeline stage.
type Instructor interface {
	Instructions(ctx context.Context, stage prompts.Stage) (string, error)
}

// ModelClassifier classifies questions with a chat completion model.
type ModelClassifier struct {
	model  Completer
	prompt Instructor
}

// NewModelClassifier creates a Classifier backed by a reasoning model.
func NewModelClassifier(model Completer, prompt Instructor) *ModelClassifier {
	return &ModelClassifier{model: model, prompt: prompt}
}

// Classify sends the question and unit list to the model and leniently
// decodes the reply.
func (m *ModelClassifier) Classify(ctx context.Context, req Request) (Result, error) {
	instructions, err := m.prompt.Instructions(ctx, prompts.StageClassify)
	if err != nil {
		return Result{}, fmt.Errorf("resolve classify instructions: %w", err)
	}

	system, err := prompts.Compose(instructions, prompts.StageClassify)
	if err != nil {
		return Result{}, err
	}

	raw, err := m.model.Complete(ctx, system, userMessage(req))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("%w: %w", ErrClassificationTimeout, err)
		}
		return Result{}, err
	}

	return decode(raw)
}

func userMessage(req Request) string {
	var b strings.Builder
	b.WriteString("Syllabus units:\n")
	for _, u := range req.Units {
		fmt.Fprintf(&b, "- id %d, unit %d: %s", u.ID, u.UnitNumber, u.Name)
		if len(u.Topics) > 0 {
			fmt.Fprintf(&b, " (topics: %s)", strings.Join(u.Topics, "; "))
		}
		b.WriteString("\n")
	}

	b.WriteString("\nQuestion:\n")
	b.WriteString(req.Text)
	if req.HasSubparts {
		b.WriteString("\n\nThis question is the stem of a multi-part question.")
	}
	return b.String()
}

// decode parses raw into a Result field by field. A field that is missing
// or has the wrong shape is left unknown. Only a reply that is not a JSON
// object at all is an error.
func decode(raw string) (Result, error) {
	fields, err := formatting.Parse[map[string]json.RawMessage](raw)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrClassificationMalformed, err)
	}

	var r Result
	r.UnitID = decodeInt64(fields["unit_id"])
	r.UnitConfidence = decodeFloat(fields["unit_confidence"])
	r.BloomConfidence = decodeFloat(fields["bloom_confidence"])

	if v := decodeInt64(fields["bloom_level"]); v != nil {
		level := int(*v)
		r.BloomLevel = &level
	}
	if v := decodeInt64(fields["marks"]); v != nil {
		marks := int(*v)
		r.Marks = &marks
	}

	var difficulty string
	if json.Unmarshal(fields["difficulty"], &difficulty) == nil {
		r.Difficulty = Difficulty(strings.TrimSpace(difficulty))
	}

	var tags []string
	if json.Unmarshal(fields["topic_tags"], &tags) == nil {
		r.TopicTags = tags
	}

	var alts []json.RawMessage
	if json.Unmarshal(fields["alternatives"], &alts) == nil {
		for _, a := range alts {
			var alt map[string]json.RawMessage
			if json.Unmarshal(a, &alt) != nil {
				continue
			}
			id := decodeInt64(alt["unit_id"])
			conf := decodeFloat(alt["confidence"])
			if id != nil && conf != nil {
				r.Alternatives = append(r.Alternatives, Alternative{UnitID: *id, Confidence: *conf})
			}
		}
	}

	return r, nil
}

func decodeInt64(raw json.RawMessage) *int64 {
	f := decodeFloat(raw)
	if f == nil || *f != float64(int64(*f)) {
		return nil
	}
	v := int64(*f)
	return &v
}

// decodeFloat accepts a finite JSON number or numeric string.
// NaN and infinities are treated as unknown.
func decodeFloat(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return finite(f)
	}

	var s string
	if json.Unmarshal(raw, &s) == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return finite(v)
		}
	}
	return nil
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
