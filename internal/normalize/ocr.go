package normalize

import (
	"context"
	"fmt"

	"github.com/JaimeStill/document-context/pkg/document"
	"github.com/JaimeStill/document-context/pkg/encoding"

	"github.com/JaimeStill/qbank/internal/prompts"
	"github.com/JaimeStill/qbank/pkg/formatting"
)

// Completer sends a vision request and returns the raw model output.
type Completer interface {
	Vision(ctx context.Context, system, user, imageURI string) (string, error)
}

// Instructor resolves the instructions for a pipeline stage.
type Instructor interface {
	Instructions(ctx context.Context, stage prompts.Stage) (string, error)
}

// VisionOCR transcribes page images with a vision-capable model.
type VisionOCR struct {
	model  Completer
	prompt Instructor
}

// NewVisionOCR creates an OCR collaborator backed by a vision model.
func NewVisionOCR(model Completer, prompt Instructor) *VisionOCR {
	return &VisionOCR{model: model, prompt: prompt}
}

// Transcribe sends the page image and parses the {text, confidence} reply.
func (v *VisionOCR) Transcribe(ctx context.Context, page int, png []byte) (Transcription, error) {
	instructions, err := v.prompt.Instructions(ctx, prompts.StageTranscribe)
	if err != nil {
		return Transcription{}, fmt.Errorf("resolve transcribe instructions: %w", err)
	}

	system, err := prompts.Compose(instructions, prompts.StageTranscribe)
	if err != nil {
		return Transcription{}, err
	}

	uri, err := encoding.EncodeImageDataURI(png, document.PNG)
	if err != nil {
		return Transcription{}, fmt.Errorf("encode page %d: %w", page, err)
	}

	raw, err := v.model.Vision(ctx, system, fmt.Sprintf("Transcribe page %d.", page), uri)
	if err != nil {
		return Transcription{}, fmt.Errorf("transcribe page %d: %w", page, err)
	}

	t, err := formatting.Parse[Transcription](raw)
	if err != nil {
		return Transcription{}, fmt.Errorf("parse page %d transcription: %w", page, err)
	}
	t.Confidence = clamp(t.Confidence)
	return t, nil
}
