package normalize_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/JaimeStill/qbank/internal/normalize"
	"github.com/JaimeStill/qbank/internal/prompts"
)

type fakeVision struct {
	reply  string
	err    error
	system string
	image  string
}

func (f *fakeVision) Vision(_ context.Context, system, _ string, imageURI string) (string, error) {
	f.system = system
	f.image = imageURI
	return f.reply, f.err
}

type staticInstructions string

func (s staticInstructions) Instructions(_ context.Context, _ prompts.Stage) (string, error) {
	return string(s), nil
}

func TestVisionOCRTranscribe(t *testing.T) {
	t.Run("parses fenced reply and clamps confidence", func(t *testing.T) {
		model := &fakeVision{reply: "```json\n{\"text\":\"Q1. Define entropy.\",\"confidence\":1.4}\n```"}
		ocr := normalize.NewVisionOCR(model, staticInstructions("Transcribe carefully."))

		got, err := ocr.Transcribe(context.Background(), 2, []byte("\x89PNG fake"))
		if err != nil {
			t.Fatalf("Transcribe error: %v", err)
		}
		if got.Text != "Q1. Define entropy." {
			t.Errorf("text = %q", got.Text)
		}
		if got.Confidence != 1 {
			t.Errorf("confidence = %v, want 1", got.Confidence)
		}
		if !strings.HasPrefix(model.system, "Transcribe carefully.") {
			t.Errorf("system prompt = %q, want instructions first", model.system)
		}
		if !strings.HasPrefix(model.image, "data:image/png;base64,") {
			t.Errorf("image uri = %q", model.image)
		}
	})

	t.Run("model failure is returned", func(t *testing.T) {
		boom := errors.New("rate limited")
		ocr := normalize.NewVisionOCR(&fakeVision{err: boom}, staticInstructions("x"))

		_, err := ocr.Transcribe(context.Background(), 1, []byte("img"))
		if !errors.Is(err, boom) {
			t.Errorf("err = %v, want wrapped model error", err)
		}
	})

	t.Run("malformed reply is an error", func(t *testing.T) {
		ocr := normalize.NewVisionOCR(&fakeVision{reply: "I cannot read this page"}, staticInstructions("x"))

		if _, err := ocr.Transcribe(context.Background(), 1, []byte("img")); err == nil {
			t.Error("expected parse error")
		}
	})
}
