// Package llm wraps an OpenAI-compatible chat completion API for the
// reasoning and transcription calls made by the pipeline.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// ErrNoChoices is returned when the API responds without a completion.
var ErrNoChoices = errors.New("model returned no choices")

// Config configures a Client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	VisionModel string
	Temperature float32
}

// Client sends JSON-mode chat completions.
type Client struct {
	api         *openai.Client
	model       string
	visionModel string
	temperature float32
	logger      *slog.Logger
}

// New creates a Client for an OpenAI-compatible endpoint.
func New(cfg Config, logger *slog.Logger) *Client {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	vision := cfg.VisionModel
	if vision == "" {
		vision = cfg.Model
	}

	return &Client{
		api:         openai.NewClientWithConfig(config),
		model:       cfg.Model,
		visionModel: vision,
		temperature: cfg.Temperature,
		logger:      logger.With("system", "llm"),
	}
}

// Complete sends a system and user message and returns the raw content of
// the first choice.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	return c.send(ctx, c.model, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: user},
	})
}

// Vision sends a system message and a user message carrying text and one
// image data URI to the vision model.
func (c *Client) Vision(ctx context.Context, system, user, imageURI string) (string, error) {
	return c.send(ctx, c.visionModel, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: user},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    imageURI,
						Detail: openai.ImageURLDetailHigh,
					},
				},
			},
		},
	})
}

func (c *Client) send(ctx context.Context, model string, messages []openai.ChatCompletionMessage) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	raw := resp.Choices[0].Message.Content
	c.logger.Debug("model response", "model", model, "tokens", resp.Usage.TotalTokens)
	return raw, nil
}
