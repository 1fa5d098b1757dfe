package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	EnvLLMBaseURL     = "QBANK_LLM_BASE_URL"
	EnvLLMAPIKey      = "QBANK_LLM_API_KEY"
	EnvLLMModel       = "QBANK_LLM_MODEL"
	EnvLLMVisionModel = "QBANK_LLM_VISION_MODEL"
	EnvLLMTemperature = "QBANK_LLM_TEMPERATURE"
)

// LLMConfig configures the OpenAI-compatible endpoint used for question
// classification and scanned-page transcription.
type LLMConfig struct {
	BaseURL     string   `toml:"base_url"`
	APIKey      string   `toml:"api_key"`
	Model       string   `toml:"model"`
	VisionModel string   `toml:"vision_model"`
	Temperature *float32 `toml:"temperature"`
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *LLMConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *LLMConfig) Merge(overlay *LLMConfig) {
	if overlay.BaseURL != "" {
		c.BaseURL = overlay.BaseURL
	}
	if overlay.APIKey != "" {
		c.APIKey = overlay.APIKey
	}
	if overlay.Model != "" {
		c.Model = overlay.Model
	}
	if overlay.VisionModel != "" {
		c.VisionModel = overlay.VisionModel
	}
	if overlay.Temperature != nil {
		c.Temperature = overlay.Temperature
	}
}

// TemperatureValue returns the configured sampling temperature.
func (c *LLMConfig) TemperatureValue() float32 {
	if c.Temperature == nil {
		return 0.1
	}
	return *c.Temperature
}

func (c *LLMConfig) loadDefaults() {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.VisionModel == "" {
		c.VisionModel = c.Model
	}
}

func (c *LLMConfig) loadEnv() {
	if v := os.Getenv(EnvLLMBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvLLMAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvLLMModel); v != "" {
		c.Model = v
	}
	if v := os.Getenv(EnvLLMVisionModel); v != "" {
		c.VisionModel = v
	}
	if v := os.Getenv(EnvLLMTemperature); v != "" {
		if t, err := strconv.ParseFloat(v, 32); err == nil {
			temp := float32(t)
			c.Temperature = &temp
		}
	}
}

func (c *LLMConfig) validate() error {
	if c.Model == "" {
		return fmt.Errorf("model required")
	}
	if t := c.TemperatureValue(); t < 0 || t > 2 {
		return fmt.Errorf("temperature must be within [0, 2]: %v", t)
	}
	return nil
}
