package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvPipelineLowConfidence = "QBANK_PIPELINE_LOW_CONFIDENCE_THRESHOLD"
	EnvPipelineAmbiguity     = "QBANK_PIPELINE_AMBIGUITY_MARGIN"
	EnvPipelineDuplicate     = "QBANK_PIPELINE_DUPLICATE_THRESHOLD"
	EnvPipelineOCRConfidence = "QBANK_PIPELINE_OCR_CONFIDENCE_THRESHOLD"
	EnvPipelineOCRReview     = "QBANK_PIPELINE_OCR_REVIEW_THRESHOLD"
	EnvPipelineWorkerCount   = "QBANK_PIPELINE_WORKER_COUNT"
	EnvPipelineClassifyRetry = "QBANK_PIPELINE_CLASSIFY_RETRIES"
	EnvPipelineClassifyTime  = "QBANK_PIPELINE_CLASSIFY_TIMEOUT"
	EnvPipelineRetryBackoff  = "QBANK_PIPELINE_RETRY_BACKOFF"
)

// PipelineConfig holds the thresholds and limits of the processing pipeline.
type PipelineConfig struct {
	LowConfidenceThreshold float64 `toml:"low_confidence_threshold"`
	AmbiguityMargin        float64 `toml:"ambiguity_margin"`
	DuplicateThreshold     float64 `toml:"duplicate_threshold"`
	OCRConfidenceThreshold float64 `toml:"ocr_confidence_threshold"`
	OCRReviewThreshold     float64 `toml:"ocr_review_threshold"`
	WorkerCount            int     `toml:"worker_count"`
	ClassifyRetries        int     `toml:"classify_retries"`
	ClassifyTimeout        string  `toml:"classify_timeout"`
	RetryBackoff           string  `toml:"retry_backoff"`
}

// ClassifyTimeoutDuration returns ClassifyTimeout as a time.Duration.
func (c *PipelineConfig) ClassifyTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ClassifyTimeout)
	return d
}

// RetryBackoffDuration returns RetryBackoff as a time.Duration.
func (c *PipelineConfig) RetryBackoffDuration() time.Duration {
	d, _ := time.ParseDuration(c.RetryBackoff)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *PipelineConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *PipelineConfig) Merge(overlay *PipelineConfig) {
	if overlay.LowConfidenceThreshold != 0 {
		c.LowConfidenceThreshold = overlay.LowConfidenceThreshold
	}
	if overlay.AmbiguityMargin != 0 {
		c.AmbiguityMargin = overlay.AmbiguityMargin
	}
	if overlay.DuplicateThreshold != 0 {
		c.DuplicateThreshold = overlay.DuplicateThreshold
	}
	if overlay.OCRConfidenceThreshold != 0 {
		c.OCRConfidenceThreshold = overlay.OCRConfidenceThreshold
	}
	if overlay.OCRReviewThreshold != 0 {
		c.OCRReviewThreshold = overlay.OCRReviewThreshold
	}
	if overlay.WorkerCount != 0 {
		c.WorkerCount = overlay.WorkerCount
	}
	if overlay.ClassifyRetries != 0 {
		c.ClassifyRetries = overlay.ClassifyRetries
	}
	if overlay.ClassifyTimeout != "" {
		c.ClassifyTimeout = overlay.ClassifyTimeout
	}
	if overlay.RetryBackoff != "" {
		c.RetryBackoff = overlay.RetryBackoff
	}
}

func (c *PipelineConfig) loadDefaults() {
	if c.LowConfidenceThreshold == 0 {
		c.LowConfidenceThreshold = 0.7
	}
	if c.AmbiguityMargin == 0 {
		c.AmbiguityMargin = 0.05
	}
	if c.DuplicateThreshold == 0 {
		c.DuplicateThreshold = 0.85
	}
	if c.OCRConfidenceThreshold == 0 {
		c.OCRConfidenceThreshold = 0.4
	}
	if c.OCRReviewThreshold == 0 {
		c.OCRReviewThreshold = 0.6
	}
	if c.WorkerCount == 0 {
		c.WorkerCount = 4
	}
	if c.ClassifyRetries == 0 {
		c.ClassifyRetries = 3
	}
	if c.ClassifyTimeout == "" {
		c.ClassifyTimeout = "30s"
	}
	if c.RetryBackoff == "" {
		c.RetryBackoff = "500ms"
	}
}

func (c *PipelineConfig) loadEnv() {
	floats := map[string]*float64{
		EnvPipelineLowConfidence: &c.LowConfidenceThreshold,
		EnvPipelineAmbiguity:     &c.AmbiguityMargin,
		EnvPipelineDuplicate:     &c.DuplicateThreshold,
		EnvPipelineOCRConfidence: &c.OCRConfidenceThreshold,
		EnvPipelineOCRReview:     &c.OCRReviewThreshold,
	}
	for key, dst := range floats {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	if v := os.Getenv(EnvPipelineWorkerCount); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.WorkerCount = n
		}
	}
	if v := os.Getenv(EnvPipelineClassifyRetry); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ClassifyRetries = n
		}
	}
	if v := os.Getenv(EnvPipelineClassifyTime); v != "" {
		c.ClassifyTimeout = v
	}
	if v := os.Getenv(EnvPipelineRetryBackoff); v != "" {
		c.RetryBackoff = v
	}
}

func (c *PipelineConfig) validate() error {
	unit := map[string]float64{
		"low_confidence_threshold": c.LowConfidenceThreshold,
		"ambiguity_margin":         c.AmbiguityMargin,
		"duplicate_threshold":      c.DuplicateThreshold,
		"ocr_confidence_threshold": c.OCRConfidenceThreshold,
		"ocr_review_threshold":     c.OCRReviewThreshold,
	}
	for name, v := range unit {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1]: %v", name, v)
		}
	}
	if c.OCRReviewThreshold < c.OCRConfidenceThreshold {
		return fmt.Errorf("ocr_review_threshold cannot be below ocr_confidence_threshold")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("worker_count must be positive")
	}
	if c.ClassifyRetries < 1 {
		return fmt.Errorf("classify_retries must be positive")
	}
	if _, err := time.ParseDuration(c.ClassifyTimeout); err != nil {
		return fmt.Errorf("invalid classify_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.RetryBackoff); err != nil {
		return fmt.Errorf("invalid retry_backoff: %w", err)
	}
	return nil
}
