package api

import (
	"github.com/JaimeStill/qbank/internal/classify"
	"github.com/JaimeStill/qbank/internal/config"
	"github.com/JaimeStill/qbank/internal/dedup"
	"github.com/JaimeStill/qbank/internal/jobs"
	"github.com/JaimeStill/qbank/internal/normalize"
	"github.com/JaimeStill/qbank/internal/pipeline"
)

// NewWorker composes the processing pipeline from the domain systems and
// returns the queue worker that runs it.
func NewWorker(cfg *config.Config, runtime *Runtime, domain *Domain) *jobs.Worker {
	logger := runtime.Logger.With("module", "worker")

	normalizer := normalize.New(
		runtime.Storage,
		normalize.NewVisionOCR(runtime.LLM, domain.Prompts),
		normalize.ImageMagickRenderer{},
		normalize.Options{
			MinOCRConfidence: cfg.Pipeline.OCRConfidenceThreshold,
			Workers:          cfg.Pipeline.WorkerCount,
			Retries:          cfg.Pipeline.ClassifyRetries,
			Timeout:          cfg.Pipeline.ClassifyTimeoutDuration(),
			Backoff:          cfg.Pipeline.RetryBackoffDuration(),
		},
		logger,
	)

	engine := classify.NewEngine(
		classify.NewModelClassifier(runtime.LLM, domain.Prompts),
		classify.Config{
			Retries: cfg.Pipeline.ClassifyRetries,
			Timeout: cfg.Pipeline.ClassifyTimeoutDuration(),
			Backoff: cfg.Pipeline.RetryBackoffDuration(),
		},
		logger,
	)

	orchestrator := pipeline.New(
		pipeline.Runtime{
			Papers:     domain.Papers,
			Normalizer: normalizer,
			Classifier: engine,
			Units:      domain.Units,
			Questions:  domain.Questions,
			Router:     domain.Review,
			Locks:      dedup.NewLocks(),
			Logger:     logger,
		},
		pipeline.Config{
			Workers:            cfg.Pipeline.WorkerCount,
			DuplicateThreshold: cfg.Pipeline.DuplicateThreshold,
			Lease:              cfg.Queue.TimeoutDuration(),
		},
	)

	return jobs.NewWorker(
		jobs.RedisOpt(&cfg.Queue),
		jobs.OptionsFromConfig(&cfg.Queue),
		orchestrator,
		domain.Papers,
		logger,
	)
}
