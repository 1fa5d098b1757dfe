// Package jobs dispatches paper processing attempts through a Redis-backed
// asynq queue and runs them on a worker server.
//
// Each attempt is one task whose ID is derived from the paper and attempt
// number, so enqueueing the same attempt twice coalesces into one task.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/JaimeStill/qbank/internal/config"
)

// TypeProcessPaper is the task type of a paper processing attempt.
const TypeProcessPaper = "paper:process"

// Payload identifies the attempt a task runs.
type Payload struct {
	PaperID int64 `json:"paper_id"`
	Attempt int   `json:"attempt"`
}

// Options configures task scheduling.
type Options struct {
	Queue       string
	Concurrency int
	MaxRetry    int
	Timeout     time.Duration
}

// OptionsFromConfig derives Options from the queue configuration.
func OptionsFromConfig(cfg *config.QueueConfig) Options {
	return Options{
		Queue:       cfg.Name,
		Concurrency: cfg.Concurrency,
		MaxRetry:    cfg.MaxRetry,
		Timeout:     cfg.TimeoutDuration(),
	}
}

// RedisOpt builds the asynq Redis connection from the queue configuration.
func RedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// TaskID returns the unique task ID of an attempt.
func TaskID(paperID int64, attempt int) string {
	return fmt.Sprintf("paper:%d:%d", paperID, attempt)
}

// NewTask creates the processing task of an attempt.
func NewTask(paperID int64, attempt int) (*asynq.Task, error) {
	data, err := json.Marshal(Payload{PaperID: paperID, Attempt: attempt})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TypeProcessPaper, data), nil
}

// ParsePayload decodes the payload of a processing task.
func ParsePayload(t *asynq.Task) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("decode payload: %w", err)
	}
	if p.PaperID <= 0 || p.Attempt <= 0 {
		return p, fmt.Errorf("invalid payload: paper %d attempt %d", p.PaperID, p.Attempt)
	}
	return p, nil
}
