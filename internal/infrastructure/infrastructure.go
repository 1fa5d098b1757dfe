// Package infrastructure provides core service initialization for application startup.
// It assembles common dependencies (logging, database, storage, model client,
// job queue) that domain systems require.
package infrastructure

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/JaimeStill/qbank/internal/config"
	"github.com/JaimeStill/qbank/internal/jobs"
	"github.com/JaimeStill/qbank/internal/llm"
	"github.com/JaimeStill/qbank/pkg/database"
	"github.com/JaimeStill/qbank/pkg/lifecycle"
	"github.com/JaimeStill/qbank/pkg/storage"
)

// Infrastructure holds the core systems required by all domain modules.
// It provides a single point of initialization for lifecycle coordination,
// logging, database access, file storage, the model client, and the job queue.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Storage   storage.System
	LLM       *llm.Client
	Jobs      *jobs.Client
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	model := llm.New(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		VisionModel: cfg.LLM.VisionModel,
		Temperature: cfg.LLM.TemperatureValue(),
	}, logger)

	queue := jobs.Connect(jobs.RedisOpt(&cfg.Queue), jobs.OptionsFromConfig(&cfg.Queue), logger)

	return &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Database:  db,
		Storage:   store,
		LLM:       model,
		Jobs:      queue,
	}, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator.
// Database and storage hooks are registered for startup and shutdown coordination.
func (i *Infrastructure) Start() error {
	if err := i.Database.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("database start failed: %w", err)
	}
	if err := i.Storage.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("storage start failed: %w", err)
	}

	i.Lifecycle.OnShutdown(func() {
		<-i.Lifecycle.Context().Done()
		if err := i.Jobs.Close(); err != nil {
			i.Logger.Error("job queue close failed", "error", err)
		}
	})
	return nil
}
