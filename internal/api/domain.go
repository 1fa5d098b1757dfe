package api

import (
	"github.com/JaimeStill/qbank/internal/analytics"
	"github.com/JaimeStill/qbank/internal/config"
	"github.com/JaimeStill/qbank/internal/papers"
	"github.com/JaimeStill/qbank/internal/prompts"
	"github.com/JaimeStill/qbank/internal/questions"
	"github.com/JaimeStill/qbank/internal/review"
	"github.com/JaimeStill/qbank/internal/units"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Analytics analytics.System
	Papers    papers.System
	Prompts   prompts.System
	Questions questions.System
	Review    review.System
	Units     units.System
}

// NewDomain creates all domain systems from the API runtime.
func NewDomain(cfg *config.Config, runtime *Runtime) *Domain {
	db := runtime.Database.Connection()

	thresholds := review.Thresholds{
		LowConfidence:   cfg.Pipeline.LowConfidenceThreshold,
		AmbiguityMargin: cfg.Pipeline.AmbiguityMargin,
		PageConfidence:  cfg.Pipeline.OCRReviewThreshold,
	}

	return &Domain{
		Analytics: analytics.New(db, runtime.Logger),
		Papers:    papers.New(db, runtime.Storage, runtime.Jobs, runtime.Logger, runtime.Pagination),
		Prompts:   prompts.New(db, runtime.Logger, runtime.Pagination),
		Questions: questions.New(db, runtime.Logger, runtime.Pagination),
		Review:    review.New(db, thresholds, runtime.Logger, runtime.Pagination),
		Units:     units.New(db, runtime.Logger),
	}
}
