package api

import (
	"net/http"

	"github.com/JaimeStill/qbank/internal/config"
	"github.com/JaimeStill/qbank/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	cfg *config.Config,
) {
	routes.Register(
		mux,
		domain.Papers.Handler(cfg.API.MaxUploadSizeBytes()).Routes(),
		domain.Questions.Handler().Routes(),
		domain.Review.Handler().Routes(),
		domain.Units.Handler().Routes(),
		domain.Prompts.Handler().Routes(),
		domain.Analytics.Handler().Routes(),
	)
}
