package main

import (
	"encoding/json"
	"net/http"

	"github.com/JaimeStill/qbank/internal/api"
	"github.com/JaimeStill/qbank/internal/config"
	"github.com/JaimeStill/qbank/internal/infrastructure"
	"github.com/JaimeStill/qbank/internal/jobs"
	"github.com/JaimeStill/qbank/pkg/module"
)

type Modules struct {
	API    *module.Module
	Worker *jobs.Worker
}

func NewModules(infra *infrastructure.Infrastructure, cfg *config.Config) *Modules {
	runtime := api.NewRuntime(cfg, infra)
	domain := api.NewDomain(cfg, runtime)

	return &Modules{
		API:    api.NewModule(cfg, runtime, domain),
		Worker: api.NewWorker(cfg, runtime, domain),
	}
}

func (m *Modules) Mount(router *module.Router) {
	router.Mount(m.API)
}

func buildRouter(infra *infrastructure.Infrastructure) *module.Router {
	router := module.NewRouter()

	router.HandleNative("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	router.HandleNative("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !infra.Lifecycle.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})

	return router
}
