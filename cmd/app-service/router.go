// cmd/app-service/router.go
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"storeapp/internal/manifest"
	"storeapp/internal/policy"
	"storeapp/internal/register"
	"storeapp/internal/ui"
	"storeapp/internal/webhooks"
	"storeapp/pkg/apl"
	"storeapp/pkg/config"
	"storeapp/pkg/middleware"
	"storeapp/pkg/platform"
)

// deps is everything the router needs; the APL instance is created once in
// main and shared by registration and webhook handling.
type deps struct {
	cfg      config.Config
	log      *zap.SugaredLogger
	store    apl.APL
	platform *platform.Client
	admit    *policy.Admission
	def      manifest.Definition
}

func newRouter(d deps) (chi.Router, error) {
	subs, err := webhooks.NewRegistry(
		webhooks.OrderCreated(d.log),
		webhooks.AppDeleted(d.store, d.log),
	)
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recover(d.log))
	router.Use(middleware.AccessLog(d.log))
	router.Use(middleware.CORS(d.cfg.CORSAllowedOrigins))
	router.Use(middleware.Tracing("storeapp", d.log))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	router.Get("/readyz", readiness(d.store))
	router.Get("/metrics", promhttp.Handler().ServeHTTP)

	manifest.RegisterRoutes(router, d.def, subs.Declarations(), d.log)
	register.NewRegistrar(d.store, d.platform, d.admit, d.log).RegisterRoutes(router)
	webhooks.NewGateway(d.store, subs, d.platform, d.log).RegisterRoutes(router)
	ui.RegisterRoutes(router, d.def.Name, d.log)
	return router, nil
}

func readiness(store apl.APL) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		status := map[string]any{"ready": true}
		code := http.StatusOK
		if res := store.IsConfigured(ctx); !res.Configured {
			status = map[string]any{"ready": false, "reason": reason(res.Reason, "not configured")}
			code = http.StatusServiceUnavailable
		} else if res := store.IsReady(ctx); !res.Ready {
			status = map[string]any{"ready": false, "reason": reason(res.Reason, "not ready")}
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}

func reason(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}
