// cmd/app-service/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storeapp/internal/manifest"
	"storeapp/internal/policy"
	"storeapp/pkg/apl"
	"storeapp/pkg/config"
	"storeapp/pkg/logger"
	"storeapp/pkg/middleware"
	"storeapp/pkg/platform"
)

func main() {
	// 1. Configuration and logger.
	cfg := config.Load()
	appLog := logger.New(cfg.Env)
	defer func() { _ = appLog.Sync() }()

	ctx := context.Background()

	// 2. Credential store. An unknown or incomplete APL setting is fatal.
	store, closeStore, err := apl.New(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatalw("credential store", "mode", cfg.APL, "err", err)
	}
	defer closeStore()
	if all, err := store.GetAll(ctx); err == nil {
		appLog.Infow("installations loaded", "count", len(all))
	}

	// 3. Manifest definition and registration admission policy.
	def, err := manifest.DefinitionFromConfig(cfg)
	if err != nil {
		appLog.Fatalw("manifest definition", "err", err)
	}
	admit, err := policy.Load(ctx, cfg)
	if err != nil {
		appLog.Fatalw("registration policy", "err", err)
	}

	// 4. Router.
	router, err := newRouter(deps{
		cfg:      cfg,
		log:      appLog,
		store:    store,
		platform: platform.New(cfg.TenantHTTPTimeout),
		admit:    admit,
		def:      def,
	})
	if err != nil {
		appLog.Fatalw("router", "err", err)
	}

	// 5. Serve until SIGINT/SIGTERM.
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		appLog.Infow("app-service listening", "addr", cfg.HTTPAddr, "apl", cfg.APL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)
	<-stopCh

	// 6. Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = middleware.ShutdownTracing(shutdownCtx)
	appLog.Infow("app-service stopped")
}
