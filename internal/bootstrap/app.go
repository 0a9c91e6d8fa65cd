package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/middleware"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
	"gitlab.com/kalkoapp/api/kalko-edge-service/pkg/safego"
)

// NOTE: The App struct and NewApp function are defined in providers.go for Wire.
// This file should only contain methods for the App struct, like Run().

// Run starts the application, listens for HTTP requests, and handles graceful shutdown.
func (a *App) Run(ctx context.Context) error {
	version := "unknown"
	serviceName := "kalko-edge-service"
	if a.configProvider != nil && a.configProvider.Get() != nil {
		configApp := a.configProvider.Get().App
		if configApp.Version != "" {
			version = configApp.Version
		}
		if configApp.ServiceName != "" {
			serviceName = configApp.ServiceName
		}
	}
	a.logger.Info(ctx, "Starting application", "service_name", serviceName, "version", version)

	a.registerOperationalRoutes()
	a.registerServiceRoutes(ctx)
	a.startRecalculationChannel(ctx)

	safego.Execute(ctx, a.logger, "SignalListenerAndGracefulShutdown", func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-quit:
			a.logger.Info(context.Background(), "Shutdown signal received, initiating graceful shutdown...", "signal", sig.String())
		case <-ctx.Done():
			a.logger.Info(context.Background(), "Application context cancelled, initiating graceful shutdown...")
		}

		shutdownTimeout := 30 * time.Second
		if a.configProvider != nil && a.configProvider.Get() != nil {
			configApp := a.configProvider.Get().App
			if configApp.ShutdownTimeoutSeconds > 0 {
				shutdownTimeout = time.Duration(configApp.ShutdownTimeoutSeconds) * time.Second
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if a.channelManager != nil {
			a.logger.Info(context.Background(), "Disconnecting recalculation channel...")
			a.channelManager.Disconnect()
		}

		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error(context.Background(), "HTTP server graceful shutdown failed", "error", err.Error())
		}
		a.logger.Info(context.Background(), "HTTP server shut down.")
	})

	a.logger.Info(ctx, fmt.Sprintf("HTTP server listening on port %d", a.configProvider.Get().Server.HTTPPort))
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error(ctx, "HTTP server ListenAndServe error", "error", err.Error())
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	a.logger.Info(ctx, "Application shut down gracefully or server closed.")
	return nil
}

// registerOperationalRoutes wires the probes and the metrics endpoint. These
// stay outside the session middleware.
func (a *App) registerOperationalRoutes() {
	healthHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"OK"}`)
	})
	a.httpServeMux.Handle("GET /health", middleware.RequestIDMiddleware(healthHandler))

	readyHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		ready := true
		dependenciesStatus := make(map[string]string)

		if a.redisClient != nil {
			if err := a.redisClient.Ping(r.Context()).Err(); err == nil {
				dependenciesStatus["redis"] = "connected"
			} else {
				dependenciesStatus["redis"] = "disconnected"
				ready = false
				a.logger.Warn(r.Context(), "Readiness check failed: Redis ping failed", "error", err.Error())
			}
		} else {
			dependenciesStatus["redis"] = "not_configured"
			ready = false
		}

		// The channel being down does not fail readiness: the polling fallback
		// keeps the status flowing. Its state is reported for operators.
		if a.channelManager != nil {
			dependenciesStatus["recalculation_channel"] = a.channelManager.State().String()
		} else {
			dependenciesStatus["recalculation_channel"] = "not_configured"
		}

		response := struct {
			Status       string            `json:"status"`
			Dependencies map[string]string `json:"dependencies"`
		}{
			Dependencies: dependenciesStatus,
		}

		if ready {
			response.Status = "READY"
			w.WriteHeader(http.StatusOK)
		} else {
			response.Status = "NOT_READY"
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		if err := json.NewEncoder(w).Encode(response); err != nil {
			a.logger.Error(r.Context(), "Failed to encode readiness response", "error", err.Error())
		}
	})
	a.httpServeMux.Handle("GET /ready", middleware.RequestIDMiddleware(readyHandler))

	a.httpServeMux.Handle("GET /metrics", middleware.RequestIDMiddleware(promhttp.Handler()))
}

// registerServiceRoutes wires the protected resource API, the dashboard
// WebSocket, and the public webhook/config endpoints.
func (a *App) registerServiceRoutes(ctx context.Context) {
	sessionAuth := func(next http.Handler) http.Handler { return a.sessionAuthMiddleware(next) }

	protected := http.NewServeMux()
	a.resourceHandlers.RegisterRoutes(protected)
	a.httpServeMux.Handle("/v1/", middleware.RequestIDMiddleware(sessionAuth(protected)))
	a.logger.Info(ctx, "Resource API registered under /v1/")

	a.wsRouter.RegisterRoutes(ctx, a.httpServeMux, middleware.RequestIDMiddleware, sessionAuth)

	a.httpServeMux.Handle("POST /webhooks/payment", middleware.RequestIDMiddleware(a.webhookProxy))
	a.logger.Info(ctx, "/webhooks/payment relay registered")

	a.httpServeMux.Handle("GET /config", middleware.RequestIDMiddleware(a.runtimeConfigHandler))
	a.logger.Info(ctx, "/config runtime config endpoint registered")
}

// startRecalculationChannel connects the upstream status channel and arms the
// polling fallback. A failed initial dial is not fatal: the fallback covers it
// and a later /ws subscriber still sees status movement.
func (a *App) startRecalculationChannel(ctx context.Context) {
	a.channelManager.SetUpdateHandler(func(updCtx context.Context, upd domain.RecalculationUpdate) {
		a.recalculationService.Apply(updCtx, upd)
	})

	authCfg := a.configProvider.Get().Auth
	token := authCfg.ServiceToken
	if token == "" {
		token = authCfg.DevFallbackToken
	}

	safego.Execute(ctx, a.logger, "RecalculationChannelConnect", func() {
		if _, err := a.channelManager.Connect(ctx, token); err != nil {
			a.logger.Warn(ctx, "Initial recalculation channel connect failed, relying on polling fallback", "error", err.Error())
		}
	})

	interval := time.Duration(a.configProvider.Get().Channel.PollFallbackIntervalSeconds) * time.Second
	a.recalculationService.StartPollingFallback(ctx, interval, a.channelManager.State, a.backendClient.GetRecalculationStatus)
}
