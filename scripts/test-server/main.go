// Command test-server runs an in-memory TMS service for local load tests.
// It accepts the client described by the same X_TMS_* variables the load
// generator reads.
package main

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/tmsproject/tms-loadtest/internal/config"
	"github.com/tmsproject/tms-loadtest/internal/tms/tmstest"
)

func main() {
	addr := pflag.String("addr", ":8080", "Listen address")
	latency := pflag.Duration("latency", 0, "Delay added to every response")
	version := pflag.String("version", "1.0.0", "Version reported by /v1/tms/version")
	pflag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	env, err := config.NewViperEnvironment()
	if err != nil {
		logger.Fatal("failed to read environment", zap.Error(err))
	}
	cfg := config.NewLoader(env).Load()

	clients := make(map[string]tmstest.Client)
	if id, ok := cfg.Lookup(config.KeyClientID); ok {
		tenant, _ := cfg.Lookup(config.KeyTenant)
		secret, _ := cfg.Lookup(config.KeyClientSecret)
		clients[id] = tmstest.Client{Tenant: tenant, Secret: secret}
	} else {
		logger.Warn("no client registered, only the version endpoint will succeed", zap.String("env", config.EnvClientID))
	}

	// Configure server for high throughput
	server := &http.Server{
		Addr:              *addr,
		Handler:           tmstest.NewHandler(*version, clients, *latency),
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5*time.Second + *latency,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 2 * time.Second,
	}

	logger.Info("starting TMS test server",
		zap.String("addr", *addr),
		zap.Int("cpus", runtime.NumCPU()),
		zap.Duration("latency", *latency),
		zap.Object("config", cfg),
	)

	if err := server.ListenAndServe(); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}
