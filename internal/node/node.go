// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/blinklabs-io/daogov/api"
	"github.com/blinklabs-io/daogov/internal/config"
)

// Run opens a session and serves the REST API and metrics until SIGINT or
// SIGTERM
func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", redacted(cfg)), "component", "node")

	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	tracerProvider, tracingShutdown, err := setupTracing(signalCtx, cfg)
	if err != nil {
		return err
	}
	session, err := Open(signalCtx, cfg, SessionOptions{
		Logger:         logger,
		PromRegistry:   prometheus.DefaultRegisterer,
		TracerProvider: tracerProvider,
	})
	if err != nil {
		_ = tracingShutdown(context.Background())
		return err
	}

	apiServer := api.New(
		api.ApiConfig{ListenAddress: cfg.ApiAddress()},
		session.Governance(),
		logger,
	)
	// Metrics and debug listener
	http.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddress(),
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(signalCtx)
	g.Go(func() error {
		return apiServer.Start(gctx)
	})
	g.Go(func() error {
		logger.Info(
			"serving prometheus metrics on "+cfg.MetricsAddress(),
			"component", "node",
		)
		if err := metricsServer.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics listener: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		//nolint:contextcheck
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			cfg.ShutdownTimeout,
		)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	<-gctx.Done()
	if signalCtx.Err() != nil {
		logger.Info("signal received, initiating graceful shutdown", "component", "node")
	}
	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.ShutdownTimeout,
	)
	defer cancel()
	var stopErr error
	if err := apiServer.Stop(shutdownCtx); err != nil {
		stopErr = errors.Join(stopErr, err)
	}
	if err := session.Close(shutdownCtx); err != nil {
		stopErr = errors.Join(stopErr, err)
	}
	if err := tracingShutdown(shutdownCtx); err != nil {
		stopErr = errors.Join(stopErr, err)
	}
	if stopErr != nil {
		logger.Error("shutdown errors occurred", "component", "node", "error", stopErr)
	}
	if runErr != nil {
		return runErr
	}
	logger.Info("shutdown complete", "component", "node")
	return stopErr
}

// redacted returns a copy of the config safe to log
func redacted(cfg *config.Config) config.Config {
	ret := *cfg
	for _, v := range []*string{&ret.IndexerApiKey, &ret.ElectionApiKey, &ret.IpfsApiKey} {
		if *v != "" {
			*v = "REDACTED"
		}
	}
	return ret
}
