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

// Package api serves the governance session over REST.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/netutil"
)

const (
	DefaultListenAddress  = ":8080"
	DefaultMaxConnections = 256
)

type ApiConfig struct {
	ListenAddress string
	// HandleRetention is how long settled jobs and sequences stay
	// observable
	HandleRetention time.Duration
	// MaxConnections bounds concurrent client connections
	MaxConnections int
}

// Server is the REST API server
type Server struct {
	config     ApiConfig
	logger     *slog.Logger
	gov        Governance
	handles    *registry
	httpServer *http.Server
	mu         sync.Mutex
}

// New creates a new API server instance
func New(
	cfg ApiConfig,
	gov Governance,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.New(
			slog.NewJSONHandler(io.Discard, nil),
		)
	}
	logger = logger.With("component", "api")
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.HandleRetention <= 0 {
		cfg.HandleRetention = DefaultHandleRetention
	}
	return &Server{
		config:  cfg,
		logger:  logger,
		gov:     gov,
		handles: newRegistry(cfg.HandleRetention),
	}
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc(
		"GET /api/v0/proposals",
		s.handleListProposals,
	)
	mux.HandleFunc(
		"POST /api/v0/proposals",
		s.handleCreateProposal,
	)
	mux.HandleFunc(
		"GET /api/v0/proposals/{plugin}/{id}",
		s.handleGetProposal,
	)
	mux.HandleFunc(
		"POST /api/v0/proposals/{plugin}/{id}/votes",
		s.handleVote,
	)
	mux.HandleFunc(
		"POST /api/v0/proposals/{plugin}/{id}/execute",
		s.handleExecute,
	)
	mux.HandleFunc(
		"POST /api/v0/gasless",
		s.handleCreateGasless,
	)
	mux.HandleFunc(
		"GET /api/v0/jobs/{id}",
		s.handleGetJob,
	)
	mux.HandleFunc(
		"POST /api/v0/jobs/{id}/{action}",
		s.handleJobAction,
	)
	mux.HandleFunc(
		"GET /api/v0/sequences/{id}",
		s.handleGetSequence,
	)
	mux.HandleFunc(
		"POST /api/v0/sequences/{id}/retry",
		s.handleRetrySequence,
	)
	return mux
}

// Start starts the HTTP server in a background goroutine
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	server := &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 60 * time.Second,
	}
	s.httpServer = server
	s.mu.Unlock()

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		s.mu.Lock()
		s.httpServer = nil
		s.mu.Unlock()
		return fmt.Errorf("failed to listen for API server: %w", err)
	}
	ln = netutil.LimitListener(ln, s.config.MaxConnections)
	go func() {
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(
				"API server error",
				"error", err,
			)
		}
	}()
	s.logger.Info(
		"API listener started",
		"address", ln.Addr().String(),
	)

	go func() {
		<-ctx.Done()
		//nolint:contextcheck
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			30*time.Second,
		)
		defer cancel()
		//nolint:contextcheck
		if err := s.Stop(shutdownCtx); err != nil {
			s.logger.Error(
				"failed to shutdown API server on context cancellation",
				"error", err,
			)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Debug("shutting down API server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown API server: %w", err)
	}
	return nil
}
