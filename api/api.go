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

// Package api serves a read-only JSON view of the budget manager over HTTP.
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
)

const DefaultListenAddress = ":8080"

type Config struct {
	ListenAddress string
	// Clock overrides the time source used for proposal establishment
	Clock func() time.Time
}

// Server is the HTTP query server
type Server struct {
	config     Config
	logger     *slog.Logger
	gov        Governance
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
}

func New(cfg Config, gov Governance, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Server{
		config: cfg,
		logger: logger.With("component", "api"),
		gov:    gov,
	}
}

func (s *Server) now() time.Time {
	return s.config.Clock()
}

// Handler returns the request router
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/proposals", s.handleProposals)
	mux.HandleFunc("GET /api/v1/proposals/{id}", s.handleProposal)
	mux.HandleFunc("GET /api/v1/budget", s.handleBudget)
	mux.HandleFunc("GET /api/v1/finalized", s.handleFinalizedBudgets)
	mux.HandleFunc("GET /api/v1/finalized/{hash}", s.handleFinalizedBudget)
	mux.HandleFunc("GET /api/v1/payee/{height}", s.handlePayee)
	return mux
}

// Start binds the listen address and serves in the background until ctx is
// cancelled or Stop is called
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return errors.New("server already started")
	}
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen for API server: %w", err)
	}
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 60 * time.Second,
	}
	s.httpServer = server
	s.listener = ln
	go func() {
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
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
			s.logger.Error("failed to shutdown API server", "error", err)
		}
	}()
	s.logger.Info("API listener started on " + ln.Addr().String())
	return nil
}

// Addr returns the bound listen address, or nil when not started
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.listener = nil
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
