// Package server exposes the four pipeline stages and a health check over
// HTTP, routed with go-chi/chi. Each stage is independently callable: the
// server composes domain objects and telemetry but holds no pipeline
// state of its own between requests.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/talktothecity/pipeline/pkg/claims"
	"github.com/talktothecity/pipeline/pkg/config"
	"github.com/talktothecity/pipeline/pkg/llm"
	"github.com/talktothecity/pipeline/pkg/telemetry"
)

// Server wires the pipeline stages to HTTP handlers. It holds the
// configuration and a default Completer built at construction; a
// per-request X-OpenAI-API-Key header overrides the configured cloud API
// key without reconstructing server state.
type Server struct {
	cfg       *config.Config
	modelMap  *config.ModelMapWatcher
	telemetry telemetry.Telemetry
	metrics   *telemetry.Metrics

	completers       *llm.Registry
	defaultCompleter llm.Completer
	claimsFilter     claims.Filter
	httpServer       *http.Server
}

// New builds a Server from a validated, defaulted configuration. modelMap
// may be nil (treated as llm.DefaultModelMap); tel may be nil (treated as
// telemetry.NoOp); metrics may be nil (no /metrics route is mounted).
//
// Every named provider under cfg.LLMs is built and registered up front
// (not just "default"), so a deployment running more than one backend
// fails fast at startup rather than on first use, and the health check
// can report which backends are live.
func New(cfg *config.Config, modelMap *config.ModelMapWatcher, tel telemetry.Telemetry, metrics *telemetry.Metrics) (*Server, error) {
	if tel == nil {
		tel = telemetry.NoOp{}
	}

	claimsFilter := claims.NewFilter(cfg.Claims.MinCharCount, cfg.Claims.MinWordCount)

	if _, ok := cfg.LLMs["default"]; !ok {
		return nil, fmt.Errorf("server: config has no \"default\" llm provider")
	}

	registry := llm.NewRegistry()
	for name, provider := range cfg.LLMs {
		completer, err := buildCompleter(provider, "")
		if err != nil {
			return nil, fmt.Errorf("server: build %q completer: %w", name, err)
		}
		if err := registry.RegisterCompleter(name, completer); err != nil {
			return nil, fmt.Errorf("server: register %q completer: %w", name, err)
		}
	}

	defaultCompleter, err := registry.GetCompleter("default")
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	return &Server{
		cfg:              cfg,
		modelMap:         modelMap,
		telemetry:        tel,
		metrics:          metrics,
		completers:       registry,
		defaultCompleter: defaultCompleter,
		claimsFilter:     claimsFilter,
	}, nil
}

// Start runs the HTTP server until ctx is cancelled, then gracefully
// shuts it down.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.cfg.Performance.RequestTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully stops the HTTP server, draining in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Address returns the host:port the server listens on.
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
}

// poolSize returns the configured worker-pool bound for Stages 2-4.
func (s *Server) poolSize() int {
	return s.cfg.Performance.WorkerPoolSize
}
