// Package gateway is the HTTP ingestion surface.
//
// Every ingest request is authenticated by X-Relay-Key, admitted by a
// per-credential token bucket, bounded by byte length before parsing and
// then handed to the engine. Over-capacity requests are rejected with 429,
// never queued.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/roach88/sheetrelay/internal/engine"
)

const (
	// DefaultMaxBodyBytes bounds a request body before it is parsed.
	DefaultMaxBodyBytes = 1 << 20

	// DefaultMaxRecords bounds the records of one request.
	DefaultMaxRecords = 1000

	// DefaultRatePerSecond is the bucket refill rate per credential.
	DefaultRatePerSecond = 10

	// DefaultBurst is the bucket capacity per credential.
	DefaultBurst = 20

	// DefaultMaxLimiters bounds the number of per-credential buckets held.
	DefaultMaxLimiters = 10000

	headerKey   = "X-Relay-Key"
	headerProof = "X-Relay-Proof"
)

// Config holds configuration for the gateway.
type Config struct {
	Addr string

	// Keys is the set of accepted credentials. When empty, any non-empty
	// key is accepted.
	Keys []string

	RatePerSecond float64
	Burst         int
	MaxBodyBytes  int64
	MaxRecords    int

	// MaxLimiters bounds the per-credential buckets. Once reached, unseen
	// credentials share a single overflow bucket.
	MaxLimiters int

	// StrictRequired rejects records with missing required fields.
	StrictRequired bool

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = DefaultRatePerSecond
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.MaxRecords <= 0 {
		c.MaxRecords = DefaultMaxRecords
	}
	if c.MaxLimiters <= 0 {
		c.MaxLimiters = DefaultMaxLimiters
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Server serves the gateway routes over an engine.
type Server struct {
	engine *engine.Engine
	cfg    Config
	keys   map[string]bool
	logger *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	overflow *rate.Limiter
	now      func() time.Time
}

// NewServer creates a gateway server.
func NewServer(eng *engine.Engine, cfg Config) *Server {
	cfg = cfg.withDefaults()
	keys := make(map[string]bool, len(cfg.Keys))
	for _, k := range cfg.Keys {
		if k != "" {
			keys[k] = true
		}
	}
	if len(keys) == 0 {
		// Rotating keys gets a fresh bucket per key until MaxLimiters is
		// reached; after that new keys share the overflow bucket.
		cfg.Logger.Warn("gateway accepts any credential; no keys configured",
			"max_limiters", cfg.MaxLimiters)
	}
	return &Server{
		engine:   eng,
		cfg:      cfg,
		keys:     keys,
		logger:   cfg.Logger,
		limiters: make(map[string]*rate.Limiter),
		overflow: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		now:      time.Now,
	}
}

// Handler returns the chi router with every gateway route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		s.logRequests,
	)

	r.Get("/health", s.handleHealth)
	r.Get("/debug/state-hashes", s.handleStateHashes)
	r.Post("/ingest", s.handleIngest)
	return r
}

// Serve starts the gateway and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting gateway", "addr", s.cfg.Addr)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down gateway")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// limiter returns the token bucket for a credential, creating it on first
// use. When the table is full, buckets that have refilled completely are
// dropped (a fresh bucket behaves the same); if none can be dropped the
// credential is served by the shared overflow bucket.
func (s *Server) limiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.limiters[key]; ok {
		return l
	}
	if len(s.limiters) >= s.cfg.MaxLimiters {
		s.sweepLimiters()
	}
	if len(s.limiters) >= s.cfg.MaxLimiters {
		return s.overflow
	}
	l := rate.NewLimiter(rate.Limit(s.cfg.RatePerSecond), s.cfg.Burst)
	s.limiters[key] = l
	return l
}

// sweepLimiters drops full buckets. Callers hold s.mu.
func (s *Server) sweepLimiters() {
	now := s.now()
	for key, l := range s.limiters {
		if l.TokensAt(now) >= float64(s.cfg.Burst) {
			delete(s.limiters, key)
		}
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
