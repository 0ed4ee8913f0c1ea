// Package server exposes the calculator over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/szaher/sharkcalc/internal/auth"
	"github.com/szaher/sharkcalc/internal/calc"
	"github.com/szaher/sharkcalc/internal/service"
	"github.com/szaher/sharkcalc/internal/telemetry"
)

const surface = "http"

// Server is the HTTP front end of the calculator service.
type Server struct {
	svc       *service.Service
	mux       *http.ServeMux
	server    *http.Server
	logger    *slog.Logger
	limiter   *auth.RateLimiter // fixed by WithRateLimiter
	chain     atomic.Pointer[chain]
	apiKey    string
	version   string
	startTime time.Time
}

// chain is the auth and rate limit stack built for one rate limit
// setting.
type chain struct {
	source  auth.RateLimitConfig
	handler http.Handler
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithAPIKey sets the API key for authentication. Empty disables auth.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) { s.apiKey = key }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithRateLimiter replaces the limiter built from the service config. A
// fixed limiter is not rebuilt when the configuration is reloaded.
func WithRateLimiter(rl *auth.RateLimiter) ServerOption {
	return func(s *Server) { s.limiter = rl }
}

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// New creates a new HTTP server backed by svc.
func New(svc *service.Service, opts ...ServerOption) *Server {
	s := &Server{
		svc:       svc,
		logger:    slog.Default(),
		version:   "dev",
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /v1/functions", s.handleFunctions)
	mux.HandleFunc("POST /v1/calculate", s.handleCalculate)
	mux.HandleFunc("POST /v1/calculate/batch", s.handleBatch)
	mux.Handle("GET /metrics", svc.Metrics().Handler())

	s.mux = mux
	return s
}

// Handler returns the HTTP handler for use with httptest or custom servers.
func (s *Server) Handler() http.Handler {
	return s.requestMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.currentChain().handler.ServeHTTP(w, r)
	}))
}

// currentChain returns the auth and rate limit stack for the rate limit
// currently configured. A reload that changes server.rate_limit replaces
// the limiter, which also clears its per-client state.
func (s *Server) currentChain() *chain {
	want := s.svc.Config().Server.RateLimit
	c := s.chain.Load()
	if c != nil && (s.limiter != nil || c.source == want) {
		return c
	}

	rl := s.limiter
	if rl == nil {
		rl = auth.NewRateLimiter(want)
	}
	var h http.Handler = s.mux
	h = rl.Middleware(rateLimitKey)(h)
	h = auth.Middleware(s.apiKey, []string{"/healthz"}, rl)(h)
	next := &chain{source: want, handler: h}
	if !s.chain.CompareAndSwap(c, next) {
		return s.chain.Load()
	}
	if c != nil {
		s.logger.Info("rate limiter rebuilt",
			"requests_per_second", want.RequestsPerSecond,
			"burst", want.Burst,
		)
	}
	return next
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("server starting", "addr", addr, "auth", s.apiKey != "")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// rateLimitKey exempts health checks from rate limiting.
func rateLimitKey(r *http.Request) string {
	if r.URL.Path == "/healthz" {
		return ""
	}
	return auth.ClientIPKeyFunc(r)
}

// requestMiddleware assigns a correlation id, caps the body size and logs
// every request.
func (s *Server) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := telemetry.WithCorrelationID(r.Context(), r.Header.Get("X-Request-ID"))
		id := telemetry.CorrelationID(ctx)
		w.Header().Set("X-Request-ID", id)

		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.svc.Config().Server.MaxBodyBytes)
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"correlation_id", id,
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"uptime":    time.Since(s.startTime).String(),
		"functions": len(s.svc.Environment().FunctionNames()),
		"version":   s.version,
	})
}

type functionInfo struct {
	Name     string `json:"name"`
	MinArity int    `json:"min_arity"`
	MaxArity int    `json:"max_arity"`
	Doc      string `json:"doc,omitempty"`
}

type constantInfo struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func (s *Server) handleFunctions(w http.ResponseWriter, _ *http.Request) {
	env := s.svc.Environment()
	specs := env.Functions()
	functions := make([]functionInfo, len(specs))
	for i, f := range specs {
		functions[i] = functionInfo{Name: f.Name, MinArity: f.MinArity, MaxArity: f.MaxArity, Doc: f.Doc}
	}
	names := env.ConstantNames()
	constants := make([]constantInfo, len(names))
	for i, n := range names {
		v, _ := env.Constant(n)
		constants[i] = constantInfo{Name: n, Value: v}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"functions": functions,
		"constants": constants,
	})
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Expression == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "expression is required")
		return
	}

	res, err := s.svc.Calculate(r.Context(), surface, req.toCalc(req.Expression))
	if err != nil {
		body := newErrorBody(telemetry.CorrelationID(r.Context()), err)
		body.Expression = req.Expression
		writeJSON(w, statusFor(err), body)
		return
	}
	writeJSON(w, http.StatusOK, newResultBody(telemetry.CorrelationID(r.Context()), res))
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Expressions) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "expressions is required")
		return
	}

	reqs := make([]calc.Request, len(req.Expressions))
	for i, e := range req.Expressions {
		reqs[i] = req.toCalc(e)
	}

	items, err := s.svc.CalculateBatch(r.Context(), surface, reqs)
	if err != nil {
		if errors.Is(err, service.ErrBatchTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "batch_too_large", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	id := telemetry.CorrelationID(r.Context())
	results := make([]interface{}, len(items))
	failed := 0
	for i, item := range items {
		if item.Err != nil {
			failed++
			body := newErrorBody("", item.Err)
			body.Expression = item.Result.Expression
			results[i] = body
			continue
		}
		results[i] = newResultBody("", item.Result)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":        id,
		"results":   results,
		"succeeded": len(items) - failed,
		"failed":    failed,
	})
}

// statusFor maps an evaluation error to an HTTP status: 400 for guard
// rejections, 504 for timeouts and 422 for everything that failed while
// computing.
func statusFor(err error) int {
	switch {
	case calc.IsGuardFailure(err):
		return http.StatusBadRequest
	case errors.Is(err, calc.ErrTimeout):
		return http.StatusGatewayTimeout
	case calc.KindOf(err) != "":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request_too_large", "Request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
