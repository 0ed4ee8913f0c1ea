// Package service wraps the calc evaluator with the configuration, logging,
// metrics and request deduplication shared by the HTTP and MCP surfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/szaher/sharkcalc/internal/calc"
	"github.com/szaher/sharkcalc/internal/config"
	"github.com/szaher/sharkcalc/internal/telemetry"
)

// ErrBatchTooLarge is returned when a batch exceeds the configured size.
var ErrBatchTooLarge = errors.New("batch too large")

// state is swapped as a unit on reload so a call never sees a config and
// an evaluator from different generations.
type state struct {
	generation uint64
	cfg        *config.Config
	evaluator  *calc.Evaluator
}

// Service evaluates expressions for every surface.
type Service struct {
	state   atomic.Pointer[state]
	gen     atomic.Uint64
	group   singleflight.Group
	metrics *telemetry.Metrics
	logger  *slog.Logger
	env     *calc.Environment
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithEnvironment replaces the default Safe Environment.
func WithEnvironment(env *calc.Environment) Option {
	return func(s *Service) { s.env = env }
}

// New creates a Service for cfg. A nil cfg uses config.Default().
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		env:    calc.DefaultEnvironment(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = telemetry.NewMetrics()
	}
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	s.state.Store(s.build(cfg))
	return s
}

func (s *Service) build(cfg *config.Config) *state {
	return &state{
		generation: s.gen.Add(1),
		cfg:        cfg,
		evaluator:  calc.New(
			calc.WithEnvironment(s.env),
			calc.WithLimits(cfg.Limits),
			calc.WithLogger(s.logger),
		),
	}
}

// Apply swaps in cfg. Evaluations already running finish under the old
// settings.
func (s *Service) Apply(cfg *config.Config) {
	s.state.Store(s.build(cfg))
	s.metrics.RecordReload(true)
	s.logger.Info("configuration applied",
		"max_length", cfg.Limits.MaxLength,
		"max_depth", cfg.Limits.MaxDepth,
		"max_calls", cfg.Limits.MaxCalls,
		"precision", cfg.Defaults.Precision,
		"timeout", cfg.Defaults.Timeout.String(),
	)
}

// ReloadFailed records a configuration reload that was rejected.
func (s *Service) ReloadFailed(err error) {
	s.metrics.RecordReload(false)
	s.logger.Warn("configuration reload failed", "error", err)
}

// Config returns the configuration currently in effect.
func (s *Service) Config() *config.Config {
	return s.state.Load().cfg
}

// Environment returns the Safe Environment used for evaluation.
func (s *Service) Environment() *calc.Environment {
	return s.env
}

// Metrics returns the metrics collector.
func (s *Service) Metrics() *telemetry.Metrics {
	return s.metrics
}

// Request builds a request for expr from the configured defaults.
func (s *Service) Request(expr string) calc.Request {
	return s.Config().Request(expr)
}

// Calculate evaluates req. Unset request fields take the configured
// defaults. Identical requests in flight at the same time share one
// evaluation.
func (s *Service) Calculate(ctx context.Context, surface string, req calc.Request) (calc.Result, error) {
	st := s.state.Load()
	req = fillDefaults(req, st.cfg)
	log := telemetry.RequestLogger(ctx, s.logger, surface)

	ch := s.group.DoChan(dedupeKey(st.generation, req), func() (any, error) {
		res, err := st.evaluator.Evaluate(context.WithoutCancel(ctx), req)
		return res, err
	})

	var (
		res calc.Result
		err error
	)
	select {
	case <-ctx.Done():
		res = calc.Result{Expression: req.Expression}
		err = calc.TimeoutError(ctx)
	case r := <-ch:
		res, _ = r.Val.(calc.Result)
		err = r.Err
		if r.Shared {
			s.metrics.RecordDeduplicated()
		}
	}

	outcome := "ok"
	if err != nil {
		outcome = string(calc.KindOf(err))
	}
	s.metrics.RecordEvaluation(surface, outcome, res.Duration, res.Report.Score)

	if err != nil {
		log.Info("calculation failed",
			"kind", outcome,
			"error", err.Error(),
			"duration_ms", res.Duration.Milliseconds(),
		)
		return res, err
	}
	log.Debug("calculation succeeded",
		"value", res.Value,
		"complexity", res.Report.Score,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// Item is one entry of a batch result.
type Item struct {
	Result calc.Result
	Err    error
}

// CalculateBatch evaluates reqs concurrently, bounded by the configured
// batch concurrency. Results are returned in input order; a failing
// expression does not stop the others.
func (s *Service) CalculateBatch(ctx context.Context, surface string, reqs []calc.Request) ([]Item, error) {
	cfg := s.Config()
	if len(reqs) > cfg.Batch.MaxItems {
		return nil, fmt.Errorf("%w: %d expressions, limit %d", ErrBatchTooLarge, len(reqs), cfg.Batch.MaxItems)
	}

	items := make([]Item, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Batch.Concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := s.Calculate(gctx, surface, req)
			items[i] = Item{Result: res, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

func fillDefaults(req calc.Request, cfg *config.Config) calc.Request {
	if req.Precision == nil {
		req = req.WithPrecision(cfg.Defaults.Precision)
	}
	if req.Timeout <= 0 {
		req = req.WithTimeout(cfg.Defaults.Timeout)
	}
	if req.MaxComplexity <= 0 {
		req = req.WithMaxComplexity(cfg.Defaults.MaxComplexity)
	}
	return req
}

// dedupeKey identifies requests that may share one evaluation. Requests
// under different configuration generations never share.
func dedupeKey(generation uint64, req calc.Request) string {
	precision := -1
	if req.Precision != nil {
		precision = *req.Precision
	}
	return strconv.FormatUint(generation, 10) + "|" +
		strconv.Itoa(precision) + "|" +
		strconv.FormatInt(int64(req.Timeout/time.Microsecond), 10) + "|" +
		strconv.FormatFloat(req.MaxComplexity, 'g', -1, 64) + "|" +
		req.Expression
}
