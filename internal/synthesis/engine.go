// Package synthesis implements the response synthesis engine: a dispatcher
// over five strategies that turn one or more model calls into a final,
// quality-scored response.
package synthesis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/synthlab/backend/internal/analyzer"
	"github.com/synthlab/backend/internal/llm"
	"github.com/synthlab/backend/internal/metrics"
	"github.com/synthlab/backend/internal/reward"
	"github.com/synthlab/backend/internal/storage/models"
	"github.com/synthlab/backend/pkg/config"
	"github.com/synthlab/backend/pkg/logger"
)

// defaultMinQuality applies when neither the request nor the per-strategy
// config provides a threshold.
const defaultMinQuality = 0.7

// Recorder is the training-data collaborator boundary. It decides how large
// bodies are stored; the engine always passes full text.
type Recorder interface {
	RecordInteraction(ctx context.Context, rec *models.InteractionRecord) (string, error)
}

type Engine struct {
	invoker  llm.Invoker
	scorer   *reward.Scorer
	recorder Recorder
	cfg      config.SynthesisConfig
}

func NewEngine(invoker llm.Invoker, scorer *reward.Scorer, recorder Recorder, cfg config.SynthesisConfig) *Engine {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 3
	}
	if cfg.DebateRounds <= 0 {
		cfg.DebateRounds = 3
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 3
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.7
	}
	return &Engine{
		invoker:  invoker,
		scorer:   scorer,
		recorder: recorder,
		cfg:      cfg,
	}
}

// session carries the resolved parameters and accumulating state of one
// synthesis request through its executor.
type session struct {
	req           Request
	strategy      Strategy
	models        []string
	scorer        *reward.Scorer
	minQuality    float64
	confThreshold float64
	maxIterations int

	trace     []string
	judgeCost float64
}

func (s *session) step(format string, args ...interface{}) {
	s.trace = append(s.trace, fmt.Sprintf(format, args...))
}

// Synthesize is the single entry point. It resolves strategy and models,
// delegates to the matching executor, and finalizes the result.
func (e *Engine) Synthesize(ctx context.Context, req Request) (*Result, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	start := time.Now()
	analysis := analyzer.Analyze(req.Prompt)

	s := &session{
		req:           req,
		strategy:      e.resolveStrategy(req.Strategy, analysis),
		models:        e.resolveModels(req.Models, analysis.Category),
		scorer:        e.scorer.ForJudge(req.JudgeModel),
		confThreshold: req.ConfidenceThreshold,
		maxIterations: req.MaxIterations,
	}
	s.minQuality = e.resolveMinQuality(req.MinQuality, s.strategy)
	if s.confThreshold <= 0 {
		s.confThreshold = e.cfg.ConfidenceThreshold
	}
	if s.maxIterations <= 0 {
		s.maxIterations = e.cfg.MaxIterations
	}

	s.step("task analyzed: category=%s complexity=%s", analysis.Category, analysis.Complexity)
	s.step("strategy resolved: %s", s.strategy)
	s.step("candidate models: %v", s.models)
	if req.MaxCostCents > 0 || req.MaxLatencyMS > 0 {
		s.step("advisory budget: max_cost_cents=%.2f max_latency_ms=%d", req.MaxCostCents, req.MaxLatencyMS)
	}

	logger.Info("Synthesis started",
		zap.String("tenant_id", req.TenantID),
		zap.String("strategy", string(s.strategy)),
		zap.Strings("models", s.models),
		zap.Float64("min_quality", s.minQuality),
	)

	var result *Result
	var err error

	switch s.strategy {
	case StrategyBestOfN:
		result, err = e.runBestOfN(ctx, s)
	case StrategySynthesis:
		result, err = e.runSynthesis(ctx, s)
	case StrategyDebate:
		result, err = e.runDebate(ctx, s)
	case StrategyRefinement:
		result, err = e.runRefinement(ctx, s)
	case StrategyCascade:
		result, err = e.runCascade(ctx, s)
	default:
		result, err = e.runBestOfN(ctx, s)
	}

	if err != nil {
		metrics.SynthesisTotal.WithLabelValues(string(s.strategy), "error").Inc()
		logger.Error("Synthesis failed",
			zap.String("tenant_id", req.TenantID),
			zap.String("strategy", string(s.strategy)),
			zap.Error(err),
		)
		return nil, err
	}

	e.finalize(ctx, s, result, start)
	return result, nil
}

// finalize is the only place the verification flag and aggregate totals are
// computed.
func (e *Engine) finalize(ctx context.Context, s *session, result *Result, start time.Time) {
	result.ID = uuid.New().String()
	result.Strategy = s.strategy
	result.Trace = s.trace
	result.VerificationPassed = result.FinalQuality >= s.minQuality
	result.TotalLatencyMS = time.Since(start).Milliseconds()

	var cost float64
	for _, r := range result.Responses {
		cost += r.CostCents
	}
	result.TotalCostCents = cost + s.judgeCost

	metrics.SynthesisTotal.WithLabelValues(string(s.strategy), "ok").Inc()
	metrics.SynthesisDuration.WithLabelValues(string(s.strategy)).Observe(time.Since(start).Seconds())
	metrics.QualityScore.WithLabelValues(string(s.strategy)).Observe(result.FinalQuality)
	if !result.VerificationPassed {
		metrics.VerificationFailures.WithLabelValues(string(s.strategy)).Inc()
	}

	if e.recorder != nil {
		interactionID, err := e.recorder.RecordInteraction(ctx, &models.InteractionRecord{
			ID:           result.ID,
			TenantID:     s.req.TenantID,
			UserID:       s.req.UserID,
			SessionID:    s.req.SessionID,
			Prompt:       s.req.Prompt,
			Response:     result.FinalResponse,
			Strategy:     string(s.strategy),
			ModelID:      result.FinalModelID,
			Quality:      result.FinalQuality,
			Confidence:   result.Confidence,
			Verified:     result.VerificationPassed,
			Iterations:   result.Iterations,
			LatencyMS:    result.TotalLatencyMS,
			CostCents:    result.TotalCostCents,
			CreatedAt:    time.Now().UTC(),
		})
		if err != nil {
			logger.Warn("Failed to record interaction", zap.Error(err))
		} else {
			result.InteractionID = interactionID
		}
	}

	logger.Info("Synthesis completed",
		zap.String("result_id", result.ID),
		zap.String("strategy", string(s.strategy)),
		zap.Float64("quality", result.FinalQuality),
		zap.Bool("verified", result.VerificationPassed),
		zap.Int64("latency_ms", result.TotalLatencyMS),
		zap.Float64("cost_cents", result.TotalCostCents),
	)
}

// resolveStrategy: an explicit valid name wins; unrecognized names fall back
// to best_of_n; an empty name consults the analyzer, whose own fallback is
// best_of_n.
func (e *Engine) resolveStrategy(name string, a analyzer.Analysis) Strategy {
	if name == "" {
		suggested := Strategy(analyzer.DefaultStrategy(a))
		if suggested.IsValid() {
			return suggested
		}
		return StrategyBestOfN
	}
	s := Strategy(name)
	if !s.IsValid() {
		logger.Warn("Unrecognized strategy, using best_of_n", zap.String("strategy", name))
		return StrategyBestOfN
	}
	return s
}

func (e *Engine) resolveModels(explicit []string, category analyzer.TaskCategory) []string {
	if len(explicit) > 0 {
		return explicit
	}
	if defaults, ok := e.cfg.TaskModels[string(category)]; ok && len(defaults) > 0 {
		return defaults
	}
	return []string{e.cfg.DefaultModel}
}

func (e *Engine) resolveMinQuality(explicit float64, strategy Strategy) float64 {
	if explicit > 0 {
		return explicit
	}
	if v, ok := e.cfg.MinQuality[string(strategy)]; ok && v > 0 {
		return v
	}
	return defaultMinQuality
}
