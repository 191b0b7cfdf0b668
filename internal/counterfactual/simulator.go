package counterfactual

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/synthlab/backend/internal/llm"
	"github.com/synthlab/backend/internal/metrics"
	"github.com/synthlab/backend/internal/reward"
	"github.com/synthlab/backend/internal/storage/models"
	"github.com/synthlab/backend/internal/synthesis"
	"github.com/synthlab/backend/pkg/config"
	"github.com/synthlab/backend/pkg/logger"
)

// indifferenceBand: score deltas within this band are treated as a tie.
const indifferenceBand = 0.05

const (
	VerdictOriginal    = "original"
	VerdictAlternative = "alternative"
	VerdictEqual       = "equal"
)

// Sampling reasons used by the automatic shadow hook.
const (
	ReasonLowConfidence = "low_confidence"
	ReasonRandomAudit   = "random_audit"
)

// lowConfidenceBar triggers the low_confidence sampling reason.
const lowConfidenceBar = 0.7

// Store is the persistence boundary for counterfactual records.
type Store interface {
	InsertCandidate(ctx context.Context, cand *models.CounterfactualCandidate) error
	GetCandidate(ctx context.Context, id string) (*models.CounterfactualCandidate, error)
	InsertCounterfactualResult(ctx context.Context, res *models.CounterfactualResult) error
	UpdatePairStats(ctx context.Context, res *models.CounterfactualResult) error
	RecordPreference(ctx context.Context, pair *models.PreferencePair) error
}

type Simulator struct {
	invoker   llm.Invoker
	scorer    *reward.Scorer
	store     Store
	sampler   *Sampler
	altModels []string
}

func NewSimulator(invoker llm.Invoker, scorer *reward.Scorer, store Store, sampler *Sampler, cfg config.CounterfactualConfig) *Simulator {
	return &Simulator{
		invoker:   invoker,
		scorer:    scorer,
		store:     store,
		sampler:   sampler,
		altModels: cfg.AlternativeModels,
	}
}

func (s *Simulator) Sampler() *Sampler {
	return s.sampler
}

// RecordCandidate persists a completed production interaction as eligible
// for shadow comparison and returns the candidate id.
func (s *Simulator) RecordCandidate(ctx context.Context, req synthesis.Request, result *synthesis.Result) (string, error) {
	alternatives := make([]string, 0, len(s.altModels))
	for _, m := range s.altModels {
		if m != result.FinalModelID {
			alternatives = append(alternatives, m)
		}
	}

	cand := &models.CounterfactualCandidate{
		ID:                uuid.New().String(),
		TenantID:          req.TenantID,
		UserID:            req.UserID,
		InteractionID:     result.InteractionID,
		Prompt:            req.Prompt,
		OriginalModelID:   result.FinalModelID,
		OriginalResponse:  result.FinalResponse,
		OriginalCostCents: result.TotalCostCents,
		OriginalLatencyMS: result.TotalLatencyMS,
		AlternativeModels: alternatives,
		CreatedAt:         time.Now().UTC(),
	}

	if err := s.store.InsertCandidate(ctx, cand); err != nil {
		return "", err
	}

	return cand.ID, nil
}

// SimulateAlternative runs one shadow comparison. Returns (nil, nil) when
// the tenant's daily cap is exhausted; no model is invoked in that case. A
// failed alternative invocation still produces a persisted result with null
// alternative fields.
func (s *Simulator) SimulateAlternative(ctx context.Context, candidateID, altModel, reason string) (*models.CounterfactualResult, error) {
	cand, err := s.store.GetCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}

	if !s.sampler.TryReserve(cand.TenantID) {
		logger.Info("Counterfactual simulation skipped, daily cap reached",
			zap.String("tenant_id", cand.TenantID),
			zap.String("candidate_id", candidateID),
		)
		metrics.CounterfactualSkipped.WithLabelValues("daily_cap").Inc()
		return nil, nil
	}

	result := &models.CounterfactualResult{
		ID:                 uuid.New().String(),
		CandidateID:        cand.ID,
		TenantID:           cand.TenantID,
		OriginalModelID:    cand.OriginalModelID,
		AlternativeModelID: altModel,
		OriginalResponse:   cand.OriginalResponse,
		SamplingReason:     reason,
		CreatedAt:          time.Now().UTC(),
	}

	altResult, altErr := s.invoker.Invoke(ctx, altModel, []llm.Message{
		{Role: llm.RoleUser, Content: cand.Prompt},
	}, llm.Options{})

	if altErr != nil {
		// Keep the record of the attempt; alternative fields stay null.
		logger.Warn("Counterfactual alternative invocation failed",
			zap.String("candidate_id", cand.ID),
			zap.String("alt_model", altModel),
			zap.Error(altErr),
		)
		metrics.CounterfactualSimulations.WithLabelValues("alt_failed").Inc()
	} else {
		s.scoreAndCompare(ctx, cand, altResult, result)
	}

	if err := s.store.InsertCounterfactualResult(ctx, result); err != nil {
		s.sampler.Release(cand.TenantID)
		return nil, fmt.Errorf("failed to persist counterfactual result: %w", err)
	}
	if err := s.store.UpdatePairStats(ctx, result); err != nil {
		logger.Warn("Failed to update pair stats", zap.Error(err))
	}

	s.recordPreferenceSignal(ctx, cand, result)

	logger.Info("Counterfactual simulation completed",
		zap.String("candidate_id", cand.ID),
		zap.String("alt_model", altModel),
		zap.String("reason", reason),
	)

	return result, nil
}

// scoreAndCompare scores the original and alternative responses in parallel
// and derives the preference verdict.
func (s *Simulator) scoreAndCompare(ctx context.Context, cand *models.CounterfactualCandidate, altResult *llm.Result, result *models.CounterfactualResult) {
	var origScore, altScore reward.RewardScore

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		origScore, _ = s.scorer.Score(ctx, cand.Prompt, cand.OriginalResponse, nil, reward.UserPrefs{})
	}()
	go func() {
		defer wg.Done()
		altScore, _ = s.scorer.Score(ctx, cand.Prompt, altResult.Content, nil, reward.UserPrefs{})
	}()
	wg.Wait()

	altText := altResult.Content
	result.AlternativeResponse = &altText
	result.OriginalScore = &origScore.Overall
	result.AlternativeScore = &altScore.Overall

	delta := altScore.Overall - origScore.Overall
	result.QualityDelta = &delta

	costDelta := altResult.CostCents - cand.OriginalCostCents
	result.CostDelta = &costDelta

	verdict := verdictFor(delta)
	result.PreferredByReward = &verdict

	metrics.CounterfactualSimulations.WithLabelValues(verdict).Inc()
}

func verdictFor(delta float64) string {
	if math.Abs(delta) <= indifferenceBand {
		return VerdictEqual
	}
	if delta > 0 {
		return VerdictAlternative
	}
	return VerdictOriginal
}

// recordPreferenceSignal persists a winner/loser pair when the verdict is
// decisive.
func (s *Simulator) recordPreferenceSignal(ctx context.Context, cand *models.CounterfactualCandidate, result *models.CounterfactualResult) {
	if result.PreferredByReward == nil || result.AlternativeResponse == nil || result.QualityDelta == nil {
		return
	}
	verdict := *result.PreferredByReward
	if verdict == VerdictEqual {
		return
	}

	pair := &models.PreferencePair{
		TenantID:       cand.TenantID,
		UserID:         cand.UserID,
		Prompt:         cand.Prompt,
		SignalType:     "counterfactual_reward",
		SignalStrength: math.Abs(*result.QualityDelta),
		CreatedAt:      time.Now().UTC(),
	}
	if verdict == VerdictAlternative {
		pair.WinningResponse = *result.AlternativeResponse
		pair.WinningModelID = result.AlternativeModelID
		pair.LosingResponse = cand.OriginalResponse
		pair.LosingModelID = cand.OriginalModelID
	} else {
		pair.WinningResponse = cand.OriginalResponse
		pair.WinningModelID = cand.OriginalModelID
		pair.LosingResponse = *result.AlternativeResponse
		pair.LosingModelID = result.AlternativeModelID
	}

	if err := s.store.RecordPreference(ctx, pair); err != nil {
		logger.Warn("Failed to record preference pair", zap.Error(err))
	}
}

// MaybeShadow is the fire-and-forget hook the request path calls after a
// successful synthesis. It decides on a sampling reason, records a
// candidate, and runs one simulation against a randomly chosen alternative.
func (s *Simulator) MaybeShadow(ctx context.Context, req synthesis.Request, result *synthesis.Result) {
	reason := ReasonRandomAudit
	if result.Confidence < lowConfidenceBar {
		reason = ReasonLowConfidence
	}

	if !s.sampler.ShouldSample(reason) {
		return
	}

	candidateID, err := s.RecordCandidate(ctx, req, result)
	if err != nil {
		logger.Warn("Failed to record counterfactual candidate", zap.Error(err))
		return
	}

	cand, err := s.store.GetCandidate(ctx, candidateID)
	if err != nil || len(cand.AlternativeModels) == 0 {
		return
	}
	altModel := cand.AlternativeModels[rand.Intn(len(cand.AlternativeModels))]

	if _, err := s.SimulateAlternative(ctx, candidateID, altModel, reason); err != nil {
		logger.Warn("Counterfactual simulation failed",
			zap.String("candidate_id", candidateID),
			zap.Error(err),
		)
	}
}
