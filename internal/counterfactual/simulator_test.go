package counterfactual

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthlab/backend/internal/llm"
	"github.com/synthlab/backend/internal/llm/llmtest"
	"github.com/synthlab/backend/internal/reward"
	"github.com/synthlab/backend/internal/storage/models"
	"github.com/synthlab/backend/internal/synthesis"
	"github.com/synthlab/backend/pkg/config"
)

// fakeStore keeps everything in memory.
type fakeStore struct {
	mu              sync.Mutex
	candidates      map[string]*models.CounterfactualCandidate
	results         []*models.CounterfactualResult
	pairs           []*models.PreferencePair
	statCalls       int
	insertResultErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{candidates: make(map[string]*models.CounterfactualCandidate)}
}

func (s *fakeStore) InsertCandidate(ctx context.Context, cand *models.CounterfactualCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates[cand.ID] = cand
	return nil
}

func (s *fakeStore) GetCandidate(ctx context.Context, id string) (*models.CounterfactualCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cand, ok := s.candidates[id]
	if !ok {
		return nil, fmt.Errorf("candidate %s not found", id)
	}
	return cand, nil
}

func (s *fakeStore) InsertCounterfactualResult(ctx context.Context, res *models.CounterfactualResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertResultErr != nil {
		return s.insertResultErr
	}
	s.results = append(s.results, res)
	return nil
}

func (s *fakeStore) UpdatePairStats(ctx context.Context, res *models.CounterfactualResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statCalls++
	return nil
}

func (s *fakeStore) RecordPreference(ctx context.Context, pair *models.PreferencePair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs = append(s.pairs, pair)
	return nil
}

// scoreReply builds a judge reply where every dimension carries the same
// value, so the equal-weight overall equals that value.
func scoreReply(v float64) string {
	return fmt.Sprintf(
		`{"relevance": %.2f, "accuracy": %.2f, "helpfulness": %.2f, "safety": %.2f, "style": %.2f, "confidence": 0.9}`,
		v, v, v, v, v,
	)
}

func newTestSimulator(t *testing.T, invoker *llmtest.Invoker, store *fakeStore, dailyCap int) *Simulator {
	t.Helper()
	invoker.CostCents = 0.2

	scorer, err := reward.NewScorer(invoker, config.RewardConfig{
		JudgeModel: "judge-1",
		Weights: config.RewardWeights{
			Relevance:   0.2,
			Accuracy:    0.2,
			Helpfulness: 0.2,
			Safety:      0.2,
			Style:       0.2,
		},
	}, nil)
	require.NoError(t, err)

	cfg := config.CounterfactualConfig{
		DailyCapPerTenant: dailyCap,
		SamplingRates:     map[string]float64{"manual_shadow": 1.0},
		AlternativeModels: []string{"model-alt", "model-orig"},
	}
	return NewSimulator(invoker, scorer, store, NewSampler(cfg), cfg)
}

func seedCandidate(t *testing.T, sim *Simulator) string {
	t.Helper()
	id, err := sim.RecordCandidate(context.Background(), synthesis.Request{
		TenantID: "tenant-1",
		UserID:   "user-1",
		Prompt:   "Explain recursion",
	}, &synthesis.Result{
		InteractionID:  "int-1",
		FinalModelID:   "model-orig",
		FinalResponse:  "the original answer",
		TotalCostCents: 0.5,
		TotalLatencyMS: 800,
	})
	require.NoError(t, err)
	return id
}

func TestRecordCandidateFiltersOriginalModel(t *testing.T) {
	store := newFakeStore()
	sim := newTestSimulator(t, llmtest.Static(""), store, 10)

	id := seedCandidate(t, sim)

	cand, err := store.GetCandidate(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []string{"model-alt"}, cand.AlternativeModels)
	assert.Equal(t, "model-orig", cand.OriginalModelID)
}

func TestSimulateAlternativeVerdicts(t *testing.T) {
	tests := []struct {
		name       string
		origScore  float64
		altScore   float64
		verdict    string
		wantsPair  bool
		pairWinner string
	}{
		{"alternative clearly better", 0.70, 0.90, VerdictAlternative, true, "model-alt"},
		{"original clearly better", 0.90, 0.70, VerdictOriginal, true, "model-orig"},
		{"inside indifference band", 0.70, 0.73, VerdictEqual, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invoker := llmtest.New(func(model string, msgs []llm.Message) (string, error) {
				if model == "model-alt" {
					return "the alternative answer", nil
				}
				if strings.Contains(llmtest.LastUserContent(msgs), "the alternative answer") {
					return scoreReply(tt.altScore), nil
				}
				return scoreReply(tt.origScore), nil
			})

			store := newFakeStore()
			sim := newTestSimulator(t, invoker, store, 10)
			id := seedCandidate(t, sim)

			result, err := sim.SimulateAlternative(context.Background(), id, "model-alt", "manual_shadow")
			require.NoError(t, err)
			require.NotNil(t, result)

			require.NotNil(t, result.PreferredByReward)
			assert.Equal(t, tt.verdict, *result.PreferredByReward)
			require.NotNil(t, result.QualityDelta)
			assert.InDelta(t, tt.altScore-tt.origScore, *result.QualityDelta, 1e-9)
			require.NotNil(t, result.AlternativeResponse)
			assert.Equal(t, "the alternative answer", *result.AlternativeResponse)
			require.NotNil(t, result.CostDelta)
			assert.InDelta(t, 0.2-0.5, *result.CostDelta, 1e-9)

			require.Len(t, store.results, 1)
			assert.Equal(t, 1, store.statCalls)
			assert.Equal(t, 1, sim.Sampler().Count("tenant-1"))

			if tt.wantsPair {
				require.Len(t, store.pairs, 1)
				pair := store.pairs[0]
				assert.Equal(t, tt.pairWinner, pair.WinningModelID)
				assert.Equal(t, "counterfactual_reward", pair.SignalType)
				assert.InDelta(t, 0.2, pair.SignalStrength, 1e-9)
			} else {
				assert.Empty(t, store.pairs)
			}
		})
	}
}

func TestSimulateAlternativeRespectsDailyCap(t *testing.T) {
	invoker := llmtest.New(func(model string, msgs []llm.Message) (string, error) {
		return scoreReply(0.8), nil
	})

	store := newFakeStore()
	sim := newTestSimulator(t, invoker, store, 1)
	id := seedCandidate(t, sim)

	first, err := sim.SimulateAlternative(context.Background(), id, "model-alt", "manual_shadow")
	require.NoError(t, err)
	require.NotNil(t, first)

	callsBefore := invoker.CallCount()

	// The cap is exhausted: the simulation is skipped without invoking any
	// model, and no record is written.
	second, err := sim.SimulateAlternative(context.Background(), id, "model-alt", "manual_shadow")
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Equal(t, callsBefore, invoker.CallCount())
	assert.Len(t, store.results, 1)
}

func TestConcurrentSimulationsCannotExceedCap(t *testing.T) {
	started := make(chan struct{})
	proceed := make(chan struct{})
	var once sync.Once

	invoker := llmtest.New(func(model string, msgs []llm.Message) (string, error) {
		if model == "model-alt" {
			once.Do(func() { close(started) })
			<-proceed
			return "the alternative answer", nil
		}
		return scoreReply(0.8), nil
	})

	store := newFakeStore()
	sim := newTestSimulator(t, invoker, store, 1)
	id := seedCandidate(t, sim)

	type outcome struct {
		result *models.CounterfactualResult
		err    error
	}
	outcomes := make(chan outcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			res, err := sim.SimulateAlternative(context.Background(), id, "model-alt", "manual_shadow")
			outcomes <- outcome{res, err}
		}()
	}

	// One simulation holds the only slot and is parked inside the model
	// call; the other must be turned away before invoking anything.
	<-started
	close(proceed)

	var ran int
	for i := 0; i < 2; i++ {
		o := <-outcomes
		require.NoError(t, o.err)
		if o.result != nil {
			ran++
		}
	}

	assert.Equal(t, 1, ran)
	assert.Equal(t, 1, sim.Sampler().Count("tenant-1"))
	assert.Equal(t, 1, invoker.CountForModel("model-alt"))
	assert.Len(t, store.results, 1)
}

func TestFailedPersistReleasesCapSlot(t *testing.T) {
	invoker := llmtest.New(func(model string, msgs []llm.Message) (string, error) {
		if model == "model-alt" {
			return "the alternative answer", nil
		}
		return scoreReply(0.8), nil
	})

	store := newFakeStore()
	store.insertResultErr = errors.New("disk full")
	sim := newTestSimulator(t, invoker, store, 1)
	id := seedCandidate(t, sim)

	_, err := sim.SimulateAlternative(context.Background(), id, "model-alt", "manual_shadow")
	require.Error(t, err)

	// Nothing was persisted, so the slot goes back and a retry can run.
	assert.Equal(t, 0, sim.Sampler().Count("tenant-1"))
	store.insertResultErr = nil
	result, err := sim.SimulateAlternative(context.Background(), id, "model-alt", "manual_shadow")
	require.NoError(t, err)
	require.NotNil(t, result)
}

func TestSimulateAlternativeKeepsRecordOnInvocationFailure(t *testing.T) {
	invoker := llmtest.New(func(model string, msgs []llm.Message) (string, error) {
		if model == "model-alt" {
			return "", errors.New("provider down")
		}
		return scoreReply(0.8), nil
	})

	store := newFakeStore()
	sim := newTestSimulator(t, invoker, store, 10)
	id := seedCandidate(t, sim)

	result, err := sim.SimulateAlternative(context.Background(), id, "model-alt", "manual_shadow")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Nil(t, result.AlternativeResponse)
	assert.Nil(t, result.AlternativeScore)
	assert.Nil(t, result.QualityDelta)
	assert.Nil(t, result.PreferredByReward)
	assert.Equal(t, "manual_shadow", result.SamplingReason)

	require.Len(t, store.results, 1)
	assert.Empty(t, store.pairs)
	// The attempt still counts against the daily cap.
	assert.Equal(t, 1, sim.Sampler().Count("tenant-1"))
}

func TestSimulateAlternativeUnknownCandidate(t *testing.T) {
	sim := newTestSimulator(t, llmtest.Static(""), newFakeStore(), 10)
	_, err := sim.SimulateAlternative(context.Background(), "missing", "model-alt", "manual_shadow")
	require.Error(t, err)
}

func TestMaybeShadow(t *testing.T) {
	invoker := llmtest.New(func(model string, msgs []llm.Message) (string, error) {
		if model == "model-alt" {
			return "the alternative answer", nil
		}
		return scoreReply(0.8), nil
	})

	store := newFakeStore()
	sim := newTestSimulator(t, invoker, store, 10)
	sim.sampler.rates = map[string]float64{
		ReasonLowConfidence: 1.0,
		ReasonRandomAudit:   0.0,
	}

	req := synthesis.Request{TenantID: "tenant-1", Prompt: "Explain recursion"}

	t.Run("low confidence result is shadowed", func(t *testing.T) {
		sim.MaybeShadow(context.Background(), req, &synthesis.Result{
			FinalModelID:  "model-orig",
			FinalResponse: "the original answer",
			Confidence:    0.5,
		})

		require.Len(t, store.results, 1)
		assert.Equal(t, ReasonLowConfidence, store.results[0].SamplingReason)
		assert.Equal(t, "model-alt", store.results[0].AlternativeModelID)
	})

	t.Run("confident result rides the audit rate", func(t *testing.T) {
		// The audit rate is zero, so nothing is recorded.
		before := len(store.results)
		sim.MaybeShadow(context.Background(), req, &synthesis.Result{
			FinalModelID:  "model-orig",
			FinalResponse: "the original answer",
			Confidence:    0.95,
		})
		assert.Len(t, store.results, before)
	})
}

func TestVerdictFor(t *testing.T) {
	assert.Equal(t, VerdictEqual, verdictFor(0))
	assert.Equal(t, VerdictEqual, verdictFor(0.05))
	assert.Equal(t, VerdictEqual, verdictFor(-0.05))
	assert.Equal(t, VerdictAlternative, verdictFor(0.051))
	assert.Equal(t, VerdictOriginal, verdictFor(-0.051))
}
