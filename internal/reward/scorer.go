package reward

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/synthlab/backend/internal/llm"
	"github.com/synthlab/backend/internal/metrics"
	"github.com/synthlab/backend/pkg/config"
	"github.com/synthlab/backend/pkg/logger"
	"github.com/synthlab/backend/pkg/utils"
)

// maxContextTurns bounds how much conversation history the scoring prompt
// carries.
const maxContextTurns = 5

// maxContextChars truncates each included turn.
const maxContextChars = 500

// Meta reports the cost of the judge call behind a scoring operation so
// executors can fold it into the request's aggregate cost.
type Meta struct {
	CostCents float64
}

// ScoreCache caches five-dimension scores keyed by judge/prompt/response
// hash. Implementations must fail open.
type ScoreCache interface {
	GetScore(ctx context.Context, key string) (*RewardScore, bool)
	SetScore(ctx context.Context, key string, score *RewardScore)
}

// Scorer produces quality judgments by invoking a judge model. Every method
// is fail-open: judge transport or parse failures resolve to documented
// fallback values, never an error.
type Scorer struct {
	invoker     llm.Invoker
	judgeModel  string
	temperature *float32 // nil defers to the client default
	maxTokens   int
	weights     config.RewardWeights
	cache       ScoreCache
}

func NewScorer(invoker llm.Invoker, cfg config.RewardConfig, cache ScoreCache) (*Scorer, error) {
	const tolerance = 1e-9
	if diff := cfg.Weights.Sum() - 1.0; diff > tolerance || diff < -tolerance {
		return nil, fmt.Errorf("reward weights must sum to 1.0, got %.6f", cfg.Weights.Sum())
	}

	var temperature *float32
	if cfg.Temperature != 0 {
		temperature = llm.Temp(cfg.Temperature)
	}

	return &Scorer{
		invoker:     invoker,
		judgeModel:  cfg.JudgeModel,
		temperature: temperature,
		maxTokens:   cfg.MaxTokens,
		weights:     cfg.Weights,
		cache:       cache,
	}, nil
}

func (s *Scorer) JudgeModel() string {
	return s.judgeModel
}

// ForJudge returns a scorer identical to s but judging with a different
// model. Cache keys include the judge model, so sharing the cache is safe.
func (s *Scorer) ForJudge(model string) *Scorer {
	if model == "" || model == s.judgeModel {
		return s
	}
	clone := *s
	clone.judgeModel = model
	return &clone
}

// Overall computes the fixed-weight dot product over the five dimensions.
// This is the only place the overall score is derived.
func (s *Scorer) Overall(score *RewardScore) float64 {
	return s.weights.Relevance*score.Relevance +
		s.weights.Accuracy*score.Accuracy +
		s.weights.Helpfulness*score.Helpfulness +
		s.weights.Safety*score.Safety +
		s.weights.Style*score.Style
}

// Score judges one response along the five reward dimensions.
func (s *Scorer) Score(ctx context.Context, prompt, response string, convContext []llm.Message, prefs UserPrefs) (RewardScore, Meta) {
	cacheKey := utils.HashFields(s.judgeModel, prompt, response)
	if s.cache != nil {
		if cached, ok := s.cache.GetScore(ctx, cacheKey); ok {
			metrics.CacheHits.WithLabelValues("reward_score").Inc()
			return *cached, Meta{}
		}
		metrics.CacheMisses.WithLabelValues("reward_score").Inc()
	}

	result, err := s.invoker.Invoke(ctx, s.judgeModel, []llm.Message{
		{Role: llm.RoleSystem, Content: scoreSystemPrompt},
		{Role: llm.RoleUser, Content: s.buildScoreUserPrompt(prompt, response, convContext, prefs)},
	}, llm.Options{Temperature: s.temperature, MaxTokens: s.maxTokens})

	if err != nil {
		logger.Warn("Judge scoring call failed, using default score", zap.Error(err))
		metrics.JudgeFallbacks.WithLabelValues("score_transport").Inc()
		return s.defaultScore(), Meta{}
	}

	dims, ok := parseDimensions(result.Content)
	if !ok {
		logger.Warn("Judge scoring reply malformed, using default score",
			zap.String("judge_model", s.judgeModel),
		)
		metrics.JudgeFallbacks.WithLabelValues("score_parse").Inc()
		return s.defaultScore(), Meta{CostCents: result.CostCents}
	}

	score := RewardScore{
		Relevance:   dims["relevance"],
		Accuracy:    dims["accuracy"],
		Helpfulness: dims["helpfulness"],
		Safety:      dims["safety"],
		Style:       dims["style"],
		Confidence:  dims["confidence"],
	}
	score.Overall = s.Overall(&score)

	if s.cache != nil {
		s.cache.SetScore(ctx, cacheKey, &score)
	}

	return score, Meta{CostCents: result.CostCents}
}

// Assess judges a single response on accuracy, completeness, clarity, and
// helpfulness, returning a scalar quality plus free-text feedback.
func (s *Scorer) Assess(ctx context.Context, prompt, response string) (Assessment, Meta) {
	result, err := s.invoker.Invoke(ctx, s.judgeModel, []llm.Message{
		{Role: llm.RoleSystem, Content: assessSystemPrompt},
		{Role: llm.RoleUser, Content: buildAssessUserPrompt(prompt, response)},
	}, llm.Options{Temperature: s.temperature, MaxTokens: s.maxTokens})

	if err != nil {
		logger.Warn("Judge assessment call failed, using fallback", zap.Error(err))
		metrics.JudgeFallbacks.WithLabelValues("assess_transport").Inc()
		return fallbackAssessment(), Meta{}
	}

	assessment, ok := parseAssessment(result.Content)
	if !ok {
		metrics.JudgeFallbacks.WithLabelValues("assess_parse").Inc()
		return fallbackAssessment(), Meta{CostCents: result.CostCents}
	}

	return assessment, Meta{CostCents: result.CostCents}
}

// PickBest asks the judge to select the best of several candidate responses
// in one holistic call.
func (s *Scorer) PickBest(ctx context.Context, prompt string, candidates []string) (Pick, Meta) {
	result, err := s.invoker.Invoke(ctx, s.judgeModel, []llm.Message{
		{Role: llm.RoleSystem, Content: pickSystemPrompt},
		{Role: llm.RoleUser, Content: buildPickUserPrompt(prompt, candidates)},
	}, llm.Options{Temperature: s.temperature, MaxTokens: s.maxTokens})

	if err != nil {
		logger.Warn("Judge pick call failed, using fallback", zap.Error(err))
		metrics.JudgeFallbacks.WithLabelValues("pick_transport").Inc()
		return fallbackPick(), Meta{}
	}

	pick, ok := parsePick(result.Content, len(candidates))
	if !ok {
		metrics.JudgeFallbacks.WithLabelValues("pick_parse").Inc()
		return fallbackPick(), Meta{CostCents: result.CostCents}
	}

	return pick, Meta{CostCents: result.CostCents}
}

// Merge asks the judge model to combine the best elements of all candidates
// into one new response. Unlike scoring, a merge failure is a primary-path
// transport failure and propagates.
func (s *Scorer) Merge(ctx context.Context, prompt string, candidates []string) (string, Meta, error) {
	result, err := s.invoker.Invoke(ctx, s.judgeModel, []llm.Message{
		{Role: llm.RoleSystem, Content: mergeSystemPrompt},
		{Role: llm.RoleUser, Content: buildMergeUserPrompt(prompt, candidates)},
	}, llm.Options{Temperature: llm.Temp(0.3)})

	if err != nil {
		return "", Meta{}, fmt.Errorf("failed to merge candidate responses: %w", err)
	}

	return result.Content, Meta{CostCents: result.CostCents}, nil
}

func (s *Scorer) defaultScore() RewardScore {
	score := RewardScore{
		Relevance:   Midpoint,
		Accuracy:    Midpoint,
		Helpfulness: Midpoint,
		Safety:      Midpoint,
		Style:       Midpoint,
		Confidence:  Midpoint,
	}
	score.Overall = s.Overall(&score)
	return score
}

func fallbackAssessment() Assessment {
	return Assessment{
		Quality:    FallbackAssessQuality,
		Confidence: FallbackAssessConfidence,
	}
}

func fallbackPick() Pick {
	return Pick{Index: FallbackPickIndex, Score: FallbackPickScore}
}

func (s *Scorer) buildScoreUserPrompt(prompt, response string, convContext []llm.Message, prefs UserPrefs) string {
	var b strings.Builder

	if len(convContext) > 0 {
		start := len(convContext) - maxContextTurns
		if start < 0 {
			start = 0
		}
		b.WriteString("Recent conversation:\n")
		for _, turn := range convContext[start:] {
			content := turn.Content
			if len(content) > maxContextChars {
				content = content[:maxContextChars] + "..."
			}
			fmt.Fprintf(&b, "[%s] %s\n", turn.Role, content)
		}
		b.WriteString("\n")
	}

	if prefs.ResponseLength != "" || prefs.Formality != "" {
		fmt.Fprintf(&b, "User style preferences: length=%s formality=%s\n\n",
			prefs.ResponseLength, prefs.Formality)
	}

	fmt.Fprintf(&b, "Prompt:\n%s\n\nResponse to score:\n%s\n", prompt, response)
	return b.String()
}

func buildAssessUserPrompt(prompt, response string) string {
	return fmt.Sprintf("Prompt:\n%s\n\nResponse to assess:\n%s\n", prompt, response)
}

func buildPickUserPrompt(prompt string, candidates []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Prompt:\n%s\n", prompt)
	for i, c := range candidates {
		fmt.Fprintf(&b, "\nResponse %d:\n%s\n", i+1, c)
	}
	return b.String()
}

func buildMergeUserPrompt(prompt string, candidates []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original prompt:\n%s\n", prompt)
	for i, c := range candidates {
		fmt.Fprintf(&b, "\nCandidate %d:\n%s\n", i+1, c)
	}
	return b.String()
}

const scoreSystemPrompt = `You are a strict response quality judge. Score the response along five dimensions, each from 0.0 to 1.0.

Return ONLY a JSON object:
{"relevance": 0.0, "accuracy": 0.0, "helpfulness": 0.0, "safety": 0.0, "style": 0.0, "confidence": 0.0}

confidence is your own certainty in this judgment.`

const assessSystemPrompt = `You are a response quality assessor. Rate the response on four dimensions from 0.0 to 1.0 and suggest improvements.

Reply in exactly this format:
ACCURACY: 0.0
COMPLETENESS: 0.0
CLARITY: 0.0
HELPFULNESS: 0.0
CONFIDENCE: 0.0
FEEDBACK: one or two sentences
IMPROVEMENTS: comma, separated, list`

const pickSystemPrompt = `You are a response quality judge. Several candidate responses to the same prompt are numbered from 1. Pick the single best one.

Reply in exactly this format:
BEST: <number>
SCORE: <0.0-1.0 quality of the chosen response>
REASONING: <one sentence>`

const mergeSystemPrompt = `You are a response editor. Combine the strongest elements of every candidate response into a single, coherent, improved response to the original prompt. Return only the merged response text.`
