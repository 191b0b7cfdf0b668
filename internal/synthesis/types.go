package synthesis

import (
	"github.com/synthlab/backend/internal/llm"
	"github.com/synthlab/backend/internal/reward"
)

type Strategy string

const (
	StrategyBestOfN    Strategy = "best_of_n"
	StrategySynthesis  Strategy = "synthesis"
	StrategyDebate     Strategy = "debate"
	StrategyRefinement Strategy = "iterative_refinement"
	StrategyCascade    Strategy = "cascade"
)

// IsValid reports whether the name is one of the five known strategies.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyBestOfN, StrategySynthesis, StrategyDebate, StrategyRefinement, StrategyCascade:
		return true
	}
	return false
}

// Request is one synthesis request. Zero values for thresholds and budgets
// resolve to configured per-strategy defaults.
type Request struct {
	TenantID  string
	UserID    string
	SessionID string

	Prompt  string
	Context []llm.Message

	// Strategy names one of the five strategies. Empty consults the task
	// analyzer; unrecognized names fall back to best_of_n.
	Strategy string

	// Models is the candidate model list. Empty resolves per task category.
	Models []string

	// JudgeModel overrides the configured judge.
	JudgeModel string

	MinQuality          float64
	MaxIterations       int
	ConfidenceThreshold float64

	// Advisory ceilings. Recorded and traced, not enforced.
	MaxCostCents float64
	MaxLatencyMS int64

	Prefs reward.UserPrefs
}

// ModelResponse is one model's answer. Quality starts at the midpoint
// placeholder and is overwritten once, when scored.
type ModelResponse struct {
	ModelID   string  `json:"model_id"`
	Text      string  `json:"text"`
	LatencyMS int64   `json:"latency_ms"`
	CostCents float64 `json:"cost_cents"`
	Quality   float64 `json:"quality"`
}

// Result is the outcome of one synthesis request. Trace is a human-readable
// narrative of steps taken, never machine-parsed.
type Result struct {
	ID                 string          `json:"id"`
	FinalResponse      string          `json:"final_response"`
	FinalModelID       string          `json:"final_model_id"`
	Strategy           Strategy        `json:"strategy"`
	Responses          []ModelResponse `json:"responses"`
	Trace              []string        `json:"trace"`
	FinalQuality       float64         `json:"final_quality"`
	Confidence         float64         `json:"confidence"`
	VerificationPassed bool            `json:"verification_passed"`
	Iterations         int             `json:"iterations"`
	RefinementNotes    []string        `json:"refinement_notes,omitempty"`
	TotalLatencyMS     int64           `json:"total_latency_ms"`
	TotalCostCents     float64         `json:"total_cost_cents"`
	InteractionID      string          `json:"interaction_id,omitempty"`
}
