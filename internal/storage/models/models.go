package models

import "time"

// InteractionRecord is one completed synthesis request, persisted for
// offline training.
type InteractionRecord struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	Prompt     string    `json:"prompt"`
	Response   string    `json:"response"`
	Strategy   string    `json:"strategy"`
	ModelID    string    `json:"model_id"`
	Quality    float64   `json:"quality"`
	Confidence float64   `json:"confidence"`
	Verified   bool      `json:"verified"`
	Iterations int       `json:"iterations"`
	LatencyMS  int64     `json:"latency_ms"`
	CostCents  float64   `json:"cost_cents"`
	CreatedAt  time.Time `json:"created_at"`
}

// PreferencePair is one winner/loser training example.
type PreferencePair struct {
	ID              int64     `json:"id"`
	TenantID        string    `json:"tenant_id"`
	UserID          string    `json:"user_id,omitempty"`
	Prompt          string    `json:"prompt"`
	Context         string    `json:"context,omitempty"`
	WinningResponse string    `json:"winning_response"`
	LosingResponse  string    `json:"losing_response"`
	SignalType      string    `json:"signal_type"`
	SignalStrength  float64   `json:"signal_strength"`
	DomainIDs       string    `json:"domain_ids,omitempty"`
	WinningModelID  string    `json:"winning_model_id"`
	LosingModelID   string    `json:"losing_model_id"`
	CreatedAt       time.Time `json:"created_at"`
}

// CounterfactualCandidate marks a completed production interaction as
// eligible for shadow comparison against alternative models.
type CounterfactualCandidate struct {
	ID                string    `json:"id"`
	TenantID          string    `json:"tenant_id"`
	UserID            string    `json:"user_id,omitempty"`
	InteractionID     string    `json:"interaction_id"`
	Prompt            string    `json:"prompt"`
	OriginalModelID   string    `json:"original_model_id"`
	OriginalResponse  string    `json:"original_response"`
	OriginalCostCents float64   `json:"original_cost_cents"`
	OriginalLatencyMS int64     `json:"original_latency_ms"`
	AlternativeModels []string  `json:"alternative_models"`
	CreatedAt         time.Time `json:"created_at"`
}

// CounterfactualResult is one original-vs-alternative comparison. The
// alternative fields are nil when the shadow invocation or its scoring
// failed; the record is kept either way.
type CounterfactualResult struct {
	ID                  string     `json:"id"`
	CandidateID         string     `json:"candidate_id"`
	TenantID            string     `json:"tenant_id"`
	OriginalModelID     string     `json:"original_model_id"`
	AlternativeModelID  string     `json:"alternative_model_id"`
	OriginalResponse    string     `json:"original_response"`
	AlternativeResponse *string    `json:"alternative_response"`
	OriginalScore       *float64   `json:"original_score"`
	AlternativeScore    *float64   `json:"alternative_score"`
	PreferredByReward   *string    `json:"preferred_by_reward"` // "original" | "alternative" | "equal"
	QualityDelta        *float64   `json:"quality_delta"`
	CostDelta           *float64   `json:"cost_delta"`
	SamplingReason      string     `json:"sampling_reason"`
	CreatedAt           time.Time  `json:"created_at"`
}

// ModelPairStats aggregates counterfactual outcomes per tenant and model
// pair, feeding future model-selection defaults.
type ModelPairStats struct {
	TenantID           string    `json:"tenant_id"`
	OriginalModelID    string    `json:"original_model_id"`
	AlternativeModelID string    `json:"alternative_model_id"`
	Comparisons        int64     `json:"comparisons"`
	OriginalWins       int64     `json:"original_wins"`
	AlternativeWins    int64     `json:"alternative_wins"`
	Ties               int64     `json:"ties"`
	AvgQualityDelta    float64   `json:"avg_quality_delta"`
	AvgCostDelta       float64   `json:"avg_cost_delta"`
	UpdatedAt          time.Time `json:"updated_at"`
}
