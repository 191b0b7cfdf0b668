package reward

// RewardScore is a multi-dimensional quality judgment of one response.
// Overall is always the fixed-weight dot product of the five dimensions;
// no other code path computes it.
type RewardScore struct {
	Relevance   float64 `json:"relevance"`
	Accuracy    float64 `json:"accuracy"`
	Helpfulness float64 `json:"helpfulness"`
	Safety      float64 `json:"safety"`
	Style       float64 `json:"style"`
	Overall     float64 `json:"overall"`
	Confidence  float64 `json:"confidence"`
}

// Assessment is the four-dimension single-response judgment shared by the
// synthesis, refinement, and cascade executors.
type Assessment struct {
	Quality      float64
	Confidence   float64
	Feedback     string
	Improvements []string
}

// Pick is the judge's holistic best-of-N selection.
type Pick struct {
	Index     int // 1-based
	Score     float64
	Reasoning string
}

// UserPrefs carries the style preferences folded into the scoring prompt.
type UserPrefs struct {
	ResponseLength string
	Formality      string
}

const (
	// Midpoint is the per-dimension fallback when the judge reply is
	// malformed. Scoring is advisory and must never fail a request.
	Midpoint = 0.5

	// Fallbacks for single-response assessment parse failures.
	FallbackAssessQuality    = 0.7
	FallbackAssessConfidence = 0.8

	// Fallbacks for best-of-N pick parse failures.
	FallbackPickIndex = 1
	FallbackPickScore = 0.8
)
