package reward

import (
	"regexp"
	"strconv"
	"strings"
)

// Judge replies are untrusted, loosely structured text. Every parser here
// returns (value, ok); an ok=false result carries nothing and the caller
// substitutes the documented fallback. Nothing in this file returns an error.

var (
	dimensionPattern = regexp.MustCompile(`(?i)"?(relevance|accuracy|helpfulness|safety|style|confidence)"?\s*[:=]\s*([0-9]*\.?[0-9]+)`)
	assessPattern    = regexp.MustCompile(`(?im)^\s*(accuracy|completeness|clarity|helpfulness|confidence)\s*[:=]\s*([0-9]*\.?[0-9]+)\s*$`)
	pickBestPattern  = regexp.MustCompile(`(?im)^\s*best\s*[:=]\s*([0-9]+)\s*$`)
	pickScorePattern = regexp.MustCompile(`(?im)^\s*score\s*[:=]\s*([0-9]*\.?[0-9]+)\s*$`)
	lineFieldPattern = regexp.MustCompile(`(?im)^\s*(feedback|reasoning|improvements)\s*[:=]\s*(.+)$`)
)

// parseDimensions extracts the five reward dimensions plus confidence from a
// JSON-like judge reply. Missing fields resolve to the midpoint; ok is false
// only when no recognizable field is present at all.
func parseDimensions(raw string) (map[string]float64, bool) {
	matches := dimensionPattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return nil, false
	}

	dims := map[string]float64{
		"relevance":   Midpoint,
		"accuracy":    Midpoint,
		"helpfulness": Midpoint,
		"safety":      Midpoint,
		"style":       Midpoint,
		"confidence":  Midpoint,
	}
	for _, m := range matches {
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		dims[strings.ToLower(m[1])] = clamp01(v)
	}
	return dims, true
}

// parseAssessment extracts the four-dimension assessment. ok requires at
// least one dimension line; quality is the mean of the dimensions found, so
// a partially well-formed reply is still used.
func parseAssessment(raw string) (Assessment, bool) {
	matches := assessPattern.FindAllStringSubmatch(raw, -1)

	var sum float64
	var n int
	confidence := FallbackAssessConfidence
	for _, m := range matches {
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		if strings.EqualFold(m[1], "confidence") {
			confidence = clamp01(v)
			continue
		}
		sum += clamp01(v)
		n++
	}

	if n == 0 {
		return Assessment{}, false
	}

	a := Assessment{
		Quality:    sum / float64(n),
		Confidence: confidence,
	}

	for _, m := range lineFieldPattern.FindAllStringSubmatch(raw, -1) {
		switch strings.ToLower(m[1]) {
		case "feedback":
			a.Feedback = strings.TrimSpace(m[2])
		case "improvements":
			for _, item := range strings.Split(m[2], ",") {
				if item = strings.TrimSpace(item); item != "" {
					a.Improvements = append(a.Improvements, item)
				}
			}
		}
	}

	return a, true
}

// parsePick extracts the 1-based winner index, score, and reasoning from a
// BEST/SCORE/REASONING reply. ok requires a usable BEST line whose index is
// within [1, candidates].
func parsePick(raw string, candidates int) (Pick, bool) {
	m := pickBestPattern.FindStringSubmatch(raw)
	if m == nil {
		return Pick{}, false
	}
	index, err := strconv.Atoi(m[1])
	if err != nil || index < 1 || index > candidates {
		return Pick{}, false
	}

	p := Pick{Index: index, Score: FallbackPickScore}

	if sm := pickScorePattern.FindStringSubmatch(raw); sm != nil {
		if v, err := strconv.ParseFloat(sm[1], 64); err == nil {
			p.Score = clamp01(v)
		}
	}

	for _, lm := range lineFieldPattern.FindAllStringSubmatch(raw, -1) {
		if strings.EqualFold(lm[1], "reasoning") {
			p.Reasoning = strings.TrimSpace(lm[2])
		}
	}

	return p, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
