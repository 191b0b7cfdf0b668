package synthesis

import (
	"context"
	"fmt"

	"github.com/synthlab/backend/internal/metrics"
)

// runCascade walks the configured model ladder cheapest-first, stopping at
// the first rung whose assessment meets both the quality and confidence
// thresholds. An exhausted ladder returns the last rung's response; cascade
// never fails outright once a rung has answered.
func (e *Engine) runCascade(ctx context.Context, s *session) (*Result, error) {
	ladder := e.cfg.CascadeLadder
	if len(ladder) == 0 {
		return nil, fmt.Errorf("cascade ladder is empty")
	}

	s.step("cascading over ladder %v (quality >= %.2f, confidence >= %.2f)",
		ladder, s.minQuality, s.confThreshold)

	var responses []ModelResponse
	var final ModelResponse
	var finalQuality, finalConfidence float64

	for i, model := range ladder {
		response, err := e.invokeOne(ctx, model, buildPromptMessages(s.req))
		if err != nil {
			return nil, fmt.Errorf("cascade rung %d (%s): %w", i+1, model, err)
		}

		assessment, meta := s.scorer.Assess(ctx, s.req.Prompt, response.Text)
		s.judgeCost += meta.CostCents
		response.Quality = assessment.Quality

		responses = append(responses, response)
		final = response
		finalQuality = assessment.Quality
		finalConfidence = assessment.Confidence

		s.step("rung %d (%s): quality %.2f confidence %.2f",
			i+1, model, assessment.Quality, assessment.Confidence)

		if assessment.Quality >= s.minQuality && assessment.Confidence >= s.confThreshold {
			s.step("thresholds met at rung %d, stopping", i+1)
			metrics.CascadeRungs.Observe(float64(i + 1))
			break
		}

		if i == len(ladder)-1 {
			s.step("ladder exhausted, returning most capable rung's response")
			metrics.CascadeRungs.Observe(float64(len(ladder)))
		} else {
			s.step("escalating to rung %d", i+2)
		}
	}

	return &Result{
		FinalResponse: final.Text,
		FinalModelID:  final.ModelID,
		Responses:     responses,
		FinalQuality:  finalQuality,
		Confidence:    finalConfidence,
		Iterations:    len(responses),
	}, nil
}
