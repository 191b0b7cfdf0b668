package synthesis

import (
	"context"

	"github.com/synthlab/backend/internal/llm"
)

// synthesisConfidence is hard-coded on the assumption that a merged response
// is at least as good as its inputs. The counterfactual pipeline exists to
// test that assumption against data.
const synthesisConfidence = 0.9

// runSynthesis fans out like best-of-N but asks the judge to merge the best
// elements of all responses into one new response, then assesses the merged
// text independently.
func (e *Engine) runSynthesis(ctx context.Context, s *session) (*Result, error) {
	s.step("fanning out to %d model(s) for synthesis", min(len(s.models), e.cfg.MaxParallel))

	responses, err := e.fanOut(ctx, s.models, func(int, string) []llm.Message {
		return buildPromptMessages(s.req)
	})
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(responses))
	for i, r := range responses {
		texts[i] = r.Text
		s.step("collected response from %s (%d ms)", r.ModelID, r.LatencyMS)
	}

	merged, mergeMeta, err := s.scorer.Merge(ctx, s.req.Prompt, texts)
	if err != nil {
		return nil, err
	}
	s.judgeCost += mergeMeta.CostCents
	s.step("judge merged %d responses into one", len(texts))

	assessment, assessMeta := s.scorer.Assess(ctx, s.req.Prompt, merged)
	s.judgeCost += assessMeta.CostCents
	s.step("merged response assessed: quality %.2f", assessment.Quality)

	responses = append(responses, ModelResponse{
		ModelID: s.scorer.JudgeModel(),
		Text:    merged,
		Quality: assessment.Quality,
	})

	var notes []string
	if assessment.Feedback != "" {
		notes = append(notes, assessment.Feedback)
	}

	return &Result{
		FinalResponse:   merged,
		FinalModelID:    s.scorer.JudgeModel(),
		Responses:       responses,
		FinalQuality:    assessment.Quality,
		Confidence:      synthesisConfidence,
		Iterations:      1,
		RefinementNotes: notes,
	}, nil
}
