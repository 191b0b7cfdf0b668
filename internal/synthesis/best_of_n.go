package synthesis

import (
	"context"

	"github.com/synthlab/backend/internal/llm"
)

// runBestOfN fans out to every candidate model in parallel and asks the
// judge to pick the best answer in one holistic call.
func (e *Engine) runBestOfN(ctx context.Context, s *session) (*Result, error) {
	s.step("fanning out to %d model(s)", min(len(s.models), e.cfg.MaxParallel))

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

	pick, meta := s.scorer.PickBest(ctx, s.req.Prompt, texts)
	s.judgeCost += meta.CostCents

	winner := &responses[pick.Index-1]
	winner.Quality = pick.Score
	s.step("judge picked response %d from %s (score %.2f): %s",
		pick.Index, winner.ModelID, pick.Score, pick.Reasoning)

	return &Result{
		FinalResponse: winner.Text,
		FinalModelID:  winner.ModelID,
		Responses:     responses,
		FinalQuality:  pick.Score,
		Confidence:    pick.Score,
		Iterations:    1,
	}, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
