package synthesis

import (
	"context"
	"fmt"

	"github.com/synthlab/backend/internal/llm"
)

// debateParticipants is fixed: two models argue, each refining against the
// other's latest answer.
const debateParticipants = 2

// runDebate runs a fixed number of mutual-refinement rounds between two
// models, then judges the final round. A round only begins once the previous
// round has fully joined; within a round the two refinements run
// concurrently. Callers should budget (rounds+1) x per-call cost per
// participant.
func (e *Engine) runDebate(ctx context.Context, s *session) (*Result, error) {
	participants := make([]string, debateParticipants)
	for i := 0; i < debateParticipants; i++ {
		if i < len(s.models) {
			participants[i] = s.models[i]
		} else {
			// Too few candidates: pad with the default rather than reject.
			participants[i] = e.cfg.DefaultModel
			s.step("padded debate with default model %s", e.cfg.DefaultModel)
		}
	}

	s.step("debate opening: %s vs %s", participants[0], participants[1])

	current, err := e.fanOut(ctx, participants, func(int, string) []llm.Message {
		return buildPromptMessages(s.req)
	})
	if err != nil {
		return nil, err
	}

	all := append([]ModelResponse(nil), current...)

	for round := 1; round <= e.cfg.DebateRounds; round++ {
		s.step("debate round %d/%d", round, e.cfg.DebateRounds)

		own := current[0].Text
		other := current[1].Text

		refined, err := e.fanOut(ctx, participants, func(i int, _ string) []llm.Message {
			mine, theirs := own, other
			if i == 1 {
				mine, theirs = other, own
			}
			return buildDebateMessages(s.req, mine, theirs)
		})
		if err != nil {
			return nil, fmt.Errorf("debate round %d: %w", round, err)
		}

		current = refined
		all = append(all, refined...)
	}

	texts := []string{current[0].Text, current[1].Text}
	pick, meta := s.scorer.PickBest(ctx, s.req.Prompt, texts)
	s.judgeCost += meta.CostCents

	// The final round's entries are the last two in all; write the score
	// through so the recorded winner carries it.
	winner := &all[len(all)-2+pick.Index-1]
	winner.Quality = pick.Score
	s.step("judge picked %s after %d rounds (score %.2f): %s",
		winner.ModelID, e.cfg.DebateRounds, pick.Score, pick.Reasoning)

	return &Result{
		FinalResponse: winner.Text,
		FinalModelID:  winner.ModelID,
		Responses:     all,
		FinalQuality:  pick.Score,
		Confidence:    pick.Score,
		Iterations:    e.cfg.DebateRounds,
	}, nil
}

// buildDebateMessages shows a participant its own previous answer and the
// opponent's, asking for a refined answer.
func buildDebateMessages(req Request, own, other string) []llm.Message {
	msgs := make([]llm.Message, 0, len(req.Context)+1)
	msgs = append(msgs, req.Context...)
	msgs = append(msgs, llm.Message{
		Role: llm.RoleUser,
		Content: fmt.Sprintf(`Original question:
%s

Your previous answer:
%s

Another model's answer:
%s

Produce a refined answer. Incorporate the other answer's valid points or defend your original position where it is stronger. Return only the refined answer.`,
			req.Prompt, own, other),
	})
	return msgs
}
