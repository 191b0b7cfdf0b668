package synthesis

import (
	"context"
	"fmt"
	"strings"

	"github.com/synthlab/backend/internal/llm"
)

// runRefinement is the strictly sequential single-model loop: generate,
// assess, and regenerate with the judge's feedback until the quality bar is
// met or the iteration budget runs out. Never more than one model call in
// flight.
func (e *Engine) runRefinement(ctx context.Context, s *session) (*Result, error) {
	model := s.models[0]
	s.step("iterative refinement with %s (budget %d)", model, s.maxIterations)

	response, err := e.invokeOne(ctx, model, buildPromptMessages(s.req))
	if err != nil {
		return nil, err
	}

	assessment, meta := s.scorer.Assess(ctx, s.req.Prompt, response.Text)
	s.judgeCost += meta.CostCents
	response.Quality = assessment.Quality

	responses := []ModelResponse{response}
	var notes []string
	iterations := 1
	s.step("iteration 1: quality %.2f (threshold %.2f)", assessment.Quality, s.minQuality)

	for assessment.Quality < s.minQuality && iterations < s.maxIterations {
		if assessment.Feedback != "" {
			notes = append(notes, assessment.Feedback)
		}

		refined, err := e.invokeOne(ctx, model,
			buildRefineMessages(s.req, response.Text, assessment.Feedback, assessment.Improvements))
		if err != nil {
			return nil, fmt.Errorf("refinement iteration %d: %w", iterations+1, err)
		}

		assessment, meta = s.scorer.Assess(ctx, s.req.Prompt, refined.Text)
		s.judgeCost += meta.CostCents
		refined.Quality = assessment.Quality

		response = refined
		responses = append(responses, refined)
		iterations++
		s.step("iteration %d: quality %.2f", iterations, assessment.Quality)
	}

	if assessment.Quality >= s.minQuality {
		s.step("quality threshold met after %d iteration(s)", iterations)
	} else {
		s.step("iteration budget exhausted at quality %.2f", assessment.Quality)
	}

	return &Result{
		FinalResponse:   response.Text,
		FinalModelID:    model,
		Responses:       responses,
		FinalQuality:    assessment.Quality,
		Confidence:      assessment.Confidence,
		Iterations:      iterations,
		RefinementNotes: notes,
	}, nil
}

func buildRefineMessages(req Request, previous, feedback string, improvements []string) []llm.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Original question:\n%s\n\nYour previous answer:\n%s\n", req.Prompt, previous)
	if feedback != "" {
		fmt.Fprintf(&b, "\nReviewer feedback:\n%s\n", feedback)
	}
	if len(improvements) > 0 {
		fmt.Fprintf(&b, "\nRequested improvements:\n- %s\n", strings.Join(improvements, "\n- "))
	}
	b.WriteString("\nProduce an improved answer. Return only the answer.")

	msgs := make([]llm.Message, 0, len(req.Context)+1)
	msgs = append(msgs, req.Context...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: b.String()})
	return msgs
}
