package synthesis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/synthlab/backend/internal/llm"
	"github.com/synthlab/backend/internal/reward"
)

// fanOut invokes every model concurrently with the messages built for it and
// joins all calls before returning. A single failed call fails the whole
// batch after the join; there is no partial-quorum mode. The candidate list
// is bounded by the configured fan-out cap.
func (e *Engine) fanOut(ctx context.Context, models []string, build func(i int, model string) []llm.Message) ([]ModelResponse, error) {
	if len(models) > e.cfg.MaxParallel {
		models = models[:e.cfg.MaxParallel]
	}

	responses := make([]ModelResponse, len(models))
	errs := make([]error, len(models))

	var wg sync.WaitGroup
	for i, model := range models {
		wg.Add(1)
		go func(i int, model string) {
			defer wg.Done()
			responses[i], errs[i] = e.invokeOne(ctx, model, build(i, model))
		}(i, model)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("model %s failed during fan-out: %w", models[i], err)
		}
	}

	return responses, nil
}

// invokeOne performs a single tracked model call. Quality starts at the
// midpoint placeholder; a scorer may overwrite it exactly once.
func (e *Engine) invokeOne(ctx context.Context, model string, msgs []llm.Message) (ModelResponse, error) {
	start := time.Now()

	result, err := e.invoker.Invoke(ctx, model, msgs, llm.Options{})
	if err != nil {
		return ModelResponse{}, err
	}

	return ModelResponse{
		ModelID:   model,
		Text:      result.Content,
		LatencyMS: time.Since(start).Milliseconds(),
		CostCents: result.CostCents,
		Quality:   reward.Midpoint,
	}, nil
}

// buildPromptMessages assembles the conversation context plus the user
// prompt for a generation call.
func buildPromptMessages(req Request) []llm.Message {
	msgs := make([]llm.Message, 0, len(req.Context)+1)
	msgs = append(msgs, req.Context...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: req.Prompt})
	return msgs
}
