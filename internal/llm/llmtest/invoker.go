// Package llmtest provides a scriptable Invoker for tests that need to
// control model and judge replies without network access.
package llmtest

import (
	"context"
	"sync"

	"github.com/synthlab/backend/internal/llm"
)

// Call records one invocation.
type Call struct {
	Model    string
	Messages []llm.Message
	Options  llm.Options
}

// Invoker replies to every invocation through the scripted Reply function.
// Safe for concurrent use; fan-out code paths call it from several
// goroutines.
type Invoker struct {
	// Reply maps an invocation to the model's reply text.
	Reply func(model string, msgs []llm.Message) (string, error)

	// CostCents is attributed to every successful call. Zero means 0.1.
	CostCents float64

	mu    sync.Mutex
	calls []Call
}

// New returns an Invoker with the given reply script.
func New(reply func(model string, msgs []llm.Message) (string, error)) *Invoker {
	return &Invoker{Reply: reply}
}

// Static returns an Invoker that always replies with the same text.
func Static(content string) *Invoker {
	return New(func(string, []llm.Message) (string, error) {
		return content, nil
	})
}

func (f *Invoker) Invoke(ctx context.Context, model string, msgs []llm.Message, opts llm.Options) (*llm.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Model: model, Messages: msgs, Options: opts})
	f.mu.Unlock()

	content, err := f.Reply(model, msgs)
	if err != nil {
		return nil, err
	}

	cost := f.CostCents
	if cost == 0 {
		cost = 0.1
	}
	return &llm.Result{Content: content, CostCents: cost}, nil
}

// Calls returns a copy of every recorded invocation.
func (f *Invoker) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount returns the total number of invocations.
func (f *Invoker) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// CountForModel returns the number of invocations of one model.
func (f *Invoker) CountForModel(model string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Model == model {
			n++
		}
	}
	return n
}

// LastUserContent returns the content of the final message of a call, which
// is the user turn for every prompt the engine builds.
func LastUserContent(msgs []llm.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Content
}
