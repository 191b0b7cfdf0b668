package llm

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/synthlab/backend/internal/metrics"
	"github.com/synthlab/backend/pkg/circuitbreaker"
	"github.com/synthlab/backend/pkg/config"
	"github.com/synthlab/backend/pkg/logger"
	"github.com/synthlab/backend/pkg/retry"
)

// Message is a single conversation turn handed to a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Options struct {
	// Temperature nil means the client default; an explicit zero requests
	// greedy decoding.
	Temperature *float32
	MaxTokens   int
}

// Temp returns a pointer for Options.Temperature.
func Temp(v float32) *float32 {
	return &v
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Result struct {
	Content   string
	Usage     Usage
	CostCents float64
}

// Invoker is the model invocation boundary the engine consumes. The host
// platform may supply its own implementation; Client below is the default.
type Invoker interface {
	Invoke(ctx context.Context, modelID string, messages []Message, opts Options) (*Result, error)
}

// Client invokes chat models through the OpenAI-compatible API, with a
// per-model circuit breaker, bounded retries, and a per-call timeout.
type Client struct {
	api             *openai.Client
	temperature     float32
	maxTokens       int
	timeout         time.Duration
	costPer1K       map[string]float64
	defaultCost1K   float64
	retryConfig     retry.Config

	mu       sync.Mutex
	breakers map[string]*circuitbreaker.CircuitBreaker
}

func NewClient(cfg config.LLMConfig) *Client {
	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	logger.Info("LLM client initialized",
		zap.String("provider", cfg.Provider),
		zap.Duration("call_timeout", timeout),
	)

	return &Client{
		api:           openai.NewClient(cfg.APIKey),
		temperature:   cfg.Temperature,
		maxTokens:     cfg.MaxTokens,
		timeout:       timeout,
		costPer1K:     cfg.CostPer1KTokens,
		defaultCost1K: cfg.DefaultCostPer1K,
		retryConfig:   retryConfig,
		breakers:      make(map[string]*circuitbreaker.CircuitBreaker),
	}
}

func (c *Client) Invoke(ctx context.Context, modelID string, messages []Message, opts Options) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := c.resolveTemperature(opts)
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	var result *Result

	err := c.breaker(modelID).Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.api.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       modelID,
					Messages:    chatMessages,
					Temperature: temperature,
					MaxTokens:   maxTokens,
				},
			)

			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}

			if len(resp.Choices) == 0 {
				return fmt.Errorf("completion returned no choices")
			}

			usage := Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}

			logger.Debug("Model completion generated",
				zap.String("model", modelID),
				zap.Int("prompt_tokens", usage.PromptTokens),
				zap.Int("completion_tokens", usage.CompletionTokens),
			)

			result = &Result{
				Content:   resp.Choices[0].Message.Content,
				Usage:     usage,
				CostCents: c.estimateCost(modelID, usage.TotalTokens),
			}

			return nil
		})
	})

	if err != nil {
		metrics.ModelCalls.WithLabelValues(modelID, "primary", "error").Inc()
		return nil, err
	}

	metrics.ModelCalls.WithLabelValues(modelID, "primary", "ok").Inc()
	metrics.LLMTokensUsed.WithLabelValues(modelID, "prompt").Add(float64(result.Usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(modelID, "completion").Add(float64(result.Usage.CompletionTokens))
	metrics.LLMCostCents.WithLabelValues(modelID).Add(result.CostCents)

	return result, nil
}

// resolveTemperature maps a nil option to the client default. go-openai
// omits a zero temperature from the request, which the API reads as "use
// the model default", so an explicit zero becomes the smallest positive
// value; that survives serialization and is greedy in practice.
func (c *Client) resolveTemperature(opts Options) float32 {
	if opts.Temperature == nil {
		return c.temperature
	}
	if *opts.Temperature == 0 {
		return math.SmallestNonzeroFloat32
	}
	return *opts.Temperature
}

func (c *Client) estimateCost(modelID string, totalTokens int) float64 {
	rate, ok := c.costPer1K[modelID]
	if !ok {
		rate = c.defaultCost1K
	}
	return rate * float64(totalTokens) / 1000.0
}

func (c *Client) breaker(modelID string) *circuitbreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	cb, ok := c.breakers[modelID]
	if !ok {
		cb = circuitbreaker.New("llm:"+modelID, circuitbreaker.Config{
			MaxRequests:      5,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Logger:           logger.GetLogger(),
		})
		c.breakers[modelID] = cb
	}
	return cb
}
