package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/synthlab/backend/internal/counterfactual"
	"github.com/synthlab/backend/internal/llm"
	"github.com/synthlab/backend/internal/reward"
	"github.com/synthlab/backend/internal/storage/sqlite"
	"github.com/synthlab/backend/internal/synthesis"
	"github.com/synthlab/backend/pkg/logger"
)

// shadowTimeout bounds the fire-and-forget counterfactual run so a detached
// goroutine cannot hang forever.
const shadowTimeout = 5 * time.Minute

type SynthesisHandler struct {
	engine    *synthesis.Engine
	simulator *counterfactual.Simulator
	db        *sqlite.Client
}

func NewSynthesisHandler(engine *synthesis.Engine, simulator *counterfactual.Simulator, db *sqlite.Client) *SynthesisHandler {
	return &SynthesisHandler{
		engine:    engine,
		simulator: simulator,
		db:        db,
	}
}

type synthesizeRequest struct {
	TenantID            string        `json:"tenant_id"`
	UserID              string        `json:"user_id"`
	SessionID           string        `json:"session_id"`
	Prompt              string        `json:"prompt"`
	Context             []llm.Message `json:"context"`
	Strategy            string        `json:"strategy"`
	Models              []string      `json:"models"`
	JudgeModel          string        `json:"judge_model"`
	MinQuality          float64       `json:"min_quality"`
	MaxIterations       int           `json:"max_iterations"`
	ConfidenceThreshold float64       `json:"confidence_threshold"`
	MaxCostCents        float64       `json:"max_cost_cents"`
	MaxLatencyMS        int64         `json:"max_latency_ms"`
	ResponseLength      string        `json:"response_length"`
	Formality           string        `json:"formality"`
}

func (h *SynthesisHandler) HandleSynthesize(c *fiber.Ctx) error {
	var req synthesizeRequest

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Prompt == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "prompt is required",
		})
	}
	if req.TenantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "tenant_id is required",
		})
	}

	synthReq := synthesis.Request{
		TenantID:            req.TenantID,
		UserID:              req.UserID,
		SessionID:           req.SessionID,
		Prompt:              req.Prompt,
		Context:             req.Context,
		Strategy:            req.Strategy,
		Models:              req.Models,
		JudgeModel:          req.JudgeModel,
		MinQuality:          req.MinQuality,
		MaxIterations:       req.MaxIterations,
		ConfidenceThreshold: req.ConfidenceThreshold,
		MaxCostCents:        req.MaxCostCents,
		MaxLatencyMS:        req.MaxLatencyMS,
		Prefs: reward.UserPrefs{
			ResponseLength: req.ResponseLength,
			Formality:      req.Formality,
		},
	}

	result, err := h.engine.Synthesize(c.Context(), synthReq)
	if err != nil {
		logger.Error("Failed to synthesize response", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to synthesize response",
		})
	}

	// Shadow evaluation runs off the critical path and never blocks the
	// user-visible response.
	if h.simulator != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), shadowTimeout)
			defer cancel()
			h.simulator.MaybeShadow(ctx, synthReq, result)
		}()
	}

	return c.JSON(result)
}

func (h *SynthesisHandler) GetInteractions(c *fiber.Ctx) error {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "tenant_id is required",
		})
	}

	records, err := h.db.ListInteractions(c.Context(), tenantID, c.QueryInt("limit", 50))
	if err != nil {
		logger.Error("Failed to list interactions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list interactions",
		})
	}

	return c.JSON(fiber.Map{
		"interactions": records,
	})
}
