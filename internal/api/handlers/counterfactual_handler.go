package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/synthlab/backend/internal/counterfactual"
	"github.com/synthlab/backend/internal/storage/sqlite"
	"github.com/synthlab/backend/pkg/logger"
)

type CounterfactualHandler struct {
	simulator *counterfactual.Simulator
	db        *sqlite.Client
}

func NewCounterfactualHandler(simulator *counterfactual.Simulator, db *sqlite.Client) *CounterfactualHandler {
	return &CounterfactualHandler{
		simulator: simulator,
		db:        db,
	}
}

func (h *CounterfactualHandler) HandleSimulate(c *fiber.Ctx) error {
	var req struct {
		CandidateID string `json:"candidate_id"`
		AltModel    string `json:"alt_model"`
		Reason      string `json:"reason"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.CandidateID == "" || req.AltModel == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "candidate_id and alt_model are required",
		})
	}
	if req.Reason == "" {
		req.Reason = "manual_shadow"
	}

	result, err := h.simulator.SimulateAlternative(c.Context(), req.CandidateID, req.AltModel, req.Reason)
	if err != nil {
		logger.Error("Failed to simulate alternative", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to simulate alternative",
		})
	}

	// Daily cap exhaustion is a soft no-op, not an error.
	if result == nil {
		return c.JSON(fiber.Map{
			"skipped": true,
			"reason":  "daily simulation cap reached",
		})
	}

	return c.JSON(result)
}

func (h *CounterfactualHandler) GetStats(c *fiber.Ctx) error {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "tenant_id is required",
		})
	}

	stats, err := h.db.GetPairStats(c.Context(), tenantID)
	if err != nil {
		logger.Error("Failed to get pair stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get pair stats",
		})
	}

	type pairStats struct {
		OriginalModelID    string  `json:"original_model_id"`
		AlternativeModelID string  `json:"alternative_model_id"`
		Comparisons        int64   `json:"comparisons"`
		AlternativeWinRate float64 `json:"alternative_win_rate"`
		AvgQualityDelta    float64 `json:"avg_quality_delta"`
		AvgCostDelta       float64 `json:"avg_cost_delta"`
	}

	out := make([]pairStats, 0, len(stats))
	for _, s := range stats {
		ps := pairStats{
			OriginalModelID:    s.OriginalModelID,
			AlternativeModelID: s.AlternativeModelID,
			Comparisons:        s.Comparisons,
			AvgQualityDelta:    s.AvgQualityDelta,
			AvgCostDelta:       s.AvgCostDelta,
		}
		if s.Comparisons > 0 {
			ps.AlternativeWinRate = float64(s.AlternativeWins) / float64(s.Comparisons)
		}
		out = append(out, ps)
	}

	return c.JSON(fiber.Map{
		"tenant_id": tenantID,
		"pairs":     out,
	})
}
