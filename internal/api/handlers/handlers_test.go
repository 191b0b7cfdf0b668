package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthlab/backend/internal/counterfactual"
	"github.com/synthlab/backend/internal/llm"
	"github.com/synthlab/backend/internal/llm/llmtest"
	"github.com/synthlab/backend/internal/reward"
	"github.com/synthlab/backend/internal/storage/sqlite"
	"github.com/synthlab/backend/internal/synthesis"
	"github.com/synthlab/backend/pkg/config"
)

type testHarness struct {
	app *fiber.App
	db  *sqlite.Client
	sim *counterfactual.Simulator
}

func newTestHarness(t *testing.T, invoker *llmtest.Invoker) *testHarness {
	t.Helper()

	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"), 0)
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	t.Cleanup(func() { db.Close() })

	scorer, err := reward.NewScorer(invoker, config.RewardConfig{
		JudgeModel: "judge-1",
		Weights: config.RewardWeights{
			Relevance:   0.2,
			Accuracy:    0.2,
			Helpfulness: 0.2,
			Safety:      0.2,
			Style:       0.2,
		},
	}, nil)
	require.NoError(t, err)

	engine := synthesis.NewEngine(invoker, scorer, db, config.SynthesisConfig{
		DefaultModel:  "model-a",
		CascadeLadder: []string{"model-a"},
	})

	cfCfg := config.CounterfactualConfig{
		DailyCapPerTenant: 10,
		SamplingRates:     map[string]float64{},
		AlternativeModels: []string{"model-alt"},
	}
	sim := counterfactual.NewSimulator(invoker, scorer, db, counterfactual.NewSampler(cfCfg), cfCfg)

	app := fiber.New()
	sh := NewSynthesisHandler(engine, nil, db)
	ch := NewCounterfactualHandler(sim, db)
	app.Post("/api/v1/synthesize", sh.HandleSynthesize)
	app.Get("/api/v1/interactions", sh.GetInteractions)
	app.Post("/api/v1/counterfactuals/simulate", ch.HandleSimulate)
	app.Get("/api/v1/counterfactuals/stats", ch.GetStats)

	return &testHarness{app: app, db: db, sim: sim}
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestHandleSynthesizeValidation(t *testing.T) {
	h := newTestHarness(t, llmtest.Static("answer"))

	t.Run("missing prompt", func(t *testing.T) {
		resp := postJSON(t, h.app, "/api/v1/synthesize", map[string]string{"tenant_id": "t1"})
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing tenant", func(t *testing.T) {
		resp := postJSON(t, h.app, "/api/v1/synthesize", map[string]string{"prompt": "Explain recursion"})
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestHandleSynthesizeEndToEnd(t *testing.T) {
	invoker := llmtest.New(func(model string, msgs []llm.Message) (string, error) {
		switch model {
		case "model-a":
			return "Recursion is a function calling itself.", nil
		case "model-b":
			return "Recursion is when a function calls itself, like factorial.", nil
		case "judge-1":
			return "BEST: 2\nSCORE: 0.91\nREASONING: clearer examples", nil
		}
		return "answer", nil
	})
	h := newTestHarness(t, invoker)

	resp := postJSON(t, h.app, "/api/v1/synthesize", map[string]interface{}{
		"tenant_id": "t1",
		"prompt":    "Explain recursion",
		"strategy":  "best_of_n",
		"models":    []string{"model-a", "model-b"},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "best_of_n", body["strategy"])
	assert.Equal(t, "model-b", body["final_model_id"])
	assert.Contains(t, body["final_response"], "factorial")
	assert.InDelta(t, 0.91, body["final_quality"].(float64), 1e-9)
	assert.Equal(t, true, body["verification_passed"])
	assert.NotEmpty(t, body["interaction_id"])

	// The interaction is queryable right away.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/interactions?tenant_id=t1", nil)
	listResp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, listResp.StatusCode)

	listBody := decodeBody(t, listResp)
	interactions := listBody["interactions"].([]interface{})
	require.Len(t, interactions, 1)
}

func TestGetInteractionsRequiresTenant(t *testing.T) {
	h := newTestHarness(t, llmtest.Static("answer"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/interactions", nil)
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandleSimulate(t *testing.T) {
	invoker := llmtest.New(func(model string, msgs []llm.Message) (string, error) {
		if model == "model-alt" {
			return "the alternative answer", nil
		}
		return `{"relevance": 0.8, "accuracy": 0.8, "helpfulness": 0.8, "safety": 0.8, "style": 0.8, "confidence": 0.9}`, nil
	})
	h := newTestHarness(t, invoker)

	t.Run("missing fields", func(t *testing.T) {
		resp := postJSON(t, h.app, "/api/v1/counterfactuals/simulate", map[string]string{})
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown candidate", func(t *testing.T) {
		resp := postJSON(t, h.app, "/api/v1/counterfactuals/simulate", map[string]string{
			"candidate_id": "missing",
			"alt_model":    "model-alt",
		})
		assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	})

	t.Run("happy path defaults the reason", func(t *testing.T) {
		id, err := h.sim.RecordCandidate(context.Background(), synthesis.Request{
			TenantID: "t1",
			Prompt:   "Explain recursion",
		}, &synthesis.Result{
			FinalModelID:  "model-orig",
			FinalResponse: "the original answer",
		})
		require.NoError(t, err)

		resp := postJSON(t, h.app, "/api/v1/counterfactuals/simulate", map[string]string{
			"candidate_id": id,
			"alt_model":    "model-alt",
		})
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, "manual_shadow", body["sampling_reason"])
		assert.Equal(t, "model-alt", body["alternative_model_id"])
	})
}

func TestGetStats(t *testing.T) {
	h := newTestHarness(t, llmtest.Static("answer"))

	t.Run("missing tenant", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/counterfactuals/stats", nil)
		resp, err := h.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("empty stats", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/counterfactuals/stats?tenant_id=t1", nil)
		resp, err := h.app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, "t1", body["tenant_id"])
		assert.Empty(t, body["pairs"])
	})
}
