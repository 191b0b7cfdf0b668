package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/synthlab/backend/internal/storage/models"
	"github.com/synthlab/backend/pkg/logger"
	"github.com/synthlab/backend/pkg/utils"
)

type Client struct {
	db *sql.DB
	// bulkThreshold is the body size above which only a content-hash
	// placeholder is kept in the structured record.
	bulkThreshold int
}

func NewClient(dbPath string, bulkThresholdBytes int) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err = db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err = db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if bulkThresholdBytes <= 0 {
		bulkThresholdBytes = 65536
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db, bulkThreshold: bulkThresholdBytes}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT,
		session_id TEXT,
		prompt TEXT NOT NULL,
		response TEXT,
		strategy TEXT NOT NULL,
		model_id TEXT,
		quality REAL,
		confidence REAL,
		verified INTEGER DEFAULT 0,
		iterations INTEGER,
		latency_ms INTEGER,
		cost_cents REAL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_tenant ON interactions(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_interactions_created ON interactions(created_at);

	CREATE TABLE IF NOT EXISTS preference_pairs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id TEXT NOT NULL,
		user_id TEXT,
		prompt TEXT NOT NULL,
		context TEXT,
		winning_response TEXT NOT NULL,
		losing_response TEXT NOT NULL,
		signal_type TEXT NOT NULL,
		signal_strength REAL,
		domain_ids TEXT,
		winning_model_id TEXT,
		losing_model_id TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pairs_tenant ON preference_pairs(tenant_id);

	CREATE TABLE IF NOT EXISTS counterfactual_candidates (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT,
		interaction_id TEXT,
		prompt TEXT NOT NULL,
		original_model_id TEXT NOT NULL,
		original_response TEXT NOT NULL,
		original_cost_cents REAL,
		original_latency_ms INTEGER,
		alternative_models TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_candidates_tenant ON counterfactual_candidates(tenant_id);

	CREATE TABLE IF NOT EXISTS counterfactual_results (
		id TEXT PRIMARY KEY,
		candidate_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		original_model_id TEXT NOT NULL,
		alternative_model_id TEXT NOT NULL,
		original_response TEXT,
		alternative_response TEXT,
		original_score REAL,
		alternative_score REAL,
		preferred_by_reward TEXT,
		quality_delta REAL,
		cost_delta REAL,
		sampling_reason TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (candidate_id) REFERENCES counterfactual_candidates(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_cf_results_tenant ON counterfactual_results(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_cf_results_candidate ON counterfactual_results(candidate_id);

	CREATE TABLE IF NOT EXISTS model_pair_stats (
		tenant_id TEXT NOT NULL,
		original_model_id TEXT NOT NULL,
		alternative_model_id TEXT NOT NULL,
		comparisons INTEGER NOT NULL DEFAULT 0,
		original_wins INTEGER NOT NULL DEFAULT 0,
		alternative_wins INTEGER NOT NULL DEFAULT 0,
		ties INTEGER NOT NULL DEFAULT 0,
		sum_quality_delta REAL NOT NULL DEFAULT 0,
		sum_cost_delta REAL NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, original_model_id, alternative_model_id)
	);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// offload replaces bodies above the bulk threshold with a content-hash
// placeholder, mirroring the bulk-storage contract of the training data
// collaborator.
func (c *Client) offload(body string) string {
	if len(body) <= c.bulkThreshold {
		return body
	}
	return "blob:" + utils.HashString(body)
}

func (c *Client) RecordInteraction(ctx context.Context, rec *models.InteractionRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO interactions
		(id, tenant_id, user_id, session_id, prompt, response, strategy, model_id,
		 quality, confidence, verified, iterations, latency_ms, cost_cents, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TenantID, rec.UserID, rec.SessionID,
		rec.Prompt, c.offload(rec.Response), rec.Strategy, rec.ModelID,
		rec.Quality, rec.Confidence, boolToInt(rec.Verified), rec.Iterations,
		rec.LatencyMS, rec.CostCents, rec.CreatedAt.Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert interaction: %w", err)
	}

	return rec.ID, nil
}

func (c *Client) ListInteractions(ctx context.Context, tenantID string, limit int) ([]models.InteractionRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, tenant_id, user_id, session_id, prompt, response, strategy,
		       model_id, quality, confidence, verified, iterations, latency_ms,
		       cost_cents, created_at
		FROM interactions
		WHERE tenant_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	var records []models.InteractionRecord
	for rows.Next() {
		var rec models.InteractionRecord
		var verified int
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.UserID, &rec.SessionID,
			&rec.Prompt, &rec.Response, &rec.Strategy, &rec.ModelID,
			&rec.Quality, &rec.Confidence, &verified, &rec.Iterations,
			&rec.LatencyMS, &rec.CostCents, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		rec.Verified = verified != 0
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		records = append(records, rec)
	}

	return records, rows.Err()
}

func (c *Client) RecordPreference(ctx context.Context, pair *models.PreferencePair) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO preference_pairs
		(tenant_id, user_id, prompt, context, winning_response, losing_response,
		 signal_type, signal_strength, domain_ids, winning_model_id, losing_model_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pair.TenantID, pair.UserID, pair.Prompt, pair.Context,
		c.offload(pair.WinningResponse), c.offload(pair.LosingResponse),
		pair.SignalType, pair.SignalStrength, pair.DomainIDs,
		pair.WinningModelID, pair.LosingModelID, pair.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert preference pair: %w", err)
	}
	return nil
}

func (c *Client) InsertCandidate(ctx context.Context, cand *models.CounterfactualCandidate) error {
	altModels, err := json.Marshal(cand.AlternativeModels)
	if err != nil {
		return fmt.Errorf("failed to marshal alternative models: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO counterfactual_candidates
		(id, tenant_id, user_id, interaction_id, prompt, original_model_id,
		 original_response, original_cost_cents, original_latency_ms,
		 alternative_models, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cand.ID, cand.TenantID, cand.UserID, cand.InteractionID, cand.Prompt,
		cand.OriginalModelID, cand.OriginalResponse, cand.OriginalCostCents,
		cand.OriginalLatencyMS, string(altModels), cand.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert candidate: %w", err)
	}
	return nil
}

func (c *Client) GetCandidate(ctx context.Context, id string) (*models.CounterfactualCandidate, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, user_id, interaction_id, prompt, original_model_id,
		       original_response, original_cost_cents, original_latency_ms,
		       alternative_models, created_at
		FROM counterfactual_candidates WHERE id = ?`, id)

	var cand models.CounterfactualCandidate
	var altModels string
	var createdAt int64
	err := row.Scan(&cand.ID, &cand.TenantID, &cand.UserID, &cand.InteractionID,
		&cand.Prompt, &cand.OriginalModelID, &cand.OriginalResponse,
		&cand.OriginalCostCents, &cand.OriginalLatencyMS, &altModels, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("candidate %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}

	if err := json.Unmarshal([]byte(altModels), &cand.AlternativeModels); err != nil {
		logger.Warn("Failed to unmarshal alternative models", zap.Error(err))
	}
	cand.CreatedAt = time.Unix(createdAt, 0).UTC()

	return &cand, nil
}

func (c *Client) InsertCounterfactualResult(ctx context.Context, res *models.CounterfactualResult) error {
	var altResponse interface{}
	if res.AlternativeResponse != nil {
		altResponse = c.offload(*res.AlternativeResponse)
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO counterfactual_results
		(id, candidate_id, tenant_id, original_model_id, alternative_model_id,
		 original_response, alternative_response, original_score, alternative_score,
		 preferred_by_reward, quality_delta, cost_delta, sampling_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.CandidateID, res.TenantID, res.OriginalModelID,
		res.AlternativeModelID, c.offload(res.OriginalResponse), altResponse,
		nullableFloat(res.OriginalScore), nullableFloat(res.AlternativeScore),
		nullableString(res.PreferredByReward),
		nullableFloat(res.QualityDelta), nullableFloat(res.CostDelta),
		res.SamplingReason, res.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert counterfactual result: %w", err)
	}
	return nil
}

// UpdatePairStats folds one comparison verdict into the per-tenant
// per-model-pair aggregate.
func (c *Client) UpdatePairStats(ctx context.Context, res *models.CounterfactualResult) error {
	var originalWin, alternativeWin, tie int
	if res.PreferredByReward != nil {
		switch *res.PreferredByReward {
		case "original":
			originalWin = 1
		case "alternative":
			alternativeWin = 1
		case "equal":
			tie = 1
		}
	}

	var qualityDelta, costDelta float64
	if res.QualityDelta != nil {
		qualityDelta = *res.QualityDelta
	}
	if res.CostDelta != nil {
		costDelta = *res.CostDelta
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO model_pair_stats
		(tenant_id, original_model_id, alternative_model_id, comparisons,
		 original_wins, alternative_wins, ties, sum_quality_delta, sum_cost_delta, updated_at)
		VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, original_model_id, alternative_model_id) DO UPDATE SET
			comparisons = comparisons + 1,
			original_wins = original_wins + excluded.original_wins,
			alternative_wins = alternative_wins + excluded.alternative_wins,
			ties = ties + excluded.ties,
			sum_quality_delta = sum_quality_delta + excluded.sum_quality_delta,
			sum_cost_delta = sum_cost_delta + excluded.sum_cost_delta,
			updated_at = excluded.updated_at`,
		res.TenantID, res.OriginalModelID, res.AlternativeModelID,
		originalWin, alternativeWin, tie, qualityDelta, costDelta,
		time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to update model pair stats: %w", err)
	}
	return nil
}

func (c *Client) GetPairStats(ctx context.Context, tenantID string) ([]models.ModelPairStats, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT tenant_id, original_model_id, alternative_model_id, comparisons,
		       original_wins, alternative_wins, ties, sum_quality_delta,
		       sum_cost_delta, updated_at
		FROM model_pair_stats
		WHERE tenant_id = ?
		ORDER BY comparisons DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pair stats: %w", err)
	}
	defer rows.Close()

	var stats []models.ModelPairStats
	for rows.Next() {
		var s models.ModelPairStats
		var sumQuality, sumCost float64
		var updatedAt int64
		if err := rows.Scan(&s.TenantID, &s.OriginalModelID, &s.AlternativeModelID,
			&s.Comparisons, &s.OriginalWins, &s.AlternativeWins, &s.Ties,
			&sumQuality, &sumCost, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pair stats: %w", err)
		}
		if s.Comparisons > 0 {
			s.AvgQualityDelta = sumQuality / float64(s.Comparisons)
			s.AvgCostDelta = sumCost / float64(s.Comparisons)
		}
		s.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
