package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/synthlab/backend/internal/reward"
	"github.com/synthlab/backend/pkg/config"
	"github.com/synthlab/backend/pkg/logger"
)

// Client caches judge scores. Judge calls are expensive and run at low
// temperature, so a repeated (judge, prompt, response) triple is worth
// reusing. All cache failures are absorbed; the scorer works without it.
type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(cfg config.RedisConfig) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := time.Duration(cfg.ScoreTTL) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}

	logger.Info("Redis score cache initialized",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		zap.Duration("ttl", ttl),
	)

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) GetScore(ctx context.Context, key string) (*reward.RewardScore, bool) {
	data, err := c.client.Get(ctx, "score:"+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		logger.Warn("Score cache read failed", zap.Error(err))
		return nil, false
	}

	var score reward.RewardScore
	if err := json.Unmarshal(data, &score); err != nil {
		logger.Warn("Score cache entry corrupt", zap.Error(err))
		return nil, false
	}

	return &score, true
}

func (c *Client) SetScore(ctx context.Context, key string, score *reward.RewardScore) {
	data, err := json.Marshal(score)
	if err != nil {
		logger.Warn("Failed to marshal score for cache", zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, "score:"+key, data, c.ttl).Err(); err != nil {
		logger.Warn("Score cache write failed", zap.Error(err))
	}
}
