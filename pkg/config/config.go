package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig
	SQLite         SQLiteConfig
	Redis          RedisConfig
	LLM            LLMConfig
	Synthesis      SynthesisConfig
	Reward         RewardConfig
	Counterfactual CounterfactualConfig
	Storage        StorageConfig
	Logging        LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	ScoreTTL int
}

type LLMConfig struct {
	Provider    string
	APIKey      string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
	// CostPer1KTokens maps model id to an estimated cost in cents per
	// thousand total tokens. Unknown models fall back to DefaultCostPer1K.
	CostPer1KTokens  map[string]float64
	DefaultCostPer1K float64
}

type SynthesisConfig struct {
	DefaultModel        string
	MaxParallel         int
	DebateRounds        int
	MaxIterations       int
	ConfidenceThreshold float64
	// MinQuality holds the per-strategy default minimum acceptable quality,
	// applied when a request does not set one.
	MinQuality map[string]float64
	// TaskModels maps a task category to its default candidate model list.
	TaskModels map[string][]string
	// CascadeLadder is ordered cheapest first.
	CascadeLadder []string
}

type RewardConfig struct {
	JudgeModel  string
	Temperature float32
	MaxTokens   int
	// Weights for the five scoring dimensions. Must sum to 1.0.
	Weights RewardWeights
}

type RewardWeights struct {
	Relevance   float64
	Accuracy    float64
	Helpfulness float64
	Safety      float64
	Style       float64
}

func (w RewardWeights) Sum() float64 {
	return w.Relevance + w.Accuracy + w.Helpfulness + w.Safety + w.Style
}

type CounterfactualConfig struct {
	DailyCapPerTenant int
	// SamplingRates maps a sampling reason to a probability in [0,1].
	SamplingRates map[string]float64
	// AlternativeModels are the models eligible for shadow comparison.
	AlternativeModels []string
}

type StorageConfig struct {
	// BulkThresholdBytes is the response-body size above which only a
	// content-hash placeholder is kept in the structured record.
	BulkThresholdBytes int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/synthlab")

	viper.SetEnvPrefix("SYNTH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(cfg *Config) error {
	const tolerance = 1e-9
	if diff := cfg.Reward.Weights.Sum() - 1.0; diff > tolerance || diff < -tolerance {
		return fmt.Errorf("reward weights must sum to 1.0, got %.6f", cfg.Reward.Weights.Sum())
	}
	for reason, rate := range cfg.Counterfactual.SamplingRates {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("sampling rate for %q out of range: %.3f", reason, rate)
		}
	}
	if len(cfg.Synthesis.CascadeLadder) == 0 {
		return fmt.Errorf("cascade ladder must not be empty")
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 120)
	viper.SetDefault("server.writeTimeout", 120)
	viper.SetDefault("server.bodyLimit", 1048576)

	viper.SetDefault("sqlite.path", "./data/synthesis.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.scoreTTL", 3600)

	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.temperature", 0.7)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.timeoutSec", 60)
	viper.SetDefault("llm.defaultCostPer1K", 0.5)
	viper.SetDefault("llm.costPer1KTokens", map[string]float64{
		"gpt-4":         3.0,
		"gpt-4-turbo":   2.0,
		"gpt-3.5-turbo": 0.15,
	})

	viper.SetDefault("synthesis.defaultModel", "gpt-4")
	viper.SetDefault("synthesis.maxParallel", 3)
	viper.SetDefault("synthesis.debateRounds", 3)
	viper.SetDefault("synthesis.maxIterations", 3)
	viper.SetDefault("synthesis.confidenceThreshold", 0.7)
	viper.SetDefault("synthesis.minQuality", map[string]float64{
		"best_of_n":            0.70,
		"synthesis":            0.75,
		"debate":               0.75,
		"iterative_refinement": 0.80,
		"cascade":              0.80,
	})
	viper.SetDefault("synthesis.taskModels", map[string][]string{
		"coding":    {"gpt-4", "gpt-4-turbo"},
		"reasoning": {"gpt-4", "gpt-4-turbo"},
		"math":      {"gpt-4", "gpt-4-turbo"},
		"creative":  {"gpt-4", "gpt-3.5-turbo"},
		"research":  {"gpt-4-turbo", "gpt-3.5-turbo"},
		"general":   {"gpt-3.5-turbo", "gpt-4-turbo"},
	})
	viper.SetDefault("synthesis.cascadeLadder", []string{"gpt-3.5-turbo", "gpt-4-turbo", "gpt-4"})

	viper.SetDefault("reward.judgeModel", "gpt-4")
	viper.SetDefault("reward.temperature", 0.1)
	viper.SetDefault("reward.maxTokens", 600)
	viper.SetDefault("reward.weights.relevance", 0.25)
	viper.SetDefault("reward.weights.accuracy", 0.30)
	viper.SetDefault("reward.weights.helpfulness", 0.20)
	viper.SetDefault("reward.weights.safety", 0.15)
	viper.SetDefault("reward.weights.style", 0.10)

	viper.SetDefault("counterfactual.dailyCapPerTenant", 50)
	viper.SetDefault("counterfactual.samplingRates", map[string]float64{
		"low_confidence":  0.5,
		"random_audit":    0.05,
		"quality_miss":    0.25,
		"manual_shadow":   1.0,
	})
	viper.SetDefault("counterfactual.alternativeModels", []string{"gpt-4-turbo", "gpt-3.5-turbo"})

	viper.SetDefault("storage.bulkThresholdBytes", 65536)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
