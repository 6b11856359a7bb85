package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/abdhe/essay-forge/pkg/provider"
)

// keyEnv lists, per provider, the variables holding comma-separated key
// lists followed by single-key fallbacks.
var keyEnv = map[string][]string{
	provider.OpenAI:    {"OPENAI_API_KEYS", "OPENAI_API_KEY"},
	provider.Anthropic: {"ANTHROPIC_API_KEYS", "ANTHROPIC_API_KEY"},
	provider.Gemini:    {"GEMINI_API_KEYS", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// applyEnv overlays environment variables on cfg.
func applyEnv(cfg *Config) {
	g := &cfg.Generation
	g.BaseMaxTokens = envIntOrDefault("BASE_MAX_TOKENS", g.BaseMaxTokens)
	g.MaxAttempts = envIntOrDefault("MAX_ATTEMPTS", g.MaxAttempts)
	g.RequestTimeout = envDurationOrDefault("REQUEST_TIMEOUT", g.RequestTimeout)

	cfg.Server.MetricsPort = envOrDefault("METRICS_PORT", cfg.Server.MetricsPort)
	cfg.Server.GRPCPort = envOrDefault("GRPC_PORT", cfg.Server.GRPCPort)

	cfg.Redis.Addr = envOrDefault("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envIntOrDefault("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.TTL = envDurationOrDefault("RESULT_TTL", cfg.Redis.TTL)

	if cfg.Keys == nil {
		cfg.Keys = map[string][]string{}
	}
	for p, vars := range keyEnv {
		for _, v := range vars {
			if keys := splitKeys(os.Getenv(v)); len(keys) > 0 {
				cfg.Keys[p] = keys
				break
			}
		}
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func splitKeys(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var keys []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}
