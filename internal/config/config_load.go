package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Load reads config from a JSON file, then overlays env vars. A missing
// file is not an error — Default() plus env overrides is a valid config
// for local development.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // best-effort local .env; ignored in prod

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			var n int
			if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
				*dst = n
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "1" || v == "true"
		}
	}

	envStr("CONTROLPLANE_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("CONTROLPLANE_REDIS_ADDR", &c.Redis.Addr)
	envStr("CONTROLPLANE_REDIS_PASSWORD", &c.Redis.Password)
	envBool("CONTROLPLANE_REDIS_ENABLED", &c.Redis.Enabled)

	envStr("CONTROLPLANE_S3_ENDPOINT", &c.ObjectStore.Endpoint)
	envStr("CONTROLPLANE_S3_BUCKET", &c.ObjectStore.Bucket)
	envStr("CONTROLPLANE_S3_ACCESS_KEY", &c.ObjectStore.AccessKey)
	envStr("CONTROLPLANE_S3_SECRET_KEY", &c.ObjectStore.SecretKey)

	envStr("CONTROLPLANE_OPENAI_API_KEY", &c.LLM.OpenAI.APIKey)
	envStr("CONTROLPLANE_OPENAI_API_BASE", &c.LLM.OpenAI.APIBase)
	envStr("CONTROLPLANE_ANTHROPIC_API_KEY", &c.LLM.Anthropic.APIKey)
	envStr("CONTROLPLANE_GEMINI_API_KEY", &c.LLM.Gemini.APIKey)

	envStr("CONTROLPLANE_CLICKHOUSE_DSN", &c.Analytics.DSN)
	envBool("CONTROLPLANE_ANALYTICS_ENABLED", &c.Analytics.Enabled)

	envStr("CONTROLPLANE_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)
	envBool("CONTROLPLANE_TELEMETRY_ENABLED", &c.Telemetry.Enabled)

	envBool("CONTROLPLANE_OUTBOX_ENABLED", &c.Outbox.Enabled)
	if v := os.Getenv("CONTROLPLANE_KAFKA_BROKERS"); v != "" {
		c.Outbox.Brokers = splitCSV(v)
	}
	envStr("CONTROLPLANE_KAFKA_TOPIC", &c.Outbox.Topic)

	envInt("CONTROLPLANE_PORT", &c.Gateway.Port)
	envStr("CONTROLPLANE_HOST", &c.Gateway.Host)
	envStr("CONTROLPLANE_PUBLIC_BASE_URL", &c.Gateway.PublicBaseURL)
}

func splitCSV(v string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// BotCredentials is the per-bot secret material loaded by the orchestrator
// from the bot store — never from this process-wide Config.
type BotCredentials struct {
	ChannelToken  string
	ChannelSecret string
}

// Configured reports whether a bot has the minimum credentials needed to
// serve webhooks.
func (b BotCredentials) Configured() bool {
	return b.ChannelToken != "" && b.ChannelSecret != ""
}
