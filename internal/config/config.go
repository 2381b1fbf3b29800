// Package config holds the control plane's configuration tree, loaded the
// way the rest of this codebase's ancestry does it: a JSON file overlaid
// by environment variables, with bearer/secret material sourced from the
// environment only and never persisted to the file.
package config

// Config is the root configuration for the gateway process.
type Config struct {
	Gateway     GatewayConfig     `json:"gateway"`
	Database    DatabaseConfig    `json:"database"`
	Redis       RedisConfig       `json:"redis"`
	ObjectStore ObjectStoreConfig `json:"object_store"`
	LLM         LLMConfig         `json:"llm"`
	Retrieval   RetrievalConfig   `json:"retrieval"`
	Media       MediaConfig       `json:"media"`
	Telemetry   TelemetryConfig   `json:"telemetry,omitempty"`
	Analytics   AnalyticsConfig   `json:"analytics,omitempty"`
	Outbox      OutboxConfig      `json:"outbox,omitempty"`
}

// GatewayConfig configures the HTTP/WebSocket listener.
type GatewayConfig struct {
	Host              string   `json:"host"`
	Port              int      `json:"port"`
	AllowedOrigins    []string `json:"allowed_origins,omitempty"`
	PublicBaseURL     string   `json:"public_base_url,omitempty"` // used to build media proxy URLs
	WSTokenTTLSeconds int      `json:"ws_token_ttl_seconds"`
}

// DatabaseConfig configures Postgres. PostgresDSN is never read from the
// JSON file — only from env CONTROLPLANE_POSTGRES_DSN — matching the
// teacher's GOCLAW_POSTGRES_DSN convention for secret material.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
}

// RedisConfig configures the cross-process WebSocket pub/sub bridge and
// the retrieval/embedding caches.
type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"-"`
	DB       int    `json:"db,omitempty"`
	Enabled  bool   `json:"enabled"`
}

// ObjectStoreConfig configures the S3-compatible media bucket.
type ObjectStoreConfig struct {
	Endpoint     string `json:"endpoint,omitempty"`
	Region       string `json:"region,omitempty"`
	Bucket       string `json:"bucket"`
	AccessKey    string `json:"-"`
	SecretKey    string `json:"-"`
	UsePathStyle bool   `json:"use_path_style,omitempty"`
}

// LLMConfig configures the chat-completion providers.
type LLMConfig struct {
	DefaultProvider    string         `json:"default_provider"` // "openai" | "anthropic" | "gemini"
	OpenAI             ProviderSecret `json:"openai,omitempty"`
	Anthropic          ProviderSecret `json:"anthropic,omitempty"`
	Gemini             ProviderSecret `json:"gemini,omitempty"`
	MaxRetries         int            `json:"max_retries"`
	BreakerThreshold   int            `json:"breaker_threshold"`
	BreakerOpenSeconds int            `json:"breaker_open_seconds"`
}

// ProviderSecret holds a provider API key, sourced from env only.
type ProviderSecret struct {
	APIKey  string `json:"-"`
	APIBase string `json:"api_base,omitempty"`
}

// RetrievalConfig configures C5 defaults, overridable per bot.
type RetrievalConfig struct {
	Mode            string  `json:"mode"` // "vector" | "hybrid_rrf" | "rerank"
	RerankerURL     string  `json:"reranker_url,omitempty"`
	InitialK        int     `json:"initial_k"`
	HybridWeightV   float64 `json:"hybrid_weight_vector"`
	HybridWeightL   float64 `json:"hybrid_weight_lexical"`
	RRFConstant     int     `json:"rrf_constant"`
	CacheTTLSeconds int     `json:"cache_ttl_seconds"`
}

// MediaConfig bounds the media fetch worker.
type MediaConfig struct {
	MaxInflightPerBot int `json:"max_inflight_per_bot"`
}

// TelemetryConfig configures the optional OpenTelemetry exporter.
type TelemetryConfig struct {
	Enabled      bool   `json:"enabled"`
	OTLPEndpoint string `json:"otlp_endpoint,omitempty"`
	ServiceName  string `json:"service_name,omitempty"`
}

// AnalyticsConfig configures the optional ClickHouse analytics sink.
type AnalyticsConfig struct {
	Enabled bool   `json:"enabled"`
	DSN     string `json:"-"`
}

// OutboxConfig configures the optional Kafka event outbox.
type OutboxConfig struct {
	Enabled bool     `json:"enabled"`
	Brokers []string `json:"brokers,omitempty"`
	Topic   string   `json:"topic,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			WSTokenTTLSeconds: 60,
		},
		LLM: LLMConfig{
			DefaultProvider:    "openai",
			MaxRetries:         3,
			BreakerThreshold:   5,
			BreakerOpenSeconds: 30,
		},
		Retrieval: RetrievalConfig{
			Mode:          "vector",
			InitialK:      20,
			HybridWeightV: 0.7,
			HybridWeightL: 0.3,
			RRFConstant:   60,
		},
		Media: MediaConfig{
			MaxInflightPerBot: 4,
		},
	}
}
