package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default endpoints for the hosted providers.
const (
	OpenRouterBaseURL = "https://openrouter.ai/api/v1/"
	OpenAIBaseURL     = "https://api.openai.com/v1/"
	AnthropicBaseURL  = "https://api.anthropic.com/"
)

// Default council membership, used to seed the council config store.
var (
	DefaultCouncilModels = []string{
		"openai/gpt-5.1",
		"openrouter:google/gemini-3-pro-preview",
		"anthropic/claude-sonnet-4-5",
		"openrouter:x-ai/grok-4",
	}
	DefaultChairmanModel = "openrouter:google/gemini-3-pro-preview"
	DefaultTitleModel    = "openrouter:google/gemini-2.5-flash"
)

// Config is the process configuration read once at startup.
type Config struct {
	Env  string
	Port string

	// DataDir is the directory for conversation storage
	DataDir           string
	CouncilConfigPath string
	CLIToolsPath      string

	OpenRouter ProviderCredentials
	OpenAI     ProviderCredentials
	Anthropic  ProviderCredentials

	// DirectProviders are provider prefixes with a hosted adapter of their own;
	// anything else falls back to OpenRouter.
	DirectProviders []string

	CouncilModels []string
	ChairmanModel string
	TitleModel    string

	ModelQueryTimeout time.Duration
	TitleGenTimeout   time.Duration

	// CORS allowed origins. Empty allows any localhost origin.
	CORSAllowedOrigins []string

	// MaxRequestBodySize is the maximum allowed request body size
	MaxRequestBodySize int64

	// HealthCacheTTL bounds how often the doctor report probes PATH.
	HealthCacheTTL time.Duration

	OTel OTelConfig
}

// ProviderCredentials holds the credential and endpoint for one hosted API.
type ProviderCredentials struct {
	APIKey  string
	BaseURL string
}

// OTelConfig configures trace and log export.
type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

// LoadConfig loads configuration from the environment, reading a .env file
// from the current or parent directory first when one exists.
func LoadConfig() Config {
	envLocations := []string{
		".env",
		"../.env",
	}

	envLoaded := false
	for _, envPath := range envLocations {
		absPath, err := filepath.Abs(envPath)
		if err != nil {
			continue
		}

		if _, err := os.Stat(absPath); err == nil {
			if err := godotenv.Load(absPath); err == nil {
				slog.Info("loaded .env", "path", absPath)
				envLoaded = true
				break
			}
		}
	}

	if !envLoaded {
		slog.Debug(".env file not found in any expected location")
	}

	cfg := Config{
		Env:               getEnv("LLM_COUNCIL_ENV", "development"),
		Port:              getEnv("PORT", "8001"),
		DataDir:           getEnv("DATA_DIR", "data/conversations"),
		CouncilConfigPath: getEnv("COUNCIL_CONFIG_PATH", "data/council_config.json"),
		CLIToolsPath:      getEnv("CLI_TOOLS_PATH", "cli_tools.yaml"),
		OpenRouter: ProviderCredentials{
			APIKey:  getEnv("OPENROUTER_API_KEY", ""),
			BaseURL: getEnv("OPENROUTER_BASE_URL", OpenRouterBaseURL),
		},
		OpenAI: ProviderCredentials{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			BaseURL: getEnv("OPENAI_BASE_URL", OpenAIBaseURL),
		},
		Anthropic: ProviderCredentials{
			APIKey:  getEnv("ANTHROPIC_API_KEY", ""),
			BaseURL: getEnv("ANTHROPIC_BASE_URL", AnthropicBaseURL),
		},
		DirectProviders:    getEnvList("DIRECT_PROVIDERS", []string{ProviderOpenAI, ProviderAnthropic}),
		CouncilModels:      getEnvList("COUNCIL_MODELS", DefaultCouncilModels),
		ChairmanModel:      getEnv("CHAIRMAN_MODEL", DefaultChairmanModel),
		TitleModel:         getEnv("TITLE_MODEL", DefaultTitleModel),
		ModelQueryTimeout:  getEnvDuration("MODEL_QUERY_TIMEOUT", 120*time.Second),
		TitleGenTimeout:    getEnvDuration("TITLE_GEN_TIMEOUT", 30*time.Second),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", nil),
		MaxRequestBodySize: getEnvInt64("MAX_REQUEST_BODY_SIZE", 1<<20),
		HealthCacheTTL:     getEnvDuration("HEALTH_CACHE_TTL", 30*time.Second),
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "llm-council"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
	}

	for name, creds := range map[string]ProviderCredentials{
		"openrouter": cfg.OpenRouter,
		"openai":     cfg.OpenAI,
		"anthropic":  cfg.Anthropic,
	} {
		if creds.APIKey == "" {
			slog.Warn("provider credential not configured; its models will fail until set", "provider", name)
		}
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

// getEnvList splits a comma-separated value, dropping empty items.
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
