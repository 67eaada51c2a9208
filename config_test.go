package main

import (
	"os"
	"reflect"
	"testing"
	"time"
)

// TestLoadConfig tests configuration loading
func TestLoadConfig(t *testing.T) {
	t.Run("loads credentials from environment", func(t *testing.T) {
		t.Setenv("OPENROUTER_API_KEY", "test-key-12345")
		t.Setenv("ANTHROPIC_BASE_URL", "http://localhost:9999/")

		cfg := LoadConfig()

		if cfg.OpenRouter.APIKey != "test-key-12345" {
			t.Errorf("API key = %q, want 'test-key-12345'", cfg.OpenRouter.APIKey)
		}
		if cfg.Anthropic.BaseURL != "http://localhost:9999/" {
			t.Errorf("Anthropic base URL = %q", cfg.Anthropic.BaseURL)
		}
	})

	t.Run("council overrides", func(t *testing.T) {
		t.Setenv("COUNCIL_MODELS", "openai/gpt-5.1, cli:claude ,,anthropic/claude-sonnet-4-5")
		t.Setenv("CHAIRMAN_MODEL", "cli:claude")
		t.Setenv("MODEL_QUERY_TIMEOUT", "45")
		t.Setenv("LLM_COUNCIL_ENV", "production")

		cfg := LoadConfig()

		want := []string{"openai/gpt-5.1", "cli:claude", "anthropic/claude-sonnet-4-5"}
		if !reflect.DeepEqual(cfg.CouncilModels, want) {
			t.Errorf("CouncilModels = %v, want %v", cfg.CouncilModels, want)
		}
		if cfg.ChairmanModel != "cli:claude" {
			t.Errorf("ChairmanModel = %q", cfg.ChairmanModel)
		}
		if cfg.ModelQueryTimeout != 45*time.Second {
			t.Errorf("ModelQueryTimeout = %s, want 45s", cfg.ModelQueryTimeout)
		}
		if !cfg.IsProduction() || cfg.IsDevelopment() {
			t.Error("Env should be production")
		}
	})
}

// TestConfigDefaults tests the built-in defaults
func TestConfigDefaults(t *testing.T) {
	for _, key := range []string{"COUNCIL_MODELS", "CHAIRMAN_MODEL", "DIRECT_PROVIDERS", "MODEL_QUERY_TIMEOUT", "OTEL_EXPORTER_OTLP_ENDPOINT"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	cfg := LoadConfig()

	if len(cfg.CouncilModels) == 0 {
		t.Error("CouncilModels should not be empty")
	}
	if cfg.ChairmanModel != DefaultChairmanModel {
		t.Errorf("ChairmanModel = %q, want %q", cfg.ChairmanModel, DefaultChairmanModel)
	}
	if !reflect.DeepEqual(cfg.DirectProviders, []string{ProviderOpenAI, ProviderAnthropic}) {
		t.Errorf("DirectProviders = %v", cfg.DirectProviders)
	}
	if cfg.OTel.Enabled() {
		t.Error("OTel should be disabled without an endpoint")
	}

	seen := make(map[string]bool)
	for _, model := range DefaultCouncilModels {
		if seen[model] {
			t.Errorf("Duplicate default council model %q", model)
		}
		seen[model] = true
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"90s", 90 * time.Second},
		{"2m", 2 * time.Minute},
		{"30", 30 * time.Second},
		{"soon", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			if got := getEnvDuration("TEST_DURATION", time.Minute); got != tt.want {
				t.Errorf("getEnvDuration(%q) = %s, want %s", tt.value, got, tt.want)
			}
		})
	}

	if got := getEnvDuration("LLM_COUNCIL_UNSET_DURATION", 5*time.Second); got != 5*time.Second {
		t.Errorf("Unset variable = %s, want fallback", got)
	}
}

func TestGetEnvList(t *testing.T) {
	fallback := []string{"x"}

	t.Setenv("TEST_LIST", " a, b ,,c ")
	if got := getEnvList("TEST_LIST", fallback); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("getEnvList = %v", got)
	}

	t.Setenv("TEST_LIST", "   ")
	if got := getEnvList("TEST_LIST", fallback); !reflect.DeepEqual(got, fallback) {
		t.Errorf("Blank value = %v, want fallback", got)
	}
}

func TestGetEnvInt64(t *testing.T) {
	t.Setenv("TEST_INT", "2048")
	if got := getEnvInt64("TEST_INT", 1); got != 2048 {
		t.Errorf("getEnvInt64 = %d", got)
	}
	t.Setenv("TEST_INT", "lots")
	if got := getEnvInt64("TEST_INT", 1); got != 1 {
		t.Errorf("Invalid value = %d, want fallback", got)
	}
}
