package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestHealthChecker(council CouncilConfig, found map[string]bool) (*HealthChecker, *int) {
	cfg := Config{
		OpenRouter:      ProviderCredentials{APIKey: "sk-or-v1-abcdef123456"},
		DirectProviders: []string{ProviderOpenAI, ProviderAnthropic},
		HealthCacheTTL:  time.Minute,
	}
	tools := map[string]CLITool{
		"claude": {Command: "claude"},
		"codex":  {Command: "codex"},
	}
	checker := NewHealthChecker(cfg, tools, staticCouncilConfig{cfg: council})

	lookups := 0
	checker.lookPath = func(command string) (string, error) {
		lookups++
		if found[command] {
			return "/usr/local/bin/" + command, nil
		}
		return "", errors.New("not found")
	}
	return checker, &lookups
}

func TestHealthCheckDegraded(t *testing.T) {
	checker, _ := newTestHealthChecker(CouncilConfig{
		CouncilModels: []string{"openrouter:x-ai/grok-4", "cli:claude", "openai/gpt-5.1", "google/gemini"},
		ChairmanModel: "cli:codex",
	}, map[string]bool{"claude": true})

	report, err := checker.Check(context.Background(), true)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	if report.Status != StatusDegraded || report.AllReady {
		t.Errorf("Status = %s, AllReady = %v, want degraded", report.Status, report.AllReady)
	}

	openRouter := report.APIKeys["openrouter"]
	if !openRouter.Configured || openRouter.KeyPreview != "sk-or-v1..." {
		t.Errorf("openrouter key = %+v", openRouter)
	}
	if report.APIKeys["openai"].Configured || report.APIKeys["openai"].KeyPreview != "" {
		t.Errorf("openai key = %+v, want unconfigured", report.APIKeys["openai"])
	}

	if claude := report.CLITools["claude"]; !claude.Available || claude.Path != "/usr/local/bin/claude" {
		t.Errorf("claude = %+v", claude)
	}
	if report.CLITools["codex"].Available {
		t.Error("codex should be unavailable")
	}

	want := []ModelStatus{
		{Identifier: "openrouter:x-ai/grok-4", Type: "openrouter", Ready: true},
		{Identifier: "cli:claude", Type: "cli", Ready: true},
		{Identifier: "openai/gpt-5.1", Type: "openai", Ready: false},
		{Identifier: "google/gemini", Type: "openrouter", Ready: true},
	}
	if len(report.CouncilModels) != len(want) {
		t.Fatalf("Got %d council model statuses", len(report.CouncilModels))
	}
	for i, status := range report.CouncilModels {
		if status != want[i] {
			t.Errorf("Model %d = %+v, want %+v", i, status, want[i])
		}
	}
	if report.ChairmanModel.Ready || report.ChairmanModel.Type != "cli" {
		t.Errorf("Chairman = %+v", report.ChairmanModel)
	}
}

func TestHealthCheckHealthy(t *testing.T) {
	checker, _ := newTestHealthChecker(CouncilConfig{
		CouncilModels: []string{"openrouter:x-ai/grok-4", "cli:claude"},
		ChairmanModel: "cli:codex",
	}, map[string]bool{"claude": true, "codex": true})

	report, err := checker.Check(context.Background(), false)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if report.Status != StatusHealthy || !report.AllReady {
		t.Errorf("Report = %+v, want healthy", report)
	}
}

func TestHealthCheckCache(t *testing.T) {
	checker, lookups := newTestHealthChecker(CouncilConfig{
		CouncilModels: []string{"cli:claude"},
		ChairmanModel: "cli:claude",
	}, map[string]bool{"claude": true})

	first, _ := checker.Check(context.Background(), false)
	afterFirst := *lookups
	if afterFirst == 0 {
		t.Fatal("First check did not probe PATH")
	}

	second, _ := checker.Check(context.Background(), false)
	if *lookups != afterFirst {
		t.Error("Cached check probed PATH again")
	}
	if !second.CheckedAt.Equal(first.CheckedAt) {
		t.Error("Cached check returned a different report")
	}

	checker.Check(context.Background(), true)
	if *lookups == afterFirst {
		t.Error("Refresh did not probe PATH")
	}
}

func TestHealthCheckConfigError(t *testing.T) {
	checker := NewHealthChecker(Config{}, nil, staticCouncilConfig{err: errors.New("unreadable")})
	if _, err := checker.Check(context.Background(), true); err == nil {
		t.Error("Expected error when council config cannot be loaded")
	}
}

func TestKeyPreview(t *testing.T) {
	tests := map[string]string{
		"":                "",
		"short":           "short...",
		"sk-ant-api03-xx": "sk-ant-a...",
	}
	for key, want := range tests {
		if got := keyPreview(key); got != want {
			t.Errorf("keyPreview(%q) = %q, want %q", key, got, want)
		}
	}
}
