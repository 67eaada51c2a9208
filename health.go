package main

import (
	"context"
	"maps"
	"os/exec"
	"slices"
	"time"
)

// Doctor report statuses.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// KeyStatus reports whether a provider credential is set.
type KeyStatus struct {
	Configured bool   `json:"configured"`
	KeyPreview string `json:"key_preview,omitempty"`
}

// CLIToolStatus reports whether a CLI tool's command resolves on PATH.
type CLIToolStatus struct {
	Command   string `json:"command"`
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
}

// ModelStatus is the readiness of one configured model identifier.
type ModelStatus struct {
	Identifier string `json:"identifier"`
	Type       string `json:"type"`
	Ready      bool   `json:"ready"`
}

// HealthReport is the doctor view of providers and council membership.
type HealthReport struct {
	Status        string                   `json:"status"`
	APIKeys       map[string]KeyStatus     `json:"api_keys"`
	CLITools      map[string]CLIToolStatus `json:"cli_tools"`
	CouncilModels []ModelStatus            `json:"council_models"`
	ChairmanModel ModelStatus              `json:"chairman_model"`
	AllReady      bool                     `json:"all_ready"`
	CheckedAt     time.Time                `json:"checked_at"`
}

// HealthChecker builds doctor reports. Reports are cached because every
// report probes PATH for each CLI tool.
type HealthChecker struct {
	keys            map[string]string
	tools           map[string]CLITool
	directProviders []string
	configs         CouncilConfigSource
	cache           *TTLCache[HealthReport]
	lookPath        func(string) (string, error)
}

// NewHealthChecker creates a checker over the process configuration.
func NewHealthChecker(cfg Config, tools map[string]CLITool, configs CouncilConfigSource) *HealthChecker {
	return &HealthChecker{
		keys: map[string]string{
			RouteOpenRouter.String(): cfg.OpenRouter.APIKey,
			RouteOpenAI.String():     cfg.OpenAI.APIKey,
			RouteAnthropic.String():  cfg.Anthropic.APIKey,
		},
		tools:           tools,
		directProviders: cfg.DirectProviders,
		configs:         configs,
		cache:           NewTTLCache[HealthReport](cfg.HealthCacheTTL),
		lookPath:        exec.LookPath,
	}
}

// Check returns the doctor report, from cache unless refresh is set.
func (h *HealthChecker) Check(ctx context.Context, refresh bool) (HealthReport, error) {
	if !refresh {
		if report, ok := h.cache.Get(); ok {
			return report, nil
		}
	}

	_, span := tracer.Start(ctx, "health.check")
	defer span.End()

	cfg, err := h.configs.Load()
	if err != nil {
		return HealthReport{}, err
	}

	report := HealthReport{
		APIKeys:   make(map[string]KeyStatus, len(h.keys)),
		CLITools:  make(map[string]CLIToolStatus, len(h.tools)),
		CheckedAt: time.Now().UTC(),
	}

	for name, key := range h.keys {
		report.APIKeys[name] = KeyStatus{
			Configured: key != "",
			KeyPreview: keyPreview(key),
		}
	}

	for _, name := range slices.Sorted(maps.Keys(h.tools)) {
		status := CLIToolStatus{Command: h.tools[name].Command}
		if path, err := h.lookPath(status.Command); err == nil {
			status.Available = true
			status.Path = path
		}
		report.CLITools[name] = status
	}

	report.AllReady = true
	for _, model := range cfg.CouncilModels {
		status := h.modelStatus(model, report)
		report.AllReady = report.AllReady && status.Ready
		report.CouncilModels = append(report.CouncilModels, status)
	}
	report.ChairmanModel = h.modelStatus(cfg.ChairmanModel, report)
	report.AllReady = report.AllReady && report.ChairmanModel.Ready

	report.Status = StatusDegraded
	if report.AllReady {
		report.Status = StatusHealthy
	}

	h.cache.Set(report)
	return report, nil
}

func (h *HealthChecker) modelStatus(model string, report HealthReport) ModelStatus {
	route := ParseModelIdentifier(model, h.directProviders)
	status := ModelStatus{Identifier: model, Type: route.Kind.String()}
	if route.Kind == RouteCLI {
		status.Ready = report.CLITools[route.Model].Available
	} else {
		status.Ready = report.APIKeys[route.Kind.String()].Configured
	}
	return status
}

func keyPreview(key string) string {
	if key == "" {
		return ""
	}
	if len(key) > 8 {
		key = key[:8]
	}
	return key + "..."
}
