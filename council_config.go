package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// CouncilConfigStore persists council membership as a JSON file. Load reads the
// file on every call; a missing file yields the seed configuration.
type CouncilConfigStore struct {
	path string
	seed CouncilConfig
	mu   sync.Mutex
}

// NewCouncilConfigStore creates a store at path seeded with defaults.
func NewCouncilConfigStore(path string, seed CouncilConfig) *CouncilConfigStore {
	return &CouncilConfigStore{path: path, seed: seed}
}

// Load returns the current membership.
func (s *CouncilConfigStore) Load() (CouncilConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return cloneCouncilConfig(s.seed), nil
	}
	if err != nil {
		return CouncilConfig{}, fmt.Errorf("failed to read council config: %w", err)
	}

	var cfg CouncilConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return CouncilConfig{}, fmt.Errorf("failed to parse council config: %w", err)
	}
	return cfg, nil
}

// Save validates and atomically replaces the membership.
func (s *CouncilConfigStore) Save(cfg CouncilConfig) error {
	cfg, err := normalizeCouncilConfig(cfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal council config: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write council config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace council config: %w", err)
	}
	return nil
}

// ErrInvalidCouncilConfig is returned by Save for unusable membership.
var ErrInvalidCouncilConfig = errors.New("invalid council config")

func normalizeCouncilConfig(cfg CouncilConfig) (CouncilConfig, error) {
	out := CouncilConfig{ChairmanModel: strings.TrimSpace(cfg.ChairmanModel)}
	seen := make(map[string]bool, len(cfg.CouncilModels))
	for _, model := range cfg.CouncilModels {
		model = strings.TrimSpace(model)
		if model == "" {
			continue
		}
		if seen[model] {
			return CouncilConfig{}, fmt.Errorf("%w: duplicate council model %q", ErrInvalidCouncilConfig, model)
		}
		seen[model] = true
		out.CouncilModels = append(out.CouncilModels, model)
	}
	if len(out.CouncilModels) == 0 {
		return CouncilConfig{}, fmt.Errorf("%w: at least one council model is required", ErrInvalidCouncilConfig)
	}
	if out.ChairmanModel == "" {
		return CouncilConfig{}, fmt.Errorf("%w: chairman model is required", ErrInvalidCouncilConfig)
	}
	return out, nil
}

func cloneCouncilConfig(cfg CouncilConfig) CouncilConfig {
	return CouncilConfig{
		CouncilModels: append([]string(nil), cfg.CouncilModels...),
		ChairmanModel: cfg.ChairmanModel,
	}
}
