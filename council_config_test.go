package main

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func TestCouncilConfigStoreSeed(t *testing.T) {
	seed := CouncilConfig{CouncilModels: []string{"m/a", "m/b"}, ChairmanModel: "m/c"}
	store := NewCouncilConfigStore(filepath.Join(t.TempDir(), "council.json"), seed)

	cfg, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(cfg, seed) {
		t.Errorf("Load = %+v, want seed %+v", cfg, seed)
	}

	// Callers must not be able to mutate the seed through a loaded snapshot.
	cfg.CouncilModels[0] = "mutated"
	again, _ := store.Load()
	if again.CouncilModels[0] != "m/a" {
		t.Error("Seed was mutated through a loaded config")
	}
}

func TestCouncilConfigStoreSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "council.json")
	store := NewCouncilConfigStore(path, CouncilConfig{CouncilModels: []string{"seed/x"}, ChairmanModel: "seed/x"})

	err := store.Save(CouncilConfig{CouncilModels: []string{" cli:claude ", "", "openai/gpt-5.1"}, ChairmanModel: " anthropic/claude "})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	cfg, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := CouncilConfig{CouncilModels: []string{"cli:claude", "openai/gpt-5.1"}, ChairmanModel: "anthropic/claude"}
	if !reflect.DeepEqual(cfg, want) {
		t.Errorf("Load = %+v, want %+v", cfg, want)
	}

	// A second store on the same file sees the change without restart.
	other := NewCouncilConfigStore(path, CouncilConfig{})
	if cfg, _ := other.Load(); !reflect.DeepEqual(cfg, want) {
		t.Errorf("Fresh store Load = %+v", cfg)
	}
}

func TestCouncilConfigStoreRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  CouncilConfig
	}{
		{"no members", CouncilConfig{ChairmanModel: "m/c"}},
		{"blank members", CouncilConfig{CouncilModels: []string{" ", ""}, ChairmanModel: "m/c"}},
		{"no chairman", CouncilConfig{CouncilModels: []string{"m/a"}}},
		{"duplicate member", CouncilConfig{CouncilModels: []string{"m/a", "m/a"}, ChairmanModel: "m/c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seed := CouncilConfig{CouncilModels: []string{"seed/x"}, ChairmanModel: "seed/x"}
			store := NewCouncilConfigStore(filepath.Join(t.TempDir(), "council.json"), seed)

			err := store.Save(tt.cfg)
			if !errors.Is(err, ErrInvalidCouncilConfig) {
				t.Errorf("Save error = %v, want ErrInvalidCouncilConfig", err)
			}
			if cfg, _ := store.Load(); !reflect.DeepEqual(cfg, seed) {
				t.Errorf("Rejected save changed the config: %+v", cfg)
			}
		})
	}
}

func TestCouncilConfigStoreCorruptFile(t *testing.T) {
	helper := NewTestHelper(t)
	path := helper.WriteFile("council.json", "{not json")
	store := NewCouncilConfigStore(path, CouncilConfig{})

	_, err := store.Load()
	helper.AssertError(err, "Corrupt config should fail to load")
}
