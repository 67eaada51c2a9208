package main

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PromptDelivery selects how a flattened prompt reaches a CLI tool.
type PromptDelivery string

const (
	// DeliverStdin pipes the prompt to the process's standard input.
	DeliverStdin PromptDelivery = "stdin"
	// DeliverFlag passes the prompt as the value of PromptFlag.
	DeliverFlag PromptDelivery = "flag"
	// DeliverArg appends the prompt as a trailing positional argument.
	DeliverArg PromptDelivery = "arg"
	// DeliverOutputFile pipes the prompt on stdin and passes a temporary file
	// as OutputFlag; the answer is read from that file after exit. Used by
	// tools whose stdout carries progress noise.
	DeliverOutputFile PromptDelivery = "output_file"
)

// CLITool describes how to run one local CLI backend.
type CLITool struct {
	Command    string         `yaml:"command" json:"command"`
	Args       []string       `yaml:"args" json:"args"`
	Timeout    time.Duration  `yaml:"timeout" json:"timeout"`
	Delivery   PromptDelivery `yaml:"delivery" json:"delivery"`
	PromptFlag string         `yaml:"prompt_flag,omitempty" json:"prompt_flag,omitempty"`
	OutputFlag string         `yaml:"output_flag,omitempty" json:"output_flag,omitempty"`
}

// DefaultCLITools are the built-in descriptors, keyed by the name used after
// "cli:" in a model identifier.
func DefaultCLITools() map[string]CLITool {
	return map[string]CLITool{
		"gemini": {
			Command:  "gemini",
			Timeout:  120 * time.Second,
			Delivery: DeliverStdin,
		},
		"claude": {
			Command:  "claude",
			Args:     []string{"-p"},
			Timeout:  120 * time.Second,
			Delivery: DeliverStdin,
		},
		"codex": {
			Command:    "codex",
			Args:       []string{"exec", "--skip-git-repo-check"},
			Timeout:    120 * time.Second,
			Delivery:   DeliverOutputFile,
			OutputFlag: "-o",
		},
	}
}

type cliToolsFile struct {
	Tools map[string]CLITool `yaml:"tools"`
}

// LoadCLITools returns the defaults overlaid with descriptors from a YAML file.
// A missing file is not an error.
//
//	tools:
//	  ollama:
//	    command: ollama
//	    args: [run, llama3]
//	    delivery: arg
//	    timeout: 3m
func LoadCLITools(path string) (map[string]CLITool, error) {
	tools := DefaultCLITools()
	if path == "" {
		return tools, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return tools, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CLI tools file: %w", err)
	}

	var file cliToolsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse CLI tools file %s: %w", path, err)
	}

	for name, tool := range file.Tools {
		if err := tool.validate(); err != nil {
			return nil, fmt.Errorf("cli tool %q: %w", name, err)
		}
	}
	maps.Copy(tools, file.Tools)
	return tools, nil
}

func (t CLITool) validate() error {
	if t.Command == "" {
		return errors.New("command is required")
	}
	switch t.delivery() {
	case DeliverStdin, DeliverArg:
	case DeliverFlag:
		if t.PromptFlag == "" {
			return errors.New("prompt_flag is required for flag delivery")
		}
	case DeliverOutputFile:
		if t.OutputFlag == "" {
			return errors.New("output_flag is required for output_file delivery")
		}
	default:
		return fmt.Errorf("unknown delivery %q", t.Delivery)
	}
	return nil
}

func (t CLITool) delivery() PromptDelivery {
	if t.Delivery == "" {
		return DeliverStdin
	}
	return t.Delivery
}
