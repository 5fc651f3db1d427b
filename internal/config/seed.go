package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"callfeedback/internal/types"
)

// PromptSeed is the YAML file holding the system-wide default prompts.
//
//	prompts:
//	  - type: primary_outcome
//	    content: |
//	      You are a sales coach...
type PromptSeed struct {
	Prompts []SeedPrompt `yaml:"prompts"`
}

type SeedPrompt struct {
	Type    types.PromptType `yaml:"type"`
	Content string           `yaml:"content"`
}

// LoadPromptSeed reads and validates a prompt seed file.
func LoadPromptSeed(path string) (PromptSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PromptSeed{}, fmt.Errorf("read prompt seed: %w", err)
	}
	return ParsePromptSeed(data)
}

func ParsePromptSeed(data []byte) (PromptSeed, error) {
	var seed PromptSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return PromptSeed{}, fmt.Errorf("parse prompt seed: %w", err)
	}
	seen := map[types.PromptType]bool{}
	for i, p := range seed.Prompts {
		if !p.Type.Valid() {
			return PromptSeed{}, fmt.Errorf("prompt %d: unknown type %q", i, p.Type)
		}
		if strings.TrimSpace(p.Content) == "" {
			return PromptSeed{}, fmt.Errorf("prompt %d (%s): empty content", i, p.Type)
		}
		if seen[p.Type] {
			return PromptSeed{}, fmt.Errorf("prompt %d: duplicate type %q", i, p.Type)
		}
		seen[p.Type] = true
	}
	return seed, nil
}
