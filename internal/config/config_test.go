package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callfeedback/internal/types"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "gpt-4o", cfg.LLMModelPrimary)
	assert.Equal(t, "gpt-4o-mini", cfg.LLMModelLight)
	assert.Equal(t, cfg.LLMModelLight, cfg.LLMModelClassifier)
	assert.Equal(t, 10*time.Second, cfg.NotifyTimeout)
	assert.Equal(t, 10*time.Minute, cfg.PipelineTimeout)
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"PORT":               "9000",
		"NOTIFY_TIMEOUT":     "5",
		"PIPELINE_TIMEOUT":   "90s",
		"DASHBOARD_BASE_URL": "https://dash.example.com/",
	}))
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.NotifyTimeout)
	assert.Equal(t, 90*time.Second, cfg.PipelineTimeout)
	assert.Equal(t, "https://dash.example.com", cfg.DashboardBaseURL)
}

func TestFromEnvRejectsBadDuration(t *testing.T) {
	_, err := FromEnv(envMap(map[string]string{"NOTIFY_TIMEOUT": "soon"}))
	assert.Error(t, err)
}

func TestValidateRequiresCredentials(t *testing.T) {
	cfg, err := FromEnv(envMap(nil))
	require.NoError(t, err)
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PHONE_CLIENT_ID")
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")

	cfg.PhoneClientID, cfg.PhoneClientSecret, cfg.OpenAIKey = "id", "secret", "key"
	assert.NoError(t, cfg.Validate())
}

func TestParsePromptSeed(t *testing.T) {
	seed, err := ParsePromptSeed([]byte(`
prompts:
  - type: primary_outcome
    content: |
      Coach the rep.
  - type: gatekeeper_outcome
    content: Help them get past reception.
`))
	require.NoError(t, err)
	require.Len(t, seed.Prompts, 2)
	assert.Equal(t, types.PromptPrimaryOutcome, seed.Prompts[0].Type)
	assert.Equal(t, "Coach the rep.\n", seed.Prompts[0].Content)
}

func TestParsePromptSeedRejectsUnknownType(t *testing.T) {
	_, err := ParsePromptSeed([]byte("prompts:\n  - type: closing\n    content: x\n"))
	assert.Error(t, err)

	_, err = ParsePromptSeed([]byte("prompts:\n  - type: primary_outcome\n    content: a\n  - type: primary_outcome\n    content: b\n"))
	assert.Error(t, err)
}
