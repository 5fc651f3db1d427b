package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds service configuration derived from environment variables.
type Config struct {
	Port             string
	DBPath           string
	BlobURL          string
	ScratchDir       string
	DashboardBaseURL string

	PhoneClientID     string
	PhoneClientSecret string
	PhoneAccountID    string
	PhoneTokenURL     string

	OpenAIKey          string
	OpenAIBaseURL      string
	LLMModelPrimary    string
	LLMModelLight      string
	LLMModelClassifier string
	STTModel           string
	STTLanguage        string

	NotifyTimeout   time.Duration
	PipelineTimeout time.Duration
	PromptSeedPath  string
}

const (
	defaultPort            = "8080"
	defaultDBPath          = "callfeedback.db"
	defaultBlobURL         = "file:///var/lib/callfeedback/blobs?create_dir=true"
	defaultTokenURL        = "https://zoom.us/oauth/token"
	defaultModelPrimary    = "gpt-4o"
	defaultModelLight      = "gpt-4o-mini"
	defaultSTTModel        = "whisper-1"
	defaultSTTLanguage     = "ja"
	defaultNotifyTimeout   = 10 * time.Second
	defaultPipelineTimeout = 10 * time.Minute
	defaultPromptSeedPath  = "prompts.yaml"
)

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function so tests can supply values.
func FromEnv(getenv func(string) string) (Config, error) {
	or := func(k, def string) string {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			return v
		}
		return def
	}
	cfg := Config{
		Port:              or("PORT", defaultPort),
		DBPath:            or("DB_PATH", defaultDBPath),
		BlobURL:           or("BLOB_URL", defaultBlobURL),
		ScratchDir:        or("SCRATCH_DIR", os.TempDir()),
		DashboardBaseURL:  strings.TrimRight(or("DASHBOARD_BASE_URL", "http://localhost:3000"), "/"),
		PhoneClientID:     or("PHONE_CLIENT_ID", ""),
		PhoneClientSecret: or("PHONE_CLIENT_SECRET", ""),
		PhoneAccountID:    or("PHONE_ACCOUNT_ID", ""),
		PhoneTokenURL:     or("PHONE_TOKEN_URL", defaultTokenURL),
		OpenAIKey:         or("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     or("OPENAI_BASE_URL", ""),
		LLMModelPrimary:   or("LLM_MODEL_PRIMARY", defaultModelPrimary),
		LLMModelLight:     or("LLM_MODEL_LIGHT", defaultModelLight),
		STTModel:          or("STT_MODEL", defaultSTTModel),
		STTLanguage:       or("STT_LANGUAGE", defaultSTTLanguage),
		PromptSeedPath:    or("PROMPT_SEED_PATH", defaultPromptSeedPath),
	}
	cfg.LLMModelClassifier = or("LLM_MODEL_CLASSIFIER", cfg.LLMModelLight)

	var err error
	if cfg.NotifyTimeout, err = durationOr(getenv("NOTIFY_TIMEOUT"), defaultNotifyTimeout); err != nil {
		return Config{}, fmt.Errorf("NOTIFY_TIMEOUT: %w", err)
	}
	if cfg.PipelineTimeout, err = durationOr(getenv("PIPELINE_TIMEOUT"), defaultPipelineTimeout); err != nil {
		return Config{}, fmt.Errorf("PIPELINE_TIMEOUT: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings needed to run the webhook service.
func (c Config) Validate() error {
	var errs []error
	if c.PhoneClientID == "" || c.PhoneClientSecret == "" {
		errs = append(errs, errors.New("PHONE_CLIENT_ID and PHONE_CLIENT_SECRET are required"))
	}
	if c.OpenAIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	return errors.Join(errs...)
}

// durationOr accepts Go durations ("30s") or bare seconds ("30").
func durationOr(raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", raw)
	}
	return d, nil
}
