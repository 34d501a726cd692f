package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tjfontaine/nurseiq/internal/catalog"
)

type Config struct {
	Server  ServerConfig    `koanf:"server"`
	AI      AIConfig        `koanf:"ai"`
	FDA     FDAConfig       `koanf:"fda"`
	Speech  SpeechConfig    `koanf:"speech"`
	Audit   AuditConfig     `koanf:"audit"`
	Catalog catalog.Catalog `koanf:"catalog"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	StaticDir      string        `koanf:"static_dir"` // Optional: directory with the browser frontend
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// AIConfig configures the chat-completion deployment used by the
// documentation and patient communication capabilities.
type AIConfig struct {
	Endpoint        string        `koanf:"endpoint"`
	APIKey          string        `koanf:"api_key"`
	Deployment      string        `koanf:"deployment"`
	APIVersion      string        `koanf:"api_version"`
	Model           string        `koanf:"model"` // Used to pick the tokenizer for prompt budgeting
	Timeout         time.Duration `koanf:"timeout"`
	MaxPromptTokens int           `koanf:"max_prompt_tokens"`
}

// Configured reports whether the deployment has both endpoint and key.
func (c AIConfig) Configured() bool {
	return c.Endpoint != "" && c.APIKey != ""
}

type FDAConfig struct {
	BaseURL string        `koanf:"base_url"`
	APIKey  string        `koanf:"api_key"` // Optional: raises openFDA rate limits
	Timeout time.Duration `koanf:"timeout"`
}

type SpeechConfig struct {
	Key    string `koanf:"key"`
	Region string `koanf:"region"`
}

type AuditConfig struct {
	UserID string `koanf:"user_id"`
}

// wellKnownEnv maps the collaborator environment variables used by existing
// deployments onto config keys. NURSEIQ_* variables take precedence.
var wellKnownEnv = []struct {
	name string
	key  string
}{
	{"PORT", "server.port"},
	{"AZURE_OPENAI_ENDPOINT", "ai.endpoint"},
	{"AZURE_OPENAI_KEY", "ai.api_key"},
	{"AZURE_OPENAI_DEPLOYMENT_NAME", "ai.deployment"},
	{"AZURE_OPENAI_API_VERSION", "ai.api_version"},
	{"AZURE_SPEECH_KEY", "speech.key"},
	{"AZURE_SPEECH_REGION", "speech.region"},
	{"OPENFDA_API_KEY", "fda.api_key"},
}

var defaults = map[string]any{
	"server.port":            3000,
	"server.request_timeout": 60 * time.Second,
	"ai.deployment":          "gpt-4o-mini",
	"ai.api_version":         "2024-05-01-preview",
	"ai.model":               "gpt-4o-mini",
	"ai.timeout":             30 * time.Second,
	"ai.max_prompt_tokens":   6000,
	"fda.base_url":           "https://api.fda.gov/drug/label.json",
	"fda.timeout":            5 * time.Second,
	"speech.region":          "eastus",
	"audit.user_id":          "nurse-user",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load builds the configuration from defaults, the optional YAML file at path,
// well-known collaborator variables and NURSEIQ_ prefixed variables, in that
// order of increasing precedence. A missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults {
		k.Set(key, value)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	for _, v := range wellKnownEnv {
		if value, ok := os.LookupEnv(v.name); ok && value != "" {
			k.Set(v.key, value)
		}
	}

	if err := k.Load(env.Provider("NURSEIQ_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "NURSEIQ_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.AI.APIKey = substituteEnvVars(cfg.AI.APIKey)
	cfg.AI.Endpoint = strings.TrimSuffix(substituteEnvVars(cfg.AI.Endpoint), "/")
	cfg.FDA.APIKey = substituteEnvVars(cfg.FDA.APIKey)
	cfg.Speech.Key = substituteEnvVars(cfg.Speech.Key)

	fillCatalog(&cfg.Catalog)
	cfg.Catalog.Normalize()
	if err := cfg.Catalog.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// fillCatalog uses the compiled-in table for every table the file left empty.
func fillCatalog(c *catalog.Catalog) {
	def := catalog.Default()
	if len(c.MedicationCues) == 0 {
		c.MedicationCues = def.MedicationCues
	}
	if len(c.DischargeCues) == 0 {
		c.DischargeCues = def.DischargeCues
	}
	if len(c.Drugs) == 0 {
		c.Drugs = def.Drugs
	}
	if len(c.CanonicalNames) == 0 {
		c.CanonicalNames = def.CanonicalNames
	}
	if len(c.InteractionRules) == 0 {
		c.InteractionRules = def.InteractionRules
	}
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
