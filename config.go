package main

import (
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	StoreURL   string `yaml:"store_url"`
	StoreKey   string `yaml:"store_key"`
	StoreTable string `yaml:"store_table"`

	LLMProvider     string `yaml:"llm_provider"`
	Model           string `yaml:"model"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`

	DelayMS         int `yaml:"delay_ms"`
	MaxRetries      int `yaml:"max_retries"`
	BaseBackoffMS   int `yaml:"base_backoff_ms"`
	TargetFindings  int `yaml:"target_findings"`
	MinFindingChars int `yaml:"min_finding_chars"`
	MaxFindingChars int `yaml:"max_finding_chars"`

	HistoryDBPath string `yaml:"history_db_path"`

	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`
}

// LoadConfig resolves config.yaml (if present), env overrides, and defaults.
// needLLM is set for commands that call the LLM; the key check is skipped for
// read-only or heuristic-only commands like analyze and clean.
func LoadConfig(needLLM bool) (Config, error) {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errKind(ErrKindMisconfigured, "parsing %s: %v", configPath, err)
		}
		log.Printf("config loaded path=%s", configPath)
	}

	// Env vars override YAML values.
	envOverride(&cfg.StoreURL, "STORE_URL")
	envOverride(&cfg.StoreKey, "STORE_KEY")
	envOverride(&cfg.StoreTable, "STORE_TABLE")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.Model, "MODEL")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	if err := envOverrideInt(&cfg.DelayMS, "DELAY_MS"); err != nil {
		return cfg, err
	}
	if err := envOverrideInt(&cfg.MaxRetries, "MAX_RETRIES"); err != nil {
		return cfg, err
	}
	if err := envOverrideInt(&cfg.BaseBackoffMS, "BASE_BACKOFF_MS"); err != nil {
		return cfg, err
	}
	if err := envOverrideInt(&cfg.TargetFindings, "TARGET_FINDINGS"); err != nil {
		return cfg, err
	}
	if err := envOverrideInt(&cfg.MinFindingChars, "MIN_FINDING_CHARS"); err != nil {
		return cfg, err
	}
	if err := envOverrideInt(&cfg.MaxFindingChars, "MAX_FINDING_CHARS"); err != nil {
		return cfg, err
	}
	envOverride(&cfg.HistoryDBPath, "HISTORY_DB_PATH")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")

	// Defaults.
	if cfg.StoreTable == "" {
		cfg.StoreTable = "research_papers"
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "openai"
	}
	if cfg.DelayMS == 0 {
		cfg.DelayMS = 1500
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseBackoffMS == 0 {
		cfg.BaseBackoffMS = 2000
	}
	if cfg.TargetFindings == 0 {
		cfg.TargetFindings = 3
	}
	if cfg.MinFindingChars == 0 {
		cfg.MinFindingChars = 20
	}
	if cfg.MaxFindingChars == 0 {
		cfg.MaxFindingChars = 200
	}
	if cfg.HistoryDBPath == "" {
		cfg.HistoryDBPath = "./neurofix.db"
	}

	// LLM_API_KEY is a provider-agnostic alias honored for whichever
	// provider is active.
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		switch cfg.LLMProvider {
		case "anthropic":
			cfg.AnthropicAPIKey = key
		default:
			cfg.OpenAIAPIKey = key
		}
	}

	if cfg.StoreURL == "" {
		return cfg, errKind(ErrKindMisconfigured, "store_url is not set (config.yaml or STORE_URL)")
	}
	if cfg.StoreKey == "" {
		return cfg, errKind(ErrKindMisconfigured, "store_key is not set (config.yaml or STORE_KEY)")
	}

	switch cfg.LLMProvider {
	case "openai", "anthropic":
	default:
		return cfg, errKind(ErrKindMisconfigured, "llm_provider must be 'openai' or 'anthropic', got '%s'", cfg.LLMProvider)
	}
	if needLLM && cfg.LLMKey() == "" {
		return cfg, errKind(ErrKindMisconfigured, "no API key for llm_provider=%s (set LLM_API_KEY)", cfg.LLMProvider)
	}

	if cfg.MaxRetries < 1 {
		return cfg, errKind(ErrKindMisconfigured, "invalid max_retries '%d': must be >= 1", cfg.MaxRetries)
	}
	if cfg.TargetFindings < 1 {
		return cfg, errKind(ErrKindMisconfigured, "invalid target_findings '%d': must be >= 1", cfg.TargetFindings)
	}
	if cfg.MaxFindingChars < cfg.MinFindingChars {
		return cfg, errKind(ErrKindMisconfigured, "max_finding_chars '%d' is below min_finding_chars '%d'", cfg.MaxFindingChars, cfg.MinFindingChars)
	}

	return cfg, nil
}

// LLMKey returns the API key for the active provider.
func (c Config) LLMKey() string {
	if c.LLMProvider == "anthropic" {
		return c.AnthropicAPIKey
	}
	return c.OpenAIAPIKey
}

// SlackConfigured reports whether the optional Slack summary sink is usable.
func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return errKind(ErrKindMisconfigured, "invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}
