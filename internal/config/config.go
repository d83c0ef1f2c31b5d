package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for the support bot.
type Config struct {
	General   GeneralConfig   `json:"general"`
	Discord   DiscordConfig   `json:"discord"`
	Triage    TriageConfig    `json:"triage"`
	Guard     GuardConfig     `json:"guard"`
	Matcher   MatcherConfig   `json:"matcher"`
	Knowledge KnowledgeConfig `json:"knowledge"`
	Events    EventsConfig    `json:"events"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`
	LogFile  string `json:"logFile,omitempty"`
}

type DiscordConfig struct {
	Token            string `json:"token"`
	SupportChannelID string `json:"supportChannelId"`
	WelcomeChannelID string `json:"welcomeChannelId,omitempty"`
	GuildID          string `json:"guildId,omitempty"` // optional: restrict to one guild
}

// TriageConfig tunes the coordinator's action selection.
type TriageConfig struct {
	ResponseDelaySeconds int      `json:"responseDelaySeconds"`
	HighThreshold        float64  `json:"highThreshold"`
	LowThreshold         float64  `json:"lowThreshold"`
	LookbackLimit        int      `json:"lookbackLimit"`
	SkipPatterns         []string `json:"skipPatterns"`
	TeamUsernames        []string `json:"teamUsernames"`
	MaxConcurrent        int      `json:"maxConcurrent,omitempty"`
}

// GuardConfig tunes rate limiting, injection detection and sanitization.
type GuardConfig struct {
	RateLimitMax           int      `json:"rateLimitMax"`
	RateLimitWindowSeconds int      `json:"rateLimitWindowSeconds"`
	MaxMessageLength       int      `json:"maxMessageLength"`
	InjectionPatterns      []string `json:"injectionPatterns,omitempty"` // empty = built-in defaults
}

// MatcherConfig configures the semantic matching strategy.
type MatcherConfig struct {
	SemanticEnabled  bool    `json:"semanticEnabled"`
	APIKey           string  `json:"apiKey,omitempty"`
	Model            string  `json:"model,omitempty"`
	MaxContextTokens int     `json:"maxContextTokens"`
	MinConfidence    float64 `json:"minConfidence"`
}

// KnowledgeConfig points at the knowledge base directory. File names within
// the directory are fixed: knowledge_base.json, support_insights.md, docs/,
// faqs.d/.
type KnowledgeConfig struct {
	BasePath string `json:"basePath"`
}

type EventsConfig struct {
	DBPath string `json:"dbPath"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
	Port     int    `json:"port"`
}

// DefaultConfigDir returns the default config directory (~/.supportbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".supportbot"
	}
	return filepath.Join(home, ".supportbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Knowledge.BasePath = ExpandPath(cfg.Knowledge.BasePath)
	cfg.Events.DBPath = ExpandPath(cfg.Events.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Triage.HighThreshold <= cfg.Triage.LowThreshold {
		errs = append(errs, "triage.highThreshold must be greater than triage.lowThreshold")
	}
	if cfg.Triage.HighThreshold < 0 || cfg.Triage.HighThreshold > 1 {
		errs = append(errs, "triage.highThreshold must be between 0 and 1")
	}
	if cfg.Triage.LowThreshold < 0 || cfg.Triage.LowThreshold > 1 {
		errs = append(errs, "triage.lowThreshold must be between 0 and 1")
	}
	if cfg.Triage.ResponseDelaySeconds < 0 {
		errs = append(errs, "triage.responseDelaySeconds must be >= 0")
	}
	if cfg.Triage.LookbackLimit < 1 {
		errs = append(errs, "triage.lookbackLimit must be >= 1")
	}
	if cfg.Triage.MaxConcurrent < 0 || cfg.Triage.MaxConcurrent > 100 {
		errs = append(errs, "triage.maxConcurrent must be between 0 and 100")
	}

	if cfg.Guard.RateLimitMax < 1 {
		errs = append(errs, "guard.rateLimitMax must be >= 1")
	}
	if cfg.Guard.RateLimitWindowSeconds < 1 {
		errs = append(errs, "guard.rateLimitWindowSeconds must be >= 1")
	}
	if cfg.Guard.MaxMessageLength < 1 {
		errs = append(errs, "guard.maxMessageLength must be >= 1")
	}

	if cfg.Matcher.SemanticEnabled && cfg.Matcher.APIKey == "" {
		errs = append(errs, "matcher.apiKey is required when matcher.semanticEnabled is true")
	}
	if cfg.Matcher.MinConfidence < 0 || cfg.Matcher.MinConfidence > 1 {
		errs = append(errs, "matcher.minConfidence must be between 0 and 1")
	}
	if cfg.Matcher.MaxContextTokens < 1 {
		errs = append(errs, "matcher.maxContextTokens must be >= 1")
	}

	if cfg.Metrics.Enabled && (cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535) {
		errs = append(errs, "metrics.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// Redact returns a copy of the config with secrets blanked for display.
func Redact(cfg *Config) *Config {
	out := *cfg
	if out.Discord.Token != "" {
		out.Discord.Token = "***"
	}
	if out.Matcher.APIKey != "" {
		out.Matcher.APIKey = "***"
	}
	return &out
}
