package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// PlatformConfig defines how Inquest connects to the agent platform.
type PlatformConfig struct {
	// APIBaseURL is the platform API root.
	APIBaseURL string `json:"api_base_url"`
	// APIKey is the bearer token for authenticated access; empty means
	// anonymous traffic.
	APIKey string `json:"api_key"`
	// UserID is the authenticated principal the API key belongs to.
	UserID string `json:"user_id"`
	// ChatTimeoutMS bounds plain chat runs end to end, in milliseconds.
	ChatTimeoutMS int `json:"chat_timeout_ms"`
	// UploadTimeoutMS bounds file-analysis runs; large uploads need minutes.
	UploadTimeoutMS int `json:"upload_timeout_ms"`
	// RetryBudget caps retry attempts for retryable transport failures.
	RetryBudget int `json:"retry_budget"`
	// DefaultAgent is used when no CLI or settings override is provided.
	DefaultAgent string `json:"default_agent"`
	// AgentAliases maps friendly names (e.g., legal) to platform agent ids.
	AgentAliases map[string]string `json:"agent_aliases"`
}

var (
	// ErrPlatformConfigMissing is returned when the config file does not exist.
	ErrPlatformConfigMissing = errors.New("platform config missing")
	// ErrPlatformConfigInvalid is returned when required fields are missing.
	ErrPlatformConfigInvalid = errors.New("platform config invalid")
)

// PlatformConfigPath returns the default platform config path.
func PlatformConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".inquest", "config.json"), nil
}

// LoadPlatformConfig reads and validates the platform config.
func LoadPlatformConfig(path string) (*PlatformConfig, error) {
	if path == "" {
		var err error
		path, err = PlatformConfigPath()
		if err != nil {
			return nil, err
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPlatformConfigMissing
		}
		return nil, fmt.Errorf("read platform config: %w", err)
	}

	var cfg PlatformConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse platform config: %w", err)
	}

	if cfg.APIBaseURL == "" || cfg.DefaultAgent == "" {
		return nil, ErrPlatformConfigInvalid
	}

	// Apply defaults for optional fields.
	if cfg.ChatTimeoutMS <= 0 {
		cfg.ChatTimeoutMS = 120000
	}
	if cfg.UploadTimeoutMS <= 0 {
		cfg.UploadTimeoutMS = 1800000
	}
	if cfg.RetryBudget < 0 {
		cfg.RetryBudget = 0
	}
	if cfg.AgentAliases == nil {
		cfg.AgentAliases = make(map[string]string)
	}

	return &cfg, nil
}

// ResolveAgent returns the agent id for the session.
func ResolveAgent(cfg *PlatformConfig, cliAgent string, settingsAgent string) string {
	// CLI input takes precedence over settings.
	if cliAgent != "" {
		return aliasAgent(cfg, cliAgent)
	}
	if settingsAgent != "" {
		return aliasAgent(cfg, settingsAgent)
	}
	return cfg.DefaultAgent
}

// aliasAgent resolves an alias to a platform agent id.
func aliasAgent(cfg *PlatformConfig, name string) string {
	if cfg == nil {
		return name
	}
	if aliased, ok := cfg.AgentAliases[name]; ok {
		return aliased
	}
	return name
}
