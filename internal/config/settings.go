package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Settings represent user and project preferences for the CLI.
type Settings struct {
	// Agent is the preferred agent alias or platform agent id.
	Agent string
	// RenderMarkdown toggles glamour rendering in interactive mode.
	RenderMarkdown *bool
	// Raw retains the full JSON map for future compatibility.
	Raw map[string]any
}

// LoadSettings loads user and project settings and merges them, project
// values winning. An inline override (a path or raw JSON) applies last.
func LoadSettings(cwd string, extraSettings string) (*Settings, error) {
	paths, err := settingsPaths(cwd)
	if err != nil {
		return nil, err
	}

	var merged *Settings
	for _, path := range paths {
		// Missing files are simply skipped.
		settings, err := loadSettingsFromFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		merged = mergeSettings(merged, settings)
	}

	if extraSettings != "" {
		override, err := loadSettingsFlag(extraSettings)
		if err != nil {
			return nil, err
		}
		merged = mergeSettings(merged, override)
	}

	if merged == nil {
		return &Settings{Raw: map[string]any{}}, nil
	}
	return merged, nil
}

// settingsPaths resolves user and project settings files, user first.
func settingsPaths(cwd string) ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home dir: %w", err)
	}
	return []string{
		filepath.Join(home, ".inquest", "settings.json"),
		filepath.Join(cwd, ".inquest", "settings.json"),
	}, nil
}

// loadSettingsFromFile reads settings JSON from disk.
func loadSettingsFromFile(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseSettings(raw)
}

// loadSettingsFlag resolves a settings override from a path or inline JSON.
func loadSettingsFlag(value string) (*Settings, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "{") {
		return parseSettings([]byte(trimmed))
	}
	return loadSettingsFromFile(trimmed)
}

// parseSettings parses settings JSON.
func parseSettings(raw []byte) (*Settings, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}

	settings := &Settings{Raw: data}
	if agent, ok := data["agent"].(string); ok {
		settings.Agent = agent
	}
	if render, ok := data["render_markdown"].(bool); ok {
		settings.RenderMarkdown = &render
	}
	return settings, nil
}

// mergeSettings applies overlay values on top of the base settings.
func mergeSettings(base *Settings, overlay *Settings) *Settings {
	if base == nil {
		return overlay
	}
	if overlay == nil {
		return base
	}

	merged := &Settings{
		Agent:          base.Agent,
		RenderMarkdown: base.RenderMarkdown,
		Raw:            map[string]any{},
	}
	for key, value := range base.Raw {
		merged.Raw[key] = value
	}
	for key, value := range overlay.Raw {
		merged.Raw[key] = value
	}
	if overlay.Agent != "" {
		merged.Agent = overlay.Agent
	}
	if overlay.RenderMarkdown != nil {
		merged.RenderMarkdown = overlay.RenderMarkdown
	}
	return merged
}
