package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/inquestlabs/inquest/internal/testutil"
)

// writeFile is a helper for seeding config fixtures.
func writeFile(testingHandle *testing.T, path string, content string) {
	testingHandle.Helper()
	testutil.RequireNoError(testingHandle, os.MkdirAll(filepath.Dir(path), 0o755), "create fixture dir")
	testutil.RequireNoError(testingHandle, os.WriteFile(path, []byte(content), 0o600), "write fixture")
}

// TestLoadPlatformConfigDefaults verifies defaults apply to optional fields.
func TestLoadPlatformConfigDefaults(testingHandle *testing.T) {
	path := filepath.Join(testingHandle.TempDir(), "config.json")
	writeFile(testingHandle, path, `{
		"api_base_url": "https://platform.example",
		"default_agent": "legal-research"
	}`)

	cfg, err := LoadPlatformConfig(path)
	testutil.RequireNoError(testingHandle, err, "load config")
	testutil.RequireEqual(testingHandle, cfg.ChatTimeoutMS, 120000, "chat timeout default mismatch")
	testutil.RequireEqual(testingHandle, cfg.UploadTimeoutMS, 1800000, "upload timeout default mismatch")
	testutil.RequireTrue(testingHandle, cfg.AgentAliases != nil, "aliases map must be initialized")
}

// TestLoadPlatformConfigMissing verifies the sentinel for absent files.
func TestLoadPlatformConfigMissing(testingHandle *testing.T) {
	_, err := LoadPlatformConfig(filepath.Join(testingHandle.TempDir(), "nope.json"))
	testutil.RequireErrorIs(testingHandle, err, ErrPlatformConfigMissing, "expected missing sentinel")
}

// TestLoadPlatformConfigInvalid verifies required-field validation.
func TestLoadPlatformConfigInvalid(testingHandle *testing.T) {
	path := filepath.Join(testingHandle.TempDir(), "config.json")
	writeFile(testingHandle, path, `{"api_base_url": ""}`)
	_, err := LoadPlatformConfig(path)
	testutil.RequireErrorIs(testingHandle, err, ErrPlatformConfigInvalid, "expected invalid sentinel")
}

// TestResolveAgentPrecedence verifies CLI > settings > default, with aliases.
func TestResolveAgentPrecedence(testingHandle *testing.T) {
	cfg := &PlatformConfig{
		DefaultAgent: "legal-research",
		AgentAliases: map[string]string{"geo": "geocoding-lookup"},
	}
	testutil.RequireEqual(testingHandle, ResolveAgent(cfg, "geo", "other"), "geocoding-lookup", "cli alias must win")
	testutil.RequireEqual(testingHandle, ResolveAgent(cfg, "", "other"), "other", "settings must beat default")
	testutil.RequireEqual(testingHandle, ResolveAgent(cfg, "", ""), "legal-research", "default must apply")
}

// TestSettingsMerge verifies project settings override user settings and the
// inline flag overrides both.
func TestSettingsMerge(testingHandle *testing.T) {
	home := testingHandle.TempDir()
	testingHandle.Setenv("HOME", home)
	cwd := testingHandle.TempDir()

	writeFile(testingHandle, filepath.Join(home, ".inquest", "settings.json"), `{"agent":"legal","render_markdown":false}`)
	writeFile(testingHandle, filepath.Join(cwd, ".inquest", "settings.json"), `{"agent":"geo"}`)

	settings, err := LoadSettings(cwd, `{"render_markdown":true}`)
	testutil.RequireNoError(testingHandle, err, "load settings")
	testutil.RequireEqual(testingHandle, settings.Agent, "geo", "project agent must win")
	testutil.RequireTrue(testingHandle, settings.RenderMarkdown != nil && *settings.RenderMarkdown, "inline override must win")
}
