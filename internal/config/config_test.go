// Copyright (c) 2025, the shelfdex contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(""), 0o644))

	cfg, err := New(configPath, "1.2.3")
	require.NoError(t, err)

	assert.Equal(t, "1.2.3", cfg.Config.Version)
	assert.Equal(t, "INFO", cfg.Config.LogLevel)
	assert.Equal(t, 20, cfg.Config.MaxResults)
	assert.Equal(t, 30, cfg.Config.Timeout)
	assert.Equal(t, 50, cfg.Config.LogMaxSize)
	assert.Equal(t, 3, cfg.Config.LogMaxBackups)

	assert.False(t, cfg.Config.CalibreWeb.Enabled)
	assert.False(t, cfg.Config.ZLibrary.Enabled)
	assert.True(t, cfg.Config.ArchiveOrg.Enabled)
	assert.True(t, cfg.Config.Liber3.Enabled)
	assert.False(t, cfg.Config.AnnasArchive.Enabled)
}

func TestConfigFileValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")
	content := `logLevel = "DEBUG"
maxResults = 5
timeout = 10
proxy = "http://localhost:8118"

[calibreWeb]
enabled = true
url = "http://localhost:8083"

[zlibrary]
enabled = true
email = "user@example.com"
password = "hunter2"

[liber3]
enabled = false
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := New(configPath)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Config.LogLevel)
	assert.Equal(t, 5, cfg.Config.MaxResults)
	assert.Equal(t, 10, cfg.Config.Timeout)
	assert.Equal(t, "http://localhost:8118", cfg.Config.Proxy)

	assert.True(t, cfg.Config.CalibreWeb.Enabled)
	assert.Equal(t, "http://localhost:8083", cfg.Config.CalibreWeb.URL)
	assert.True(t, cfg.Config.ZLibrary.Enabled)
	assert.Equal(t, "user@example.com", cfg.Config.ZLibrary.Email)
	assert.Equal(t, "hunter2", cfg.Config.ZLibrary.Password)
	assert.False(t, cfg.Config.Liber3.Enabled)
	// Defaults still apply to sections the file does not mention.
	assert.True(t, cfg.Config.ArchiveOrg.Enabled)
}

func TestEnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")
	content := "maxResults = 5\n\n[zlibrary]\nenabled = false\n"
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	t.Setenv(envPrefix+"MAX_RESULTS", "50")
	t.Setenv(envPrefix+"ZLIBRARY_ENABLED", "true")
	t.Setenv(envPrefix+"ZLIBRARY_EMAIL", "env@example.com")
	t.Setenv(envPrefix+"LOG_LEVEL", "TRACE")

	cfg, err := New(configPath)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Config.MaxResults)
	assert.True(t, cfg.Config.ZLibrary.Enabled)
	assert.Equal(t, "env@example.com", cfg.Config.ZLibrary.Email)
	assert.Equal(t, "TRACE", cfg.Config.LogLevel)
}

func TestWriteDefaultConfigOnFirstRun(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.toml")

	cfg, err := New(configPath)
	require.NoError(t, err)

	require.FileExists(t, configPath)
	assert.Equal(t, 20, cfg.Config.MaxResults)

	written, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(written), `logLevel = "INFO"`)
	assert.Contains(t, string(written), "[archiveOrg]")
}

func TestWriteDefaultConfigDoesNotOverwrite(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("maxResults = 7\n"), 0o644))

	require.NoError(t, WriteDefaultConfig(configPath))

	written, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, "maxResults = 7\n", string(written))
}

func TestResolveConfigPath(t *testing.T) {
	c := &AppConfig{}

	tests := []struct {
		name    string
		prepare func(t *testing.T, tmpDir string) (arg string, want string)
	}{
		{
			name: "toml_suffix_used_directly",
			prepare: func(t *testing.T, tmpDir string) (string, string) {
				p := filepath.Join(tmpDir, "custom.toml")
				return p, p
			},
		},
		{
			name: "uppercase_toml_suffix",
			prepare: func(t *testing.T, tmpDir string) (string, string) {
				p := filepath.Join(tmpDir, "CONFIG.TOML")
				return p, p
			},
		},
		{
			name: "existing_file_used_directly",
			prepare: func(t *testing.T, tmpDir string) (string, string) {
				p := filepath.Join(tmpDir, "configfile")
				require.NoError(t, os.WriteFile(p, []byte(""), 0o644))
				return p, p
			},
		},
		{
			name: "directory_gets_config_toml",
			prepare: func(t *testing.T, tmpDir string) (string, string) {
				return tmpDir, filepath.Join(tmpDir, "config.toml")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			arg, want := tt.prepare(t, tmpDir)
			assert.Equal(t, want, c.resolveConfigPath(arg))
		})
	}
}

func TestGetDefaultConfigDir(t *testing.T) {
	t.Run("xdg_config_home", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
		assert.Equal(t, filepath.Join("/tmp/xdg", "shelfdex"), GetDefaultConfigDir())
	})

	t.Run("container_config_mount", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/config")
		assert.Equal(t, "/config", GetDefaultConfigDir())
	})
}

func TestIsDevBuild(t *testing.T) {
	assert.True(t, isDevBuild("dev"))
	assert.True(t, isDevBuild(""))
	assert.True(t, isDevBuild("1.3.0-dev"))
	assert.False(t, isDevBuild("1.3.0"))
}
