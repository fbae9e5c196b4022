// Copyright (c) 2025, the shelfdex contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config is loaded once at startup and read-only thereafter. It decides
// which source adapters get instantiated.
type Config struct {
	Version string

	LogLevel      string `mapstructure:"logLevel"`
	LogPath       string `mapstructure:"logPath"`
	LogMaxSize    int    `mapstructure:"logMaxSize"`
	LogMaxBackups int    `mapstructure:"logMaxBackups"`

	// MaxResults is the per-source result limit applied when a search
	// does not specify its own.
	MaxResults int    `mapstructure:"maxResults"`
	Proxy      string `mapstructure:"proxy"`
	// Timeout bounds every outbound HTTP call, in seconds.
	Timeout   int    `mapstructure:"timeout"`
	UserAgent string `mapstructure:"userAgent"`

	CalibreWeb   CalibreWebConfig `mapstructure:"calibreWeb"`
	ZLibrary     ZLibraryConfig   `mapstructure:"zlibrary"`
	ArchiveOrg   SourceToggle     `mapstructure:"archiveOrg"`
	Liber3       SourceToggle     `mapstructure:"liber3"`
	AnnasArchive SourceToggle     `mapstructure:"annasArchive"`
}

type CalibreWebConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type ZLibraryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

type SourceToggle struct {
	Enabled bool `mapstructure:"enabled"`
}
