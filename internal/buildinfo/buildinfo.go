// Copyright (c) 2025, the shelfdex contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package buildinfo holds build-time metadata set via ldflags.
package buildinfo

import "fmt"

var (
	Version = "dev"
	Commit  = ""
	Date    = ""

	// UserAgent is sent on outbound requests unless the configuration
	// overrides it.
	UserAgent = fmt.Sprintf("shelfdex/%s", Version)
)
