// Copyright (c) 2025, the shelfdex contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package source defines the capability contract every backing-service
// adapter implements, plus the transport and parsing helpers shared
// between them.
package source

import (
	"context"

	"github.com/shelfdex/shelfdex/internal/domain"
)

// Adapter is the capability set of one backing service. Each adapter
// owns its transport (and, where applicable, its session state)
// exclusively; the aggregator owns the adapters.
//
// Adapters are not safe for overlapping calls from independent
// goroutines against the same logical query flow; callers serialize use
// per instance.
type Adapter interface {
	Name() domain.Source

	// Search returns up to limit normalized results for query.
	Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error)

	// Download fetches the file a handle points at. When returnContent
	// is true the bytes are handed back in memory, otherwise they are
	// written under destDir.
	Download(ctx context.Context, handle domain.DownloadHandle, destDir string, returnContent bool) (*domain.DownloadOutcome, error)

	// BookInfo returns detailed metadata for a handle. Adapters without
	// a detail endpoint return ErrInfoNotSupported.
	BookInfo(ctx context.Context, handle domain.DownloadHandle) (*domain.BookMetadata, error)

	// TestConnection reports whether the backing service is reachable.
	TestConnection(ctx context.Context) bool

	// Close releases the adapter's transport and session state. Safe to
	// call once; the adapter is unusable afterwards.
	Close() error
}
