// Copyright (c) 2025, the shelfdex contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package aggregator fans search and download requests out across the
// enabled source adapters and merges their answers into one surface.
//
// Search is partial-success by default: a source that fails or times
// out contributes zero results and a log line, never an error for the
// whole call. Download is the opposite, fail-fast with the originating
// source attached.
package aggregator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/shelfdex/shelfdex/internal/domain"
	"github.com/shelfdex/shelfdex/internal/source"
	"github.com/shelfdex/shelfdex/internal/source/annas"
	"github.com/shelfdex/shelfdex/internal/source/archiveorg"
	"github.com/shelfdex/shelfdex/internal/source/calibreweb"
	"github.com/shelfdex/shelfdex/internal/source/liber3"
	"github.com/shelfdex/shelfdex/internal/source/zlibrary"
)

var (
	ErrInvalidQuery       = errors.New("search query cannot be empty")
	ErrNoSourcesAvailable = errors.New("no sources available for search")
	ErrSourceNotEnabled   = errors.New("source is not enabled")
)

// DownloadFailedError wraps an adapter-level download failure with the
// source it came from. No retry happens at this layer.
type DownloadFailedError struct {
	Source domain.Source
	Err    error
}

func (e *DownloadFailedError) Error() string {
	return fmt.Sprintf("download from %s failed: %v", e.Source, e.Err)
}

func (e *DownloadFailedError) Unwrap() error { return e.Err }

func (e *DownloadFailedError) Is(target error) bool {
	_, ok := target.(*DownloadFailedError)
	return ok
}

// Aggregator owns the set of instantiated source adapters, created once
// from the configuration and released together on Close. Callers must
// not issue overlapping calls against one instance from independent
// goroutines without external synchronization.
type Aggregator struct {
	maxResults int
	adapters   map[domain.Source]source.Adapter
	order      []domain.Source

	closeOnce sync.Once
}

// New builds the adapter registry from the configuration. Sources whose
// enable flag is off, or whose required settings are missing, get no
// adapter.
func New(cfg *domain.Config) *Aggregator {
	opts := source.TransportOptions{
		Proxy:     cfg.Proxy,
		Timeout:   time.Duration(cfg.Timeout) * time.Second,
		UserAgent: cfg.UserAgent,
	}

	a := &Aggregator{
		maxResults: cfg.MaxResults,
		adapters:   make(map[domain.Source]source.Adapter),
	}

	if cfg.CalibreWeb.Enabled && cfg.CalibreWeb.URL != "" {
		a.register(calibreweb.New(cfg.CalibreWeb.URL, opts))
	}
	if cfg.ZLibrary.Enabled && cfg.ZLibrary.Email != "" && cfg.ZLibrary.Password != "" {
		a.register(zlibrary.New(cfg.ZLibrary.Email, cfg.ZLibrary.Password, opts))
	}
	if cfg.ArchiveOrg.Enabled {
		a.register(archiveorg.New(opts))
	}
	if cfg.Liber3.Enabled {
		a.register(liber3.New(opts))
	}
	if cfg.AnnasArchive.Enabled {
		a.register(annas.New(opts))
	}

	log.Info().Int("sources", len(a.order)).Strs("enabled", sourceNames(a.order)).Msg("Initialized source adapters")
	return a
}

// newWithAdapters wires a prebuilt adapter set, for tests.
func newWithAdapters(maxResults int, adapters []source.Adapter) *Aggregator {
	a := &Aggregator{
		maxResults: maxResults,
		adapters:   make(map[domain.Source]source.Adapter, len(adapters)),
	}
	for _, adapter := range adapters {
		a.register(adapter)
	}
	return a
}

func (a *Aggregator) register(adapter source.Adapter) {
	a.adapters[adapter.Name()] = adapter
	a.order = append(a.order, adapter.Name())
}

// searchOutcome is one source's answer in a fan-out: either results or a
// recorded failure, never silently neither.
type searchOutcome struct {
	source  domain.Source
	results []domain.SearchResult
	err     error
}

// Search queries every targeted source concurrently and concatenates
// their results in dispatch order, without cross-source re-ranking. The
// limit applies per source, not globally; zero means the configured
// default.
func (a *Aggregator) Search(ctx context.Context, query string, sources []domain.Source, limit int) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrInvalidQuery
	}

	targets := a.targetSources(sources)
	if len(targets) == 0 {
		return nil, ErrNoSourcesAvailable
	}

	if limit <= 0 {
		limit = a.maxResults
	}

	log.Info().Str("query", query).Int("sources", len(targets)).Int("limit", limit).Msg("Dispatching search")

	// Wait for all, collecting both results and failures - never first
	// one wins. Each call is bounded by its adapter's transport timeout.
	outcomes := make(chan searchOutcome, len(targets))
	var wg sync.WaitGroup
	for _, target := range targets {
		adapter := a.adapters[target]
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := adapter.Search(ctx, query, limit)
			outcomes <- searchOutcome{source: target, results: results, err: err}
		}()
	}
	wg.Wait()
	close(outcomes)

	bySource := make(map[domain.Source][]domain.SearchResult, len(targets))
	for outcome := range outcomes {
		if outcome.err != nil {
			log.Warn().Err(outcome.err).Str("source", string(outcome.source)).Msg("Source contributed nothing to search")
			continue
		}
		bySource[outcome.source] = outcome.results
	}

	// Concatenate in dispatch order so output is stable regardless of
	// which source answered first.
	merged := make([]domain.SearchResult, 0)
	for _, target := range targets {
		merged = append(merged, bySource[target]...)
	}

	log.Info().Int("results", len(merged)).Msg("Search completed")
	return merged, nil
}

// targetSources intersects the requested set with the enabled set,
// preserving request order (or registry order when no set is given).
func (a *Aggregator) targetSources(requested []domain.Source) []domain.Source {
	if len(requested) == 0 {
		return a.order
	}

	targets := make([]domain.Source, 0, len(requested))
	for _, s := range requested {
		if _, ok := a.adapters[s]; ok {
			targets = append(targets, s)
		}
	}
	return targets
}

// Download routes a handle to its owning adapter. Any adapter failure is
// wrapped as a DownloadFailedError carrying the source; retry, where it
// exists, lives inside the adapter.
func (a *Aggregator) Download(ctx context.Context, handle domain.DownloadHandle, destDir string, returnContent bool) (*domain.DownloadOutcome, error) {
	adapter, ok := a.adapters[handle.Source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotEnabled, handle.Source)
	}

	outcome, err := adapter.Download(ctx, handle, destDir, returnContent)
	if err != nil {
		return nil, &DownloadFailedError{Source: handle.Source, Err: err}
	}

	if outcome.Success {
		log.Info().Str("source", string(handle.Source)).Str("file", outcome.FileName).Int64("bytes", outcome.FileSize).Msg("Download completed")
	}
	return outcome, nil
}

// BookInfo is best-effort: any failure, including a missing adapter,
// yields nil rather than an error.
func (a *Aggregator) BookInfo(ctx context.Context, handle domain.DownloadHandle) *domain.BookMetadata {
	adapter, ok := a.adapters[handle.Source]
	if !ok {
		return nil
	}

	meta, err := adapter.BookInfo(ctx, handle)
	if err != nil {
		log.Debug().Err(err).Str("source", string(handle.Source)).Msg("Book info lookup failed")
		return nil
	}
	return meta
}

// TestConnection probes one source; any failure reads as unreachable.
func (a *Aggregator) TestConnection(ctx context.Context, s domain.Source) bool {
	adapter, ok := a.adapters[s]
	if !ok {
		return false
	}
	return adapter.TestConnection(ctx)
}

// EnabledSources returns the instantiated sources in dispatch order.
func (a *Aggregator) EnabledSources() []domain.Source {
	out := make([]domain.Source, len(a.order))
	copy(out, a.order)
	return out
}

func (a *Aggregator) IsEnabled(s domain.Source) bool {
	_, ok := a.adapters[s]
	return ok
}

// Close releases every adapter exactly once. A release failure is
// logged and never blocks releasing the rest.
func (a *Aggregator) Close() error {
	a.closeOnce.Do(func() {
		for _, s := range a.order {
			if err := a.adapters[s].Close(); err != nil {
				log.Error().Err(err).Str("source", string(s)).Msg("Failed to release adapter")
			}
		}
		log.Debug().Msg("Aggregator closed")
	})
	return nil
}

func sourceNames(sources []domain.Source) []string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = string(s)
	}
	return names
}
