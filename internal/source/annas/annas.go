// Copyright (c) 2025, the shelfdex contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package annas wraps an Anna's Archive mirror client. The mirror serves
// no direct downloads: Download always returns a non-success outcome
// whose message lists the external partner links the caller has to
// follow manually, grouped into fast, slow and other tiers.
package annas

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/shelfdex/shelfdex/internal/domain"
	"github.com/shelfdex/shelfdex/internal/source"
)

const defaultProbeURL = "https://annas-archive.org"

// Link label substrings selecting the fast and slow tiers.
const (
	fastServerMarker = "Fast Partner Server"
	slowServerMarker = "Slow Partner Server"
)

// NamedURL is one external download link with its human label.
type NamedURL struct {
	Title string
	URL   string
}

// Record is the wrapped client's record shape.
type Record struct {
	ID          string
	Title       string
	Authors     string
	Publisher   string
	PublishDate string
	Language    string
	Extension   string
	Size        string
	Description string
	Thumbnail   string
	URLs        []NamedURL
}

// Client is the opaque capability of the wrapped mirror client.
type Client interface {
	Search(ctx context.Context, query string) ([]Record, error)
	GetInformation(ctx context.Context, id string) (*Record, error)
}

// Adapter implements source.Adapter over a Client. It is deliberately
// thin: every record maps to an opaque identifier handle and all
// protocol work lives in the wrapped client.
type Adapter struct {
	wrapped  Client
	client   *http.Client
	probeURL string
}

func New(opts source.TransportOptions) *Adapter {
	httpClient := source.NewHTTPClient(opts)
	return &Adapter{
		wrapped:  newDefaultClient(httpClient, defaultProbeURL),
		client:   httpClient,
		probeURL: defaultProbeURL,
	}
}

// NewWithClient injects a wrapped client, primarily for tests.
func NewWithClient(wrapped Client, opts source.TransportOptions) *Adapter {
	return &Adapter{
		wrapped:  wrapped,
		client:   source.NewHTTPClient(opts),
		probeURL: defaultProbeURL,
	}
}

func (a *Adapter) Name() domain.Source { return domain.SourceAnnasArchive }

func (a *Adapter) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	records, err := a.wrapped.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("anna's archive search failed: %w", err)
	}

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	results := make([]domain.SearchResult, 0, len(records))
	for _, record := range records {
		results = append(results, domain.SearchResult{
			Book: recordToMetadata(record),
			Handle: domain.DownloadHandle{
				Source: domain.SourceAnnasArchive,
				BookID: record.ID,
			},
			Source: domain.SourceAnnasArchive,
		})
	}

	log.Debug().Int("results", len(results)).Msg("Anna's Archive search completed")
	return results, nil
}

func recordToMetadata(record Record) domain.BookMetadata {
	return domain.BookMetadata{
		Title:       orUnknown(record.Title),
		Authors:     orUnknown(record.Authors),
		Year:        orUnknown(record.PublishDate),
		Publisher:   orUnknown(record.Publisher),
		Language:    orUnknown(record.Language),
		Description: record.Description,
		CoverURL:    record.Thumbnail,
		FileSize:    record.Size,
		FileType:    record.Extension,
	}
}

// Download is intentionally unsupported here. Instead of failing, the
// outcome carries the categorized link listing through the same channel
// so callers get something actionable.
func (a *Adapter) Download(ctx context.Context, handle domain.DownloadHandle, destDir string, returnContent bool) (*domain.DownloadOutcome, error) {
	if handle.BookID == "" {
		return nil, fmt.Errorf("%w: anna's archive download requires a book id", source.ErrInsufficientDownloadInfo)
	}

	record, err := a.wrapped.GetInformation(ctx, handle.BookID)
	if err != nil {
		return nil, fmt.Errorf("anna's archive lookup failed: %w", err)
	}
	if len(record.URLs) == 0 {
		return nil, fmt.Errorf("no download links found for book %s", handle.BookID)
	}

	return &domain.DownloadOutcome{
		Success: false,
		Error:   "Anna's Archive requires manual download. Available links:\n" + formatLinks(record.URLs),
	}, nil
}

// formatLinks renders the link list grouped by tier, fast first.
func formatLinks(urls []NamedURL) string {
	var fast, slow, other []NamedURL
	for _, u := range urls {
		switch {
		case strings.Contains(u.Title, fastServerMarker):
			fast = append(fast, u)
		case strings.Contains(u.Title, slowServerMarker):
			slow = append(slow, u)
		default:
			other = append(other, u)
		}
	}

	var lines []string
	appendGroup := func(heading string, group []NamedURL) {
		if len(group) == 0 {
			return
		}
		lines = append(lines, heading)
		for i, u := range group {
			lines = append(lines, fmt.Sprintf("  %d. %s", i+1, u.URL))
		}
	}
	appendGroup("Fast links (paid):", fast)
	appendGroup("Slow links (free with wait):", slow)
	appendGroup("Other links:", other)

	return strings.Join(lines, "\n")
}

func (a *Adapter) BookInfo(ctx context.Context, handle domain.DownloadHandle) (*domain.BookMetadata, error) {
	if handle.BookID == "" {
		return nil, fmt.Errorf("%w: anna's archive book info requires a book id", source.ErrInsufficientDownloadInfo)
	}

	record, err := a.wrapped.GetInformation(ctx, handle.BookID)
	if err != nil {
		return nil, err
	}

	meta := recordToMetadata(*record)
	return &meta, nil
}

func (a *Adapter) TestConnection(ctx context.Context) bool {
	return source.Probe(ctx, a.client, a.probeURL)
}

func (a *Adapter) Close() error {
	a.wrapped = nil
	a.client.CloseIdleConnections()
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
