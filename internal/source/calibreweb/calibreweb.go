// Copyright (c) 2025, the shelfdex contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package calibreweb searches and downloads from a self-hosted
// Calibre-Web server over its OPDS (Atom XML) feed.
package calibreweb

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shelfdex/shelfdex/internal/domain"
	"github.com/shelfdex/shelfdex/internal/source"
)

const (
	feedContentType = "application/atom+xml"

	relCover       = "http://opds-spec.org/image"
	relAcquisition = "http://opds-spec.org/acquisition"
)

var (
	// Only links on these exact server paths are trusted; anything else
	// in the feed is discarded.
	coverPathRe    = regexp.MustCompile(`^/opds/cover/\d+$`)
	downloadPathRe = regexp.MustCompile(`^/opds/download/\d+/[\w]+/?$`)

	// Characters outside the XML 1.0 ranges; upstream feeds have been
	// seen emitting them raw.
	invalidXMLCharsRe = regexp.MustCompile("[^\x09\x0A\x0D\x20-퟿-�]")
	whitespaceRunRe   = regexp.MustCompile(`\s+`)

	downloadURLTailRe = regexp.MustCompile(`/opds/download/(\d+)/([^/]+)/?$`)
)

// Adapter implements source.Adapter against one Calibre-Web server.
type Adapter struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string, opts source.TransportOptions) *Adapter {
	return &Adapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  source.NewHTTPClient(opts),
	}
}

func (a *Adapter) Name() domain.Source { return domain.SourceCalibreWeb }

func (a *Adapter) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	searchURL := a.baseURL + "/opds/search/" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calibre-web search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &source.StatusError{StatusCode: resp.StatusCode, URL: searchURL}
	}

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, feedContentType) {
		return nil, fmt.Errorf("%w: %q", source.ErrUnexpectedContentType, ct)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read calibre-web feed: %w", err)
	}

	entries, err := a.parseFeed(string(raw))
	if err != nil {
		return nil, &source.ParseError{Source: domain.SourceCalibreWeb, Err: err}
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	results := make([]domain.SearchResult, 0, len(entries))
	for _, e := range entries {
		results = append(results, domain.SearchResult{
			Book: domain.BookMetadata{
				Title:       e.title,
				Authors:     e.authors,
				Year:        e.year,
				Publisher:   e.publisher,
				Language:    e.language,
				Description: e.summary,
				CoverURL:    e.coverURL,
				FileSize:    e.fileSize,
				FileType:    e.fileType,
			},
			Handle: domain.DownloadHandle{
				Source:      domain.SourceCalibreWeb,
				DownloadURL: e.downloadURL,
				FileName:    filenameFromDownloadURL(e.downloadURL),
			},
			Source: domain.SourceCalibreWeb,
		})
	}

	log.Debug().Int("results", len(results)).Msg("Calibre-Web search completed")
	return results, nil
}

// parsedEntry is one feed entry reduced to the fields the data model
// keeps.
type parsedEntry struct {
	title, authors, summary, year string
	language, publisher           string
	coverURL, downloadURL         string
	fileType, fileSize            string
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	Authors   []string   `xml:"author>name"`
	Summary   string     `xml:"summary"`
	Published string     `xml:"published"`
	Language  string     `xml:"language"`
	Publisher string     `xml:"publisher>name"`
	Links     []atomLink `xml:"link"`
}

type atomLink struct {
	Rel    string `xml:"rel,attr"`
	Href   string `xml:"href,attr"`
	Type   string `xml:"type,attr"`
	Length string `xml:"length,attr"`
}

func (a *Adapter) parseFeed(raw string) ([]parsedEntry, error) {
	raw = invalidXMLCharsRe.ReplaceAllString(raw, "")
	raw = whitespaceRunRe.ReplaceAllString(raw, " ")

	var feed atomFeed
	if err := xml.Unmarshal([]byte(raw), &feed); err != nil {
		return nil, err
	}

	entries := make([]parsedEntry, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		entry := parsedEntry{
			title:     strings.TrimSpace(e.Title),
			summary:   strings.TrimSpace(e.Summary),
			year:      yearFromPublished(e.Published),
			language:  e.Language,
			publisher: e.Publisher,
			fileType:  "Unknown",
			fileSize:  "Unknown",
		}
		if entry.title == "" {
			entry.title = "Unknown"
		}
		if entry.summary == "" {
			entry.summary = "No description"
		}

		var authors []string
		for _, name := range e.Authors {
			if name = strings.TrimSpace(name); name != "" {
				authors = append(authors, name)
			}
		}
		entry.authors = strings.Join(authors, ", ")
		if entry.authors == "" {
			entry.authors = "Unknown"
		}

		for _, link := range e.Links {
			switch link.Rel {
			case relCover:
				if coverPathRe.MatchString(link.Href) {
					entry.coverURL = a.baseURL + link.Href
				}
			case relAcquisition:
				if downloadPathRe.MatchString(link.Href) {
					entry.downloadURL = a.baseURL + link.Href
				}
				if link.Type != "" {
					entry.fileType = link.Type
				}
				if link.Length != "" {
					entry.fileSize = link.Length
				}
			}
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

func yearFromPublished(published string) string {
	published = strings.TrimSpace(published)
	if published == "" {
		return "Unknown"
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, published); err == nil {
			return fmt.Sprintf("%d", t.Year())
		}
	}
	return "Unknown"
}

// filenameFromDownloadURL derives a placeholder name from the
// /opds/download/<id>/<format>/ path, e.g. "book_42.epub".
func filenameFromDownloadURL(downloadURL string) string {
	if downloadURL == "" {
		return ""
	}
	m := downloadURLTailRe.FindStringSubmatch(downloadURL)
	if m == nil {
		return ""
	}
	return fmt.Sprintf("book_%s.%s", m[1], strings.ToLower(m[2]))
}

func (a *Adapter) Download(ctx context.Context, handle domain.DownloadHandle, destDir string, returnContent bool) (*domain.DownloadOutcome, error) {
	if !a.isValidDownloadURL(handle.DownloadURL) {
		return nil, fmt.Errorf("%w: %q", source.ErrInvalidDownloadTarget, handle.DownloadURL)
	}

	content, headers, err := source.FetchBytes(ctx, a.client, handle.DownloadURL)
	if err != nil {
		return nil, fmt.Errorf("calibre-web download failed: %w", err)
	}

	fileName := source.FilenameFromContentDisposition(headers.Get("Content-Disposition"))
	if fileName == "" {
		fileName = handle.FileName
	}
	if fileName == "" {
		fileName = "unknown_book"
	}

	return source.FinishDownload(content, fileName, destDir, returnContent)
}

func (a *Adapter) isValidDownloadURL(raw string) bool {
	return source.IsValidURL(raw) && strings.Contains(raw, "/opds/download/")
}

func (a *Adapter) BookInfo(ctx context.Context, handle domain.DownloadHandle) (*domain.BookMetadata, error) {
	return nil, source.ErrInfoNotSupported
}

func (a *Adapter) TestConnection(ctx context.Context) bool {
	return source.Probe(ctx, a.client, a.baseURL)
}

func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}
