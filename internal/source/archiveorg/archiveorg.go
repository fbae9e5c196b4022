// Copyright (c) 2025, the shelfdex contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package archiveorg searches the Internet Archive's text collection.
// Search is two-phase: one full-text query, then one metadata document
// per hit fetched concurrently. Items whose metadata cannot be fetched
// or that carry no downloadable file are dropped individually.
package archiveorg

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/shelfdex/shelfdex/internal/domain"
	"github.com/shelfdex/shelfdex/internal/source"
)

const (
	defaultSearchURL   = "https://archive.org/advancedsearch.php"
	defaultMetadataURL = "https://archive.org/metadata/"
	defaultDownloadURL = "https://archive.org/download/"
	defaultCoverURL    = "https://archive.org/services/img/"
	defaultProbeURL    = "https://archive.org"

	// Extra rows requested beyond the caller's limit, compensating for
	// items discarded at the metadata stage.
	overfetchMargin = 10

	descriptionMaxLen = 300
)

// supportedFormats are the accepted download extensions. The item's file
// list is scanned in order and the first file matching any of these wins.
var supportedFormats = []string{".pdf", ".epub"}

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

// Adapter implements source.Adapter against archive.org.
type Adapter struct {
	client *http.Client

	searchURL    string
	metadataURL  string
	downloadBase string
	coverBase    string
	probeURL     string
}

func New(opts source.TransportOptions) *Adapter {
	return &Adapter{
		client:       source.NewHTTPClient(opts),
		searchURL:    defaultSearchURL,
		metadataURL:  defaultMetadataURL,
		downloadBase: defaultDownloadURL,
		coverBase:    defaultCoverURL,
		probeURL:     defaultProbeURL,
	}
}

func (a *Adapter) Name() domain.Source { return domain.SourceArchiveOrg }

type searchResponse struct {
	Response struct {
		Docs []searchDoc `json:"docs"`
	} `json:"response"`
}

type searchDoc struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
}

func (a *Adapter) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("title:%q mediatype:texts", query))
	params.Add("fl[]", "identifier,title")
	params.Add("sort[]", "downloads desc")
	params.Set("rows", strconv.Itoa(limit+overfetchMargin))
	params.Set("page", "1")
	params.Set("output", "json")

	searchURL := a.searchURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("archive.org search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &source.StatusError{StatusCode: resp.StatusCode, URL: a.searchURL}
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &source.ParseError{Source: domain.SourceArchiveOrg, Err: err}
	}

	docs := parsed.Response.Docs
	if len(docs) == 0 {
		return []domain.SearchResult{}, nil
	}

	// Fetch every metadata document concurrently; a failed fetch leaves
	// a nil slot and drops only that item. The join waits for all
	// fetches even once limit is reached; surplus results are discarded
	// afterwards rather than the fetches being cancelled mid-flight.
	items := make([]*itemMetadata, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	for i, doc := range docs {
		g.Go(func() error {
			item, err := a.fetchMetadata(gctx, doc.Identifier)
			if err != nil {
				log.Debug().Err(err).Str("identifier", doc.Identifier).Msg("Dropping item after metadata fetch failure")
				return nil
			}
			items[i] = item
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors

	results := make([]domain.SearchResult, 0, limit)
	for i, doc := range docs {
		item := items[i]
		if item == nil {
			continue
		}

		title := doc.Title
		if title == "" {
			title = "Unknown"
		}

		results = append(results, domain.SearchResult{
			Book: domain.BookMetadata{
				Title:       title,
				Authors:     item.authors,
				Year:        item.year,
				Publisher:   item.publisher,
				Language:    item.language,
				Description: item.description,
				CoverURL:    item.coverURL,
			},
			Handle: domain.DownloadHandle{
				Source:      domain.SourceArchiveOrg,
				DownloadURL: item.downloadURL,
				FileName:    item.fileName,
			},
			Source: domain.SourceArchiveOrg,
		})

		if len(results) >= limit {
			break
		}
	}

	log.Debug().Int("results", len(results)).Msg("archive.org search completed")
	return results, nil
}

type itemMetadata struct {
	authors, year, publisher, language string
	description, coverURL              string
	downloadURL, fileName              string
}

type metadataResponse struct {
	Metadata struct {
		Identifier  string          `json:"identifier"`
		Creator     json.RawMessage `json:"creator"`
		Language    json.RawMessage `json:"language"`
		Publisher   json.RawMessage `json:"publisher"`
		Description json.RawMessage `json:"description"`
		PublicDate  string          `json:"publicdate"`
	} `json:"metadata"`
	Files []struct {
		Name string `json:"name"`
	} `json:"files"`
}

// fetchMetadata retrieves one item's metadata document and reduces it to
// the fields the data model keeps. A nil error always means the item has
// a downloadable file.
func (a *Adapter) fetchMetadata(ctx context.Context, identifier string) (*itemMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.metadataURL+identifier, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &source.StatusError{StatusCode: resp.StatusCode, URL: a.metadataURL + identifier}
	}

	var detail metadataResponse
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return nil, err
	}
	if detail.Metadata.Identifier == "" {
		return nil, fmt.Errorf("metadata document for %s has no identifier", identifier)
	}

	item := &itemMetadata{
		authors:   firstString(detail.Metadata.Creator, "Unknown"),
		publisher: firstString(detail.Metadata.Publisher, "Unknown"),
		language:  firstString(detail.Metadata.Language, "Unknown"),
		year:      "Unknown",
		coverURL:  a.coverBase + identifier,
	}

	if len(detail.Metadata.PublicDate) >= 4 {
		item.year = detail.Metadata.PublicDate[:4]
	}

	description := firstString(detail.Metadata.Description, "No description")
	if htmlTagRe.MatchString(description) {
		description = stripHTML(description)
	}
	if runes := []rune(description); len(runes) > descriptionMaxLen {
		description = string(runes[:descriptionMaxLen]) + "..."
	}
	item.description = description

	// First file whose name ends in an accepted extension wins; items
	// without one are dropped entirely.
	for _, file := range detail.Files {
		lower := strings.ToLower(file.Name)
		for _, ext := range supportedFormats {
			if strings.HasSuffix(lower, ext) {
				item.fileName = file.Name
				item.downloadURL = a.downloadBase + identifier + "/" + file.Name
				break
			}
		}
		if item.downloadURL != "" {
			break
		}
	}
	if item.downloadURL == "" {
		return nil, fmt.Errorf("item %s has no downloadable file", identifier)
	}

	return item, nil
}

// firstString coerces archive.org metadata values, which arrive as
// either a string or an array of strings.
func firstString(raw json.RawMessage, fallback string) string {
	if len(raw) == 0 {
		return fallback
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return fallback
		}
		return s
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 && list[0] != "" {
		return list[0]
	}

	return fallback
}

// stripHTML reduces an HTML-flavored description to its text content.
func stripHTML(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return raw
	}

	var b strings.Builder
	for n := range doc.Descendants() {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
	}
	return strings.TrimSpace(b.String())
}

func (a *Adapter) Download(ctx context.Context, handle domain.DownloadHandle, destDir string, returnContent bool) (*domain.DownloadOutcome, error) {
	if !a.isValidDownloadURL(handle.DownloadURL) {
		return nil, fmt.Errorf("%w: %q", source.ErrInvalidDownloadTarget, handle.DownloadURL)
	}

	content, _, err := source.FetchBytes(ctx, a.client, handle.DownloadURL)
	if err != nil {
		return nil, fmt.Errorf("archive.org download failed: %w", err)
	}

	fileName := handle.FileName
	if fileName == "" {
		if parsed, err := url.Parse(handle.DownloadURL); err == nil {
			segments := strings.Split(parsed.Path, "/")
			fileName = segments[len(segments)-1]
		}
	}
	if fileName == "" {
		fileName = "unknown_book"
	}

	return source.FinishDownload(content, fileName, destDir, returnContent)
}

func (a *Adapter) isValidDownloadURL(raw string) bool {
	return source.IsValidURL(raw) && strings.HasPrefix(raw, a.downloadBase)
}

func (a *Adapter) BookInfo(ctx context.Context, handle domain.DownloadHandle) (*domain.BookMetadata, error) {
	return nil, source.ErrInfoNotSupported
}

func (a *Adapter) TestConnection(ctx context.Context) bool {
	return source.Probe(ctx, a.client, a.probeURL)
}

func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}
