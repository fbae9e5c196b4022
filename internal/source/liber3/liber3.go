// Copyright (c) 2025, the shelfdex contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package liber3 searches a peer-distributed ebook index. Search is
// two-phase: a word query returns hit identifiers, then one batch call
// fetches detailed records for exactly those identifiers. Files are
// served through an IPFS gateway, so a download needs the record's
// content identifier and extension before a URL can be built at all.
package liber3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/shelfdex/shelfdex/internal/domain"
	"github.com/shelfdex/shelfdex/internal/source"
)

const (
	defaultSearchURL  = "https://lgate.glitternode.ru/v1/searchV2"
	defaultDetailURL  = "https://lgate.glitternode.ru/v1/book"
	defaultGatewayURL = "https://gateway-ipfs.st/ipfs/"
	defaultProbeURL   = "https://lgate.glitternode.ru"
)

// Extra-parameter keys carried on every download handle.
const (
	extraCID       = "ipfs_cid"
	extraExtension = "extension"
	extraTitle     = "title"
)

// Adapter implements source.Adapter against the Liber3 index.
type Adapter struct {
	client *http.Client

	searchURL  string
	detailURL  string
	gatewayURL string
	probeURL   string
}

func New(opts source.TransportOptions) *Adapter {
	return &Adapter{
		client:     source.NewHTTPClient(opts),
		searchURL:  defaultSearchURL,
		detailURL:  defaultDetailURL,
		gatewayURL: defaultGatewayURL,
		probeURL:   defaultProbeURL,
	}
}

func (a *Adapter) Name() domain.Source { return domain.SourceLiber3 }

type searchHit struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

type searchResponse struct {
	Data struct {
		Book []searchHit `json:"book"`
	} `json:"data"`
}

// detailRecord is one entry of the batch-detail response. Fields the
// index omits decode to their zero value and normalize to "Unknown".
type detailRecord struct {
	Title     string          `json:"title"`
	Author    string          `json:"author"`
	Year      json.RawMessage `json:"year"`
	Publisher string          `json:"publisher"`
	Language  string          `json:"language"`
	FileSize  json.RawMessage `json:"filesize"`
	Extension string          `json:"extension"`
	IPFSCid   string          `json:"ipfs_cid"`
}

type detailResponse struct {
	Data struct {
		Book map[string]struct {
			Book detailRecord `json:"book"`
		} `json:"book"`
	} `json:"data"`
}

func (a *Adapter) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	hits, err := a.searchHits(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []domain.SearchResult{}, nil
	}

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		if hit.ID != "" {
			ids = append(ids, hit.ID)
		}
	}
	if len(ids) == 0 {
		return []domain.SearchResult{}, nil
	}

	details, err := a.fetchDetails(ctx, ids)
	if err != nil {
		// Detail enrichment is best-effort at search time; the download
		// path re-fetches whatever is still missing.
		log.Warn().Err(err).Msg("Liber3 batch detail fetch failed, returning bare results")
		details = map[string]detailRecord{}
	}

	results := make([]domain.SearchResult, 0, len(hits))
	for _, hit := range hits {
		detail := details[hit.ID]

		title := hit.Title
		if title == "" {
			title = "Unknown"
		}
		authors := hit.Author
		if authors == "" {
			authors = "Unknown"
		}

		results = append(results, domain.SearchResult{
			Book: domain.BookMetadata{
				Title:     title,
				Authors:   authors,
				Year:      rawToString(detail.Year),
				Publisher: orUnknown(detail.Publisher),
				Language:  orUnknown(detail.Language),
				FileSize:  rawToString(detail.FileSize),
				FileType:  orUnknown(detail.Extension),
			},
			Handle: domain.DownloadHandle{
				Source: domain.SourceLiber3,
				BookID: hit.ID,
				Extra: map[string]string{
					extraCID:       detail.IPFSCid,
					extraExtension: detail.Extension,
					extraTitle:     underscoreTitle(title),
				},
			},
			Source: domain.SourceLiber3,
		})
	}

	log.Debug().Int("results", len(results)).Msg("Liber3 search completed")
	return results, nil
}

func (a *Adapter) searchHits(ctx context.Context, query string) ([]searchHit, error) {
	payload, err := json.Marshal(map[string]string{"address": "", "word": query})
	if err != nil {
		return nil, err
	}

	var parsed searchResponse
	if err := a.postJSON(ctx, a.searchURL, payload, &parsed); err != nil {
		return nil, fmt.Errorf("liber3 search failed: %w", err)
	}
	return parsed.Data.Book, nil
}

// fetchDetails issues the batch-detail call for the given identifiers.
func (a *Adapter) fetchDetails(ctx context.Context, ids []string) (map[string]detailRecord, error) {
	payload, err := json.Marshal(map[string][]string{"book_ids": ids})
	if err != nil {
		return nil, err
	}

	var parsed detailResponse
	if err := a.postJSON(ctx, a.detailURL, payload, &parsed); err != nil {
		return nil, err
	}

	details := make(map[string]detailRecord, len(parsed.Data.Book))
	for id, wrapper := range parsed.Data.Book {
		details[id] = wrapper.Book
	}
	return details, nil
}

func (a *Adapter) postJSON(ctx context.Context, endpoint string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &source.StatusError{StatusCode: resp.StatusCode, URL: endpoint}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &source.ParseError{Source: domain.SourceLiber3, Err: err}
	}
	return nil
}

func (a *Adapter) Download(ctx context.Context, handle domain.DownloadHandle, destDir string, returnContent bool) (*domain.DownloadOutcome, error) {
	if handle.BookID == "" {
		return nil, fmt.Errorf("%w: liber3 download requires a book id", source.ErrInsufficientDownloadInfo)
	}

	cid := handle.Extra[extraCID]
	extension := handle.Extra[extraExtension]
	title := handle.Extra[extraTitle]

	// The gateway URL cannot be built without all three parameters; when
	// any is missing, re-issue the batch-detail call once for this
	// single identifier before giving up.
	if cid == "" || extension == "" || title == "" {
		details, err := a.fetchDetails(ctx, []string{handle.BookID})
		if err != nil {
			return nil, fmt.Errorf("liber3 detail re-fetch failed: %w", err)
		}
		detail, ok := details[handle.BookID]
		if !ok {
			return nil, fmt.Errorf("%w: book %s not found in detail response", source.ErrInsufficientDownloadInfo, handle.BookID)
		}
		cid = detail.IPFSCid
		extension = detail.Extension
		if title == "" {
			title = underscoreTitle(detail.Title)
		}
	}

	if cid == "" || extension == "" {
		return nil, fmt.Errorf("%w: missing content id or extension for book %s", source.ErrInsufficientDownloadInfo, handle.BookID)
	}
	if title == "" {
		title = "unknown_book"
	}

	fileName := title + "." + extension
	downloadURL := a.gatewayURL + cid + "?filename=" + url.QueryEscape(fileName)

	content, _, err := source.FetchBytes(ctx, a.client, downloadURL)
	if err != nil {
		return nil, fmt.Errorf("liber3 download failed: %w", err)
	}

	return source.FinishDownload(content, fileName, destDir, returnContent)
}

func (a *Adapter) BookInfo(ctx context.Context, handle domain.DownloadHandle) (*domain.BookMetadata, error) {
	if handle.BookID == "" {
		return nil, fmt.Errorf("%w: liber3 book info requires a book id", source.ErrInsufficientDownloadInfo)
	}

	details, err := a.fetchDetails(ctx, []string{handle.BookID})
	if err != nil {
		return nil, err
	}
	detail, ok := details[handle.BookID]
	if !ok {
		return nil, fmt.Errorf("book %s not found", handle.BookID)
	}

	return &domain.BookMetadata{
		Title:     orUnknown(detail.Title),
		Authors:   orUnknown(detail.Author),
		Year:      rawToString(detail.Year),
		Publisher: orUnknown(detail.Publisher),
		Language:  orUnknown(detail.Language),
		FileSize:  rawToString(detail.FileSize),
		FileType:  orUnknown(detail.Extension),
	}, nil
}

func (a *Adapter) TestConnection(ctx context.Context) bool {
	return source.Probe(ctx, a.client, a.probeURL)
}

func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// rawToString renders a JSON scalar that the index serves inconsistently
// as either a number or a string.
func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "Unknown"
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return orUnknown(s)
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return orUnknown(n.String())
	}

	return "Unknown"
}

func underscoreTitle(title string) string {
	return strings.ReplaceAll(title, " ", "_")
}
