// Copyright (c) 2025, the shelfdex contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package zlibrary wraps the Z-Library session API. The adapter owns the
// only mutable session state in the system: logged-out or logged-in,
// with the login transition encapsulating a fixed retry ceiling. The
// session client itself is an opaque capability behind SessionClient.
package zlibrary

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	retry "github.com/avast/retry-go"
	"github.com/rs/zerolog/log"

	"github.com/shelfdex/shelfdex/internal/domain"
	"github.com/shelfdex/shelfdex/internal/source"
)

const (
	defaultProbeURL = "https://z-library.sk"

	// maxLoginAttempts is the only fixed-count retry built into an
	// adapter; everywhere else retry is left to the caller.
	maxLoginAttempts = 3

	descriptionMaxLen = 300
)

// Book is the wrapped client's record shape, normalized by the adapter
// into the common data model.
type Book struct {
	ID          string
	Hash        string
	Title       string
	Author      string
	Year        string
	Publisher   string
	Language    string
	Description string
	Cover       string
	FileSize    string
	Extension   string
	ISBN        string
}

// SessionClient is the opaque capability of the wrapped subscription
// client. Its session internals (cookies, tokens) are its own business.
type SessionClient interface {
	Login(ctx context.Context, email, password string) error
	IsLoggedIn() bool
	Search(ctx context.Context, query string, limit int) ([]Book, error)
	GetBookInfo(ctx context.Context, bookID, hashID string) (*Book, error)
	// DownloadBook returns the served file name and its content.
	DownloadBook(ctx context.Context, bookID, hashID string) (string, []byte, error)
}

// Adapter implements source.Adapter over a SessionClient.
type Adapter struct {
	email    string
	password string
	session  SessionClient
	client   *http.Client
	probeURL string
}

func New(email, password string, opts source.TransportOptions) *Adapter {
	httpClient := source.NewHTTPClient(opts)
	return &Adapter{
		email:    email,
		password: password,
		session:  newDefaultClient(httpClient),
		client:   httpClient,
		probeURL: defaultProbeURL,
	}
}

// NewWithSession injects a session client, primarily for tests.
func NewWithSession(email, password string, session SessionClient, opts source.TransportOptions) *Adapter {
	return &Adapter{
		email:    email,
		password: password,
		session:  session,
		client:   source.NewHTTPClient(opts),
		probeURL: defaultProbeURL,
	}
}

func (a *Adapter) Name() domain.Source { return domain.SourceZLibrary }

// ensureLoggedIn performs the logged-out -> logged-in transition,
// retrying up to the ceiling. Each attempt is independent; exhausting
// the ceiling aborts the call.
func (a *Adapter) ensureLoggedIn(ctx context.Context) error {
	if a.session == nil {
		return fmt.Errorf("%w: session closed", source.ErrAuthenticationFailed)
	}
	if a.session.IsLoggedIn() {
		return nil
	}

	err := retry.Do(
		func() error {
			return a.session.Login(ctx, a.email, a.password)
		},
		retry.Attempts(maxLoginAttempts),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Uint("attempt", n+1).Msg("Z-Library login attempt failed")
		}),
	)
	if err != nil {
		return fmt.Errorf("%w: login failed after %d attempts: %v", source.ErrAuthenticationFailed, maxLoginAttempts, err)
	}

	log.Debug().Msg("Logged into Z-Library")
	return nil
}

func (a *Adapter) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	if err := a.ensureLoggedIn(ctx); err != nil {
		return nil, err
	}

	books, err := a.session.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("z-library search failed: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(books))
	for _, book := range books {
		results = append(results, domain.SearchResult{
			Book: a.normalize(book),
			Handle: domain.DownloadHandle{
				Source:       domain.SourceZLibrary,
				BookID:       book.ID,
				HashID:       book.Hash,
				RequiresAuth: true,
			},
			Source: domain.SourceZLibrary,
		})
	}

	log.Debug().Int("results", len(results)).Msg("Z-Library search completed")
	return results, nil
}

// normalize maps a wrapped-client record to the common model, patching
// the upstream's known data-quality quirks.
func (a *Adapter) normalize(book Book) domain.BookMetadata {
	title := book.Title
	if title == "" {
		title = "Unknown"
	}
	authors := book.Author
	if authors == "" {
		authors = "Unknown"
	}
	year := book.Year
	if year == "" {
		year = "Unknown"
	}
	// The upstream serves the literal string "None" for books without a
	// publisher.
	publisher := book.Publisher
	if publisher == "" || publisher == "None" {
		publisher = "Unknown"
	}
	language := book.Language
	if language == "" {
		language = "Unknown"
	}

	return domain.BookMetadata{
		Title:       title,
		Authors:     authors,
		Year:        year,
		Publisher:   publisher,
		Language:    language,
		Description: cleanDescription(book.Description),
		CoverURL:    book.Cover,
		FileSize:    book.FileSize,
		FileType:    book.Extension,
		ISBN:        book.ISBN,
	}
}

func cleanDescription(description string) string {
	description = strings.TrimSpace(description)
	if description == "" || description == "None" {
		return ""
	}
	if runes := []rune(description); len(runes) > descriptionMaxLen {
		return string(runes[:descriptionMaxLen]) + "..."
	}
	return description
}

func (a *Adapter) Download(ctx context.Context, handle domain.DownloadHandle, destDir string, returnContent bool) (*domain.DownloadOutcome, error) {
	if err := a.ensureLoggedIn(ctx); err != nil {
		return nil, err
	}

	if handle.BookID == "" || handle.HashID == "" {
		return nil, fmt.Errorf("%w: z-library download requires both book id and hash", source.ErrInsufficientDownloadInfo)
	}

	// Validate the handle still resolves before pulling the file.
	if _, err := a.session.GetBookInfo(ctx, handle.BookID, handle.HashID); err != nil {
		return nil, fmt.Errorf("z-library book lookup failed: %w", err)
	}

	fileName, content, err := a.session.DownloadBook(ctx, handle.BookID, handle.HashID)
	if err != nil {
		return nil, fmt.Errorf("z-library download failed: %w", err)
	}
	if fileName == "" {
		fileName = "unknown_book"
	}

	return source.FinishDownload(content, fileName, destDir, returnContent)
}

func (a *Adapter) BookInfo(ctx context.Context, handle domain.DownloadHandle) (*domain.BookMetadata, error) {
	if err := a.ensureLoggedIn(ctx); err != nil {
		return nil, err
	}

	if handle.BookID == "" || handle.HashID == "" {
		return nil, fmt.Errorf("%w: z-library book info requires both book id and hash", source.ErrInsufficientDownloadInfo)
	}

	book, err := a.session.GetBookInfo(ctx, handle.BookID, handle.HashID)
	if err != nil {
		return nil, err
	}

	meta := a.normalize(*book)
	return &meta, nil
}

func (a *Adapter) TestConnection(ctx context.Context) bool {
	return source.Probe(ctx, a.client, a.probeURL)
}

// Close drops the session state unconditionally; there is no remote
// logout call.
func (a *Adapter) Close() error {
	a.session = nil
	a.client.CloseIdleConnections()
	return nil
}
