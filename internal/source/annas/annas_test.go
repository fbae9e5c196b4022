// Copyright (c) 2025, the shelfdex contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package annas

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfdex/shelfdex/internal/domain"
	"github.com/shelfdex/shelfdex/internal/source"
)

type fakeClient struct {
	records   []Record
	searchErr error
	infoErr   error
}

func (f *fakeClient) Search(ctx context.Context, query string) ([]Record, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.records, nil
}

func (f *fakeClient) GetInformation(ctx context.Context, id string) (*Record, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	for _, r := range f.records {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, errors.New("not found")
}

func newTestAdapter(client Client) *Adapter {
	return NewWithClient(client, source.TransportOptions{})
}

func TestSearch(t *testing.T) {
	md5 := strings.Repeat("a", 32)
	client := &fakeClient{records: []Record{
		{ID: md5, Title: "SRE Book", Authors: "Google", Extension: "pdf"},
		{ID: strings.Repeat("b", 32)},
		{ID: strings.Repeat("c", 32), Title: "Third"},
	}}
	adapter := newTestAdapter(client)

	t.Run("maps records to identifier handles", func(t *testing.T) {
		results, err := adapter.Search(context.Background(), "sre", 0)
		require.NoError(t, err)
		require.Len(t, results, 3)

		first := results[0]
		assert.Equal(t, "SRE Book", first.Book.Title)
		assert.Equal(t, "pdf", first.Book.FileType)
		assert.Equal(t, md5, first.Handle.BookID)
		assert.Empty(t, first.Handle.DownloadURL)
		assert.Equal(t, domain.SourceAnnasArchive, first.Source)

		assert.Equal(t, "Unknown", results[1].Book.Title)
		assert.Equal(t, "Unknown", results[1].Book.Authors)
	})

	t.Run("limit truncates", func(t *testing.T) {
		results, err := adapter.Search(context.Background(), "sre", 2)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("search failure surfaces", func(t *testing.T) {
		broken := newTestAdapter(&fakeClient{searchErr: errors.New("mirror down")})
		_, err := broken.Search(context.Background(), "sre", 0)
		assert.ErrorContains(t, err, "mirror down")
	})
}

func TestDownload(t *testing.T) {
	md5 := strings.Repeat("a", 32)

	t.Run("lists manual links grouped by tier", func(t *testing.T) {
		client := &fakeClient{records: []Record{{
			ID: md5,
			URLs: []NamedURL{
				{Title: "Fast Partner Server #1", URL: "https://fast1.example/dl"},
				{Title: "Slow Partner Server #1", URL: "https://slow1.example/dl"},
				{Title: "Fast Partner Server #2", URL: "https://fast2.example/dl"},
			},
		}}}
		adapter := newTestAdapter(client)

		outcome, err := adapter.Download(context.Background(), domain.DownloadHandle{BookID: md5}, "", false)
		require.NoError(t, err)

		assert.False(t, outcome.Success)
		assert.Empty(t, outcome.FilePath)
		assert.Nil(t, outcome.Content)

		msg := outcome.Error
		assert.Contains(t, msg, "requires manual download")
		assert.Equal(t, 2, strings.Count(msg, "https://fast"))
		assert.Equal(t, 1, strings.Count(msg, "https://slow"))

		// Fast tier is listed before the slow tier and numbered per group.
		fastIdx := strings.Index(msg, "Fast links (paid):")
		slowIdx := strings.Index(msg, "Slow links (free with wait):")
		require.GreaterOrEqual(t, fastIdx, 0)
		require.Greater(t, slowIdx, fastIdx)
		assert.NotContains(t, msg, "Other links:")
		assert.Contains(t, msg, "  1. https://fast1.example/dl")
		assert.Contains(t, msg, "  2. https://fast2.example/dl")
		assert.Contains(t, msg, "  1. https://slow1.example/dl")
	})

	t.Run("unlabeled links fall into other tier", func(t *testing.T) {
		client := &fakeClient{records: []Record{{
			ID:   md5,
			URLs: []NamedURL{{Title: "libgen.rs", URL: "https://libgen.example/dl"}},
		}}}
		adapter := newTestAdapter(client)

		outcome, err := adapter.Download(context.Background(), domain.DownloadHandle{BookID: md5}, "", false)
		require.NoError(t, err)
		assert.Contains(t, outcome.Error, "Other links:")
	})

	t.Run("record without links", func(t *testing.T) {
		client := &fakeClient{records: []Record{{ID: md5}}}
		adapter := newTestAdapter(client)

		_, err := adapter.Download(context.Background(), domain.DownloadHandle{BookID: md5}, "", false)
		assert.ErrorContains(t, err, "no download links")
	})

	t.Run("missing book id", func(t *testing.T) {
		adapter := newTestAdapter(&fakeClient{})
		_, err := adapter.Download(context.Background(), domain.DownloadHandle{}, "", false)
		assert.ErrorIs(t, err, source.ErrInsufficientDownloadInfo)
	})
}

func TestBookInfo(t *testing.T) {
	md5 := strings.Repeat("a", 32)
	client := &fakeClient{records: []Record{{
		ID: md5, Title: "SRE Book", PublishDate: "2016", Publisher: "O'Reilly",
	}}}
	adapter := newTestAdapter(client)

	meta, err := adapter.BookInfo(context.Background(), domain.DownloadHandle{BookID: md5})
	require.NoError(t, err)
	assert.Equal(t, "SRE Book", meta.Title)
	assert.Equal(t, "2016", meta.Year)
	assert.Equal(t, "O'Reilly", meta.Publisher)

	_, err = adapter.BookInfo(context.Background(), domain.DownloadHandle{})
	assert.ErrorIs(t, err, source.ErrInsufficientDownloadInfo)
}
