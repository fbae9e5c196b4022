// Copyright (c) 2025, the shelfdex contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	t.Run("short name unchanged", func(t *testing.T) {
		assert.Equal(t, "book.epub", SanitizeFilename("book.epub"))
	})

	t.Run("name at budget unchanged", func(t *testing.T) {
		name := strings.Repeat("a", 95) + ".pdf"
		require.LessOrEqual(t, len(name), 100)
		assert.Equal(t, name, SanitizeFilename(name))
	})

	t.Run("long ascii name truncated with marker", func(t *testing.T) {
		name := strings.Repeat("a", 150) + ".epub"
		got := SanitizeFilename(name)

		assert.LessOrEqual(t, len(got), 100)
		assert.True(t, strings.HasSuffix(got, " <省略>.epub"), "got %q", got)
		assert.True(t, utf8.ValidString(got))
	})

	t.Run("multibyte name truncated rune safe", func(t *testing.T) {
		// 40 CJK runes are 120 bytes; a naive byte slice would split one.
		name := strings.Repeat("書", 40) + ".pdf"
		got := SanitizeFilename(name)

		assert.LessOrEqual(t, len(got), 100)
		assert.True(t, utf8.ValidString(got))
		assert.True(t, strings.HasSuffix(got, " <省略>.pdf"), "got %q", got)
	})

	t.Run("extension survives", func(t *testing.T) {
		name := strings.Repeat("x", 200) + ".epub"
		assert.Equal(t, ".epub", filepath.Ext(SanitizeFilename(name)))
	})
}

func TestIsValidURL(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"http://example.com/file.epub", true},
		{"https://example.com/file.epub", true},
		{"ftp://example.com/file.epub", false},
		{"file:///etc/passwd", false},
		{"/opds/download/1/epub/", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidURL(tt.raw))
		})
	}
}

func TestFilenameFromContentDisposition(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{
			name:   "plain quoted",
			header: `attachment; filename="book.epub"`,
			want:   "book.epub",
		},
		{
			name:   "plain unquoted",
			header: `attachment; filename=book.pdf`,
			want:   "book.pdf",
		},
		{
			name:   "rfc5987 extended form wins",
			header: `attachment; filename*=UTF-8''%E6%9B%B8.epub; filename="fallback.epub"`,
			want:   "書.epub",
		},
		{
			name:   "extended form without charset prefix",
			header: `attachment; filename*=report%20final.pdf`,
			want:   "report final.pdf",
		},
		{
			name:   "no filename declared",
			header: "attachment",
			want:   "",
		},
		{
			name:   "empty header",
			header: "",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilenameFromContentDisposition(tt.header))
		})
	}
}

func TestFinishDownload(t *testing.T) {
	content := []byte("%PDF-1.4 fake content")

	t.Run("in memory", func(t *testing.T) {
		outcome, err := FinishDownload(content, "book.pdf", "", true)
		require.NoError(t, err)

		assert.True(t, outcome.Success)
		assert.Equal(t, "book.pdf", outcome.FileName)
		assert.Equal(t, int64(len(content)), outcome.FileSize)
		assert.Equal(t, content, outcome.Content)
		assert.Empty(t, outcome.FilePath)
	})

	t.Run("to disk", func(t *testing.T) {
		dir := t.TempDir()

		outcome, err := FinishDownload(content, "book.pdf", dir, false)
		require.NoError(t, err)

		assert.True(t, outcome.Success)
		assert.Equal(t, filepath.Join(dir, "book.pdf"), outcome.FilePath)
		assert.Nil(t, outcome.Content)

		written, err := os.ReadFile(outcome.FilePath)
		require.NoError(t, err)
		assert.Equal(t, content, written)
	})

	t.Run("creates missing destination directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "books")

		outcome, err := FinishDownload(content, "book.epub", dir, false)
		require.NoError(t, err)
		assert.FileExists(t, outcome.FilePath)
	})

	t.Run("file name sanitized before writing", func(t *testing.T) {
		dir := t.TempDir()
		long := strings.Repeat("a", 150) + ".epub"

		outcome, err := FinishDownload(content, long, dir, false)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(outcome.FileName), 100)
	})
}
