// Copyright (c) 2025, the shelfdex contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package source

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shelfdex/shelfdex/internal/domain"
)

const (
	// filenameByteBudget is the maximum encoded length a saved file name
	// may have. Measured in bytes, not runes, so the limit holds on
	// filesystems with byte-length caps.
	filenameByteBudget = 100
	truncationMarker   = " <省略>"
)

// SanitizeFilename trims a file name to the byte budget. The extension
// survives intact and a truncation marker is appended; the base name is
// shortened rune-safely until the encoded whole fits.
func SanitizeFilename(name string) string {
	if len(name) <= filenameByteBudget {
		return name
	}

	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)

	available := filenameByteBudget - len(ext) - len(truncationMarker)
	for len(base) > available && base != "" {
		_, size := utf8.DecodeLastRuneInString(base)
		base = base[:len(base)-size]
	}

	return base + truncationMarker + ext
}

// IsValidURL reports whether raw carries an http or https scheme. Only
// such URLs are ever handed to a transport.
func IsValidURL(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}

var (
	// RFC 5987 extended form first, plain quoted/unquoted fallback.
	extFilenameRe   = regexp.MustCompile(`filename\*=(?:UTF-8'')?([^;]+)`)
	plainFilenameRe = regexp.MustCompile(`filename=["']?([^;"']+)["']?`)
)

// FilenameFromContentDisposition recovers a file name from a
// Content-Disposition header value, or returns "" if none is declared.
func FilenameFromContentDisposition(header string) string {
	if header == "" {
		return ""
	}

	if m := extFilenameRe.FindStringSubmatch(header); m != nil {
		if decoded, err := url.QueryUnescape(m[1]); err == nil {
			return decoded
		}
		return m[1]
	}

	if m := plainFilenameRe.FindStringSubmatch(header); m != nil {
		return m[1]
	}

	return ""
}

// FinishDownload materializes downloaded bytes as a DownloadOutcome:
// in memory when returnContent is set, otherwise written under destDir
// (created if absent) with a sanitized file name.
func FinishDownload(content []byte, fileName, destDir string, returnContent bool) (*domain.DownloadOutcome, error) {
	fileName = SanitizeFilename(fileName)

	if returnContent {
		return &domain.DownloadOutcome{
			Success:  true,
			FileName: fileName,
			FileSize: int64(len(content)),
			Content:  content,
		}, nil
	}

	if destDir == "" {
		destDir = "."
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("create destination directory: %w", err)
	}

	filePath := filepath.Join(destDir, fileName)
	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return nil, fmt.Errorf("write %s: %w", filePath, err)
	}

	return &domain.DownloadOutcome{
		Success:  true,
		FilePath: filePath,
		FileName: fileName,
		FileSize: int64(len(content)),
	}, nil
}
