// Copyright (c) 2025, the shelfdex contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Source identifies one of the backing services a search result or
// download handle belongs to. The set is closed: every value routes to
// exactly one adapter.
type Source string

const (
	SourceCalibreWeb   Source = "calibre_web"
	SourceZLibrary     Source = "zlibrary"
	SourceArchiveOrg   Source = "archive_org"
	SourceLiber3       Source = "liber3"
	SourceAnnasArchive Source = "annas_archive"
)

// AllSources returns every known source in dispatch order.
func AllSources() []Source {
	return []Source{
		SourceCalibreWeb,
		SourceZLibrary,
		SourceArchiveOrg,
		SourceLiber3,
		SourceAnnasArchive,
	}
}

// ParseSource validates a user-supplied source name.
func ParseSource(s string) (Source, bool) {
	for _, known := range AllSources() {
		if Source(s) == known {
			return known, true
		}
	}
	return "", false
}

// BookMetadata describes one book. Fields other than Title are optional
// and hold "Unknown" or the empty string when a source did not provide
// them. Values are never mutated after construction.
type BookMetadata struct {
	Title       string
	Authors     string
	Year        string
	Publisher   string
	Language    string
	Description string
	CoverURL    string
	FileSize    string
	FileType    string
	ISBN        string
}

// DownloadHandle carries everything needed to fetch one file from one
// source. Exactly one of DownloadURL and BookID is populated for a
// resolvable handle.
type DownloadHandle struct {
	Source       Source
	DownloadURL  string
	BookID       string
	HashID       string
	FileName     string
	RequiresAuth bool
	// Extra holds source-specific parameters that have no common shape,
	// e.g. the peer-index content identifier and file extension needed
	// before a download URL can even be constructed.
	Extra map[string]string
}

// SearchResult pairs book metadata with the handle needed to download it.
type SearchResult struct {
	Book   BookMetadata
	Handle DownloadHandle
	Source Source
	// RelevanceScore is reserved; no ranking uses it today.
	RelevanceScore float64
}

// DownloadOutcome is the result of a download operation. On success
// exactly one of FilePath and Content is set. On failure Error carries a
// human-readable message.
type DownloadOutcome struct {
	Success  bool
	FilePath string
	FileName string
	FileSize int64
	Content  []byte
	Error    string
}
