// Copyright (c) 2025, the shelfdex contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package source

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/shelfdex/shelfdex/internal/domain"
)

var (
	ErrAuthenticationFailed     = errors.New("authentication failed")
	ErrUnexpectedContentType    = errors.New("unexpected content type")
	ErrInvalidDownloadTarget    = errors.New("invalid download target")
	ErrInsufficientDownloadInfo = errors.New("insufficient download info")
	ErrInfoNotSupported         = errors.New("book info not supported by this source")
)

// StatusError is an HTTP response with an unexpected status code.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s returned status %d", e.URL, e.StatusCode)
}

func (e *StatusError) Is(target error) bool {
	_, ok := target.(*StatusError)
	return ok
}

// ParseError is a response body that could not be decoded. It is a hard
// failure for the whole call, never a partial result.
type ParseError struct {
	Source domain.Source
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s response: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool {
	_, ok := target.(*ParseError)
	return ok
}
