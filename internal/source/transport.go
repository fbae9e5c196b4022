// Copyright (c) 2025, the shelfdex contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package source

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shelfdex/shelfdex/internal/buildinfo"
)

const defaultTimeout = 30 * time.Second

// TransportOptions configures the pooled HTTP client each adapter owns.
type TransportOptions struct {
	Proxy     string
	Timeout   time.Duration
	UserAgent string
}

// NewHTTPClient builds an adapter's HTTP client. The connection pool is
// the adapter's only long-lived shared resource and is reused across
// calls; the configured timeout bounds each outbound call individually.
func NewHTTPClient(opts TransportOptions) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 30,
		IdleConnTimeout:     90 * time.Second,
	}

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			log.Warn().Err(err).Str("proxy", opts.Proxy).Msg("Invalid proxy URL, falling back to environment proxy")
		} else {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	agent := opts.UserAgent
	if agent == "" {
		agent = buildinfo.UserAgent
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{next: transport, agent: agent},
	}
}

// userAgentTransport stamps the configured user agent on every request
// that does not already carry one.
type userAgentTransport struct {
	next  http.RoundTripper
	agent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.agent)
	}
	return t.next.RoundTrip(req)
}

// Probe issues a lightweight HEAD request against probeURL and reports
// whether the service answered with a non-error status.
func Probe(ctx context.Context, client *http.Client, probeURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, probeURL, nil)
	if err != nil {
		return false
	}

	resp, err := client.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("url", probeURL).Msg("Connection probe failed")
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	return resp.StatusCode < http.StatusBadRequest
}

// FetchBytes downloads rawURL into memory, failing with a StatusError on
// any non-2xx status. The response headers are returned alongside the
// body so callers can recover file names from content-disposition.
func FetchBytes(ctx context.Context, client *http.Client, rawURL string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, nil, &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	return data, resp.Header, nil
}
