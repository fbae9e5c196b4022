// Copyright (c) 2025, the shelfdex contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient(t *testing.T) {
	t.Run("default timeout applied", func(t *testing.T) {
		client := NewHTTPClient(TransportOptions{})
		assert.Equal(t, 30*time.Second, client.Timeout)
	})

	t.Run("explicit timeout wins", func(t *testing.T) {
		client := NewHTTPClient(TransportOptions{Timeout: 5 * time.Second})
		assert.Equal(t, 5*time.Second, client.Timeout)
	})

	t.Run("user agent stamped on requests", func(t *testing.T) {
		var gotAgent string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAgent = r.Header.Get("User-Agent")
		}))
		defer server.Close()

		client := NewHTTPClient(TransportOptions{UserAgent: "unit-test/1.0"})
		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, "unit-test/1.0", gotAgent)
	})
}

func TestProbe(t *testing.T) {
	client := NewHTTPClient(TransportOptions{})

	t.Run("healthy service", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodHead, r.Method)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		assert.True(t, Probe(context.Background(), client, server.URL))
	})

	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		assert.False(t, Probe(context.Background(), client, server.URL))
	})

	t.Run("unreachable host", func(t *testing.T) {
		assert.False(t, Probe(context.Background(), client, "http://127.0.0.1:0"))
	})
}

func TestFetchBytes(t *testing.T) {
	client := NewHTTPClient(TransportOptions{})

	t.Run("success returns body and headers", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Disposition", `attachment; filename="x.epub"`)
			w.Write([]byte("payload"))
		}))
		defer server.Close()

		data, headers, err := FetchBytes(context.Background(), client, server.URL)
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), data)
		assert.Equal(t, `attachment; filename="x.epub"`, headers.Get("Content-Disposition"))
	})

	t.Run("non-2xx returns StatusError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		_, _, err := FetchBytes(context.Background(), client, server.URL)
		require.Error(t, err)

		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
		assert.Equal(t, server.URL, statusErr.URL)
	})

	t.Run("context cancellation propagates", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, _, err := FetchBytes(ctx, client, server.URL)
		assert.Error(t, err)
	})
}
