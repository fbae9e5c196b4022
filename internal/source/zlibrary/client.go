// Copyright (c) 2025, the shelfdex contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package zlibrary

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shelfdex/shelfdex/internal/source"
)

const defaultAPIBase = "https://z-library.sk/eapi"

// defaultClient is the stock SessionClient, speaking the service's JSON
// API. Session state is the user id/key pair returned by login, sent as
// cookies on every authenticated call.
type defaultClient struct {
	apiBase string
	client  *http.Client

	userID  string
	userKey string
}

func newDefaultClient(httpClient *http.Client) *defaultClient {
	return &defaultClient{
		apiBase: defaultAPIBase,
		client:  httpClient,
	}
}

func (c *defaultClient) IsLoggedIn() bool {
	return c.userID != "" && c.userKey != ""
}

type loginResponse struct {
	Success int `json:"success"`
	User    struct {
		ID      json.Number `json:"id"`
		UserKey string      `json:"remix_userkey"`
	} `json:"user"`
}

func (c *defaultClient) Login(ctx context.Context, email, password string) error {
	form := url.Values{}
	form.Set("email", email)
	form.Set("password", password)

	var parsed loginResponse
	if err := c.do(ctx, http.MethodPost, c.apiBase+"/user/login", form, &parsed); err != nil {
		return err
	}
	if parsed.Success != 1 || parsed.User.UserKey == "" {
		return fmt.Errorf("login rejected")
	}

	c.userID = parsed.User.ID.String()
	c.userKey = parsed.User.UserKey
	return nil
}

// rawBook mirrors the API's book record.
type rawBook struct {
	ID          json.Number `json:"id"`
	Hash        string      `json:"hash"`
	Title       string      `json:"title"`
	Author      string      `json:"author"`
	Year        json.Number `json:"year"`
	Publisher   string      `json:"publisher"`
	Language    string      `json:"language"`
	Description string      `json:"description"`
	Cover       string      `json:"cover"`
	FileSize    json.Number `json:"filesize"`
	Extension   string      `json:"extension"`
	ISBN        string      `json:"identifier"`
}

func (b rawBook) toBook() Book {
	return Book{
		ID:          b.ID.String(),
		Hash:        b.Hash,
		Title:       b.Title,
		Author:      b.Author,
		Year:        b.Year.String(),
		Publisher:   b.Publisher,
		Language:    b.Language,
		Description: b.Description,
		Cover:       b.Cover,
		FileSize:    b.FileSize.String(),
		Extension:   b.Extension,
		ISBN:        b.ISBN,
	}
}

func (c *defaultClient) Search(ctx context.Context, query string, limit int) ([]Book, error) {
	form := url.Values{}
	form.Set("message", query)
	if limit > 0 {
		form.Set("limit", strconv.Itoa(limit))
	}

	var parsed struct {
		Success int       `json:"success"`
		Books   []rawBook `json:"books"`
	}
	if err := c.do(ctx, http.MethodPost, c.apiBase+"/book/search", form, &parsed); err != nil {
		return nil, err
	}
	if parsed.Success != 1 {
		return nil, fmt.Errorf("search rejected")
	}

	books := make([]Book, 0, len(parsed.Books))
	for _, raw := range parsed.Books {
		books = append(books, raw.toBook())
	}
	return books, nil
}

func (c *defaultClient) GetBookInfo(ctx context.Context, bookID, hashID string) (*Book, error) {
	var parsed struct {
		Success int     `json:"success"`
		Book    rawBook `json:"book"`
	}
	endpoint := fmt.Sprintf("%s/book/%s/%s", c.apiBase, url.PathEscape(bookID), url.PathEscape(hashID))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &parsed); err != nil {
		return nil, err
	}
	if parsed.Success != 1 {
		return nil, fmt.Errorf("book %s not found", bookID)
	}

	book := parsed.Book.toBook()
	return &book, nil
}

func (c *defaultClient) DownloadBook(ctx context.Context, bookID, hashID string) (string, []byte, error) {
	var parsed struct {
		File struct {
			DownloadLink string `json:"downloadLink"`
		} `json:"file"`
	}
	endpoint := fmt.Sprintf("%s/book/%s/%s/file", c.apiBase, url.PathEscape(bookID), url.PathEscape(hashID))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &parsed); err != nil {
		return "", nil, err
	}
	if parsed.File.DownloadLink == "" {
		return "", nil, fmt.Errorf("no download link for book %s", bookID)
	}

	content, headers, err := source.FetchBytes(ctx, c.client, parsed.File.DownloadLink)
	if err != nil {
		return "", nil, err
	}

	fileName := source.FilenameFromContentDisposition(headers.Get("Content-Disposition"))
	if fileName == "" {
		if parsedURL, err := url.Parse(parsed.File.DownloadLink); err == nil {
			segments := strings.Split(parsedURL.Path, "/")
			fileName = segments[len(segments)-1]
		}
	}

	return fileName, content, nil
}

func (c *defaultClient) do(ctx context.Context, method, endpoint string, form url.Values, out any) error {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.IsLoggedIn() {
		req.AddCookie(&http.Cookie{Name: "remix_userid", Value: c.userID})
		req.AddCookie(&http.Cookie{Name: "remix_userkey", Value: c.userKey})
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &source.StatusError{StatusCode: resp.StatusCode, URL: endpoint}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
