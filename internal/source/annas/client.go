// Copyright (c) 2025, the shelfdex contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package annas

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/shelfdex/shelfdex/internal/source"
)

// defaultClient scrapes the mirror's HTML pages; the mirror has no
// stable JSON API. Selectors follow the markup as of writing: search
// hits are anchors carrying the js-vim-focus class whose href ends in
// the record hash, and download links carry js-download-link.
type defaultClient struct {
	baseURL string
	client  *http.Client
}

func newDefaultClient(httpClient *http.Client, baseURL string) *defaultClient {
	return &defaultClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

func (c *defaultClient) Search(ctx context.Context, query string) ([]Record, error) {
	doc, err := c.fetchDocument(ctx, c.baseURL+"/search?q="+url.QueryEscape(query))
	if err != nil {
		return nil, err
	}

	var records []Record
	for n := range doc.Descendants() {
		if n.Type != html.ElementNode || n.Data != "a" || !hasClass(n, "js-vim-focus") {
			continue
		}

		href := attr(n, "href")
		idx := strings.LastIndex(href, "md5/")
		if idx < 0 {
			continue
		}
		id := strings.TrimSuffix(href[idx+len("md5/"):], "/")
		if !isRecordHash(id) {
			continue
		}

		record := Record{
			ID:    id,
			Title: firstText(n, "h3"),
		}
		if record.Title == "" {
			// An anchor without a title heading is a layout element, not
			// a hit.
			continue
		}
		if img := firstElement(n, "img"); img != nil {
			record.Thumbnail = attr(img, "src")
		}

		records = append(records, record)
	}

	return records, nil
}

func (c *defaultClient) GetInformation(ctx context.Context, id string) (*Record, error) {
	doc, err := c.fetchDocument(ctx, c.baseURL+"/md5/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	record := &Record{ID: id}
	for n := range doc.Descendants() {
		if n.Type != html.ElementNode {
			continue
		}

		switch {
		case n.Data == "div" && hasClass(n, "text-3xl"):
			if record.Title == "" {
				record.Title = cleanPageText(nodeText(n))
			}
		case n.Data == "div" && hasClass(n, "italic"):
			if record.Authors == "" {
				record.Authors = cleanPageText(nodeText(n))
			}
		case n.Data == "div" && hasClass(n, "js-md5-top-box-description"):
			if record.Description == "" {
				record.Description = strings.TrimSpace(nodeText(n))
			}
		case n.Data == "a" && hasClass(n, "js-download-link"):
			href := attr(n, "href")
			if href == "" || href == "/datasets" {
				continue
			}
			if strings.HasPrefix(href, "/") {
				href = c.baseURL + href
			}
			record.URLs = append(record.URLs, NamedURL{
				Title: strings.TrimSpace(nodeText(n)),
				URL:   href,
			})
		}
	}

	if record.Title == "" && len(record.URLs) == 0 {
		return nil, fmt.Errorf("record %s not found", id)
	}

	record.URLs = dedupeLinks(record.URLs)
	return record, nil
}

func (c *defaultClient) fetchDocument(ctx context.Context, pageURL string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &source.StatusError{StatusCode: resp.StatusCode, URL: pageURL}
	}

	return html.Parse(resp.Body)
}

// isRecordHash reports whether s looks like the mirror's record hash,
// a 32 character lowercase hex md5.
func isRecordHash(s string) bool {
	if len(s) != 32 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

func dedupeLinks(urls []NamedURL) []NamedURL {
	seen := make(map[NamedURL]struct{}, len(urls))
	out := urls[:0]
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func cleanPageText(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "🔍", ""))
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func firstElement(n *html.Node, tag string) *html.Node {
	for d := range n.Descendants() {
		if d.Type == html.ElementNode && d.Data == tag {
			return d
		}
	}
	return nil
}

func firstText(n *html.Node, tag string) string {
	if el := firstElement(n, tag); el != nil {
		return strings.TrimSpace(nodeText(el))
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	for d := range n.Descendants() {
		if d.Type == html.TextNode {
			b.WriteString(d.Data)
		}
	}
	return b.String()
}
