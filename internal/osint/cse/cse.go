// Package cse implements the osint search provider on the Google Custom Search
// JSON API.
package cse

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"github.com/kozaktomas/neural-scan/internal/constants"
	"github.com/kozaktomas/neural-scan/internal/osint"
)

// Client queries one programmable search engine.
type Client struct {
	service  *customsearch.Service
	engineID string
	referer  string
}

// New creates a client. referer, when set, is sent with every request for API
// keys restricted by HTTP referrer.
func New(ctx context.Context, apiKey, engineID, referer string, opts ...option.ClientOption) (*Client, error) {
	if apiKey == "" || engineID == "" {
		return nil, errors.New("custom search API key and engine ID are required")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating custom search service: %w", err)
	}
	return &Client{service: svc, engineID: engineID, referer: referer}, nil
}

// Search returns up to limit hits for query. The API caps a page at 10 results.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]osint.Snippet, error) {
	limit = max(1, min(limit, constants.MaxSearchResults))

	call := c.service.Cse.List().Q(query).Cx(c.engineID).Num(int64(limit)).Context(ctx)
	if c.referer != "" {
		call.Header().Set("Referer", c.referer)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("custom search %q: %w", query, err)
	}

	snippets := make([]osint.Snippet, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil {
			continue
		}
		snippets = append(snippets, osint.Snippet{
			Title: item.Title,
			Link:  item.Link,
			Text:  item.Snippet,
		})
	}
	return snippets, nil
}
