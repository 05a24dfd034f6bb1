package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/cwoolley/mangafind/internal/logger"
	"github.com/cwoolley/mangafind/internal/transport"
)

const (
	connectorsPath = "/v2/MangaConnector"
	searchPath     = "/v2/Search/%s/%s"
)

// Requester is the part of transport.Client the connector client needs.
type Requester interface {
	Get(ctx context.Context, path string, out any) error
}

// Client talks to the connector endpoints of the API.
// It implements Registry, Lister and Searcher.
type Client struct {
	api Requester
}

// NewClient creates a Client on top of api.
func NewClient(api Requester) *Client {
	return &Client{api: api}
}

// List fetches every connector.
func (c *Client) List(ctx context.Context) ([]Descriptor, error) {
	var ds []Descriptor
	if err := c.api.Get(ctx, connectorsPath, &ds); err != nil {
		return nil, fmt.Errorf("%w: list connectors: %w", ErrUpstreamUnavailable, err)
	}
	if ds == nil {
		ds = []Descriptor{}
	}
	return ds, nil
}

// ListEnabled returns the names of enabled connectors in listing order.
func (c *Client) ListEnabled(ctx context.Context) ([]string, error) {
	ds, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	return EnabledNames(ds), nil
}

// Search queries one connector. The query is path-escaped but otherwise sent
// as given, including when empty. A null body yields no items; a body that is
// not a JSON array yields ErrInvalidResponse. Entries without a key are dropped.
func (c *Client) Search(ctx context.Context, source, query string) ([]Item, error) {
	path := fmt.Sprintf(searchPath, url.PathEscape(source), url.PathEscape(query))

	var raw json.RawMessage
	if err := c.api.Get(ctx, path, &raw); err != nil {
		if transport.IsDecode(err) {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidResponse, source, err)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceQueryFailed, source, err)
	}
	return decodeItems(source, raw)
}

func decodeItems(source string, raw json.RawMessage) ([]Item, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []Item{}, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s: expected a list of items", ErrInvalidResponse, source)
	}

	items := make([]Item, 0, len(entries))
	for i, e := range entries {
		var it Item
		if err := json.Unmarshal(e, &it); err != nil {
			logger.Warn("connector %s: dropping result %d: %v", source, i, err)
			continue
		}
		items = append(items, it)
	}
	return items, nil
}
