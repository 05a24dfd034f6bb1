package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Item is one search result from a connector. Key identifies the same manga
// across connectors; every other attribute is kept verbatim in Payload.
type Item struct {
	Key     string
	Payload map[string]any
}

var errMissingKey = errors.New("item has no key")

// UnmarshalJSON reads a flat JSON object, lifting "key" out of the payload.
func (it *Item) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	key, _ := raw["key"].(string)
	if key == "" {
		return errMissingKey
	}
	delete(raw, "key")
	it.Key = key
	it.Payload = raw
	return nil
}

// MarshalJSON writes the payload fields with "key" alongside them.
func (it Item) MarshalJSON() ([]byte, error) {
	return json.Marshal(it.fields())
}

func (it Item) fields() map[string]any {
	out := make(map[string]any, len(it.Payload)+1)
	for k, v := range it.Payload {
		out[k] = v
	}
	out["key"] = it.Key
	return out
}

// Title returns the display name, preferring "name" over "title".
func (it Item) Title() string {
	for _, f := range []string{"name", "title"} {
		if s, ok := it.Payload[f].(string); ok && s != "" {
			return s
		}
	}
	return it.Key
}

// Descriptor describes one connector as listed by the API.
type Descriptor struct {
	Name               string   `json:"name"`
	Enabled            bool     `json:"enabled"`
	IconURL            string   `json:"iconUrl,omitempty"`
	SupportedLanguages []string `json:"supportedLanguages,omitempty"`
}

// Registry resolves the connectors taking part in a global search.
type Registry interface {
	ListEnabled(ctx context.Context) ([]string, error)
}

// Lister returns every known connector, enabled or not.
type Lister interface {
	List(ctx context.Context) ([]Descriptor, error)
}

// Searcher runs a query against one named connector.
type Searcher interface {
	Search(ctx context.Context, source, query string) ([]Item, error)
}

// EnabledNames filters ds down to the names of enabled connectors, keeping order.
func EnabledNames(ds []Descriptor) []string {
	names := make([]string, 0, len(ds))
	for _, d := range ds {
		if d.Enabled {
			names = append(names, d.Name)
		}
	}
	return names
}

func (d Descriptor) String() string {
	if d.Enabled {
		return d.Name
	}
	return fmt.Sprintf("%s (disabled)", d.Name)
}
