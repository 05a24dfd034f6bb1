package search

import (
	"encoding/json"
	"slices"

	"github.com/cwoolley/mangafind/internal/connectors"
)

// TaggedItem is a connector result labelled with the connector that returned it.
type TaggedItem struct {
	Source string
	Item   connectors.Item
}

// AggregatedItem is a merged result plus the connectors that returned its key,
// in the order they were queried. AvailableSources is never empty.
type AggregatedItem struct {
	connectors.Item
	AvailableSources []string
}

// MarshalJSON writes the flat item fields plus "availableSources".
func (a AggregatedItem) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(a.Payload)+2)
	for k, v := range a.Payload {
		fields[k] = v
	}
	fields["key"] = a.Key
	fields["availableSources"] = a.AvailableSources
	return json.Marshal(fields)
}

// Reconcile merges tagged items by key in a single pass. The first item seen
// for a key keeps its payload; later ones only add their source if it is not
// already listed. Output follows order of first appearance.
func Reconcile(tagged []TaggedItem) []AggregatedItem {
	out := make([]AggregatedItem, 0, len(tagged))
	index := make(map[string]int, len(tagged))

	for _, t := range tagged {
		if i, ok := index[t.Item.Key]; ok {
			if !slices.Contains(out[i].AvailableSources, t.Source) {
				out[i].AvailableSources = append(out[i].AvailableSources, t.Source)
			}
			continue
		}
		index[t.Item.Key] = len(out)
		out = append(out, AggregatedItem{Item: t.Item, AvailableSources: []string{t.Source}})
	}
	return out
}

// UnmarshalJSON reverses MarshalJSON.
func (a *AggregatedItem) UnmarshalJSON(b []byte) error {
	var aux struct {
		AvailableSources []string `json:"availableSources"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if err := a.Item.UnmarshalJSON(b); err != nil {
		return err
	}
	delete(a.Payload, "availableSources")
	a.AvailableSources = aux.AvailableSources
	return nil
}
