package search

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"

	"github.com/cwoolley/mangafind/internal/connectors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(key, title string) connectors.Item {
	return connectors.Item{Key: key, Payload: map[string]any{"title": title}}
}

func TestReconcile_FirstWriterWins(t *testing.T) {
	got := Reconcile([]TaggedItem{
		{Source: "S1", Item: item("m1", "Foo")},
		{Source: "S2", Item: item("m1", "Foo-alt")},
	})

	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].Key)
	assert.Equal(t, "Foo", got[0].Payload["title"])
	assert.Equal(t, []string{"S1", "S2"}, got[0].AvailableSources)
}

func TestReconcile_OrderOfFirstAppearance(t *testing.T) {
	got := Reconcile([]TaggedItem{
		{Source: "S1", Item: item("b", "")},
		{Source: "S1", Item: item("a", "")},
		{Source: "S2", Item: item("c", "")},
		{Source: "S2", Item: item("b", "")},
	})

	keys := make([]string, len(got))
	for i, g := range got {
		keys[i] = g.Key
	}
	assert.Equal(t, []string{"b", "a", "c"}, keys)
	assert.Equal(t, []string{"S1", "S2"}, got[0].AvailableSources)
	assert.Equal(t, []string{"S2"}, got[2].AvailableSources)
}

func TestReconcile_SameSourceRepeatedKey(t *testing.T) {
	got := Reconcile([]TaggedItem{
		{Source: "S1", Item: item("m1", "first")},
		{Source: "S1", Item: item("m1", "second")},
	})

	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].Payload["title"])
	assert.Equal(t, []string{"S1"}, got[0].AvailableSources)
}

func TestReconcile_Empty(t *testing.T) {
	got := Reconcile(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

// Random inputs must always produce unique keys and non-empty,
// duplicate-free source lists that only name sources which had the key.
func TestReconcile_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		var tagged []TaggedItem
		had := map[string]map[string]bool{}
		for i := rng.Intn(40); i > 0; i-- {
			src := fmt.Sprintf("S%d", rng.Intn(4))
			key := fmt.Sprintf("k%d", rng.Intn(10))
			tagged = append(tagged, TaggedItem{Source: src, Item: item(key, src)})
			if had[key] == nil {
				had[key] = map[string]bool{}
			}
			had[key][src] = true
		}

		got := Reconcile(tagged)
		require.Len(t, got, len(had))

		seen := map[string]bool{}
		for _, g := range got {
			require.False(t, seen[g.Key], "duplicate key %s", g.Key)
			seen[g.Key] = true

			require.NotEmpty(t, g.AvailableSources)
			srcs := map[string]bool{}
			for _, s := range g.AvailableSources {
				require.False(t, srcs[s], "duplicate source %s for %s", s, g.Key)
				srcs[s] = true
			}
			assert.Equal(t, had[g.Key], srcs)
			assert.Equal(t, g.AvailableSources[0], g.Payload["title"], "payload must come from the first source")
		}
	}
}

func TestAggregatedItem_JSON(t *testing.T) {
	in := AggregatedItem{Item: item("m1", "Foo"), AvailableSources: []string{"S1", "S2"}}

	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"m1","title":"Foo","availableSources":["S1","S2"]}`, string(b))

	var out AggregatedItem
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}
