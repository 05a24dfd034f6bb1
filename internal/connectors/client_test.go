package connectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cwoolley/mangafind/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(transport.New(transport.Options{BaseURL: srv.URL, HTTPClient: srv.Client()}))
}

func TestClient_ListEnabled_FiltersDisabled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/MangaConnector", r.URL.Path)
		_, _ = w.Write([]byte(`[{"name":"S1","enabled":true},{"name":"S2","enabled":false},{"name":"S3","enabled":true,"iconUrl":"x"}]`))
	})

	names, err := c.ListEnabled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "S3"}, names)
}

func TestClient_List_NullBodyIsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`null`))
	})

	ds, err := c.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, ds)
	assert.Empty(t, ds)
}

func TestClient_List_FailureIsUpstreamUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.ListEnabled(context.Background())
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, http.StatusInternalServerError, transport.StatusCode(err))
}

func TestClient_Search_BuildsEscapedPath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/Search/S1/one%20piece%2Fred", r.URL.EscapedPath())
		_, _ = w.Write([]byte(`[{"key":"m1","name":"One Piece"}]`))
	})

	items, err := c.Search(context.Background(), "S1", "one piece/red")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "m1", items[0].Key)
	assert.Equal(t, "One Piece", items[0].Title())
}

func TestClient_Search_EmptyQueryForwarded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/Search/S1/", r.URL.EscapedPath())
		_, _ = w.Write([]byte(`[]`))
	})

	items, err := c.Search(context.Background(), "S1", "")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestClient_Search_NullBodyIsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`null`))
	})

	items, err := c.Search(context.Background(), "S1", "q")
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestClient_Search_NonListIsInvalidResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"key":"m1"}`))
	})

	_, err := c.Search(context.Background(), "S1", "q")
	assert.ErrorIs(t, err, ErrInvalidResponse)
	assert.NotErrorIs(t, err, ErrSourceQueryFailed)
}

func TestClient_Search_UnparsableBodyIsInvalidResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})

	_, err := c.Search(context.Background(), "S1", "q")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestClient_Search_DropsKeylessEntries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"key":"m1"},{"name":"no key"},"junk",{"key":"m2"}]`))
	})

	items, err := c.Search(context.Background(), "S1", "q")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "m1", items[0].Key)
	assert.Equal(t, "m2", items[1].Key)
}

func TestClient_Search_TransportFailureIsSourceQueryFailed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Search(context.Background(), "S1", "q")
	assert.ErrorIs(t, err, ErrSourceQueryFailed)
	assert.ErrorContains(t, err, "S1")
}
