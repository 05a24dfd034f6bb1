package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/cwoolley/mangafind/internal/connectors"
	"github.com/cwoolley/mangafind/internal/logger"
	"github.com/cwoolley/mangafind/internal/state"
)

// Store is the part of state.Store the API needs.
type Store interface {
	Search(ctx context.Context, query, scope string) (*state.SearchState, error)
	Snapshot() *state.SearchState
}

// API serves search, state and connector endpoints.
type API struct {
	store  Store
	lister connectors.Lister
}

// NewAPI creates the API handlers.
func NewAPI(store Store, lister connectors.Lister) *API {
	return &API{store: store, lister: lister}
}

// Register mounts the API routes on s.
func (a *API) Register(s *Server) {
	s.Handle("GET /search", http.HandlerFunc(a.handleSearch))
	s.Handle("GET /state", http.HandlerFunc(a.handleState))
	s.Handle("GET /connectors", http.HandlerFunc(a.handleConnectors))
}

// handleSearch runs ?q= against ?connector= (all enabled connectors when
// absent) and returns the resulting state.
func (a *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope := q.Get("connector")
	if scope != "" {
		known, err := a.knownConnector(r.Context(), scope)
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		if !known {
			writeError(w, http.StatusNotFound, fmt.Errorf("unknown connector %q", scope))
			return
		}
	}

	st, err := a.store.Search(r.Context(), q.Get("q"), scope)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, st)
	case errors.Is(err, state.ErrStale):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, connectors.ErrUpstreamUnavailable):
		writeJSON(w, http.StatusBadGateway, st)
	case r.Context().Err() != nil:
		logger.Debug("search request abandoned by client")
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (a *API) knownConnector(ctx context.Context, name string) (bool, error) {
	ds, err := a.lister.List(ctx)
	if err != nil {
		return false, err
	}
	for _, d := range ds {
		if d.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (a *API) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.store.Snapshot())
}

func (a *API) handleConnectors(w http.ResponseWriter, r *http.Request) {
	ds, err := a.lister.List(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if r.URL.Query().Get("enabled") == "true" {
		enabled := make([]connectors.Descriptor, 0, len(ds))
		for _, d := range ds {
			if d.Enabled {
				enabled = append(enabled, d)
			}
		}
		ds = enabled
	}
	writeJSON(w, http.StatusOK, ds)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
