// Package state holds the latest completed search and publishes it to readers.
//
// A SearchState is never modified after it is published: every completed
// search swaps in a new value, so readers can hold on to a snapshot and
// compare pointers to detect change.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cwoolley/mangafind/internal/logger"
	"github.com/cwoolley/mangafind/internal/search"
)

// ErrStale is returned by Search when a newer search (or Clear) was issued
// before this one finished. Its result was discarded.
var ErrStale = errors.New("search superseded by a newer one")

// SearchState is one completed search.
type SearchState struct {
	Seq         uint64
	Query       string
	Scope       string
	Items       []search.AggregatedItem
	LastError   error
	CompletedAt time.Time
}

// Global reports whether the search covered every enabled connector.
func (s *SearchState) Global() bool {
	return s.Scope == search.Global
}

// MarshalJSON renders LastError as a message.
func (s *SearchState) MarshalJSON() ([]byte, error) {
	out := struct {
		Seq         uint64                  `json:"seq"`
		Query       string                  `json:"query"`
		Scope       string                  `json:"scope"`
		Items       []search.AggregatedItem `json:"items"`
		LastError   string                  `json:"lastError,omitempty"`
		CompletedAt *time.Time              `json:"completedAt,omitempty"`
	}{Seq: s.Seq, Query: s.Query, Scope: s.Scope, Items: s.Items}
	if s.LastError != nil {
		out.LastError = s.LastError.Error()
	}
	if !s.CompletedAt.IsZero() {
		out.CompletedAt = &s.CompletedAt
	}
	return json.Marshal(out)
}

// Searcher is satisfied by *search.Aggregator.
type Searcher interface {
	Search(ctx context.Context, query, scope string) ([]search.AggregatedItem, error)
}

// Store owns the live SearchState.
type Store struct {
	searcher Searcher
	now      func() time.Time

	mu       sync.Mutex
	current  *SearchState
	issued   uint64
	inFlight int
	subs     map[int]chan *SearchState
	nextSub  int
}

// New creates a Store with an empty state.
func New(searcher Searcher) *Store {
	return &Store{
		searcher: searcher,
		now:      time.Now,
		current:  &SearchState{Items: []search.AggregatedItem{}},
		subs:     make(map[int]chan *SearchState),
	}
}

// Snapshot returns the latest completed state. The same pointer is returned
// until another search completes or Clear is called.
func (s *Store) Snapshot() *SearchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// InFlight returns the number of searches started but not yet finished.
func (s *Store) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Search runs a search and, if no newer search was issued meanwhile,
// publishes its outcome. The previous state stays visible until then.
//
// On failure the published state has no items and LastError set; the
// failure is also returned. If ctx is cancelled the state is left untouched.
func (s *Store) Search(ctx context.Context, query, scope string) (*SearchState, error) {
	s.mu.Lock()
	s.issued++
	seq := s.issued
	s.inFlight++
	s.mu.Unlock()

	items, err := s.searcher.Search(ctx, query, scope)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--

	if ctx.Err() != nil {
		logger.Debug("search #%d cancelled", seq)
		return nil, ctx.Err()
	}
	if seq != s.issued {
		logger.Debug("discarding search #%d (latest is #%d)", seq, s.issued)
		return nil, ErrStale
	}

	next := &SearchState{
		Seq:         seq,
		Query:       query,
		Scope:       scope,
		Items:       items,
		LastError:   err,
		CompletedAt: s.now(),
	}
	if err != nil || next.Items == nil {
		next.Items = []search.AggregatedItem{}
	}
	s.publish(next)
	return next, err
}

// Clear publishes an empty state and discards any search still in flight.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	s.publish(&SearchState{Seq: s.issued, Items: []search.AggregatedItem{}})
}

// Subscribe returns a channel that receives every published state. Slow
// readers only see the most recent one. Call the returned func to stop.
func (s *Store) Subscribe() (<-chan *SearchState, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan *SearchState, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// publish must be called with mu held.
func (s *Store) publish(st *SearchState) {
	s.current = st
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}
