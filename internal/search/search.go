package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cwoolley/mangafind/internal/connectors"
	"github.com/cwoolley/mangafind/internal/logger"
)

// Global is the scope that queries every enabled connector.
const Global = ""

// Outcomes reported to an Observer.
const (
	OutcomeOK          = "ok"
	OutcomeFailed      = "failed"
	OutcomeInvalid     = "invalid"
	OutcomeUnavailable = "upstream_unavailable"
	OutcomeCanceled    = "canceled"
)

// Observer receives per-connector and per-search measurements.
type Observer interface {
	ObserveSource(source, outcome string, d time.Duration)
	ObserveSearch(mode, outcome string, items int)
}

type nopObserver struct{}

func (nopObserver) ObserveSource(string, string, time.Duration) {}
func (nopObserver) ObserveSearch(string, string, int)           {}

// Aggregator fans a query out to connectors concurrently and merges the
// results by key.
type Aggregator struct {
	registry       connectors.Registry
	searcher       connectors.Searcher
	observer       Observer
	maxConcurrency int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithObserver reports call outcomes to o.
func WithObserver(o Observer) Option {
	return func(a *Aggregator) {
		if o != nil {
			a.observer = o
		}
	}
}

// WithMaxConcurrency bounds in-flight connector calls. Zero means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(a *Aggregator) { a.maxConcurrency = n }
}

// New creates an Aggregator. The registry is only consulted for global searches.
func New(registry connectors.Registry, searcher connectors.Searcher, opts ...Option) *Aggregator {
	a := &Aggregator{registry: registry, searcher: searcher, observer: nopObserver{}}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Search runs query against one connector (scope set to its name) or every
// enabled connector (scope == Global) and returns the merged items.
//
// Connectors that fail or answer with an invalid payload contribute nothing.
// The search itself fails with connectors.ErrUpstreamUnavailable when the
// connector listing fails or when every queried connector failed.
func (a *Aggregator) Search(ctx context.Context, query, scope string) ([]AggregatedItem, error) {
	mode := "single"
	if scope == Global {
		mode = "global"
	}
	logger.Section("Search")
	logger.Debug("query=%q scope=%q", query, scope)

	items, err := a.search(ctx, query, scope)
	switch {
	case err == nil:
		a.observer.ObserveSearch(mode, OutcomeOK, len(items))
	case ctx.Err() != nil:
		a.observer.ObserveSearch(mode, OutcomeCanceled, 0)
	default:
		a.observer.ObserveSearch(mode, OutcomeUnavailable, 0)
	}
	return items, err
}

func (a *Aggregator) search(ctx context.Context, query, scope string) ([]AggregatedItem, error) {
	sources := []string{scope}
	if scope == Global {
		var err error
		sources, err = a.registry.ListEnabled(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !errors.Is(err, connectors.ErrUpstreamUnavailable) {
				err = fmt.Errorf("%w: %w", connectors.ErrUpstreamUnavailable, err)
			}
			return nil, err
		}
	}
	if len(sources) == 0 {
		logger.Debug("no enabled connectors")
		return []AggregatedItem{}, nil
	}

	results := a.fanOut(ctx, query, sources)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var tagged []TaggedItem
	var failures []error
	for i, r := range results {
		switch {
		case r.err == nil:
			for _, it := range r.items {
				tagged = append(tagged, TaggedItem{Source: sources[i], Item: it})
			}
		case errors.Is(r.err, connectors.ErrInvalidResponse):
			logger.Warn("connector %s returned an invalid response: %v", sources[i], r.err)
		default:
			logger.Warn("connector %s failed: %v", sources[i], r.err)
			failures = append(failures, r.err)
		}
	}

	if len(failures) == len(sources) {
		return nil, fmt.Errorf("%w: all %d connectors failed: %w",
			connectors.ErrUpstreamUnavailable, len(sources), errors.Join(failures...))
	}

	merged := Reconcile(tagged)
	logger.Debug("merged %d items from %d connectors", len(merged), len(sources))
	return merged, nil
}

type sourceResult struct {
	items []connectors.Item
	err   error
}

// fanOut queries every source concurrently and waits for all of them to
// settle. results[i] belongs to sources[i] regardless of completion order.
func (a *Aggregator) fanOut(ctx context.Context, query string, sources []string) []sourceResult {
	results := make([]sourceResult, len(sources))

	var sem chan struct{}
	if a.maxConcurrency > 0 {
		sem = make(chan struct{}, a.maxConcurrency)
	}

	var wg sync.WaitGroup
	for i, source := range sources {
		wg.Add(1)
		go func(i int, source string) {
			defer wg.Done()
			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					results[i] = sourceResult{err: fmt.Errorf("%w: %s: %w", connectors.ErrSourceQueryFailed, source, ctx.Err())}
					return
				}
			}

			start := time.Now()
			items, err := a.searcher.Search(ctx, source, query)
			a.observer.ObserveSource(source, outcomeOf(err), time.Since(start))
			results[i] = sourceResult{items: items, err: err}
		}(i, source)
	}
	wg.Wait()

	return results
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, connectors.ErrInvalidResponse):
		return OutcomeInvalid
	default:
		return OutcomeFailed
	}
}
