package connectors

import "errors"

var (
	// ErrUpstreamUnavailable means a search could not be answered at all:
	// the connector listing failed, or every queried connector failed.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrSourceQueryFailed means one connector's search call failed.
	ErrSourceQueryFailed = errors.New("source query failed")

	// ErrInvalidResponse means a connector answered with something other
	// than a list of items.
	ErrInvalidResponse = errors.New("invalid response")
)
