// Package resource implements the query resource cache: a capacity-bounded,
// recency-evicted cache reconciling fetch policies, request de-duplication,
// and render-attempt retain lifecycles on top of a quiver Environment.
package resource

import "fmt"

// FetchPolicy governs whether a network request is issued relative to cache
// fullness.
type FetchPolicy string

const (
	// StoreOnly never fetches; rendering proceeds with whatever the store
	// holds.
	StoreOnly FetchPolicy = "store-only"
	// StoreOrNetwork fetches only when the store cannot fully satisfy the
	// operation.
	StoreOrNetwork FetchPolicy = "store-or-network"
	// StoreAndNetwork always fetches, rendering from the store meanwhile
	// when allowed.
	StoreAndNetwork FetchPolicy = "store-and-network"
	// NetworkOnly always fetches and never renders from the store alone.
	NetworkOnly FetchPolicy = "network-only"
)

// RenderPolicy governs whether rendering may proceed with partial data.
type RenderPolicy string

const (
	// RenderFull requires every selected field to be present.
	RenderFull RenderPolicy = "full"
	// RenderPartial allows rendering with missing fields.
	RenderPartial RenderPolicy = "partial"
)

// DefaultRenderPolicy is the process-wide render policy applied when a
// caller passes none. Overridable per cache via WithRenderPolicy.
var DefaultRenderPolicy = RenderFull

// DefaultFetchPolicy is applied when a caller passes none.
const DefaultFetchPolicy = StoreOrNetwork

// ParseFetchPolicy validates a fetch policy value. Unrecognized values are
// a configuration error, not a silent default.
func ParseFetchPolicy(s string) (FetchPolicy, error) {
	switch FetchPolicy(s) {
	case StoreOnly, StoreOrNetwork, StoreAndNetwork, NetworkOnly:
		return FetchPolicy(s), nil
	case "":
		return DefaultFetchPolicy, nil
	}
	return "", fmt.Errorf("resource: unknown fetch policy %q", s)
}

// ParseRenderPolicy validates a render policy value.
func ParseRenderPolicy(s string) (RenderPolicy, error) {
	switch RenderPolicy(s) {
	case RenderFull, RenderPartial:
		return RenderPolicy(s), nil
	case "":
		return DefaultRenderPolicy, nil
	}
	return "", fmt.Errorf("resource: unknown render policy %q", s)
}

func (p FetchPolicy) valid() bool {
	switch p {
	case StoreOnly, StoreOrNetwork, StoreAndNetwork, NetworkOnly:
		return true
	}
	return false
}

func (p RenderPolicy) valid() bool {
	return p == RenderFull || p == RenderPartial
}
