package cache

import (
	"context"
	"fmt"
	"math"

	"precinct-nav/algo"
	"precinct-nav/hybrid"
)

// RouteCache is what the HTTP layer needs from a cache. Nop satisfies it
// when caching is disabled.
type RouteCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any) error
}

// Nop never stores anything.
type Nop struct{}

func (Nop) GetJSON(context.Context, string, any) (bool, error) { return false, nil }

func (Nop) SetJSON(context.Context, string, any) error { return nil }

// keyPrecision is the rounding step for planar endpoints in cache keys.
const keyPrecision = 0.1

func round(v float64) float64 {
	return math.Round(v/keyPrecision) * keyPrecision
}

// RouteKey identifies an outdoor query on a graph version. Endpoints are
// rounded so jitter below keyPrecision shares an entry. Refs are quoted since
// they may contain the separator.
func RouteKey(version string, q algo.Query) string {
	return fmt.Sprintf("route:%s:%.1f,%.1f:%.1f,%.1f:%q:%q",
		version, round(q.Start.X), round(q.Start.Y), round(q.End.X), round(q.End.Y), q.StartRef, q.EndRef)
}

// HybridKey identifies a hybrid query on a graph version.
func HybridKey(version string, start, end hybrid.Endpoint, accessible bool) string {
	return fmt.Sprintf("hybrid:%s:%s:%s:%t", version, endpointKey(start), endpointKey(end), accessible)
}

func endpointKey(e hybrid.Endpoint) string {
	switch {
	case e.Geo != nil:
		return fmt.Sprintf("g%.6f,%.6f", e.Geo.Lat, e.Geo.Lng)
	case e.Planar != nil:
		return fmt.Sprintf("p%q/%q/%.1f,%.1f", e.BuildingID, e.FloorID, round(e.Planar.X), round(e.Planar.Y))
	}
	return "none"
}

func versionPattern(version string) string {
	return fmt.Sprintf("*:%s:*", version)
}
