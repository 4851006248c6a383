// README: Routing provider contract and its error kinds.
package maps

import (
	"context"
	"errors"
	"net"
	"net/url"
	"time"

	"haul/internal/types"
)

var (
	// ErrUpstreamUnavailable means the provider could not be reached or failed on its side.
	ErrUpstreamUnavailable = errors.New("routing provider unavailable")
	// ErrNoRoute means the provider answered but had no drivable route.
	ErrNoRoute = errors.New("no route found")
)

// Route is a single-leg driving estimate between two coordinates.
type Route struct {
	DistanceMeters float64
	Duration       time.Duration
}

// Router supplies distance and travel time for a pickup/dropoff pair.
type Router interface {
	Route(ctx context.Context, origin, destination types.Point) (Route, error)
}

// isTransport reports whether err came from the network or a deadline rather
// than from a provider answer.
func isTransport(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
