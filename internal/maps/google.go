// README: Google Distance Matrix routing provider.
package maps

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"googlemaps.github.io/maps"

	"haul/internal/types"
)

// GoogleRouter estimates routes with the Google Distance Matrix API.
type GoogleRouter struct {
	client *maps.Client
}

// NewGoogleRouter creates a GoogleRouter with the given API key. timeout bounds
// every provider call; zero means no client-side limit.
func NewGoogleRouter(apiKey string, timeout time.Duration) (*GoogleRouter, error) {
	client, err := maps.NewClient(
		maps.WithAPIKey(apiKey),
		maps.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleRouter{client: client}, nil
}

func (g *GoogleRouter) Route(ctx context.Context, origin, destination types.Point) (Route, error) {
	req := &maps.DistanceMatrixRequest{
		Origins:      []string{origin.String()},
		Destinations: []string{destination.String()},
		Mode:         maps.TravelModeDriving,
		Units:        maps.UnitsMetric,
	}

	resp, err := g.client.DistanceMatrix(ctx, req)
	if err != nil {
		if isTransport(err) {
			return Route{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		return Route{}, fmt.Errorf("%w: %v", ErrNoRoute, err)
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return Route{}, ErrNoRoute
	}

	el := resp.Rows[0].Elements[0]
	if el.Status != "OK" {
		return Route{}, fmt.Errorf("%w: element status %s", ErrNoRoute, el.Status)
	}
	return Route{DistanceMeters: float64(el.Distance.Meters), Duration: el.Duration}, nil
}
