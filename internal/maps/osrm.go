// README: OSRM HTTP routing provider.
package maps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"haul/internal/types"
)

// OSRMRouter calls the route service of an OSRM server (self-hosted or the
// public demo). No Go client exists for it; the HTTP API is two fields deep.
type OSRMRouter struct {
	endpoint string
	client   *http.Client
}

func NewOSRMRouter(endpoint string, timeout time.Duration) *OSRMRouter {
	return &OSRMRouter{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

func (o *OSRMRouter) Route(ctx context.Context, origin, destination types.Point) (Route, error) {
	// OSRM takes lng,lat pairs.
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=false",
		o.endpoint, origin.Lng, origin.Lat, destination.Lng, destination.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Route{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return Route{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return Route{}, fmt.Errorf("%w: osrm status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Route{}, fmt.Errorf("%w: decode osrm response: %v", ErrUpstreamUnavailable, err)
	}
	if body.Code != "Ok" || len(body.Routes) == 0 {
		return Route{}, fmt.Errorf("%w: osrm code %s", ErrNoRoute, body.Code)
	}

	r := body.Routes[0]
	return Route{
		DistanceMeters: r.Distance,
		Duration:       time.Duration(r.Duration * float64(time.Second)),
	}, nil
}
