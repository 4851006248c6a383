package maps

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"haul/internal/types"
)

func TestOSRMRouter_Route(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[{"distance":10000.5,"duration":30}]}`))
	}))
	defer srv.Close()

	router := NewOSRMRouter(srv.URL, time.Second)
	route, err := router.Route(context.Background(),
		types.Point{Lat: 30.63, Lng: 76.72},
		types.Point{Lat: 30.70, Lng: 76.80},
	)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if route.DistanceMeters != 10000.5 || route.Duration != 30*time.Second {
		t.Errorf("unexpected route: %+v", route)
	}
	if !strings.HasPrefix(gotPath, "/route/v1/driving/76.720000,30.630000;76.800000,30.700000") {
		t.Errorf("coordinates must be sent lng,lat; got path %s", gotPath)
	}
}

func TestOSRMRouter_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "no route", status: http.StatusOK, body: `{"code":"NoRoute","routes":[]}`, wantErr: ErrNoRoute},
		{name: "bad request", status: http.StatusBadRequest, body: `{"code":"InvalidQuery"}`, wantErr: ErrNoRoute},
		{name: "server error", status: http.StatusBadGateway, body: ``, wantErr: ErrUpstreamUnavailable},
		{name: "garbage", status: http.StatusOK, body: `not json`, wantErr: ErrUpstreamUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewOSRMRouter(srv.URL, time.Second).Route(context.Background(), types.Point{}, types.Point{Lat: 1})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestOSRMRouter_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewOSRMRouter(url, time.Second).Route(context.Background(), types.Point{}, types.Point{Lat: 1})
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestIsTransport(t *testing.T) {
	if !isTransport(context.DeadlineExceeded) {
		t.Error("deadline should count as transport failure")
	}
	if isTransport(errors.New("maps: REQUEST_DENIED")) {
		t.Error("provider answer should not count as transport failure")
	}
}
