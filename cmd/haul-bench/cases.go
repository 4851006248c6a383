// README: Bench cases: environment checks, the booking lifecycle, the claim race and location load.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"haul/migrations"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

var (
	depot   = map[string]float64{"lat": 30.6300, "lng": 76.7200}
	pickup  = map[string]float64{"lat": 30.6600, "lng": 76.7400}
	dropoff = map[string]float64{"lat": 30.7000, "lng": 76.8000}
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	runID     string
	drivers   []string
	bookingID string
	winner    string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
		runID: uuid.NewString()[:8],
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "Migration: tables exist", Run: checkTables},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			return expect(r.call(ctx, http.MethodGet, "/health", nil, nil))(http.StatusOK)
		}},
		{Name: "Drivers: register fleet", Run: registerFleet},
		{Name: "Drivers: duplicate -> 409", Run: func(ctx context.Context, r *Runner) Result {
			if len(r.drivers) == 0 {
				return Result{Status: statusSkip, Note: "no drivers registered"}
			}
			return expect(r.call(ctx, http.MethodPost, "/api/drivers", driverPayload(r.drivers[0]), nil))(http.StatusConflict)
		}},
		{Name: "Booking: create", Run: func(ctx context.Context, r *Runner) Result {
			id, res := r.createBooking(ctx)
			r.bookingID = id
			return res
		}},
		{Name: "Booking: unknown vehicle class -> 400", Run: func(ctx context.Context, r *Runner) Result {
			body := map[string]any{"rider_id": "bench", "pickup": pickup, "dropoff": dropoff, "vehicle_class": "rocket"}
			return expect(r.call(ctx, http.MethodPost, "/api/bookings", body, nil))(http.StatusBadRequest)
		}},
		{Name: "Booking: invalid coordinate -> 400", Run: func(ctx context.Context, r *Runner) Result {
			body := map[string]any{
				"rider_id": "bench", "pickup": map[string]float64{"lat": 123, "lng": 456},
				"dropoff": dropoff, "vehicle_class": "small van",
			}
			return expect(r.call(ctx, http.MethodPost, "/api/bookings", body, nil))(http.StatusBadRequest)
		}},
		{Name: "Jobs: new booking is listed", Run: jobsListBooking},
		{Name: "Claim: concurrent drivers, one winner", Run: claimRace},
		{Name: "Lifecycle: skip ahead -> 409", Run: func(ctx context.Context, r *Runner) Result {
			if r.winner == "" {
				return Result{Status: statusSkip, Note: "no claimed booking"}
			}
			body := map[string]string{"driver_id": r.winner, "status": "order delivered"}
			return expect(r.call(ctx, http.MethodPost, "/api/bookings/"+r.bookingID+"/status", body, nil))(http.StatusConflict)
		}},
		{Name: "Lifecycle: advance to delivered", Run: advanceChain},
		{Name: "Location: update driver", Run: func(ctx context.Context, r *Runner) Result {
			if len(r.drivers) == 0 {
				return Result{Status: statusSkip, Note: "no drivers registered"}
			}
			return expect(r.call(ctx, http.MethodPut, "/api/drivers/"+r.drivers[0]+"/location", pickup, nil))(http.StatusOK)
		}},
		{Name: "Location: invalid coords -> 400", Run: func(ctx context.Context, r *Runner) Result {
			if len(r.drivers) == 0 {
				return Result{Status: statusSkip, Note: "no drivers registered"}
			}
			body := map[string]float64{"lat": 123, "lng": 456}
			return expect(r.call(ctx, http.MethodPut, "/api/drivers/"+r.drivers[0]+"/location", body, nil))(http.StatusBadRequest)
		}},
		{Name: "Location: unknown driver -> 400", Run: func(ctx context.Context, r *Runner) Result {
			return expect(r.call(ctx, http.MethodPut, "/api/drivers/nobody-"+r.runID+"/location", pickup, nil))(http.StatusBadRequest)
		}},
		{Name: "Perf: location update throughput", Run: func(ctx context.Context, r *Runner) Result {
			if len(r.drivers) == 0 {
				return Result{Status: statusSkip, Note: "no drivers registered"}
			}
			return perfLoad(ctx, r, http.MethodPut, "/api/drivers/"+r.drivers[0]+"/location", depot)
		}},
	}
}

func checkPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "dsn not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: statusSkip, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "dsn not configured"}
	}
	tables, err := migrationTables()
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: statusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("tables=%d", len(tables))}
}

func driverPayload(id string) map[string]any {
	return map[string]any{
		"driver_id":      id,
		"name":           "bench " + id,
		"vehicle_number": "BENCH-" + id,
		"vehicle_class":  "small van",
		"position":       depot,
	}
}

func registerFleet(ctx context.Context, r *Runner) Result {
	start := time.Now()
	for i := 0; i < r.cfg.Concurrency; i++ {
		id := fmt.Sprintf("bench-%s-%02d", r.runID, i)
		status, _, err := r.call(ctx, http.MethodPost, "/api/drivers", driverPayload(id), nil)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if status != http.StatusCreated {
			return Result{Status: statusFail, Note: fmt.Sprintf("driver %s status=%d", id, status)}
		}
		r.drivers = append(r.drivers, id)
	}
	return Result{Status: statusPass, Latency: time.Since(start), Note: fmt.Sprintf("drivers=%d", len(r.drivers))}
}

func (r *Runner) createBooking(ctx context.Context) (string, Result) {
	var out struct {
		Booking struct {
			ID string `json:"booking_id"`
		} `json:"booking"`
		Quote struct {
			Amount float64 `json:"amount"`
		} `json:"quote"`
	}
	body := map[string]any{
		"rider_id":      "bench-rider-" + r.runID,
		"pickup":        pickup,
		"dropoff":       dropoff,
		"vehicle_class": "small van",
	}
	status, latency, err := r.call(ctx, http.MethodPost, "/api/bookings", body, &out)
	if err != nil {
		return "", Result{Status: statusFail, Note: err.Error()}
	}
	if status != http.StatusCreated {
		return "", Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
	}
	return out.Booking.ID, Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("estimate=%.2f", out.Quote.Amount)}
}

func jobsListBooking(ctx context.Context, r *Runner) Result {
	if r.bookingID == "" {
		return Result{Status: statusSkip, Note: "no booking created"}
	}
	var out struct {
		Bookings []struct {
			ID string `json:"booking_id"`
		} `json:"bookings"`
	}
	path := fmt.Sprintf("/api/jobs?lat=%f&lng=%f&vehicle_class=small_van", depot["lat"], depot["lng"])
	status, latency, err := r.call(ctx, http.MethodGet, path, nil, &out)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if status != http.StatusOK {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
	}
	for _, b := range out.Bookings {
		if b.ID == r.bookingID {
			return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("jobs=%d", len(out.Bookings))}
		}
	}
	return Result{Status: statusFail, Latency: latency, Note: "booking missing from jobs"}
}

// claimRace sends every registered driver at the same booking at once.
func claimRace(ctx context.Context, r *Runner) Result {
	if r.bookingID == "" || len(r.drivers) == 0 {
		return Result{Status: statusSkip, Note: "no booking or drivers"}
	}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  []string
		conflict int
		other    []int
	)
	gate := make(chan struct{})
	for _, id := range r.drivers {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			<-gate
			status, _, err := r.call(ctx, http.MethodPost, "/api/bookings/"+r.bookingID+"/claim", map[string]string{"driver_id": id}, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				other = append(other, 0)
			case status == http.StatusOK:
				winners = append(winners, id)
			case status == http.StatusConflict:
				conflict++
			default:
				other = append(other, status)
			}
		}(id)
	}
	start := time.Now()
	close(gate)
	wg.Wait()
	latency := time.Since(start)

	note := fmt.Sprintf("winners=%d conflicts=%d other=%v", len(winners), conflict, other)
	if len(winners) != 1 || len(other) > 0 {
		return Result{Status: statusFail, Latency: latency, Note: note}
	}
	r.winner = winners[0]
	return Result{Status: statusPass, Latency: latency, Note: note}
}

func advanceChain(ctx context.Context, r *Runner) Result {
	if r.winner == "" {
		return Result{Status: statusSkip, Note: "no claimed booking"}
	}
	start := time.Now()
	for _, s := range []string{"going for pick up", "order picked up", "en route for deliver", "order delivered"} {
		body := map[string]string{"driver_id": r.winner, "status": s}
		status, _, err := r.call(ctx, http.MethodPost, "/api/bookings/"+r.bookingID+"/status", body, nil)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if status != http.StatusOK {
			return Result{Status: statusFail, Note: fmt.Sprintf("%s: status=%d", s, status)}
		}
	}
	var d struct {
		Available bool `json:"available"`
	}
	if _, _, err := r.call(ctx, http.MethodGet, "/api/drivers/"+r.winner, nil, &d); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if !d.Available {
		return Result{Status: statusFail, Note: "driver not released after delivery"}
	}
	return Result{Status: statusPass, Latency: time.Since(start)}
}

func perfLoad(ctx context.Context, r *Runner, method, path string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var (
		count, errCount int64
		mu              sync.Mutex
		wg              sync.WaitGroup
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, err := r.call(ctx, method, path, payload, nil)
				mu.Lock()
				if err != nil || status >= 400 {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: statusFail, Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

// call sends a JSON request and decodes the response into out when non-nil.
func (r *Runner) call(ctx context.Context, method, path string, body, out any) (int, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	latency := time.Since(start)
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, latency, fmt.Errorf("decode: %w", err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, latency, nil
}

func expect(status int, latency time.Duration, err error) func(want int) Result {
	return func(want int) Result {
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if status != want {
			return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d want=%d", status, want)}
		}
		return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
	}
}

var createTableRe = regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)

// migrationTables lists the tables the embedded up migrations create.
func migrationTables() ([]string, error) {
	paths, err := fs.Glob(migrations.FS, "*.up.sql")
	if err != nil {
		return nil, err
	}
	var tables []string
	for _, p := range paths {
		b, err := fs.ReadFile(migrations.FS, p)
		if err != nil {
			return nil, err
		}
		for _, m := range createTableRe.FindAllStringSubmatch(string(b), -1) {
			tables = append(tables, m[1])
		}
	}
	return tables, nil
}
