package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/GregMSThompson/skiploss-console/pkg/helpers"
)

// recordingTimer fires at once and records each requested wait.
type recordingTimer struct {
	mu    sync.Mutex
	waits []time.Duration
	c     chan time.Time
}

func newRecordingTimer() *recordingTimer {
	return &recordingTimer{c: make(chan time.Time, 1)}
}

func (r *recordingTimer) Start(d time.Duration) {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	r.c <- time.Now()
}

func (r *recordingTimer) Stop() {}

func (r *recordingTimer) C() <-chan time.Time { return r.c }

func (r *recordingTimer) total() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum time.Duration
	for _, w := range r.waits {
		sum += w
	}
	return sum
}

// scriptedServer answers each request with the next status/body pair.
type scriptedServer struct {
	mu       sync.Mutex
	statuses []int
	bodies   []string
	requests []*http.Request
}

func (s *scriptedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	idx := len(s.requests)
	s.requests = append(s.requests, r)
	s.mu.Unlock()

	if idx >= len(s.statuses) {
		idx = len(s.statuses) - 1
	}
	w.WriteHeader(s.statuses[idx])
	_, _ = w.Write([]byte(s.bodies[idx]))
}

func (s *scriptedServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func TestCallSucceedsOnThirdAttempt(t *testing.T) {
	script := &scriptedServer{
		statuses: []int{500, 502, 200},
		bodies:   []string{"oops", "bad gateway", `[{"VIN":"V1"},{"VIN":"V2"}]`},
	}
	srv := httptest.NewServer(script)
	defer srv.Close()

	timer := newRecordingTimer()
	c := NewClient(srv.URL, WithTimer(timer))

	vehicles, err := c.GetSkipLossVehicles(helpers.TestCtx(), "Brazil", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vehicles) != 2 || string(vehicles[1]) != `{"VIN":"V2"}` {
		t.Fatalf("unexpected vehicles: %s", vehicles)
	}
	if script.count() != 3 {
		t.Fatalf("expected 3 attempts, got %d", script.count())
	}
	if len(timer.waits) != 2 || timer.waits[0] != time.Second || timer.waits[1] != 2*time.Second {
		t.Fatalf("unexpected backoff schedule: %v", timer.waits)
	}
}

func TestCallReturnsEmptyAfterExhaustingRetries(t *testing.T) {
	script := &scriptedServer{statuses: []int{500}, bodies: []string{"down"}}
	srv := httptest.NewServer(script)
	defer srv.Close()

	timer := newRecordingTimer()
	c := NewClient(srv.URL, WithTimer(timer))

	records := c.Call(helpers.TestCtx(), PathSkipLossVehicles, map[string]string{"country": "Brazil"})
	if records == nil || len(records) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", records)
	}
	if script.count() != 3 {
		t.Fatalf("expected 3 attempts, got %d", script.count())
	}
	if timer.total() < 3*time.Second {
		t.Fatalf("expected at least 3s of backoff, got %v", timer.total())
	}
	if len(timer.waits) != 2 {
		t.Fatalf("no wait expected after the final attempt: %v", timer.waits)
	}
}

func TestCallErrorBodyIsNotRetried(t *testing.T) {
	script := &scriptedServer{statuses: []int{200}, bodies: []string{`{"error":"country not supported"}`}}
	srv := httptest.NewServer(script)
	defer srv.Close()

	timer := newRecordingTimer()
	c := NewClient(srv.URL, WithTimer(timer))

	agents, err := c.FindRepossessionAgents(helpers.TestCtx(), "Atlantis", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(agents) != 0 {
		t.Fatalf("expected no agents, got %+v", agents)
	}
	if script.count() != 1 {
		t.Fatalf("error body must not be retried, got %d attempts", script.count())
	}
	if len(timer.waits) != 0 {
		t.Fatalf("expected no backoff, got %v", timer.waits)
	}
}

func TestCallTransportFailureDegradesToEmpty(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	timer := newRecordingTimer()
	c := NewClient(base, WithTimer(timer))

	if records := c.Call(helpers.TestCtx(), PathSkipLossVehicles, nil); len(records) != 0 {
		t.Fatalf("expected empty result, got %d records", len(records))
	}
	if len(timer.waits) != 2 {
		t.Fatalf("expected transport failures to be retried, got %v", timer.waits)
	}
}

func TestCallTimeoutDegradesToEmpty(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL,
		WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}),
		WithTimer(newRecordingTimer()),
	)

	if records := c.Call(helpers.TestCtx(), PathSkipLossVehicles, nil); len(records) != 0 {
		t.Fatalf("expected empty result, got %d records", len(records))
	}
}

func TestCallStopsRetryingWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(helpers.TestCtx())
	defer cancel()

	var count int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		count++
		mu.Unlock()
		cancel()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	timer := newRecordingTimer()
	c := NewClient(srv.URL, WithTimer(timer))

	if records := c.Call(ctx, PathSkipLossVehicles, nil); len(records) != 0 {
		t.Fatalf("expected empty result")
	}
	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("expected a single attempt, got %d", count)
	}
	if len(timer.waits) != 0 {
		t.Fatalf("expected no backoff after cancel, got %v", timer.waits)
	}
}

func TestCallOmitsEmptyParams(t *testing.T) {
	script := &scriptedServer{statuses: []int{200}, bodies: []string{`[]`}}
	srv := httptest.NewServer(script)
	defer srv.Close()

	c := NewClient(srv.URL)
	c.GetSkipLossVehicles(helpers.TestCtx(), "Brazil", "")
	c.GetSkipLossVehicles(helpers.TestCtx(), "Mexico", "Jalisco")

	if got := script.requests[0].URL.RawQuery; got != "country=Brazil" {
		t.Fatalf("unexpected query %q", got)
	}
	if got := script.requests[1].URL.Query(); got.Get("country") != "Mexico" || got.Get("region") != "Jalisco" {
		t.Fatalf("unexpected query %v", got)
	}
	if script.requests[0].URL.Path != PathSkipLossVehicles {
		t.Fatalf("unexpected path %q", script.requests[0].URL.Path)
	}
}

func TestNonArrayBodyDegradesToEmpty(t *testing.T) {
	script := &scriptedServer{statuses: []int{200}, bodies: []string{`{"items":[]}`}}
	srv := httptest.NewServer(script)
	defer srv.Close()

	c := NewClient(srv.URL)
	if records := c.Call(helpers.TestCtx(), PathSkipLossVehicles, nil); len(records) != 0 {
		t.Fatalf("expected empty result, got %d records", len(records))
	}
	if script.count() != 1 {
		t.Fatalf("expected one attempt, got %d", script.count())
	}
}

func TestRecordsPassThroughUndecoded(t *testing.T) {
	script := &scriptedServer{statuses: []int{200}, bodies: []string{`[{"VIN":"V1","Year":"not a number","Mileage":12}]`}}
	srv := httptest.NewServer(script)
	defer srv.Close()

	c := NewClient(srv.URL)
	vehicles, err := c.GetSkipLossVehicles(helpers.TestCtx(), "Brazil", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vehicles) != 1 || string(vehicles[0]) != `{"VIN":"V1","Year":"not a number","Mileage":12}` {
		t.Fatalf("expected the record unchanged, got %s", vehicles)
	}
}

func TestRetryPolicySchedule(t *testing.T) {
	b := retryPolicy(context.Background(), DefaultMaxAttempts)
	b.Reset()
	want := []time.Duration{time.Second, 2 * time.Second, backoff.Stop}
	for i, w := range want {
		if got := b.NextBackOff(); got != w {
			t.Fatalf("wait %d: expected %v, got %v", i, w, got)
		}
	}
}

func TestRetryPolicyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := retryPolicy(ctx, DefaultMaxAttempts)
	b.Reset()
	if got := b.NextBackOff(); got != backoff.Stop {
		t.Fatalf("expected Stop after cancel, got %v", got)
	}
}
