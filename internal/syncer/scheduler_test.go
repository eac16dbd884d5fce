package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/incomesync/internal/host"
	"github.com/theirongolddev/incomesync/internal/logger"
	"github.com/theirongolddev/incomesync/internal/projection"
	"github.com/theirongolddev/incomesync/internal/sheets"
	"github.com/theirongolddev/incomesync/internal/store"
)

type fakePusher struct {
	mu    sync.Mutex
	calls []sheets.Payload
	err   error
}

func (f *fakePusher) Push(_ context.Context, p sheets.Payload) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, p)

	var rej *sheets.RejectedError
	switch {
	case errors.As(f.err, &rej):
		return rej.StatusCode, f.err
	case f.err != nil:
		return 0, f.err
	}
	return http.StatusOK, nil
}

func (f *fakePusher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// stallingPusher holds every push until release is closed.
type stallingPusher struct {
	release chan struct{}
}

func (p *stallingPusher) Push(ctx context.Context, _ sheets.Payload) (int, error) {
	select {
	case <-p.release:
		return http.StatusOK, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

type memJournal struct {
	recs []store.PushRecord
}

func (j *memJournal) RecordPush(r store.PushRecord) error {
	j.recs = append(j.recs, r)
	return nil
}

var t0 = time.Unix(1_700_000_000, 0)

func newTestScheduler(cfg Config, p Pusher) *Scheduler {
	s := New(cfg, projection.New(), p, host.StaticContext{InstanceID: "inst-1"}, logger.Discard(), nil)
	s.now = func() time.Time { return t0 }
	return s
}

func baseline(s *Scheduler, at time.Time) {
	s.applyIncome(incomeUpdate{
		income: projection.Income{
			Credit:     projection.Resource{Value: 100, Change: 30},
			Technology: projection.Resource{Value: 10, Change: 3},
			Ideology:   projection.Resource{Value: 1, Change: 0},
		},
		at: at,
	})
}

// step ticks once and applies the completion if a push was issued.
func step(t *testing.T, s *Scheduler) bool {
	t.Helper()
	if !s.tick(context.Background()) {
		return false
	}
	select {
	case r := <-s.results:
		s.handleResult(r)
	case <-time.After(2 * time.Second):
		t.Fatal("push completion not delivered")
	}
	return true
}

func TestTick_IdleWithoutBaseline(t *testing.T) {
	p := &fakePusher{}
	s := newTestScheduler(Config{}, p)

	assert.False(t, step(t, s))
	assert.False(t, step(t, s))
	assert.Equal(t, 0, p.count())
	assert.Equal(t, StateIdle, s.Status().State)
	assert.Equal(t, int64(2), s.Status().Ticks)
}

func TestTick_PushesProjectedSnapshot(t *testing.T) {
	p := &fakePusher{}
	cells := map[string]string{"income_total": "B2"}
	s := newTestScheduler(Config{SheetID: "sheet-1", CellLocations: cells}, p)

	baseline(s, t0)
	s.now = func() time.Time { return t0.Add(180 * time.Second) }

	require.True(t, step(t, s))
	require.Equal(t, 1, p.count())

	got := p.calls[0]
	assert.InDelta(t, 130.0, got.Resources.Cred.Value, 1e-9)
	assert.InDelta(t, 13.0, got.Resources.Tech.Value, 1e-9)
	assert.Equal(t, 1.0, got.Resources.Ideo.Value)
	assert.Equal(t, "inst-1", got.Instance)
	assert.Equal(t, "sheet-1", got.Sheet)
	assert.Equal(t, cells, got.CellLocations)

	st := s.Status()
	assert.Equal(t, StateArmed, st.State)
	assert.Equal(t, int64(1), st.Pushes)
	assert.Equal(t, int64(1), st.Succeeded)
	assert.Equal(t, 0, st.Failures)
	assert.Equal(t, 0, st.InFlight)
	assert.InDelta(t, 130.0, st.Resources.Cred.Value, 1e-9)
}

func TestTick_AdvancesOnEveryPush(t *testing.T) {
	p := &fakePusher{}
	s := newTestScheduler(Config{}, p)
	baseline(s, t0)

	for i := 1; i <= 3; i++ {
		at := t0.Add(time.Duration(i) * 60 * time.Second)
		s.now = func() time.Time { return at }
		require.True(t, step(t, s))
	}

	require.Equal(t, 3, p.count())
	assert.InDelta(t, 110.0, p.calls[0].Resources.Cred.Value, 1e-9)
	assert.InDelta(t, 120.0, p.calls[1].Resources.Cred.Value, 1e-9)
	assert.InDelta(t, 130.0, p.calls[2].Resources.Cred.Value, 1e-9)
}

func TestCircuitTripsAtThreshold(t *testing.T) {
	p := &fakePusher{err: &sheets.RejectedError{StatusCode: 503, Status: "503 Service Unavailable"}}
	s := newTestScheduler(Config{}, p)
	baseline(s, t0)

	for i := 0; i < 100; i++ {
		require.True(t, step(t, s), "tick %d", i+1)
	}
	assert.Equal(t, 100, p.count())
	assert.Equal(t, 100, s.failures)
	assert.Equal(t, StateTripped, s.Status().State)

	assert.False(t, step(t, s))
	assert.Equal(t, 100, p.count())
}

func TestCircuit_SuccessDoesNotResetByDefault(t *testing.T) {
	p := &fakePusher{err: errors.New("boom")}
	s := newTestScheduler(Config{FailureThreshold: 3}, p)
	baseline(s, t0)

	require.True(t, step(t, s))
	require.True(t, step(t, s))
	p.err = nil
	require.True(t, step(t, s))
	assert.Equal(t, 2, s.failures)

	p.err = errors.New("boom")
	require.True(t, step(t, s))
	assert.Equal(t, StateTripped, s.Status().State)
	assert.False(t, step(t, s))
}

func TestCircuit_OutOfOrderCompletions(t *testing.T) {
	ctx := context.Background()
	p := &fakePusher{}
	s := newTestScheduler(Config{FailureThreshold: 10, ResetOnSuccess: true}, p)
	baseline(s, t0)

	collect := func() pushResult {
		select {
		case r := <-s.results:
			return r
		case <-time.After(2 * time.Second):
			t.Fatal("push completion not delivered")
		}
		return pushResult{}
	}

	require.True(t, s.tick(ctx))
	r1 := collect()
	require.True(t, s.tick(ctx))
	r2 := collect()
	require.True(t, s.tick(ctx))
	r3 := collect()
	assert.Equal(t, 3, s.inflight)

	r1.err = errors.New("timeout")
	r3.err = errors.New("timeout")

	// Settle newest first: 3 fails, 2 succeeds, then the stale failure of 1.
	s.handleResult(r3)
	assert.Equal(t, 1, s.failures)
	s.handleResult(r2)
	assert.Equal(t, 1, s.failures)
	s.handleResult(r1)
	assert.Equal(t, 1, s.failures)
	assert.Equal(t, 0, s.inflight)
}

func TestCircuit_ResetOnSuccessHeals(t *testing.T) {
	p := &fakePusher{err: errors.New("refused")}
	s := newTestScheduler(Config{FailureThreshold: 5, ResetOnSuccess: true}, p)
	baseline(s, t0)

	for i := 0; i < 4; i++ {
		require.True(t, step(t, s))
	}
	assert.Equal(t, 4, s.failures)

	p.err = nil
	require.True(t, step(t, s))
	assert.Equal(t, 0, s.failures)
	assert.Equal(t, StateArmed, s.Status().State)
}

func TestHandleResult_RecordsJournal(t *testing.T) {
	p := &fakePusher{err: &sheets.RejectedError{StatusCode: 400, Status: "400 Bad Request", Body: "bad sheet"}}
	j := &memJournal{}
	s := New(Config{SheetID: "s1"}, projection.New(), p, host.StaticContext{InstanceID: "g"}, logger.Discard(), j)
	s.now = func() time.Time { return t0 }
	baseline(s, t0)

	require.True(t, step(t, s))
	p.err = errors.New("dial tcp: connection refused")
	require.True(t, step(t, s))
	assert.Contains(t, s.Status().LastError, "connection refused")
	p.err = nil
	require.True(t, step(t, s))
	assert.Empty(t, s.Status().LastError)

	require.Len(t, j.recs, 3)
	assert.Equal(t, store.OutcomeRejected, j.recs[0].Outcome)
	assert.Equal(t, 400, j.recs[0].StatusCode)
	assert.Equal(t, store.OutcomeTransport, j.recs[1].Outcome)
	assert.Contains(t, j.recs[1].Error, "connection refused")
	assert.Equal(t, 0, j.recs[1].StatusCode)
	assert.Equal(t, store.OutcomeOK, j.recs[2].Outcome)
	assert.Equal(t, http.StatusOK, j.recs[2].StatusCode)
	assert.Equal(t, "s1", j.recs[2].Sheet)
	assert.Equal(t, uint64(3), j.recs[2].Seq)
}

func TestHandleStatus(t *testing.T) {
	s := newTestScheduler(Config{SheetID: "abc"}, &fakePusher{})
	baseline(s, t0)

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var st Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, StateArmed, st.State)
	assert.Equal(t, "abc", st.Sheet)
	assert.Equal(t, int64(1), st.Updates)
	assert.Equal(t, 100.0, st.Resources.Cred.Value)
}

func TestRun_PushesToEndpoint(t *testing.T) {
	bodies := make(chan sheets.Payload, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p sheets.Payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		select {
		case bodies <- p:
		default:
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := New(Config{Interval: 20 * time.Millisecond, SheetID: "live"},
		projection.New(), sheets.NewClient(srv.URL, time.Second),
		host.StaticContext{InstanceID: "run-1"}, logger.Discard(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	s.ApplyIncome(projection.Income{Credit: projection.Resource{Value: 5, Change: 1}}, time.Now())

	select {
	case p := <-bodies:
		assert.Equal(t, "live", p.Sheet)
		assert.Equal(t, "run-1", p.Instance)
		assert.GreaterOrEqual(t, p.Resources.Cred.Value, 5.0)
	case <-time.After(3 * time.Second):
		t.Fatal("no push reached the endpoint")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop")
	}

	// Updates after shutdown are dropped rather than blocking.
	s.ApplyIncome(projection.Income{}, time.Now())
}

func TestTick_SlowEndpointDoesNotDelayNextTick(t *testing.T) {
	p := &stallingPusher{release: make(chan struct{})}
	s := newTestScheduler(Config{}, p)
	baseline(s, t0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.True(t, s.tick(ctx), "tick %d", i+1)
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 3, s.inflight)
	assert.Equal(t, 3, s.Status().InFlight)

	close(p.release)
	for i := 0; i < 3; i++ {
		select {
		case r := <-s.results:
			s.handleResult(r)
		case <-time.After(2 * time.Second):
			t.Fatal("push completion not delivered")
		}
	}

	st := s.Status()
	assert.Equal(t, 0, st.InFlight)
	assert.Equal(t, int64(3), st.Succeeded)
	assert.Equal(t, 0, st.Failures)
}

func TestNew_KeepsSubSecondInterval(t *testing.T) {
	s := newTestScheduler(Config{Interval: 250 * time.Millisecond}, &fakePusher{})
	assert.Equal(t, int64(250), s.Status().IntervalMs)

	s = newTestScheduler(Config{}, &fakePusher{})
	assert.Equal(t, int64(60_000), s.Status().IntervalMs)
}

func TestRun_KeepsPushingWhenStatusAddrTaken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	var errOut bytes.Buffer
	p := &fakePusher{}
	s := New(Config{Interval: 10 * time.Millisecond, Addr: ln.Addr().String()},
		projection.New(), p, host.StaticContext{InstanceID: "busy"},
		logger.New(io.Discard, &errOut), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	s.ApplyIncome(projection.Income{Credit: projection.Resource{Value: 5, Change: 1}}, time.Now())

	require.Eventually(t, func() bool { return p.count() >= 2 }, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.Contains(t, errOut.String(), "status API disabled")
}
