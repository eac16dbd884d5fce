// Package syncer runs the periodic projection and push loop.
package syncer

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/theirongolddev/incomesync/internal/logger"
	"github.com/theirongolddev/incomesync/internal/projection"
	"github.com/theirongolddev/incomesync/internal/sheets"
	"github.com/theirongolddev/incomesync/internal/store"
)

// State is the scheduler's circuit state as seen by a tick.
type State string

const (
	StateIdle    State = "idle"
	StateArmed   State = "armed"
	StateTripped State = "tripped"
)

// Pusher delivers a payload to the remote sink.
// Push returns the HTTP status code when the endpoint answered at all.
type Pusher interface {
	Push(ctx context.Context, p sheets.Payload) (int, error)
}

// Journal records completed pushes.
type Journal interface {
	RecordPush(r store.PushRecord) error
}

// GameContext supplies the instance id sent with every push.
type GameContext interface {
	Instance() string
}

// Config controls the scheduler runtime behavior.
type Config struct {
	Interval         time.Duration
	FailureThreshold int
	ResetOnSuccess   bool
	SheetID          string
	CellLocations    map[string]string
	// Addr enables the status HTTP API when non-empty.
	Addr string
}

// Status is served at /v1/status.
type Status struct {
	StartedAt        time.Time            `json:"started_at"`
	State            State                `json:"state"`
	IntervalMs       int64                `json:"interval_ms"`
	FailureThreshold int                  `json:"failure_threshold"`
	Failures         int                  `json:"failures"`
	Ticks            int64                `json:"ticks"`
	Pushes           int64                `json:"pushes"`
	Succeeded        int64                `json:"succeeded"`
	InFlight         int                  `json:"in_flight"`
	Updates          int64                `json:"updates"`
	LastUpdateAt     time.Time            `json:"last_update_at,omitzero"`
	LastPushAt       time.Time            `json:"last_push_at,omitzero"`
	LastError        string               `json:"last_error,omitempty"`
	Instance         string               `json:"instance,omitempty"`
	Sheet            string               `json:"sheet,omitempty"`
	Resources        projection.Resources `json:"resources"`
}

type incomeUpdate struct {
	income projection.Income
	at     time.Time
}

type pushResult struct {
	seq         uint64
	submittedAt time.Time
	payload     sheets.Payload
	statusCode  int
	err         error
}

// Scheduler owns a projection engine and pushes its snapshot on a fixed
// cadence. Income updates and push completions are funnelled into the Run
// goroutine, which is the only code that touches the engine or the failure
// counter.
type Scheduler struct {
	cfg     Config
	engine  *projection.Engine
	pusher  Pusher
	game    GameContext
	log     *logger.Logger
	journal Journal
	now     func() time.Time

	updates chan incomeUpdate
	results chan pushResult
	stopped chan struct{}

	// Loop-owned.
	seq            uint64
	failures       int
	failedSeqs     []uint64
	lastSuccessSeq uint64
	inflight       int
	tripLogged     bool

	mu     sync.RWMutex
	status Status
}

// New returns a scheduler with the provided config. journal may be nil.
func New(cfg Config, engine *projection.Engine, pusher Pusher, game GameContext, log *logger.Logger, journal Journal) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 100
	}
	if log == nil {
		log = logger.Default()
	}

	s := &Scheduler{
		cfg:     cfg,
		engine:  engine,
		pusher:  pusher,
		game:    game,
		log:     log,
		journal: journal,
		now:     time.Now,
		updates: make(chan incomeUpdate, 64),
		results: make(chan pushResult, 64),
		stopped: make(chan struct{}),
	}
	s.status = Status{
		StartedAt:        s.now(),
		State:            StateIdle,
		IntervalMs:       cfg.Interval.Milliseconds(),
		FailureThreshold: cfg.FailureThreshold,
		Sheet:            cfg.SheetID,
	}
	return s
}

// ApplyIncome queues an authoritative update for the loop. It blocks while
// the queue is full and drops the update once the scheduler has stopped.
func (s *Scheduler) ApplyIncome(in projection.Income, at time.Time) {
	select {
	case s.updates <- incomeUpdate{income: in, at: at}:
	case <-s.stopped:
	}
}

// Run drives ticks, updates and completions until ctx is canceled. In-flight
// pushes share ctx and are abandoned with it. A status API that cannot serve
// is logged and dropped; the push loop keeps running without it.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.stopped)

	var errCh chan error
	if s.cfg.Addr != "" {
		server := s.newServer()
		serveErr := make(chan error, 1)
		errCh = serveErr
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	s.log.Infof("push loop started: every %s, trip after %d failures", s.cfg.Interval, s.cfg.FailureThreshold)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("push loop stopped")
			return ctx.Err()
		case err := <-errCh:
			s.log.Errorf("status API disabled: %v", err)
			errCh = nil
		case u := <-s.updates:
			s.applyIncome(u)
		case r := <-s.results:
			s.handleResult(r)
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Status returns a copy of the observable state.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Scheduler) applyIncome(u incomeUpdate) {
	s.engine.ApplyAuthoritativeUpdate(u.income, u.at.Unix())

	s.mu.Lock()
	s.status.Updates++
	s.status.LastUpdateAt = u.at
	s.mu.Unlock()
	s.publish()
}

func (s *Scheduler) state() State {
	switch {
	case !s.engine.HasBaseline():
		return StateIdle
	case s.failures >= s.cfg.FailureThreshold:
		return StateTripped
	default:
		return StateArmed
	}
}

// tick runs one timer step and reports whether a push was issued.
func (s *Scheduler) tick(ctx context.Context) bool {
	s.mu.Lock()
	s.status.Ticks++
	s.mu.Unlock()

	switch s.state() {
	case StateIdle:
		return false
	case StateTripped:
		s.publish()
		return false
	}

	now := s.now()
	s.engine.Advance(now.Unix())

	s.seq++
	seq := s.seq
	payload := sheets.Payload{
		Resources:     s.engine.Snapshot(),
		CellLocations: s.cfg.CellLocations,
		Instance:      s.game.Instance(),
		Sheet:         s.cfg.SheetID,
	}
	s.inflight++

	s.mu.Lock()
	s.status.Pushes++
	s.status.LastPushAt = now
	s.status.Instance = payload.Instance
	s.mu.Unlock()
	s.publish()

	go func() {
		code, err := s.pusher.Push(ctx, payload)
		select {
		case s.results <- pushResult{seq: seq, submittedAt: now, payload: payload, statusCode: code, err: err}:
		case <-ctx.Done():
		}
	}()
	return true
}

// handleResult applies a push completion. Completions can arrive in any
// order; each failed push is counted once, and with ResetOnSuccess a success
// only clears failures from pushes submitted before it.
func (s *Scheduler) handleResult(r pushResult) {
	s.inflight--

	switch {
	case r.err != nil && s.cfg.ResetOnSuccess && r.seq < s.lastSuccessSeq:
		// Superseded by a later push that already succeeded.
		s.logFailure(r)
	case r.err != nil:
		s.failures++
		if s.cfg.ResetOnSuccess {
			s.failedSeqs = append(s.failedSeqs, r.seq)
		}
		s.logFailure(r)
	case s.cfg.ResetOnSuccess && r.seq > s.lastSuccessSeq:
		s.lastSuccessSeq = r.seq
		kept := s.failedSeqs[:0]
		for _, seq := range s.failedSeqs {
			if seq > r.seq {
				kept = append(kept, seq)
			}
		}
		s.failedSeqs = kept
		s.failures = len(kept)
		if s.failures < s.cfg.FailureThreshold {
			s.tripLogged = false
		}
	}

	if s.failures >= s.cfg.FailureThreshold && !s.tripLogged {
		s.tripLogged = true
		s.log.Errorf("push circuit tripped after %d consecutive failures; pushes disabled", s.failures)
	}

	s.mu.Lock()
	if r.err != nil {
		s.status.LastError = r.err.Error()
	} else {
		s.status.Succeeded++
		s.status.LastError = ""
	}
	s.mu.Unlock()
	s.publish()

	s.record(r)
}

func (s *Scheduler) logFailure(r pushResult) {
	var rej *sheets.RejectedError
	if errors.As(r.err, &rej) {
		s.log.Warnf("push %d rejected (%d/%d): %s: %s",
			r.seq, s.failures, s.cfg.FailureThreshold, rej.Status, rej.Body)
		return
	}
	s.log.Warnf("push %d failed (%d/%d): %v", r.seq, s.failures, s.cfg.FailureThreshold, r.err)
}

func (s *Scheduler) record(r pushResult) {
	if s.journal == nil {
		return
	}

	rec := store.PushRecord{
		Seq:         r.seq,
		SubmittedAt: r.submittedAt,
		CompletedAt: s.now(),
		Instance:    r.payload.Instance,
		Sheet:       r.payload.Sheet,
		Outcome:     store.OutcomeOK,
		StatusCode:  r.statusCode,
		CredValue:   r.payload.Resources.Cred.Value,
		TechValue:   r.payload.Resources.Tech.Value,
		IdeoValue:   r.payload.Resources.Ideo.Value,
	}
	if r.err != nil {
		rec.Error = r.err.Error()
		rec.Outcome = store.OutcomeTransport
		var rej *sheets.RejectedError
		if errors.As(r.err, &rej) {
			rec.Outcome = store.OutcomeRejected
			rec.StatusCode = rej.StatusCode
		}
	}

	if err := s.journal.RecordPush(rec); err != nil {
		s.log.Warnf("journal: %v", err)
	}
}

// publish copies loop-owned fields into the shared status.
func (s *Scheduler) publish() {
	state := s.state()
	snap := s.engine.Snapshot()

	s.mu.Lock()
	s.status.State = state
	s.status.Failures = s.failures
	s.status.InFlight = s.inflight
	s.status.Resources = snap
	s.mu.Unlock()
}
