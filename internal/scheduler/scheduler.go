// Package scheduler drives the simulated user population: the initial
// ramp-up, paced admission of new users, per-tick stepping, reaping of
// finished sessions and windowed aggregation of their metrics.
package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"chatq/internal/apps"
	"chatq/internal/executor"
	"chatq/internal/session"
	"chatq/internal/stats"
	"chatq/internal/transcript"
)

// Executor is the asynchronous side of the scheduler.
type Executor interface {
	Submit(req executor.Request) error
	Completions() <-chan executor.Completion
}

type Config struct {
	NumUsers  int
	QPS       float64
	NumRounds int
	AnswerLen int

	SystemPromptLen int
	UserInfoLen     int

	// InitUserID is the id before the first user; ids start at InitUserID+1.
	InitUserID    int
	SendUserID    bool
	FailurePolicy session.FailurePolicy
	Seed          int64
}

// GapBetweenRequests is the pacing interval of every user.
func (c Config) GapBetweenRequests() time.Duration {
	if c.QPS <= 0 {
		return 0
	}
	return time.Duration(float64(c.NumUsers) / c.QPS * float64(time.Second))
}

// SessionAliveTime is how long a user lives from first to last round.
func (c Config) SessionAliveTime() time.Duration {
	return c.GapBetweenRequests() * time.Duration(c.NumRounds-1)
}

// GapBetweenUsers is the admission interval that keeps the population
// spread evenly over one session lifetime.
func (c Config) GapBetweenUsers() time.Duration {
	if c.NumUsers <= 0 {
		return 0
	}
	return c.SessionAliveTime() / time.Duration(c.NumUsers)
}

// Scheduler is driven by a single controller goroutine. None of its methods
// are safe for concurrent use.
type Scheduler struct {
	cfg     Config
	apps    *apps.Store
	scripts *transcript.Set
	exec    Executor
	obs     Observer
	log     *zap.Logger

	sessions []*session.Session
	byID     map[int]*session.Session
	archive  []stats.Row

	lastUserID  int
	lastJoin    time.Time
	firstTick   time.Time
	rampedUp    bool
	outstanding int
	failures    int
}

type Option func(*Scheduler)

func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.obs = o }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithTranscripts switches sessions to replay mode.
func WithTranscripts(set *transcript.Set) Option {
	return func(s *Scheduler) { s.scripts = set }
}

// New builds a scheduler. store may be nil, in which case every user gets a
// placeholder system prompt.
func New(cfg Config, store *apps.Store, exec Executor, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:        cfg,
		apps:       store,
		exec:       exec,
		obs:        NopObserver{},
		log:        zap.NewNop(),
		byID:       make(map[int]*session.Session),
		lastUserID: cfg.InitUserID,
	}
	for _, o := range opts {
		o(s)
	}
	s.log.Info("workload timing",
		zap.Duration("gap_between_users", cfg.GapBetweenUsers()),
		zap.Duration("gap_between_requests", cfg.GapBetweenRequests()),
		zap.Duration("session_alive_time", cfg.SessionAliveTime()))
	return s
}

func (s *Scheduler) Config() Config { return s.cfg }

// Active is the current population.
func (s *Scheduler) Active() int { return len(s.sessions) }

// Admitted is the number of users created so far.
func (s *Scheduler) Admitted() int { return s.lastUserID - s.cfg.InitUserID }

// Outstanding counts submitted calls whose completion has not been handled.
func (s *Scheduler) Outstanding() int { return s.outstanding }

func (s *Scheduler) Failures() int { return s.failures }

// FirstTick is the time of the first Step, zero before it.
func (s *Scheduler) FirstTick() time.Time { return s.firstTick }

// Pending counts sessions currently marked in flight.
func (s *Scheduler) Pending() int {
	n := 0
	for _, ss := range s.sessions {
		if ss.InFlight() {
			n++
		}
	}
	return n
}

func (s *Scheduler) newSession() *session.Session {
	s.lastUserID++
	uid := s.lastUserID

	var app *apps.Profile
	if s.apps != nil {
		app = s.apps.Assign(uid)
	}
	var script *transcript.Conversation
	if s.scripts != nil {
		script = s.scripts.For(uid)
	}

	cfg := session.Config{
		UserID:          uid,
		Gap:             s.cfg.GapBetweenRequests(),
		NumRounds:       s.cfg.NumRounds,
		AnswerLen:       s.cfg.AnswerLen,
		SystemPromptLen: s.cfg.SystemPromptLen,
		UserInfoLen:     s.cfg.UserInfoLen,
		SendUserID:      s.cfg.SendUserID,
		FailurePolicy:   s.cfg.FailurePolicy,
	}
	rng := rand.New(rand.NewSource(s.cfg.Seed + int64(uid)))
	ss := session.New(cfg, app, script, rng, s.log)
	s.sessions = append(s.sessions, ss)
	s.byID[uid] = ss
	return ss
}

// rampUp creates the initial population, back-dating user i by i gaps so
// that the users' rounds are spread out from the first tick.
func (s *Scheduler) rampUp(now time.Time) {
	gap := s.cfg.GapBetweenUsers()
	for i := 0; i < s.cfg.NumUsers; i++ {
		ss := s.newSession()
		if err := ss.SeedRampState(time.Duration(i)*gap, now); err != nil {
			s.log.Error("seeding ramp state", zap.Int("user_id", ss.UserID()), zap.Error(err))
		}
		s.obs.Admitted(ss.UserID(), len(s.sessions))
		s.log.Info("ramp-up: joined a new user",
			zap.Int("user_id", ss.UserID()),
			zap.Int("active_users", len(s.sessions)))
	}
	s.lastJoin = now
	s.rampedUp = true
}

// Step runs one controller tick at time now.
func (s *Scheduler) Step(now time.Time) {
	if !s.rampedUp {
		s.firstTick = now
		s.rampUp(now)
	}

	s.Collect()

	if len(s.sessions) < s.cfg.NumUsers && now.Sub(s.lastJoin) > s.cfg.GapBetweenUsers() {
		ss := s.newSession()
		s.lastJoin = now
		s.obs.Admitted(ss.UserID(), len(s.sessions))
		s.log.Info("joined a new user",
			zap.Int("user_id", ss.UserID()),
			zap.Int("active_users", len(s.sessions)))
	}

	for _, ss := range s.sessions {
		act, err := ss.Step(now, s.exec)
		if err != nil {
			s.log.Error("stepping session", zap.Int("user_id", ss.UserID()), zap.Error(err))
			continue
		}
		switch act {
		case session.ActionFired:
			s.outstanding++
			s.obs.Launched(ss.UserID(), ss.Round())
		case session.ActionBackpressure:
			s.obs.Backpressure(ss.UserID())
		}
	}

	s.reap()
}

func (s *Scheduler) reap() {
	kept := s.sessions[:0]
	removed := 0
	for _, ss := range s.sessions {
		if !ss.Finished() {
			kept = append(kept, ss)
			continue
		}
		removed++
		s.archive = append(s.archive, ss.Rows()...)
		delete(s.byID, ss.UserID())
	}
	for i := len(kept); i < len(s.sessions); i++ {
		s.sessions[i] = nil
	}
	s.sessions = kept
	if removed > 0 {
		s.obs.Reaped(removed, len(s.sessions))
		s.log.Info("removed finished sessions",
			zap.Int("removed", removed),
			zap.Int("active_users", len(s.sessions)))
	}
}

// Collect applies every completion already waiting, without blocking, and
// returns how many it handled.
func (s *Scheduler) Collect() int {
	n := 0
	for {
		select {
		case c := <-s.exec.Completions():
			s.apply(c)
			n++
		default:
			return n
		}
	}
}

func (s *Scheduler) apply(c executor.Completion) {
	s.outstanding--
	ss, ok := s.byID[c.UserID]
	if !ok {
		s.log.Warn("completion for unknown user", zap.Int("user_id", c.UserID), zap.Int("round", c.Round))
		return
	}
	row, err := ss.HandleCompletion(c)
	switch {
	case errors.Is(err, session.ErrStaleCompletion):
		s.log.Warn("dropping stale completion", zap.Error(err))
	case err != nil:
		s.failures++
		s.obs.Failed(c.UserID, c.Round, err)
	default:
		s.obs.Finished(row)
	}
}

// Drain blocks until every outstanding call has completed or ctx is done.
// Sessions are not stepped, so no new rounds are fired.
func (s *Scheduler) Drain(ctx context.Context) error {
	for s.outstanding > 0 {
		select {
		case c := <-s.exec.Completions():
			s.apply(c)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Rows returns archived rows followed by the rows of live sessions.
func (s *Scheduler) Rows() []stats.Row {
	out := make([]stats.Row, 0, len(s.archive))
	out = append(out, s.archive...)
	for _, ss := range s.sessions {
		out = append(out, ss.Rows()...)
	}
	return out
}

// Summary aggregates all rows over [start, end], clamped to the first tick
// and the latest finish. It does not change any state.
func (s *Scheduler) Summary(start, end time.Time) stats.Summary {
	rows := s.Rows()
	if start.Before(s.firstTick) {
		start = s.firstTick
	}
	var latest time.Time
	for _, r := range rows {
		if r.FinishTime.After(latest) {
			latest = r.FinishTime
		}
	}
	if end.After(latest) {
		end = latest
	}
	if end.Before(start) {
		end = start
	}
	return stats.Summarize(rows, stats.Window{Start: start, End: end}, s.Pending(), s.cfg.QPS)
}
