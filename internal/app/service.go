// Package app wires the domain logic to the adapters and exposes the
// operations the HTTP layer serves.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mkanda/torifuda/internal/adapters/audit"
	"github.com/mkanda/torifuda/internal/adapters/mq/queue"
	"github.com/mkanda/torifuda/internal/adapters/mq/worker"
	"github.com/mkanda/torifuda/internal/adapters/repository"
	"github.com/mkanda/torifuda/internal/config"
	"github.com/mkanda/torifuda/internal/domain/anomaly"
	"github.com/mkanda/torifuda/internal/domain/calendar"
	"github.com/mkanda/torifuda/internal/domain/model"
	"github.com/mkanda/torifuda/internal/domain/rules"
	"github.com/mkanda/torifuda/pkg/logger"
)

const (
	defaultDivision    = "general"
	defaultLeaderboard = 10
)

// Service is the application facade: session lifecycle, exams,
// leaderboards, player rank and the season pipeline.
type Service struct {
	store     repository.Store
	queue     queue.Queue
	pool      *worker.Pool
	confirmer *Confirmer
	agg       *Aggregator
	stats     *StatsProjector
	runner    *Runner
	pipeline  *Pipeline
	calendars calendar.Set
	ruleset   rules.Ruleset

	maxLeaderboardLimit int
	startedAt           time.Time
	now                 func() time.Time
	log                 logger.Logger
}

// New wires a Service from configuration. The in-memory store and
// queue are created here; Start launches the worker pool.
func New(_ context.Context, cfg *config.Config, opts ...ServiceOption) (*Service, error) {
	cals, err := cfg.CalendarSet()
	if err != nil {
		return nil, err
	}
	rs := cfg.Ruleset()

	store := repository.NewMemStore()
	q := queue.NewInMemoryQueue(
		queue.WithCapacity(cfg.QueueSize),
		queue.WithBufferSize(cfg.QueueSize),
	)
	trail := audit.Trail(audit.NewLogTrail())

	profiles := map[string]anomaly.Profile{
		anomaly.ProfileRecord:  cfg.AnomalyProfile(anomaly.ProfileRecord),
		anomaly.ProfileSession: cfg.AnomalyProfile(anomaly.ProfileSession),
	}

	s := &Service{
		store:               store,
		queue:               q,
		calendars:           cals,
		ruleset:             rs,
		maxLeaderboardLimit: cfg.MaxLeaderboardLimit,
		startedAt:           time.Now(),
		now:                 time.Now,
		log:                 logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.agg = NewAggregator(s.store)
	s.stats = NewStatsProjector(s.store)
	s.confirmer = NewConfirmer(s.store, s.queue, trail, profiles,
		WithSessionTTL(time.Duration(cfg.SessionTTLMinutes)*time.Minute),
		WithClock(s.now),
	)
	s.runner = NewRunner(s.store, rs, trail, WithParallelism(cfg.WorkerCount))
	s.pipeline = NewPipeline(s.store, cals, rs, s.runner, trail, WithPipelineClock(s.now))
	s.pool = worker.NewPool(cfg.WorkerCount, s.queue, s.agg, s.stats)

	return s, nil
}

// ServiceOption applies a configuration option to a Service.
type ServiceOption func(*Service)

// WithStore overrides the document store. Used in tests.
func WithStore(store repository.Store) ServiceOption {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithServiceClock overrides the time source. Used in tests.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Start launches the projection workers.
func (s *Service) Start(ctx context.Context) {
	s.pool.Start(ctx)
	s.log.Info(ctx, "service started")
}

// Stop drains the queue and shuts the workers down.
func (s *Service) Stop(ctx context.Context) error {
	return s.pool.Shutdown(ctx)
}

// CreateSessionParams are the caller-supplied fields of a new session.
type CreateSessionParams struct {
	DisplayName        string
	Division           string
	EntryID            string
	CardSubset         string
	Profile            string
	ExpectedRoundCount int
}

// CreateSession opens a new session in the currently active season.
func (s *Service) CreateSession(ctx context.Context, callerID string, p CreateSessionParams) (model.Session, error) {
	if callerID == "" {
		return model.Session{}, NewKind("create session: missing caller", ErrInvalidInput)
	}
	if p.ExpectedRoundCount < 1 {
		return model.Session{}, NewKind("create session: expected_round_count must be positive", ErrInvalidInput)
	}

	res, ok := s.calendars.Resolve(s.now())
	if !ok {
		return model.Session{}, NewKind("create session", ErrNoActiveSeason)
	}

	division := p.Division
	if division == "" {
		division = defaultDivision
	}
	subset := p.CardSubset
	if subset == "" {
		subset = model.FullCardSet
	}
	profile := p.Profile
	if profile == "" {
		profile = anomaly.ProfileRecord
	}
	if profile != anomaly.ProfileRecord && profile != anomaly.ProfileSession {
		return model.Session{}, NewKind("create session: unknown profile", ErrInvalidInput)
	}
	entryID := p.EntryID
	if entryID == "" {
		entryID = uuid.NewString()
	}

	sess := model.Session{
		ID:                 uuid.NewString(),
		OwnerID:            callerID,
		DisplayName:        p.DisplayName,
		SeasonID:           res.SeasonKey(),
		Division:           division,
		EntryID:            entryID,
		CardSubset:         subset,
		Profile:            profile,
		Status:             model.SessionCreated,
		ExpectedRoundCount: p.ExpectedRoundCount,
		StartedAt:          s.now(),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

// SubmitRounds attaches the played rounds to the session and marks it
// submitted. Replaces any previously submitted rounds; only the owner
// may submit and only before a terminal state is reached.
func (s *Service) SubmitRounds(ctx context.Context, sessionID, callerID string, rounds []model.Round) (model.Session, error) {
	if len(rounds) == 0 {
		return model.Session{}, NewKind("submit rounds: empty", ErrInvalidInput)
	}
	sess, err := s.store.UpdateSession(ctx, sessionID, func(sess *model.Session) error {
		if sess.OwnerID != callerID {
			return NewKind("submit rounds", ErrPermissionDenied)
		}
		if sess.Status.Terminal() {
			return NewKind("submit rounds: session already settled", ErrSessionState)
		}
		sess.Rounds = rounds
		sess.Status = model.SessionSubmitted
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Session{}, NewKind("submit rounds", ErrNotFound)
		}
		return model.Session{}, err
	}
	return sess, nil
}

// Confirm settles the session. See Confirmer.Confirm.
func (s *Service) Confirm(ctx context.Context, sessionID, callerID string, claimedCorrect int) (ConfirmOutcome, error) {
	return s.confirmer.Confirm(ctx, sessionID, callerID, claimedCorrect)
}

// Session returns one session; only its owner may read it.
func (s *Service) Session(ctx context.Context, sessionID, callerID string) (model.Session, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Session{}, NewKind("get session", ErrNotFound)
		}
		return model.Session{}, err
	}
	if sess.OwnerID != callerID {
		return model.Session{}, NewKind("get session", ErrPermissionDenied)
	}
	return sess, nil
}

// ExamResult is the outcome of a submitted kyui exam.
type ExamResult struct {
	Outcome  rules.Outcome
	Progress model.PlayerProgress
}

// SubmitExam evaluates a completed kyui exam for the caller and applies
// any promotion immediately.
func (s *Service) SubmitExam(ctx context.Context, callerID string, exam rules.Exam) (ExamResult, error) {
	if callerID == "" {
		return ExamResult{}, NewKind("submit exam: missing caller", ErrInvalidInput)
	}
	if exam.SampleSize < 1 || exam.PassRate < 0 || exam.PassRate > 1 {
		return ExamResult{}, NewKind("submit exam: malformed exam", ErrInvalidInput)
	}
	out, prog, err := s.runner.ApplyExam(ctx, callerID, exam)
	if err != nil {
		return ExamResult{}, err
	}
	return ExamResult{Outcome: out, Progress: prog}, nil
}

// Leaderboard returns the top of one division's live leaderboard.
// An empty seasonKey means the currently active season.
func (s *Service) Leaderboard(ctx context.Context, seasonKey, division string, limit int) ([]model.RankingEntry, string, error) {
	if seasonKey == "" {
		res, ok := s.calendars.Resolve(s.now())
		if !ok {
			return nil, "", NewKind("leaderboard", ErrNoActiveSeason)
		}
		seasonKey = res.SeasonKey()
	}
	if division == "" {
		division = defaultDivision
	}
	if limit <= 0 {
		limit = defaultLeaderboard
	}
	if limit > s.maxLeaderboardLimit {
		limit = s.maxLeaderboardLimit
	}
	entries, err := s.agg.Top(ctx, seasonKey, division, limit)
	if err != nil {
		return nil, "", err
	}
	return entries, seasonKey, nil
}

// DivisionRank is a player's row in one division's leaderboard.
type DivisionRank struct {
	Division string             `json:"division"`
	Entry    model.RankingEntry `json:"entry"`
}

// RankInfo is a player's progression plus their current-season standings.
type RankInfo struct {
	Progress model.PlayerProgress `json:"progress"`
	Season   string               `json:"season,omitempty"`
	Ranks    []DivisionRank       `json:"ranks,omitempty"`
}

// Rank returns a player's ladder levels and current-season standings.
// Unknown players get a fresh progression record, not an error.
func (s *Service) Rank(ctx context.Context, playerID string) (RankInfo, error) {
	prog, err := s.store.GetProgress(ctx, playerID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return RankInfo{}, err
		}
		prog = model.PlayerProgress{PlayerID: playerID, KyuiLevel: 1}
	}

	info := RankInfo{Progress: prog}
	res, ok := s.calendars.Resolve(s.now())
	if !ok {
		return info, nil
	}
	info.Season = res.SeasonKey()

	docs, entries, err := s.agg.EntriesFor(ctx, info.Season, playerID)
	if err != nil {
		return RankInfo{}, err
	}
	for i, doc := range docs {
		info.Ranks = append(info.Ranks, DivisionRank{Division: doc.Division, Entry: entries[i]})
	}
	return info, nil
}

// Season returns one season's snapshot.
func (s *Service) Season(ctx context.Context, seasonKey string) (model.SeasonSnapshot, error) {
	return s.pipeline.Snapshot(ctx, seasonKey)
}

// FreezeSeason triggers the freeze transition.
func (s *Service) FreezeSeason(ctx context.Context, seasonKey string) (TransitionResult, error) {
	return s.pipeline.Freeze(ctx, seasonKey)
}

// FinalizeSeason triggers the finalize transition and the promotion pass.
func (s *Service) FinalizeSeason(ctx context.Context, seasonKey string) (TransitionResult, error) {
	return s.pipeline.Finalize(ctx, seasonKey)
}

// PublishSeason triggers the publish transition.
func (s *Service) PublishSeason(ctx context.Context, seasonKey string) (TransitionResult, error) {
	return s.pipeline.Publish(ctx, seasonKey)
}

// BoundaryCheck runs the daily season-boundary check.
func (s *Service) BoundaryCheck(ctx context.Context) {
	s.pipeline.BoundaryCheck(ctx)
}

// Stats is the operational summary served by GET /stats.
type Stats struct {
	ActiveSeason   string  `json:"active_season,omitempty"`
	QueueSize      int     `json:"queue_size"`
	RulesetVersion string  `json:"ruleset_version"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

// GetStats returns the operational summary.
func (s *Service) GetStats(ctx context.Context) Stats {
	st := Stats{
		QueueSize:      s.queue.Len(ctx),
		RulesetVersion: s.ruleset.Version,
		UptimeSeconds:  time.Since(s.startedAt).Seconds(),
	}
	if res, ok := s.calendars.Resolve(s.now()); ok {
		st.ActiveSeason = res.SeasonKey()
	}
	return st
}
