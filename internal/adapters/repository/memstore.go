package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mkanda/torifuda/internal/domain/model"
	"github.com/mkanda/torifuda/pkg/metrics"
)

const defaultMaxTxnRetries = 5

// collection is one versioned document family. Readers get deep
// copies; writers commit through optimistic version checks.
type collection[T any] struct {
	mu      sync.RWMutex
	docs    map[string]T
	clone   func(T) T
	version func(*T) *int64
}

func newCollection[T any](clone func(T) T, version func(*T) *int64) *collection[T] {
	return &collection[T]{docs: make(map[string]T), clone: clone, version: version}
}

func (c *collection[T]) get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[key]
	if !ok {
		var zero T
		return zero, false
	}
	return c.clone(doc), true
}

func (c *collection[T]) put(key string, doc T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[key]; ok {
		return ErrExists
	}
	*c.version(&doc) = 1
	c.docs[key] = c.clone(doc)
	return nil
}

func (c *collection[T]) list(match func(T) bool) []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0)
	for _, doc := range c.docs {
		if match(doc) {
			out = append(out, c.clone(doc))
		}
	}
	return out
}

// update runs fn against a working copy and commits only if the stored
// version is still the one the copy was taken from. create supplies the
// initial document for an absent key; a nil create makes absence an
// ErrNotFound.
func (c *collection[T]) update(key string, maxRetries int, create func() T, fn func(*T) error) (T, error) {
	var zero T
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	for attempt := 0; attempt <= maxRetries; attempt++ {
		c.mu.RLock()
		cur, exists := c.docs[key]
		c.mu.RUnlock()

		var work T
		switch {
		case exists:
			work = c.clone(cur)
		case create != nil:
			work = create()
		default:
			return zero, ErrNotFound
		}
		base := *c.version(&work)

		if err := fn(&work); err != nil {
			return zero, err
		}

		c.mu.Lock()
		latest, stillExists := c.docs[key]
		if exists != stillExists || (stillExists && *c.version(&latest) != base) {
			c.mu.Unlock()
			metrics.RecordStoreRetry()
			continue
		}
		*c.version(&work) = base + 1
		c.docs[key] = c.clone(work)
		c.mu.Unlock()
		return c.clone(work), nil
	}
	metrics.RecordStoreConflict()
	return zero, ErrConflict
}

// MemStore is the in-memory Store implementation.
type MemStore struct {
	maxRetries int

	sessions  *collection[model.Session]
	rankings  *collection[model.RankingDocument]
	progress  *collection[model.PlayerProgress]
	snapshots *collection[model.SeasonSnapshot]
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore(opts ...Option) *MemStore {
	s := &MemStore{
		maxRetries: defaultMaxTxnRetries,
		sessions:   newCollection(cloneSession, func(d *model.Session) *int64 { return &d.Version }),
		rankings:   newCollection(cloneRanking, func(d *model.RankingDocument) *int64 { return &d.Version }),
		progress:   newCollection(cloneProgress, func(d *model.PlayerProgress) *int64 { return &d.Version }),
		snapshots:  newCollection(cloneSnapshot, func(d *model.SeasonSnapshot) *int64 { return &d.Version }),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemStore) CreateSession(_ context.Context, sess model.Session) error {
	return s.sessions.put(sess.ID, sess)
}

func (s *MemStore) GetSession(_ context.Context, id string) (model.Session, error) {
	sess, ok := s.sessions.get(id)
	if !ok {
		return model.Session{}, ErrNotFound
	}
	return sess, nil
}

func (s *MemStore) UpdateSession(_ context.Context, id string, fn func(*model.Session) error) (model.Session, error) {
	return s.sessions.update(id, s.maxRetries, nil, fn)
}

func rankingKey(seasonID, division string) string {
	return seasonID + "/" + division
}

func (s *MemStore) GetRanking(_ context.Context, seasonID, division string) (model.RankingDocument, error) {
	doc, ok := s.rankings.get(rankingKey(seasonID, division))
	if !ok {
		return model.RankingDocument{}, ErrNotFound
	}
	return doc, nil
}

func (s *MemStore) UpdateRanking(_ context.Context, seasonID, division string, fn func(*model.RankingDocument) error) (model.RankingDocument, error) {
	create := func() model.RankingDocument {
		return model.RankingDocument{SeasonID: seasonID, Division: division}
	}
	return s.rankings.update(rankingKey(seasonID, division), s.maxRetries, create, fn)
}

func (s *MemStore) ListRankings(_ context.Context, seasonID string) ([]model.RankingDocument, error) {
	docs := s.rankings.list(func(d model.RankingDocument) bool { return d.SeasonID == seasonID })
	sort.Slice(docs, func(i, j int) bool { return docs[i].Division < docs[j].Division })
	return docs, nil
}

func (s *MemStore) GetProgress(_ context.Context, playerID string) (model.PlayerProgress, error) {
	doc, ok := s.progress.get(playerID)
	if !ok {
		return model.PlayerProgress{}, ErrNotFound
	}
	return doc, nil
}

func (s *MemStore) UpdateProgress(_ context.Context, playerID string, fn func(*model.PlayerProgress) error) (model.PlayerProgress, error) {
	create := func() model.PlayerProgress {
		return model.PlayerProgress{PlayerID: playerID, KyuiLevel: 1}
	}
	return s.progress.update(playerID, s.maxRetries, create, fn)
}

func (s *MemStore) GetSnapshot(_ context.Context, seasonKey string) (model.SeasonSnapshot, error) {
	doc, ok := s.snapshots.get(seasonKey)
	if !ok {
		return model.SeasonSnapshot{}, ErrNotFound
	}
	return doc, nil
}

func (s *MemStore) UpdateSnapshot(_ context.Context, seasonKey string, fn func(*model.SeasonSnapshot) error) (model.SeasonSnapshot, error) {
	create := func() model.SeasonSnapshot {
		return model.SeasonSnapshot{SeasonKey: seasonKey, Status: model.SnapshotDraft}
	}
	return s.snapshots.update(seasonKey, s.maxRetries, create, fn)
}

func cloneSession(s model.Session) model.Session {
	out := s
	out.Rounds = append([]model.Round(nil), s.Rounds...)
	for i, r := range s.Rounds {
		out.Rounds[i].OfferedChoiceIDs = append([]string(nil), r.OfferedChoiceIDs...)
	}
	out.InvalidReasons = append([]string(nil), s.InvalidReasons...)
	return out
}

func cloneRanking(d model.RankingDocument) model.RankingDocument {
	out := d
	out.Entries = append([]model.RankingEntry(nil), d.Entries...)
	out.AppliedSessions = cloneBoolMap(d.AppliedSessions)
	return out
}

func cloneProgress(p model.PlayerProgress) model.PlayerProgress {
	out := p
	out.SeasonScores = make(map[string]int, len(p.SeasonScores))
	for k, v := range p.SeasonScores {
		out.SeasonScores[k] = v
	}
	out.FullSetSeasons = cloneBoolMap(p.FullSetSeasons)
	out.AppliedSessions = cloneBoolMap(p.AppliedSessions)
	out.EvaluatedSeasons = cloneBoolMap(p.EvaluatedSeasons)
	return out
}

func cloneBoolMap(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSnapshot(s model.SeasonSnapshot) model.SeasonSnapshot {
	out := s
	out.Rankings = append([]model.RankingEntry(nil), s.Rankings...)
	out.Divisions = make([]model.DivisionResult, len(s.Divisions))
	for i, d := range s.Divisions {
		out.Divisions[i] = d
		out.Divisions[i].Entries = append([]model.RankingEntry(nil), d.Entries...)
	}
	return out
}
