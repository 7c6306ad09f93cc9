package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pokearena/scoresync/internal/domain/model"
	"github.com/pokearena/scoresync/internal/domain/replay"
)

// MemoryStore implements Store with in-process maps. It mirrors the
// SQLite backend's semantics exactly and backs tests and ephemeral
// deployments. A single mutex plays the role of the database's row-level
// atomicity; every read-modify-write holds it for its full duration.
type MemoryStore struct {
	mu  sync.RWMutex
	cfg storeConfig

	players  map[string]*model.Aggregate // folded name -> aggregate
	devices  map[string]*model.Aggregate // uid -> aggregate
	secrets  map[string]string           // uid -> secret
	events   map[string]map[int64]bool   // uid -> applied sequence set
	nextRank int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	cfg := defaultStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &MemoryStore{
		cfg:      cfg,
		players:  make(map[string]*model.Aggregate),
		devices:  make(map[string]*model.Aggregate),
		secrets:  make(map[string]string),
		events:   make(map[string]map[int64]bool),
		nextRank: 1,
	}
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// Apply implements Store.
func (s *MemoryStore) Apply(ctx context.Context, sub model.Submission) (model.Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch sub.Scheme {
	case model.SchemeName:
		return s.applyName(sub)
	case model.SchemeDevice:
		return s.applyDevice(sub)
	default:
		return model.Aggregate{}, ErrUnknownScheme
	}
}

func (s *MemoryStore) applyName(sub model.Submission) (model.Aggregate, error) {
	key := sub.Identity()
	stored, ok := s.players[key]
	if !ok {
		agg := s.fresh(sub)
		agg.Rank = s.nextRank
		s.nextRank++
		s.players[key] = &agg
		return agg, nil
	}

	switch replay.CheckMarker(stored.Marker, sub.Marker) {
	case replay.Duplicate:
		return *stored, replay.ErrDuplicate
	case replay.Stale:
		return model.Aggregate{}, replay.ErrStale
	}
	s.merge(stored, sub)
	return *stored, nil
}

func (s *MemoryStore) applyDevice(sub model.Submission) (model.Aggregate, error) {
	seen := s.events[sub.UID]
	if seen == nil {
		seen = make(map[int64]bool)
		s.events[sub.UID] = seen
	}
	if seen[sub.Marker] {
		if stored, ok := s.devices[sub.UID]; ok {
			return *stored, replay.ErrDuplicate
		}
		return model.Aggregate{}, replay.ErrDuplicate
	}
	seen[sub.Marker] = true

	stored, ok := s.devices[sub.UID]
	if !ok {
		agg := s.fresh(sub)
		s.devices[sub.UID] = &agg
		return agg, nil
	}
	s.merge(stored, sub)
	return *stored, nil
}

// fresh builds the first aggregate for an identity.
func (s *MemoryStore) fresh(sub model.Submission) model.Aggregate {
	c := sub.Counters
	if s.cfg.trainersFlag && c.Trainers > 1 {
		c.Trainers = 1
	}
	return model.Aggregate{
		Scheme:    sub.Scheme,
		Key:       sub.Identity(),
		Player:    sub.Player,
		Counters:  c,
		Team:      sub.Team,
		Marker:    sub.Marker,
		UpdatedAt: time.Now().UTC(),
	}
}

// merge applies an accepted submission in place. Callers hold the lock
// and have already passed the replay check.
func (s *MemoryStore) merge(stored *model.Aggregate, sub model.Submission) {
	if sub.Mode == model.ModeSet {
		stored.Counters = sub.Counters
	} else {
		stored.Counters = stored.Counters.Add(sub.Counters)
		if s.cfg.trainersFlag && stored.Trainers > 1 {
			stored.Trainers = 1
		}
	}
	stored.Player = sub.Player
	if sub.Team != "" {
		stored.Team = sub.Team
	}
	if sub.Marker > stored.Marker {
		stored.Marker = sub.Marker
	}
	stored.UpdatedAt = time.Now().UTC()
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, scheme model.Scheme, key string) (model.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		agg *model.Aggregate
		ok  bool
	)
	switch scheme {
	case model.SchemeName:
		agg, ok = s.players[strings.ToLower(key)]
	case model.SchemeDevice:
		agg, ok = s.devices[key]
	default:
		return model.Aggregate{}, ErrUnknownScheme
	}
	if !ok {
		return model.Aggregate{}, ErrNotFound
	}
	return *agg, nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, scheme model.Scheme) ([]model.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var src map[string]*model.Aggregate
	switch scheme {
	case model.SchemeName:
		src = s.players
	case model.SchemeDevice:
		src = s.devices
	default:
		return nil, ErrUnknownScheme
	}
	out := make([]model.Aggregate, 0, len(src))
	for _, agg := range src {
		out = append(out, *agg)
	}
	return out, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(ctx context.Context, scheme model.Scheme) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch scheme {
	case model.SchemeName:
		s.players = make(map[string]*model.Aggregate)
		s.nextRank = 1
	case model.SchemeDevice:
		s.devices = make(map[string]*model.Aggregate)
		s.events = make(map[string]map[int64]bool)
	default:
		return ErrUnknownScheme
	}
	return nil
}

// Count implements Store.
func (s *MemoryStore) Count(ctx context.Context, scheme model.Scheme) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if scheme == model.SchemeDevice {
		return len(s.devices)
	}
	return len(s.players)
}

// SeedIfEmpty inserts the given rows into the name-scheme map when it
// holds no players yet. Used at startup for demo deployments.
func (s *MemoryStore) SeedIfEmpty(ctx context.Context, rows []model.Aggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.players) > 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, r := range rows {
		agg := r
		agg.Scheme = model.SchemeName
		agg.Key = strings.ToLower(r.Player)
		agg.Rank = s.nextRank
		agg.UpdatedAt = now
		s.nextRank++
		s.players[agg.Key] = &agg
	}
	return nil
}

// DeviceSecret implements Store.
func (s *MemoryStore) DeviceSecret(ctx context.Context, uid string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	secret, ok := s.secrets[uid]
	if !ok {
		return "", ErrNotFound
	}
	return secret, nil
}

// RegisterDevice implements Store.
func (s *MemoryStore) RegisterDevice(ctx context.Context, uid, secret string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.secrets[uid]; ok {
		return existing, nil
	}
	s.secrets[uid] = secret
	return secret, nil
}
