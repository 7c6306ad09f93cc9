package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"github.com/pokearena/scoresync/internal/domain/model"
	"github.com/pokearena/scoresync/internal/domain/replay"
	"github.com/pokearena/scoresync/pkg/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS players (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    rank INTEGER,
    player TEXT UNIQUE COLLATE NOCASE,
    trainers INTEGER NOT NULL DEFAULT 0,
    rounds INTEGER NOT NULL DEFAULT 0,
    kos INTEGER NOT NULL DEFAULT 0,
    extra INTEGER NOT NULL DEFAULT 0,
    team TEXT NOT NULL DEFAULT '',
    marker INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS devices (
    uid TEXT PRIMARY KEY,
    secret TEXT NOT NULL,
    last_seq INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS device_scores (
    uid TEXT PRIMARY KEY,
    player TEXT NOT NULL,
    trainers INTEGER NOT NULL DEFAULT 0,
    rounds INTEGER NOT NULL DEFAULT 0,
    kos INTEGER NOT NULL DEFAULT 0,
    extra INTEGER NOT NULL DEFAULT 0,
    team TEXT NOT NULL DEFAULT '',
    marker INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    uid TEXT NOT NULL,
    seq INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (uid, seq)
);
`

// SQLiteStore implements Store on a single SQLite file via database/sql.
//
// SQLite is a single-writer backend, so the pool is capped at one
// connection; the identity uniqueness constraints plus conditional
// upserts provide all required atomicity.
type SQLiteStore struct {
	db  *sql.DB
	cfg storeConfig
}

// NewSQLiteStore opens (and creates, if needed) the database at path and
// ensures the schema exists. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	cfg := defaultStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db, cfg: cfg}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Apply implements Store.
func (s *SQLiteStore) Apply(ctx context.Context, sub model.Submission) (model.Aggregate, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreApplyLatency(float64(time.Since(start).Milliseconds()))
	}()

	switch sub.Scheme {
	case model.SchemeName:
		return s.applyName(ctx, sub)
	case model.SchemeDevice:
		return s.applyDevice(ctx, sub)
	default:
		return model.Aggregate{}, ErrUnknownScheme
	}
}

// applyName merges under the strict-timestamp discipline. The replay
// decision rides on the upsert's WHERE clause: when no row changes, the
// stored marker tells duplicate apart from stale.
func (s *SQLiteStore) applyName(ctx context.Context, sub model.Submission) (model.Aggregate, error) {
	now := nowString()

	var query string
	if sub.Mode == model.ModeSet {
		query = `
INSERT INTO players (player, trainers, rounds, kos, extra, team, marker, rank, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(rank), 0) + 1 FROM players), ?)
ON CONFLICT(player) DO UPDATE SET
    player     = excluded.player,
    trainers   = excluded.trainers,
    rounds     = excluded.rounds,
    kos        = excluded.kos,
    extra      = excluded.extra,
    team       = CASE WHEN excluded.team <> '' THEN excluded.team ELSE players.team END,
    marker     = MAX(players.marker, excluded.marker),
    updated_at = excluded.updated_at
WHERE excluded.marker > players.marker`
	} else {
		trainersExpr := "players.trainers + excluded.trainers"
		if s.cfg.trainersFlag {
			trainersExpr = "MIN(1, players.trainers + excluded.trainers)"
		}
		query = `
INSERT INTO players (player, trainers, rounds, kos, extra, team, marker, rank, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(rank), 0) + 1 FROM players), ?)
ON CONFLICT(player) DO UPDATE SET
    player     = excluded.player,
    trainers   = ` + trainersExpr + `,
    rounds     = players.rounds + excluded.rounds,
    kos        = players.kos + excluded.kos,
    extra      = players.extra + excluded.extra,
    team       = CASE WHEN excluded.team <> '' THEN excluded.team ELSE players.team END,
    marker     = MAX(players.marker, excluded.marker),
    updated_at = excluded.updated_at
WHERE excluded.marker > players.marker`
	}

	res, err := s.db.ExecContext(ctx, query,
		sub.Player, sub.Trainers, sub.Rounds, sub.KOs, sub.Extra, sub.Team, sub.Marker, now)
	if err != nil {
		return model.Aggregate{}, wrapStoreErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return model.Aggregate{}, wrapStoreErr(err)
	}
	if affected == 0 {
		// Conflict row exists and the freshness guard held it back.
		stored, err := s.Get(ctx, model.SchemeName, sub.Identity())
		if err != nil {
			return model.Aggregate{}, wrapStoreErr(err)
		}
		if sub.Marker == stored.Marker {
			return stored, replay.ErrDuplicate
		}
		return model.Aggregate{}, replay.ErrStale
	}
	return s.Get(ctx, model.SchemeName, sub.Identity())
}

// applyDevice merges under the sequence discipline. The event log insert
// is the idempotency gate: a (uid, seq) conflict means the submission was
// already applied, and out-of-order-but-new sequences still land.
func (s *SQLiteStore) applyDevice(ctx context.Context, sub model.Submission) (model.Aggregate, error) {
	now := nowString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Aggregate{}, wrapStoreErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (uid, seq, created_at) VALUES (?, ?, ?) ON CONFLICT(uid, seq) DO NOTHING`,
		sub.UID, sub.Marker, now)
	if err != nil {
		return model.Aggregate{}, wrapStoreErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return model.Aggregate{}, wrapStoreErr(err)
	}
	if affected == 0 {
		stored, err := getAggregateTx(ctx, tx, model.SchemeDevice, sub.UID)
		if err != nil {
			return model.Aggregate{}, wrapStoreErr(err)
		}
		return stored, replay.ErrDuplicate
	}

	var query string
	if sub.Mode == model.ModeSet {
		query = `
INSERT INTO device_scores (uid, player, trainers, rounds, kos, extra, team, marker, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(uid) DO UPDATE SET
    player     = excluded.player,
    trainers   = excluded.trainers,
    rounds     = excluded.rounds,
    kos        = excluded.kos,
    extra      = excluded.extra,
    team       = CASE WHEN excluded.team <> '' THEN excluded.team ELSE device_scores.team END,
    marker     = MAX(device_scores.marker, excluded.marker),
    updated_at = excluded.updated_at`
	} else {
		trainersExpr := "device_scores.trainers + excluded.trainers"
		if s.cfg.trainersFlag {
			trainersExpr = "MIN(1, device_scores.trainers + excluded.trainers)"
		}
		query = `
INSERT INTO device_scores (uid, player, trainers, rounds, kos, extra, team, marker, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(uid) DO UPDATE SET
    player     = excluded.player,
    trainers   = ` + trainersExpr + `,
    rounds     = device_scores.rounds + excluded.rounds,
    kos        = device_scores.kos + excluded.kos,
    extra      = device_scores.extra + excluded.extra,
    team       = CASE WHEN excluded.team <> '' THEN excluded.team ELSE device_scores.team END,
    marker     = MAX(device_scores.marker, excluded.marker),
    updated_at = excluded.updated_at`
	}

	if _, err := tx.ExecContext(ctx, query,
		sub.UID, sub.Player, sub.Trainers, sub.Rounds, sub.KOs, sub.Extra, sub.Team, sub.Marker, now); err != nil {
		return model.Aggregate{}, wrapStoreErr(err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE devices SET last_seq = MAX(last_seq, ?), updated_at = ? WHERE uid = ?`,
		sub.Marker, now, sub.UID); err != nil {
		return model.Aggregate{}, wrapStoreErr(err)
	}

	agg, err := getAggregateTx(ctx, tx, model.SchemeDevice, sub.UID)
	if err != nil {
		return model.Aggregate{}, wrapStoreErr(err)
	}
	if err := tx.Commit(); err != nil {
		return model.Aggregate{}, wrapStoreErr(err)
	}
	return agg, nil
}

// querier abstracts *sql.DB and *sql.Tx for the read helpers.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, scheme model.Scheme, key string) (model.Aggregate, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()
	return getAggregateTx(ctx, s.db, scheme, key)
}

func getAggregateTx(ctx context.Context, q querier, scheme model.Scheme, key string) (model.Aggregate, error) {
	var (
		row *sql.Row
		agg model.Aggregate
		ts  string
	)
	switch scheme {
	case model.SchemeName:
		row = q.QueryRowContext(ctx, `
SELECT player, player, trainers, rounds, kos, extra, team, COALESCE(rank, 0), marker, updated_at
FROM players WHERE player = ? COLLATE NOCASE`, key)
	case model.SchemeDevice:
		row = q.QueryRowContext(ctx, `
SELECT uid, player, trainers, rounds, kos, extra, team, 0, marker, updated_at
FROM device_scores WHERE uid = ?`, key)
	default:
		return model.Aggregate{}, ErrUnknownScheme
	}

	err := row.Scan(&agg.Key, &agg.Player, &agg.Trainers, &agg.Rounds, &agg.KOs,
		&agg.Extra, &agg.Team, &agg.Rank, &agg.Marker, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Aggregate{}, ErrNotFound
	}
	if err != nil {
		return model.Aggregate{}, wrapStoreErr(err)
	}
	agg.Scheme = scheme
	agg.UpdatedAt = parseTime(ts)
	return agg, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, scheme model.Scheme) ([]model.Aggregate, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	var query string
	switch scheme {
	case model.SchemeName:
		query = `
SELECT player, player, trainers, rounds, kos, extra, team, COALESCE(rank, 0), marker, updated_at
FROM players`
	case model.SchemeDevice:
		query = `
SELECT uid, player, trainers, rounds, kos, extra, team, 0, marker, updated_at
FROM device_scores`
	default:
		return nil, ErrUnknownScheme
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	defer rows.Close()

	var out []model.Aggregate
	for rows.Next() {
		var (
			agg model.Aggregate
			ts  string
		)
		if err := rows.Scan(&agg.Key, &agg.Player, &agg.Trainers, &agg.Rounds, &agg.KOs,
			&agg.Extra, &agg.Team, &agg.Rank, &agg.Marker, &ts); err != nil {
			return nil, wrapStoreErr(err)
		}
		agg.Scheme = scheme
		agg.UpdatedAt = parseTime(ts)
		out = append(out, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr(err)
	}
	return out, nil
}

// Reset implements Store.
func (s *SQLiteStore) Reset(ctx context.Context, scheme model.Scheme) error {
	switch scheme {
	case model.SchemeName:
		_, err := s.db.ExecContext(ctx, `DELETE FROM players`)
		return wrapStoreErr(err)
	case model.SchemeDevice:
		if _, err := s.db.ExecContext(ctx, `DELETE FROM device_scores`); err != nil {
			return wrapStoreErr(err)
		}
		_, err := s.db.ExecContext(ctx, `DELETE FROM events`)
		return wrapStoreErr(err)
	default:
		return ErrUnknownScheme
	}
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context, scheme model.Scheme) int {
	table := "players"
	if scheme == model.SchemeDevice {
		table = "device_scores"
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0
	}
	return n
}

// DeviceSecret implements Store.
func (s *SQLiteStore) DeviceSecret(ctx context.Context, uid string) (string, error) {
	var secret string
	err := s.db.QueryRowContext(ctx, `SELECT secret FROM devices WHERE uid = ?`, uid).Scan(&secret)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", wrapStoreErr(err)
	}
	return secret, nil
}

// RegisterDevice implements Store. Racing registrations are settled by the
// primary key; every caller reads back the winning secret.
func (s *SQLiteStore) RegisterDevice(ctx context.Context, uid, secret string) (string, error) {
	now := nowString()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO devices (uid, secret, last_seq, created_at, updated_at)
VALUES (?, ?, 0, ?, ?) ON CONFLICT(uid) DO NOTHING`,
		uid, secret, now, now); err != nil {
		return "", wrapStoreErr(err)
	}
	return s.DeviceSecret(ctx, uid)
}

// SeedIfEmpty inserts the given rows into the name-scheme table when it
// holds no players yet. Used at startup for demo deployments.
func (s *SQLiteStore) SeedIfEmpty(ctx context.Context, rows []model.Aggregate) error {
	if s.Count(ctx, model.SchemeName) > 0 {
		return nil
	}
	now := nowString()
	for i, r := range rows {
		if _, err := s.db.ExecContext(ctx, `
INSERT INTO players (rank, player, trainers, rounds, kos, extra, team, marker, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?) ON CONFLICT(player) DO NOTHING`,
			i+1, r.Player, r.Trainers, r.Rounds, r.KOs, r.Extra, r.Team, now); err != nil {
			return wrapStoreErr(err)
		}
	}
	return nil
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
