// Package sqlstore persists ratings in SQLite or PostgreSQL through sqlx.
// Connections go through an OpenTelemetry instrumented driver.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/okian/lighthouse/internal/adapters/repository"
	"github.com/okian/lighthouse/internal/clock"
	"github.com/okian/lighthouse/internal/config"
	"github.com/okian/lighthouse/internal/domain/model"
	"github.com/okian/lighthouse/internal/domain/types"
	"github.com/okian/lighthouse/pkg/metrics"
)

// Registry names of the SQL backends.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const defaultSQLitePath = "ratings.sqlite"

// commitLockKey is the postgres advisory lock held by every commit transaction.
const commitLockKey int64 = 0x6c69676874

//go:embed schema/*.sql
var schemaFS embed.FS

type dialect struct {
	name   string
	bind   int
	system attribute.KeyValue
}

var dialects = map[string]dialect{
	DriverSQLite:   {name: "sqlite", bind: sqlx.QUESTION, system: semconv.DBSystemSqlite},
	DriverPostgres: {name: "postgres", bind: sqlx.DOLLAR, system: semconv.DBSystemPostgreSQL},
}

var (
	registerMu sync.Mutex
	registered = map[string]string{}
)

// instrumented returns the otelsql driver name wrapping d, registering it once.
func instrumented(d dialect) (string, error) {
	registerMu.Lock()
	defer registerMu.Unlock()
	if name, ok := registered[d.name]; ok {
		return name, nil
	}
	name, err := otelsql.Register(d.name, otelsql.WithAttributes(d.system))
	if err != nil {
		return "", fmt.Errorf("registering otel driver: %w", err)
	}
	sqlx.BindDriver(name, d.bind)
	registered[d.name] = name
	return name, nil
}

func init() { //nolint:gochecknoinits // driver registration
	repository.Register(DriverSQLite, func(ctx context.Context, cfg config.StoreConfig, clk clock.Clock) (repository.Store, error) {
		dsn := cfg.DSN
		if dsn == "" {
			dsn = cfg.Path
		}
		if dsn == "" {
			dsn = defaultSQLitePath
		}
		return Open(ctx, DriverSQLite, dsn, cfg.MaxOpenConns, clk)
	})
	repository.Register(DriverPostgres, func(ctx context.Context, cfg config.StoreConfig, clk clock.Clock) (repository.Store, error) {
		if cfg.DSN == "" {
			return nil, fmt.Errorf("%w: postgres store requires a dsn", config.ErrInvalidConfig)
		}
		return Open(ctx, DriverPostgres, cfg.DSN, cfg.MaxOpenConns, clk)
	})
}

type playerRow struct {
	PlayerID      string  `db:"player_id"`
	Rating        float64 `db:"rating"`
	MatchesPlayed int     `db:"matches_played"`
	LastMatchID   string  `db:"last_match_id"`
	Seq           int64   `db:"seq"`
	Wins          int     `db:"wins"`
	Losses        int     `db:"losses"`
}

func (r playerRow) player() model.Player {
	return model.Player{
		ID:            r.PlayerID,
		Rating:        r.Rating,
		MatchesPlayed: r.MatchesPlayed,
		LastMatchID:   r.LastMatchID,
		Seq:           r.Seq,
		Wins:          r.Wins,
		Losses:        r.Losses,
	}
}

func (r playerRow) entry(rank int) types.Entry {
	return r.player().Entry(rank)
}

type historyRow struct {
	TSNs     int64   `db:"ts_ns"`
	Round    int     `db:"round_index"`
	PlayerID string  `db:"player_id"`
	Rating   float64 `db:"rating"`
}

func (r historyRow) point() model.HistoryPoint {
	return model.HistoryPoint{Stamp: stampOf(r.TSNs, r.Round), PlayerID: r.PlayerID, Rating: r.Rating}
}

type metaRow struct {
	TSNs          int64  `db:"ts_ns"`
	Round         int    `db:"round_index"`
	NextSeq       int64  `db:"next_seq"`
	MatchID       string `db:"match_id"`
	CommittedAtNs int64  `db:"committed_at_ns"`
}

func stampOf(ns int64, round int) model.Stamp {
	return model.Stamp{Time: time.Unix(0, ns).UTC(), Round: round}
}

// Store is a SQL-backed rating store.
type Store struct {
	db     *sqlx.DB
	driver string
	clk    clock.Clock

	closeOnce sync.Once
	closeErr  error
}

// Open connects to dsn using the named backend and applies the schema.
func Open(ctx context.Context, driver, dsn string, maxOpenConns int, clk clock.Clock) (*Store, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("%w: unknown sql driver %q", config.ErrInvalidConfig, driver)
	}
	if clk == nil {
		clk = clock.Real{}
	}
	name, err := instrumented(d)
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}
	db, err := sqlx.ConnectContext(ctx, name, dsn)
	if err != nil {
		return nil, repository.Unavailable("connecting to database", err)
	}
	switch {
	case driver == DriverSQLite:
		// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	case maxOpenConns > 0:
		db.SetMaxOpenConns(maxOpenConns)
	}

	s := &Store{db: db, driver: driver, clk: clk}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// sqliteDSN makes every transaction take the write lock when it begins, so two
// handles on one file serialize their commits instead of failing mid-way, and
// waits for a busy lock rather than failing at once.
func sqliteDSN(dsn string) string {
	var params []string
	if !strings.Contains(dsn, "_txlock=") {
		params = append(params, "_txlock=immediate")
	}
	if !strings.Contains(dsn, "busy_timeout") {
		params = append(params, "_pragma=busy_timeout(5000)")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

func (s *Store) migrate(ctx context.Context) error {
	raw, err := schemaFS.ReadFile("schema/" + s.driver + ".sql")
	if err != nil {
		return fmt.Errorf("reading schema: %w", err)
	}
	for _, stmt := range strings.Split(string(raw), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return repository.Unavailable("applying schema", err)
		}
	}
	return nil
}

func (s *Store) fail(op string, err error) error {
	metrics.RecordStoreError(s.driver, op)
	return repository.Unavailable(op, err)
}

func (s *Store) observe(op string) func() {
	start := time.Now()
	return func() { metrics.RecordStoreQuery(s.driver, op, time.Since(start)) }
}

const (
	selectMeta    = `SELECT ts_ns, round_index, next_seq, match_id, committed_at_ns FROM meta WHERE id = 1`
	selectPlayers = `SELECT player_id, rating, matches_played, last_match_id, seq, wins, losses FROM players`
	selectHistory = `SELECT ts_ns, round_index, player_id, rating FROM history`
)

func readMeta(ctx context.Context, q sqlx.QueryerContext) (metaRow, bool, error) {
	var m metaRow
	err := sqlx.GetContext(ctx, q, &m, selectMeta)
	if errors.Is(err, sql.ErrNoRows) {
		return m, false, nil
	}
	if err != nil {
		return m, false, err
	}
	return m, true, nil
}

// Load implements repository.Store.
func (s *Store) Load(ctx context.Context, ids ...string) (model.State, bool, error) {
	defer s.observe("load")()
	m, ok, err := readMeta(ctx, s.db)
	if err != nil {
		return model.State{}, false, s.fail("load", err)
	}
	st := model.State{NextSeq: m.NextSeq, Players: make(map[string]model.Player, len(ids))}
	if ok {
		st.Last = stampOf(m.TSNs, m.Round)
	}
	if len(ids) == 0 {
		return st, ok, nil
	}

	query, args, err := sqlx.In(selectPlayers+` WHERE player_id IN (?)`, ids)
	if err != nil {
		return model.State{}, false, fmt.Errorf("building load query: %w", err)
	}
	var rows []playerRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return model.State{}, false, s.fail("load", err)
	}
	for _, r := range rows {
		st.Players[r.PlayerID] = r.player()
	}
	return st, ok, nil
}

const (
	upsertPlayer = `INSERT INTO players (player_id, rating, matches_played, last_match_id, seq, wins, losses)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (player_id) DO UPDATE SET
		rating = excluded.rating,
		matches_played = excluded.matches_played,
		last_match_id = excluded.last_match_id,
		wins = excluded.wins,
		losses = excluded.losses`
	insertHistory = `INSERT INTO history (ts_ns, round_index, player_id, rating) VALUES (?, ?, ?, ?)`
	upsertMeta    = `INSERT INTO meta (id, ts_ns, round_index, next_seq, match_id, committed_at_ns)
	VALUES (1, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		ts_ns = excluded.ts_ns,
		round_index = excluded.round_index,
		next_seq = excluded.next_seq,
		match_id = excluded.match_id,
		committed_at_ns = excluded.committed_at_ns`
)

// Commit implements repository.Store. The whole commit is one transaction.
func (s *Store) Commit(ctx context.Context, c model.Commit) error {
	start := time.Now()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return s.fail("commit", err)
	}
	defer func() { _ = tx.Rollback() }()

	if s.driver == DriverPostgres {
		// The meta row may not exist yet, so row locks cannot serialize writers.
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, commitLockKey); err != nil {
			return s.fail("commit", fmt.Errorf("taking commit lock: %w", err))
		}
	}
	m, committed, err := readMeta(ctx, tx)
	if err != nil {
		return s.fail("commit", err)
	}
	if err := repository.CheckCommit(stampOf(m.TSNs, m.Round), committed, c); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			metrics.RecordStoreError(s.driver, "conflict")
		}
		return err
	}

	ts := c.Stamp.Time.UnixNano()
	for _, p := range c.Players {
		if _, err := tx.ExecContext(ctx, tx.Rebind(upsertPlayer),
			p.ID, p.Rating, p.MatchesPlayed, p.LastMatchID, p.Seq, p.Wins, p.Losses); err != nil {
			return s.fail("commit", fmt.Errorf("upserting player %q: %w", p.ID, err))
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(insertHistory), ts, c.Stamp.Round, p.ID, p.Rating); err != nil {
			return s.fail("commit", fmt.Errorf("appending history for %q: %w", p.ID, err))
		}
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(upsertMeta),
		ts, c.Stamp.Round, max(m.NextSeq, c.NextSeq), c.MatchID, s.clk.Now().UnixNano()); err != nil {
		return s.fail("commit", fmt.Errorf("updating meta: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return s.fail("commit", err)
	}
	metrics.RecordStoreCommit(s.driver, time.Since(start))
	return nil
}

// Get implements repository.Store.
func (s *Store) Get(ctx context.Context, id string) (model.Player, bool, error) {
	defer s.observe("get")()
	var r playerRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind(selectPlayers+` WHERE player_id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Player{}, false, nil
	}
	if err != nil {
		return model.Player{}, false, s.fail("get", err)
	}
	return r.player(), true, nil
}

// Rank implements repository.Store.
func (s *Store) Rank(ctx context.Context, id string) (types.Entry, error) {
	defer s.observe("rank")()
	var r playerRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind(selectPlayers+` WHERE player_id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Entry{}, repository.ErrNotFound
	}
	if err != nil {
		return types.Entry{}, s.fail("rank", err)
	}
	var ahead int
	err = s.db.GetContext(ctx, &ahead,
		s.db.Rebind(`SELECT COUNT(*) FROM players WHERE rating > ? OR (rating = ? AND seq < ?)`),
		r.Rating, r.Rating, r.Seq)
	if err != nil {
		return types.Entry{}, s.fail("rank", err)
	}
	return r.entry(ahead + 1), nil
}

// Top implements repository.Store.
func (s *Store) Top(ctx context.Context, n, minMatches int) ([]types.Entry, error) {
	defer s.observe("top")()
	if n < 1 {
		return nil, repository.ErrInvalidLimit
	}
	var rows []playerRow
	err := s.db.SelectContext(ctx, &rows,
		s.db.Rebind(selectPlayers+` WHERE matches_played >= ? ORDER BY rating DESC, seq ASC LIMIT ?`),
		minMatches, n)
	if err != nil {
		return nil, s.fail("top", err)
	}
	out := make([]types.Entry, len(rows))
	for i, r := range rows {
		out[i] = r.entry(i + 1)
	}
	return out, nil
}

// History implements repository.Store.
func (s *Store) History(ctx context.Context, playerID string) ([]model.HistoryPoint, error) {
	defer s.observe("history")()
	var (
		rows []historyRow
		err  error
	)
	if playerID == "" {
		err = s.db.SelectContext(ctx, &rows, selectHistory+` ORDER BY id`)
	} else {
		err = s.db.SelectContext(ctx, &rows, s.db.Rebind(selectHistory+` WHERE player_id = ? ORDER BY id`), playerID)
	}
	if err != nil {
		return nil, s.fail("history", err)
	}
	return points(rows), nil
}

// Snapshot implements repository.Store. Each player contributes the latest
// history row at or before at.
func (s *Store) Snapshot(ctx context.Context, at model.Stamp) (model.Snapshot, error) {
	defer s.observe("snapshot")()
	ts := at.Time.UnixNano()
	var rows []historyRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT h.ts_ns, h.round_index, h.player_id, h.rating
		FROM history h
		JOIN (
			SELECT player_id, MAX(id) AS id FROM history
			WHERE ts_ns < ? OR (ts_ns = ? AND round_index <= ?)
			GROUP BY player_id
		) latest ON h.id = latest.id
		ORDER BY h.id`), ts, ts, at.Round)
	if err != nil {
		return model.Snapshot{}, s.fail("snapshot", err)
	}
	return repository.BuildSnapshot(points(rows), at)
}

func points(rows []historyRow) []model.HistoryPoint {
	out := make([]model.HistoryPoint, len(rows))
	for i, r := range rows {
		out[i] = r.point()
	}
	return out
}

// Count implements repository.Store.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM players`); err != nil {
		return 0, s.fail("count", err)
	}
	return n, nil
}

// Ping implements repository.Store.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return repository.Unavailable("ping", err)
	}
	return nil
}

// Close implements repository.Store. It is safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.db.Close() })
	return s.closeErr
}
