package docstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Dialect names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type dialect struct {
	driver          string
	migrationsDir   string
	migrationsTable string
	numbered        bool // $1, $2 placeholders instead of ?
}

var dialects = map[string]dialect{
	DriverSQLite: {
		driver:        DriverSQLite,
		migrationsDir: "migrations/sqlite",
		migrationsTable: `CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
		)`,
	},
	DriverPostgres: {
		driver:        DriverPostgres,
		migrationsDir: "migrations/postgres",
		migrationsTable: `CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		numbered: true,
	},
}

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Option configures a SQLStore.
type Option func(*SQLStore)

// WithLogger sets the store's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *SQLStore) { s.logger = l }
}

// WithBus propagates change signals to and from other processes.
func WithBus(b Bus) Option {
	return func(s *SQLStore) { s.bus = b }
}

// WithClock overrides the time source used for server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *SQLStore) { s.now = now }
}

// SQLStore implements Store on database/sql. Documents of every collection
// live in one table as JSON.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
	bus     Bus
	now     func() time.Time
	hub     *hub

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open opens a store for driver. For sqlite, dsn is a file path whose parent
// directory is created if needed; for postgres it is a connection string.
func Open(driver, dsn string, opts ...Option) (*SQLStore, error) {
	switch driver {
	case DriverSQLite:
		return OpenSQLite(dsn, opts...)
	case DriverPostgres:
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
		return NewWithDB(db, DriverPostgres, opts...)
	default:
		return nil, fmt.Errorf("unsupported db driver: %q", driver)
	}
}

// OpenSQLite opens (or creates) a SQLite database at the given path.
func OpenSQLite(dbPath string, opts ...Option) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One writer at a time; the pool serializes access instead of surfacing
	// "database is locked".
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", strings.ToLower(pragma), err)
		}
	}

	return NewWithDB(db, DriverSQLite, opts...)
}

// NewWithDB wraps an already opened database. The store takes ownership of db.
func NewWithDB(db *sql.DB, driver string, opts ...Option) (*SQLStore, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported db driver: %q", driver)
	}
	s := &SQLStore{
		db:      db,
		dialect: d,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = newHub(s.logger)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if s.bus != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.bus.Listen(s.ctx, s.hub.notify); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("change bus stopped", zap.Error(err))
			}
		}()
	}
	return s, nil
}

func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files for the dialect in order.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.migrationsTable); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir(s.dialect.migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, s.dialect.rebind("SELECT COUNT(*) FROM schema_migrations WHERE filename = ?"), name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile(s.dialect.migrationsDir + "/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, s.dialect.rebind("INSERT INTO schema_migrations (filename) VALUES (?)"), name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

// Close stops subscriptions and the bus listener and closes the database.
func (s *SQLStore) Close() error {
	s.cancel()
	s.hub.closeAll()
	s.wg.Wait()
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			s.logger.Warn("close change bus", zap.Error(err))
		}
	}
	return s.db.Close()
}

func (s *SQLStore) List(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		s.dialect.rebind("SELECT seq, id, version, data FROM documents WHERE collection = ? ORDER BY seq"),
		collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()

	var docs []Document
	for rows.Next() {
		var (
			d    Document
			data []byte
		)
		if err := rows.Scan(&d.Seq, &d.ID, &d.Version, &data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		if d.Fields, err = decodeFields(data); err != nil {
			return nil, fmt.Errorf("list %s: %w", collection, err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return docs, nil
}

func (s *SQLStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	return s.get(ctx, s.db, collection, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) get(ctx context.Context, q queryer, collection, id string) (*Document, error) {
	var (
		d    Document
		data []byte
	)
	err := q.QueryRowContext(ctx,
		s.dialect.rebind("SELECT seq, id, version, data FROM documents WHERE collection = ? AND id = ?"),
		collection, id).Scan(&d.Seq, &d.ID, &d.Version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	if d.Fields, err = decodeFields(data); err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return &d, nil
}

func (s *SQLStore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	now := s.now().UTC()
	id := newULID()
	data, err := encodeFields(merge(nil, fields, now))
	if err != nil {
		return "", fmt.Errorf("create %s: %w", collection, err)
	}
	_, err = s.db.ExecContext(ctx,
		s.dialect.rebind("INSERT INTO documents (collection, id, version, data, created_at, updated_at) VALUES (?, ?, 1, ?, ?, ?)"),
		collection, id, string(data), now, now)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", collection, err)
	}
	s.changed(collection)
	return id, nil
}

func (s *SQLStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	return s.update(ctx, collection, id, -1, fields)
}

func (s *SQLStore) UpdateIf(ctx context.Context, collection, id string, version int64, fields Fields) error {
	return s.update(ctx, collection, id, version, fields)
}

// update merges fields into the stored document inside a transaction. A
// non-negative version makes the write conditional.
func (s *SQLStore) update(ctx context.Context, collection, id string, version int64, fields Fields) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update %s/%s: begin: %w", collection, id, err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.get(ctx, tx, collection, id)
	if err != nil {
		return err
	}
	if version >= 0 && current.Version != version {
		return fmt.Errorf("%s/%s at version %d, expected %d: %w", collection, id, current.Version, version, ErrConflict)
	}

	now := s.now().UTC()
	data, err := encodeFields(merge(current.Fields, fields, now))
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	res, err := tx.ExecContext(ctx,
		s.dialect.rebind("UPDATE documents SET data = ?, version = version + 1, updated_at = ? WHERE collection = ? AND id = ? AND version = ?"),
		string(data), now, collection, id, current.Version)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s/%s changed during update: %w", collection, id, ErrConflict)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update %s/%s: commit: %w", collection, id, err)
	}
	s.changed(collection)
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx,
		s.dialect.rebind("DELETE FROM documents WHERE collection = ? AND id = ?"),
		collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	s.changed(collection)
	return nil
}

func (s *SQLStore) Subscribe(ctx context.Context, q Query, onChange func([]Document)) (Unsubscribe, error) {
	if q.Collection == "" {
		return nil, errors.New("subscribe: query has no collection")
	}
	return s.hub.add(ctx, q, s.List, onChange)
}

// changed wakes local subscriptions and tells other processes.
func (s *SQLStore) changed(collection string) {
	s.hub.notify(collection)
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(s.ctx, collection); err != nil {
		s.logger.Warn("publish change", zap.String("collection", collection), zap.Error(err))
	}
}
