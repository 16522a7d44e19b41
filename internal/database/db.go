// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package database provides the embedded SQLite layer backing every
// persisted engine record: Job, ClientTask, EpisodeAvailability,
// StrmUrlMapping, EpisodeNumberMapping and SpecialAlias.
//
// WRITE CONCURRENCY MODEL:
//
// Single writer connection with read-only reader pool architecture:
//   - writerConn: Single connection (SetMaxOpenConns=1) for all write operations
//   - readerPool: Read-only connection pool for concurrent reads
//   - ExecContext: Routes writes to writerConn, reads to readerPool
//   - QueryContext: Routes writes to writerConn, reads to readerPool
//   - QueryRowContext: Routes writes to writerConn, reads to readerPool
//   - BeginTx (write): Uses writerConn, fully serialized by writerMu mutex
//   - BeginTx (read-only): Uses readerPool (concurrent)
//   - WAL mode allows concurrent readers during writes
//
// The single writer connection + writerMu mutex eliminates both SQLITE_BUSY
// errors and "cannot start a transaction within a transaction" errors by
// fully serializing all write transactions. Only one write transaction can
// be active at a time.
//
// MIGRATIONS:
//
// Forward-only .sql files under migrations/ are embedded and applied, in
// filename order, inside a single transaction on first connect. Applied
// filenames are recorded in a migrations table so restarts are idempotent.
// There is no down-migration support; a bad migration is fixed by shipping
// a new forward migration, never by editing a deployed one.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB is the handle every store in internal/models is built on.
type DB struct {
	writerConn  *sql.DB                            // Single connection for all writes (SetMaxOpenConns=1)
	readerPool  *sql.DB                            // Read-only connection pool for concurrent reads
	writerStmts *ttlcache.Cache[string, *sql.Stmt] // Prepared statements for writer connection
	readerStmts *ttlcache.Cache[string, *sql.Stmt] // Prepared statements for reader pool
	stmtMu      sync.RWMutex                       // Protects stmt caches during Close and cache ops

	// Even though writerConn has SetMaxOpenConns=1, BeginTx doesn't queue
	// properly and fails immediately with "cannot start a transaction
	// within a transaction". This mutex ensures write transactions are
	// properly serialized for their entire lifetime.
	writerMu sync.Mutex

	closing atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// Tx wraps sql.Tx to provide prepared statement caching for transaction queries.
type Tx struct {
	tx         *sql.Tx
	db         *DB
	ctx        context.Context
	isWriteTx  bool
	unlockFn   func()
	unlockOnce sync.Once

	txStmts map[string]struct{}
	txMu    sync.Mutex
}

func (t *Tx) markQueryForCaching(query string) {
	t.txMu.Lock()
	if t.txStmts == nil {
		t.txStmts = make(map[string]struct{})
	}
	t.txStmts[query] = struct{}{}
	t.txMu.Unlock()
}

type txExecResult struct{ tx *Tx }

func (e txExecResult) execStmt(stmt *sql.Stmt, ctx context.Context, args []any) (sql.Result, error) {
	return stmt.ExecContext(ctx, args...)
}

func (e txExecResult) execDirect(_ *sql.DB, ctx context.Context, query string, args []any) (sql.Result, error) {
	e.tx.markQueryForCaching(query)
	return e.tx.tx.ExecContext(ctx, query, args...)
}

func (txExecResult) getErr(sql.Result) error { return nil }
func (e txExecResult) getTx() *Tx            { return e.tx }

type txQueryRows struct{ tx *Tx }

func (q txQueryRows) execStmt(stmt *sql.Stmt, ctx context.Context, args []any) (*sql.Rows, error) {
	return stmt.QueryContext(ctx, args...)
}

func (q txQueryRows) execDirect(_ *sql.DB, ctx context.Context, query string, args []any) (*sql.Rows, error) {
	q.tx.markQueryForCaching(query)
	return q.tx.tx.QueryContext(ctx, query, args...)
}

func (txQueryRows) getErr(r *sql.Rows) error {
	if r == nil {
		return nil
	}
	return r.Err()
}
func (q txQueryRows) getTx() *Tx { return q.tx }

// ExecContext executes a query within the transaction, using the
// connection-specific statement cache when available.
func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return execWithRetry(t.db, ctx, query, args, txExecResult{tx: t})
}

// QueryContext executes a query within the transaction, using the
// connection-specific statement cache when available.
func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return execWithRetry(t.db, ctx, query, args, txQueryRows{tx: t})
}

// QueryRowContext executes a query within the transaction, using the
// connection-specific statement cache when available.
func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	stmt, err := t.db.getStmt(ctx, query, t)
	if err != nil {
		t.markQueryForCaching(query)
		return t.tx.QueryRowContext(ctx, query, args...)
	}

	row := stmt.QueryRowContext(ctx, args...)
	if row.Err() == nil || !strings.Contains(row.Err().Error(), stmtClosedErrMsg) {
		return row
	}

	t.db.deleteStmt(query, t.isWriteTx)

	stmt, err = t.db.getStmt(ctx, query, t)
	if err != nil {
		t.markQueryForCaching(query)
		return t.tx.QueryRowContext(ctx, query, args...)
	}
	return stmt.QueryRowContext(ctx, args...)
}

// Commit commits the transaction and releases the writer mutex (write
// transactions only), promoting any transaction-prepared statements to the
// shared cache. On failure the transaction stays active; the caller must
// call Rollback to release the mutex.
func (t *Tx) Commit() error {
	err := t.tx.Commit()
	if err == nil {
		t.promoteStatementsToCache()
		if t.unlockFn != nil {
			t.unlockOnce.Do(t.unlockFn)
		}
	}
	return err
}

// Rollback rolls back the transaction and always releases the writer mutex
// (write transactions only), since the transaction is done either way.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if t.unlockFn != nil {
		t.unlockOnce.Do(t.unlockFn)
	}
	return err
}

func (t *Tx) promoteStatementsToCache() {
	t.txMu.Lock()
	queries := t.txStmts
	t.txStmts = nil
	t.txMu.Unlock()

	if len(queries) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for query := range queries {
		if t.db.closing.Load() {
			return
		}

		t.db.stmtMu.RLock()

		var stmts *ttlcache.Cache[string, *sql.Stmt]
		var conn *sql.DB
		if t.isWriteTx {
			stmts = t.db.writerStmts
			conn = t.db.writerConn
		} else {
			stmts = t.db.readerStmts
			conn = t.db.readerPool
		}

		if stmts == nil || conn == nil {
			t.db.stmtMu.RUnlock()
			return
		}

		if _, found := stmts.Get(query); found {
			t.db.stmtMu.RUnlock()
			continue
		}

		stmt, err := conn.PrepareContext(ctx, query)
		if err != nil {
			t.db.stmtMu.RUnlock()
			log.Debug().Err(err).Str("query", query).Msg("failed to promote transaction statement to cache")
			continue
		}

		stmts.Set(query, stmt, ttlcache.DefaultTTL)
		t.db.stmtMu.RUnlock()
	}
}

const (
	defaultBusyTimeout       = 5 * time.Second
	defaultBusyTimeoutMillis = int(defaultBusyTimeout / time.Millisecond)
	connectionSetupTimeout   = 5 * time.Second
)

var driverInit sync.Once

type pragmaExecFn func(ctx context.Context, stmt string) error

func registerConnectionHook() {
	driverInit.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			ctx, cancel := context.WithTimeout(context.Background(), connectionSetupTimeout)
			defer cancel()

			readOnly := isReadOnlyDSN(dsn)

			return applyConnectionPragmas(ctx, func(ctx context.Context, stmt string) error {
				_, err := conn.ExecContext(ctx, stmt, nil)
				if err != nil {
					return fmt.Errorf("connection hook exec %q: %w", stmt, err)
				}
				return nil
			}, readOnly)
		})
	})
}

func isReadOnlyDSN(dsn string) bool {
	queryStart := strings.IndexByte(dsn, '?')
	if queryStart == -1 {
		return false
	}
	query := dsn[queryStart+1:]
	for _, segment := range strings.FieldsFunc(query, func(r rune) bool {
		return r == '&' || r == ';'
	}) {
		if segment == "mode=ro" {
			return true
		}
	}
	return false
}

type pragmaDirective struct {
	stmt          string
	allowReadOnly bool
}

var connectionPragmas = []pragmaDirective{
	{stmt: "PRAGMA journal_mode = WAL", allowReadOnly: false},
	{stmt: "PRAGMA synchronous = NORMAL", allowReadOnly: false},
	{stmt: "PRAGMA mmap_size = 268435456", allowReadOnly: true},
	{stmt: "PRAGMA page_size = 4096", allowReadOnly: false},
	{stmt: "PRAGMA cache_size = -64000", allowReadOnly: true},
	{stmt: "PRAGMA foreign_keys = ON", allowReadOnly: true},
	{stmt: fmt.Sprintf("PRAGMA busy_timeout = %d", defaultBusyTimeoutMillis), allowReadOnly: true},
	{stmt: "PRAGMA analysis_limit = 400", allowReadOnly: true},
}

func applyConnectionPragmas(ctx context.Context, exec pragmaExecFn, readOnly bool) error {
	for _, pragma := range connectionPragmas {
		if readOnly && !pragma.allowReadOnly {
			continue
		}
		if err := exec(ctx, pragma.stmt); err != nil {
			return fmt.Errorf("apply connection pragma %q: %w", pragma.stmt, err)
		}
	}
	return nil
}

// New opens (creating if absent) the SQLite database at databasePath,
// establishes the writer/reader connection split, and runs any pending
// migrations.
func New(databasePath string) (*DB, error) {
	log.Info().Msgf("initializing database at: %s", databasePath)

	dir := filepath.Dir(databasePath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}

	registerConnectionHook()

	writerConn, err := sql.Open("sqlite", databasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open writer connection at %s: %w", databasePath, err)
	}

	writerConn.SetMaxOpenConns(1)
	writerConn.SetMaxIdleConns(1)
	writerConn.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), connectionSetupTimeout)
	defer cancel()
	if err := applyConnectionPragmas(ctx, func(ctx context.Context, stmt string) error {
		_, execErr := writerConn.ExecContext(ctx, stmt)
		return execErr
	}, false); err != nil {
		writerConn.Close()
		return nil, err
	}

	if _, err := writerConn.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		writerConn.Close()
		return nil, fmt.Errorf("apply wal checkpoint: %w", err)
	}

	readerDSN := fmt.Sprintf("file:%s?mode=ro", databasePath)
	readerPool, err := sql.Open("sqlite", readerDSN)
	if err != nil {
		writerConn.Close()
		return nil, fmt.Errorf("failed to open reader pool at %s: %w", databasePath, err)
	}

	readerPool.SetMaxOpenConns(0)
	readerPool.SetMaxIdleConns(5)
	readerPool.SetConnMaxLifetime(0)

	ctx2, cancel2 := context.WithTimeout(context.Background(), connectionSetupTimeout)
	defer cancel2()
	if err := applyConnectionPragmas(ctx2, func(ctx context.Context, stmt string) error {
		_, execErr := readerPool.ExecContext(ctx, stmt)
		return execErr
	}, true); err != nil {
		writerConn.Close()
		readerPool.Close()
		return nil, err
	}

	writerStmtOpts := ttlcache.Options[string, *sql.Stmt]{}.SetDefaultTTL(5 * time.Minute).
		SetDeallocationFunc(func(k string, s *sql.Stmt, _ ttlcache.DeallocationReason) {
			if s != nil {
				_ = s.Close()
			}
		})
	readerStmtOpts := ttlcache.Options[string, *sql.Stmt]{}.SetDefaultTTL(5 * time.Minute).
		SetDeallocationFunc(func(k string, s *sql.Stmt, _ ttlcache.DeallocationReason) {
			if s != nil {
				_ = s.Close()
			}
		})

	db := &DB{
		writerConn:  writerConn,
		readerPool:  readerPool,
		writerStmts: ttlcache.New(writerStmtOpts),
		readerStmts: ttlcache.New(readerStmtOpts),
	}

	if err := db.migrate(); err != nil {
		writerConn.Close()
		readerPool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if _, err := os.Stat(databasePath); err != nil {
		writerConn.Close()
		readerPool.Close()
		return nil, fmt.Errorf("database file was not created at %s: %w", databasePath, err)
	}
	log.Info().Msgf("database initialized successfully at: %s", databasePath)

	return db, nil
}

// getStmt returns a prepared statement for query, preparing and caching it
// if necessary. Statements are cached with TTL and automatically closed on
// eviction. Safe for concurrent use. Uses writerStmts for write operations
// and readerStmts for read operations; when tx is non-nil the transaction's
// type picks the cache instead of the query text.
func (db *DB) getStmt(ctx context.Context, query string, tx *Tx) (*sql.Stmt, error) {
	if db.closing.Load() {
		return nil, sql.ErrConnDone
	}

	db.stmtMu.RLock()
	defer db.stmtMu.RUnlock()

	var stmts *ttlcache.Cache[string, *sql.Stmt]
	var conn *sql.DB

	if tx != nil {
		if tx.isWriteTx {
			stmts = db.writerStmts
			conn = db.writerConn
		} else {
			stmts = db.readerStmts
			conn = db.readerPool
		}
	} else {
		if isWriteQuery(query) {
			stmts = db.writerStmts
			conn = db.writerConn
		} else {
			stmts = db.readerStmts
			conn = db.readerPool
		}
	}

	if stmts == nil || conn == nil {
		return nil, sql.ErrConnDone
	}
	if s, found := stmts.Get(query); found && s != nil {
		if tx != nil {
			return tx.tx.StmtContext(ctx, s), nil
		}
		return s, nil
	} else if tx != nil && tx.isWriteTx {
		return nil, fmt.Errorf("statement not cached")
	}

	s, err := conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}

	stmts.Set(query, s, ttlcache.DefaultTTL)

	if tx != nil {
		return tx.tx.StmtContext(ctx, s), nil
	}

	return s, nil
}

func (db *DB) deleteStmt(query string, isWrite bool) {
	db.stmtMu.RLock()
	defer db.stmtMu.RUnlock()

	var stmts *ttlcache.Cache[string, *sql.Stmt]
	if isWrite {
		stmts = db.writerStmts
	} else {
		stmts = db.readerStmts
	}
	if stmts == nil {
		return
	}
	stmts.Delete(query)
}

// isWriteQuery uses a fast byte-level check of the first keyword to avoid
// allocating beyond the ToUpper call.
func isWriteQuery(query string) bool {
	q := strings.TrimLeftFunc(query, unicode.IsSpace)
	if q == "" {
		return false
	}

	upper := strings.ToUpper(q)
	return strings.HasPrefix(upper, "INSERT") ||
		strings.HasPrefix(upper, "UPDATE") ||
		strings.HasPrefix(upper, "UPSERT") ||
		strings.HasPrefix(upper, "REPLACE") ||
		strings.HasPrefix(upper, "DELETE") ||
		strings.HasPrefix(upper, "COMMIT") ||
		strings.HasPrefix(upper, "ROLLBACK") ||
		strings.HasPrefix(upper, "BEGIN") ||
		strings.HasPrefix(upper, "CREATE") ||
		strings.HasPrefix(upper, "ALTER") ||
		strings.HasPrefix(upper, "DROP") ||
		strings.HasPrefix(upper, "VACUUM")
}

const sqliteNestedTxErrSubstring = "cannot start a transaction within a transaction"

func isSQLiteNestedTxErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), sqliteNestedTxErrSubstring)
}

const stmtClosedErrMsg = "statement is closed"

type stmtExecutor[T any] interface {
	execStmt(*sql.Stmt, context.Context, []any) (T, error)
	execDirect(*sql.DB, context.Context, string, []any) (T, error)
	getErr(T) error
	getTx() *Tx
}

type execResult struct{}

func (execResult) execStmt(stmt *sql.Stmt, ctx context.Context, args []any) (sql.Result, error) {
	return stmt.ExecContext(ctx, args...)
}

func (execResult) execDirect(conn *sql.DB, ctx context.Context, query string, args []any) (sql.Result, error) {
	return conn.ExecContext(ctx, query, args...)
}

func (execResult) getErr(sql.Result) error { return nil }
func (execResult) getTx() *Tx              { return nil }

type queryRows struct{}

func (queryRows) execStmt(stmt *sql.Stmt, ctx context.Context, args []any) (*sql.Rows, error) {
	return stmt.QueryContext(ctx, args...)
}

func (queryRows) execDirect(conn *sql.DB, ctx context.Context, query string, args []any) (*sql.Rows, error) {
	return conn.QueryContext(ctx, query, args...)
}

func (queryRows) getErr(r *sql.Rows) error {
	if r == nil {
		return nil
	}
	return r.Err()
}
func (queryRows) getTx() *Tx { return nil }

func execWithRetry[T any, E stmtExecutor[T]](db *DB, ctx context.Context, query string, args []any, executor E) (T, error) {
	stmt, err := db.getStmt(ctx, query, executor.getTx())
	if err != nil {
		if isWriteQuery(query) {
			return executor.execDirect(db.writerConn, ctx, query, args)
		}
		return executor.execDirect(db.readerPool, ctx, query, args)
	}

	result, execErr := executor.execStmt(stmt, ctx, args)
	resultErr := executor.getErr(result)
	if (execErr == nil || !strings.Contains(execErr.Error(), stmtClosedErrMsg)) &&
		(resultErr == nil || !strings.Contains(resultErr.Error(), stmtClosedErrMsg)) {
		return result, execErr
	}

	if isWriteQuery(query) {
		db.deleteStmt(query, true)
	} else {
		db.deleteStmt(query, false)
	}

	stmt, err = db.getStmt(ctx, query, executor.getTx())
	if err != nil {
		if isWriteQuery(query) {
			return executor.execDirect(db.writerConn, ctx, query, args)
		}
		return executor.execDirect(db.readerPool, ctx, query, args)
	}

	result, execErr = executor.execStmt(stmt, ctx, args)
	return result, execErr
}

// ExecContext routes write queries to the single writer connection and read
// queries to the reader pool, using prepared statements when possible. Do
// not use this for queries with a RETURNING clause; use QueryRowContext or
// QueryContext instead.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if !isWriteQuery(query) {
		return execWithRetry(db, ctx, query, args, execResult{})
	}

	db.writerMu.Lock()
	defer db.writerMu.Unlock()

	return execWithRetry(db, ctx, query, args, execResult{})
}

// QueryContext routes write queries to the single writer connection and
// read queries to the reader pool, using prepared statements when possible.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if !isWriteQuery(query) {
		return execWithRetry(db, ctx, query, args, queryRows{})
	}

	db.writerMu.Lock()
	defer db.writerMu.Unlock()

	return execWithRetry(db, ctx, query, args, queryRows{})
}

// QueryRowContext routes write queries to the single writer connection and
// read queries to the reader pool, using prepared statements when possible.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	if isWriteQuery(query) {
		db.writerMu.Lock()
		row := db.queryRowUnlocked(ctx, query, args...)
		db.writerMu.Unlock()
		return row
	}
	return db.queryRowUnlocked(ctx, query, args...)
}

func (db *DB) queryRowUnlocked(ctx context.Context, query string, args ...any) *sql.Row {
	stmt, err := db.getStmt(ctx, query, nil)
	if err != nil {
		if isWriteQuery(query) {
			return db.writerConn.QueryRowContext(ctx, query, args...)
		}
		return db.readerPool.QueryRowContext(ctx, query, args...)
	}

	row := stmt.QueryRowContext(ctx, args...)
	if row.Err() == nil || !strings.Contains(row.Err().Error(), stmtClosedErrMsg) {
		return row
	}

	if isWriteQuery(query) {
		db.deleteStmt(query, true)
	} else {
		db.deleteStmt(query, false)
	}

	stmt, err = db.getStmt(ctx, query, nil)
	if err != nil {
		if isWriteQuery(query) {
			return db.writerConn.QueryRowContext(ctx, query, args...)
		}
		return db.readerPool.QueryRowContext(ctx, query, args...)
	}
	return stmt.QueryRowContext(ctx, args...)
}

// BeginTx starts a transaction. Read-only transactions (opts.ReadOnly) use
// the reader pool and run fully concurrently with writers under WAL. Write
// transactions use the single writer connection and are serialized for
// their entire lifetime via writerMu, since SQLite's SetMaxOpenConns(1)
// does not queue BeginTx calls - it fails immediately with "cannot start a
// transaction within a transaction" instead of waiting.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	isReadOnly := opts != nil && opts.ReadOnly

	if isReadOnly {
		tx, err := db.readerPool.BeginTx(ctx, opts)
		if err != nil {
			return nil, err
		}
		return &Tx{tx: tx, db: db, ctx: ctx, isWriteTx: false, unlockFn: nil}, nil
	}

	db.writerMu.Lock()

	tx, err := db.writerConn.BeginTx(ctx, opts)
	if err != nil {
		db.writerMu.Unlock()
		if isSQLiteNestedTxErr(err) {
			recordWedgedTransaction()
			log.Error().
				Err(err).
				Str("stack", string(debug.Stack())).
				Msg("sqlite writer connection is wedged in a transaction - a previous transaction failed to rollback properly")
			return nil, fmt.Errorf("database connection wedged: %w", err)
		}
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &Tx{
		tx:        tx,
		db:        db,
		ctx:       ctx,
		isWriteTx: true,
		unlockFn:  db.writerMu.Unlock,
	}, nil
}

// Close runs PRAGMA optimize, closes every cached prepared statement, then
// closes both connections. Safe to call more than once.
func (db *DB) Close() error {
	db.closeOnce.Do(func() {
		db.closing.Store(true)

		ctx, cancel := context.WithTimeout(context.Background(), connectionSetupTimeout)
		defer cancel()
		if _, err := db.writerConn.ExecContext(ctx, "PRAGMA optimize"); err != nil {
			log.Warn().Err(err).Msg("failed to run PRAGMA optimize during close")
		}

		db.stmtMu.Lock()

		closedCaches := make(map[*ttlcache.Cache[string, *sql.Stmt]]bool)

		if db.writerStmts != nil && !closedCaches[db.writerStmts] {
			db.writerStmts.Close()
			closedCaches[db.writerStmts] = true
			db.writerStmts = nil
		}
		if db.readerStmts != nil && !closedCaches[db.readerStmts] {
			db.readerStmts.Close()
			closedCaches[db.readerStmts] = true
			db.readerStmts = nil
		}

		db.stmtMu.Unlock()

		if err := db.writerConn.Close(); err != nil {
			db.closeErr = err
		}
		if err := db.readerPool.Close(); err != nil && db.closeErr == nil {
			db.closeErr = err
		}
	})

	return db.closeErr
}

// Conn exposes the underlying writer *sql.DB for callers (such as tests)
// that need direct access outside the cached-statement helpers.
func (db *DB) Conn() *sql.DB {
	return db.writerConn
}

func (db *DB) migrate() error {
	ctx := context.Background()

	if _, err := db.writerConn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".sql" {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	pendingMigrations, err := db.findPendingMigrations(ctx, files)
	if err != nil {
		return fmt.Errorf("failed to find pending migrations: %w", err)
	}

	if len(pendingMigrations) == 0 {
		log.Debug().Msg("no pending migrations")
		return nil
	}

	if err := db.applyAllMigrations(ctx, pendingMigrations); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

func (db *DB) findPendingMigrations(ctx context.Context, allFiles []string) ([]string, error) {
	var pendingMigrations []string

	for _, filename := range allFiles {
		var count int
		err := db.writerConn.QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations WHERE filename = ?", filename).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("failed to check migration status for %s: %w", filename, err)
		}

		if count == 0 {
			pendingMigrations = append(pendingMigrations, filename)
		}
	}

	return pendingMigrations, nil
}

// applyAllMigrations applies pending migrations, in order, inside a single
// transaction so a partial failure never leaves the schema half-migrated.
func (db *DB) applyAllMigrations(ctx context.Context, migrations []string) error {
	tx, err := db.writerConn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	rollbackActive := func() {
		if tx != nil {
			tx.Rollback()
			tx = nil
		}
	}
	defer rollbackActive()

	for _, filename := range migrations {
		content, err := migrationsFS.ReadFile("migrations/" + filename)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", filename, err)
		}

		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}

		if _, err := tx.ExecContext(ctx, "INSERT INTO migrations (filename) VALUES (?)", filename); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", filename, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	tx = nil

	log.Info().Msgf("applied %d migrations successfully", len(migrations))
	return nil
}
