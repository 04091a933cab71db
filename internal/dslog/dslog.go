// Package dslog is the append-only change log kept for a dictionary.
//
// Each dictionary with log keys owns one SQLite database holding the dslog1
// table. Rows are only ever inserted; readers filter by generation, id range,
// time range and key.
package dslog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/muurk/dictserver/internal/logging"
)

// Insert retry policy on SQLITE_BUSY.
const (
	insertAttempts = 3
	insertBackoff  = 2 * time.Millisecond
)

var schema = []string{
	`PRAGMA journal_mode=WAL`,
	`create table if not exists dslog1(id INTEGER PRIMARY KEY AUTOINCREMENT, gen TEXT NOT NULL, time TEXT NOT NULL, key TEXT NOT NULL, val TEXT NOT NULL)`,
	`create index if not exists genidx1 on dslog1(gen)`,
	`create index if not exists tmidx1 on dslog1(time)`,
	`create index if not exists keyidx1 on dslog1(key)`,
	`create index if not exists validx1 on dslog1(val)`,
}

const insertSQL = `insert into dslog1 (gen, time, key, val) VALUES (?1, strftime('%Y-%m-%dT%H:%M:%fZ','now'), ?2, ?3)`

// ErrClosed is returned by operations on a closed log.
var ErrClosed = errors.New("dslog: closed")

// Log is an open dictionary log database.
type Log struct {
	mu     sync.Mutex
	path   string
	db     *sql.DB
	insert *sql.Stmt
}

// Path returns the database file name for a dictionary config file:
// <dir>/<basename without .dpc>.db
func Path(dir, configFile string) string {
	base := strings.TrimSuffix(filepath.Base(configFile), ".dpc")
	return filepath.Join(dir, base+".db")
}

// Open opens or creates the log database at path.
func Open(ctx context.Context, path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize database %s: %w", path, err)
		}
	}

	ins, err := db.PrepareContext(ctx, insertSQL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare insert for %s: %w", path, err)
	}

	logging.Debug("Opened dictionary log", zap.String("path", path))
	return &Log{path: path, db: db, insert: ins}, nil
}

// File returns the database file path.
func (l *Log) File() string {
	return l.path
}

// Insert appends one row. Busy databases are retried a few times before
// giving up; other errors fail immediately.
func (l *Log) Insert(ctx context.Context, gen, key, val string) error {
	l.mu.Lock()
	ins := l.insert
	l.mu.Unlock()
	if ins == nil {
		return ErrClosed
	}

	err := retryBusy(ctx, insertAttempts, insertBackoff, isBusy, func() error {
		_, err := ins.ExecContext(ctx, gen, key, val)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to log %s=%s: %w", key, val, err)
	}
	return nil
}

// Close finalizes the insert statement and closes the database. Closing an
// already closed log is a no-op.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return nil
	}
	var errs []error
	if l.insert != nil {
		errs = append(errs, l.insert.Close())
		l.insert = nil
	}
	errs = append(errs, l.db.Close())
	l.db = nil
	return errors.Join(errs...)
}

func (l *Log) handle() (*sql.DB, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil, ErrClosed
	}
	return l.db, nil
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_BUSY
	}
	return false
}

// retryBusy runs op up to attempts times while busy(err) holds, sleeping
// backoff between attempts.
func retryBusy(ctx context.Context, attempts int, backoff time.Duration, busy func(error) bool, op func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = op()
		if err == nil || !busy(err) {
			return err
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return err
}
