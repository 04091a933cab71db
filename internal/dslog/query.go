package dslog

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Row is one log record.
type Row struct {
	ID   int64
	Gen  string
	Time string
	Key  string
	Val  string
}

// Filter selects rows. Zero values do not filter.
type Filter struct {
	Gen       string
	StartID   *int64
	EndID     *int64
	StartDate string // ISO-8601; without a zone designator it is local time
	EndDate   string
	Key       string
}

const selectSQL = "select id, gen, time, key, val from dslog1"

// timestampLayouts are the accepted ISO-8601 forms, most specific first.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 date or date-time. Values without a zone
// are taken as local time.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// dateClause compares the stored UTC time against a bound in unix seconds.
func dateClause(op string) string {
	return "cast(strftime('%s', time) as integer) " + op + " ?"
}

// build returns the statement text and bind arguments for f, ordered by id.
func (f Filter) build() (string, []any, error) {
	var where []string
	var args []any

	if f.Gen != "" {
		where = append(where, "gen = ?")
		args = append(args, f.Gen)
	}
	if f.StartID != nil {
		where = append(where, "id >= ?")
		args = append(args, *f.StartID)
	}
	if f.EndID != nil {
		where = append(where, "id <= ?")
		args = append(args, *f.EndID)
	}
	for _, d := range []struct{ op, val string }{{">=", f.StartDate}, {"<=", f.EndDate}} {
		if d.val == "" {
			continue
		}
		t, err := ParseTimestamp(d.val)
		if err != nil {
			return "", nil, err
		}
		where = append(where, dateClause(d.op))
		args = append(args, t.Unix())
	}
	if f.Key != "" {
		where = append(where, "key = ?")
		args = append(args, f.Key)
	}

	q := selectSQL
	if len(where) > 0 {
		q += " where " + strings.Join(where, " and ")
	}
	return q + " order by id", args, nil
}

// Scan streams the rows matching f to fn in ascending id order. An error
// from fn stops the scan and is returned as is.
func (l *Log) Scan(ctx context.Context, f Filter, fn func(Row) error) error {
	db, err := l.handle()
	if err != nil {
		return err
	}
	q, args, err := f.build()
	if err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", l.path, err)
	}
	defer rows.Close()

	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Gen, &r.Time, &r.Key, &r.Val); err != nil {
			return fmt.Errorf("failed to read row: %w", err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to step query: %w", err)
	}
	return nil
}

// Count returns the number of rows in the log.
func (l *Log) Count(ctx context.Context) (int64, error) {
	db, err := l.handle()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.QueryRowContext(ctx, "select count(*) from dslog1").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}
