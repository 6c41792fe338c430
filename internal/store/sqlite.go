package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/MrSnakeDoc/urlguard/internal/domain"
	"github.com/MrSnakeDoc/urlguard/internal/logger"
)

const recordColumns = `url, domain, verdict, threat_type, confidence, source, details, hit_count, last_seen, created_at, updated_at`

// SQLite stores each list in its own table. Timestamps are unix milliseconds.
// A single connection serialises writers.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (or creates) the database at path. ":memory:" is accepted.
func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	return &SQLite{db: db, path: path}, nil
}

func (s *SQLite) Migrate(ctx context.Context, log logger.Logger) error {
	p, err := newProvider(goose.DialectSQLite3, "sqlite", s.db)
	if err != nil {
		return err
	}
	return migrateUp(ctx, p, log)
}

func (s *SQLite) MigrationStatus(ctx context.Context) ([]MigrationStatus, error) {
	p, err := newProvider(goose.DialectSQLite3, "sqlite", s.db)
	if err != nil {
		return nil, err
	}
	return migrationStatus(ctx, p)
}

func (s *SQLite) Get(ctx context.Context, url string) (*domain.ReputationRecord, error) {
	for _, l := range domain.Lists {
		row := s.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT %s FROM %s WHERE url = ?`, recordColumns, l), url)
		rec, err := scanSQLite(row, l)
		switch {
		case err == nil:
			return rec, nil
		case errors.Is(err, sql.ErrNoRows):
			continue
		default:
			return nil, fmt.Errorf("get %s from %s: %w", url, l, err)
		}
	}
	return nil, ErrNotFound
}

func (s *SQLite) Touch(ctx context.Context, url string, now time.Time) (*domain.ReputationRecord, error) {
	for _, l := range domain.Lists {
		row := s.db.QueryRowContext(ctx,
			fmt.Sprintf(`UPDATE %s SET hit_count = hit_count + 1, last_seen = ? WHERE url = ? RETURNING %s`, l, recordColumns),
			now.UnixMilli(), url)
		rec, err := scanSQLite(row, l)
		switch {
		case err == nil:
			return rec, nil
		case errors.Is(err, sql.ErrNoRows):
			continue
		default:
			return nil, fmt.Errorf("touch %s in %s: %w", url, l, err)
		}
	}
	return nil, ErrNotFound
}

func (s *SQLite) Put(ctx context.Context, rec *domain.ReputationRecord) error {
	if err := checkRecord(rec); err != nil {
		return err
	}
	rec = stamped(rec)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		hits, created := rec.HitCount, rec.CreatedAt.UnixMilli()

		var prevHits, prevCreated int64
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE url = ? RETURNING hit_count, created_at`, rec.List.Opposite()),
			rec.URL).Scan(&prevHits, &prevCreated)
		switch {
		case err == nil:
			hits, created = prevHits, prevCreated
		case errors.Is(err, sql.ErrNoRows):
		default:
			return fmt.Errorf("remove %s from %s: %w", rec.URL, rec.List.Opposite(), err)
		}

		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(url) DO UPDATE SET
				domain      = excluded.domain,
				verdict     = excluded.verdict,
				threat_type = excluded.threat_type,
				confidence  = excluded.confidence,
				source      = excluded.source,
				details     = excluded.details,
				last_seen   = excluded.last_seen,
				updated_at  = excluded.updated_at`, rec.List, recordColumns),
			rec.URL, rec.Domain, string(rec.Verdict), rec.ThreatType, rec.Confidence,
			rec.Source, rec.Details, hits,
			rec.LastSeen.UnixMilli(), created, rec.UpdatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("upsert %s into %s: %w", rec.URL, rec.List, err)
		}
		return nil
	})
}

func (s *SQLite) Delete(ctx context.Context, url string) (bool, error) {
	var removed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, l := range domain.Lists {
			res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE url = ?`, l), url)
			if err != nil {
				return fmt.Errorf("delete %s from %s: %w", url, l, err)
			}
			n, _ := res.RowsAffected()
			removed += n
		}
		return nil
	})
	return removed > 0, err
}

func (s *SQLite) List(ctx context.Context, list domain.List, limit int) ([]*domain.ReputationRecord, error) {
	if err := checkList(list); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s ORDER BY updated_at ASC, url ASC LIMIT ?`, recordColumns, list), limit)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", list, err)
	}
	defer rows.Close()

	var out []*domain.ReputationRecord
	for rows.Next() {
		rec, err := scanSQLite(rows, list)
		if err != nil {
			return nil, fmt.Errorf("scan %s row: %w", list, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLite) Clear(ctx context.Context, list domain.List) (int64, error) {
	if err := checkList(list); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, list))
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", list, err)
	}
	return res.RowsAffected()
}

func (s *SQLite) Counts(ctx context.Context) (map[domain.List]int64, error) {
	out := make(map[domain.List]int64, len(domain.Lists))
	for _, l := range domain.Lists {
		var n int64
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, l)).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", l, err)
		}
		out[l] = n
	}
	return out, nil
}

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLite) Close() error                   { return s.db.Close() }
func (s *SQLite) Backend() string                { return BackendSQLite }

// withTx runs fn in a transaction, rolling back on error or panic.
func (s *SQLite) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed (original error: %w, rollback error: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row rowScanner, list domain.List) (*domain.ReputationRecord, error) {
	var rec domain.ReputationRecord
	var verdict string
	var lastSeen, created, updated int64
	if err := row.Scan(&rec.URL, &rec.Domain, &verdict, &rec.ThreatType, &rec.Confidence,
		&rec.Source, &rec.Details, &rec.HitCount, &lastSeen, &created, &updated); err != nil {
		return nil, err
	}
	rec.List = list
	rec.Verdict = domain.Verdict(verdict)
	rec.LastSeen = time.UnixMilli(lastSeen).UTC()
	rec.CreatedAt = time.UnixMilli(created).UTC()
	rec.UpdatedAt = time.UnixMilli(updated).UTC()
	return &rec, nil
}
