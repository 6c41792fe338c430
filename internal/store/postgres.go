package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/MrSnakeDoc/urlguard/internal/domain"
	"github.com/MrSnakeDoc/urlguard/internal/logger"
)

// Postgres stores each list in its own table behind a pgx pool.
type Postgres struct {
	Pool *pgxpool.Pool
}

// OpenPostgres connects and pings. maxConns <= 0 keeps the pgx default.
func OpenPostgres(ctx context.Context, url string, maxConns int32) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{Pool: pool}, nil
}

func (p *Postgres) Migrate(ctx context.Context, log logger.Logger) error {
	db := stdlib.OpenDBFromPool(p.Pool)
	defer db.Close()

	prov, err := newProvider(goose.DialectPostgres, "postgres", db)
	if err != nil {
		return err
	}
	return migrateUp(ctx, prov, log)
}

func (p *Postgres) MigrationStatus(ctx context.Context) ([]MigrationStatus, error) {
	db := stdlib.OpenDBFromPool(p.Pool)
	defer db.Close()

	prov, err := newProvider(goose.DialectPostgres, "postgres", db)
	if err != nil {
		return nil, err
	}
	return migrationStatus(ctx, prov)
}

func (p *Postgres) Get(ctx context.Context, url string) (*domain.ReputationRecord, error) {
	for _, l := range domain.Lists {
		row := p.Pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE url = $1`, recordColumns, l), url)
		rec, err := scanPostgres(row, l)
		switch {
		case err == nil:
			return rec, nil
		case errors.Is(err, pgx.ErrNoRows):
			continue
		default:
			return nil, fmt.Errorf("get %s from %s: %w", url, l, err)
		}
	}
	return nil, ErrNotFound
}

func (p *Postgres) Touch(ctx context.Context, url string, now time.Time) (*domain.ReputationRecord, error) {
	for _, l := range domain.Lists {
		row := p.Pool.QueryRow(ctx,
			fmt.Sprintf(`UPDATE %s SET hit_count = hit_count + 1, last_seen = $1 WHERE url = $2 RETURNING %s`, l, recordColumns),
			now, url)
		rec, err := scanPostgres(row, l)
		switch {
		case err == nil:
			return rec, nil
		case errors.Is(err, pgx.ErrNoRows):
			continue
		default:
			return nil, fmt.Errorf("touch %s in %s: %w", url, l, err)
		}
	}
	return nil, ErrNotFound
}

func (p *Postgres) Put(ctx context.Context, rec *domain.ReputationRecord) error {
	if err := checkRecord(rec); err != nil {
		return err
	}
	rec = stamped(rec)

	return pgx.BeginFunc(ctx, p.Pool, func(tx pgx.Tx) error {
		if err := lockURL(ctx, tx, rec.URL); err != nil {
			return err
		}
		hits, created := rec.HitCount, rec.CreatedAt

		var prevHits int64
		var prevCreated time.Time
		err := tx.QueryRow(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE url = $1 RETURNING hit_count, created_at`, rec.List.Opposite()),
			rec.URL).Scan(&prevHits, &prevCreated)
		switch {
		case err == nil:
			hits, created = prevHits, prevCreated
		case errors.Is(err, pgx.ErrNoRows):
		default:
			return fmt.Errorf("remove %s from %s: %w", rec.URL, rec.List.Opposite(), err)
		}

		_, err = tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (url) DO UPDATE SET
				domain      = EXCLUDED.domain,
				verdict     = EXCLUDED.verdict,
				threat_type = EXCLUDED.threat_type,
				confidence  = EXCLUDED.confidence,
				source      = EXCLUDED.source,
				details     = EXCLUDED.details,
				last_seen   = EXCLUDED.last_seen,
				updated_at  = EXCLUDED.updated_at`, rec.List, recordColumns),
			rec.URL, rec.Domain, string(rec.Verdict), rec.ThreatType, rec.Confidence,
			rec.Source, rec.Details, hits, rec.LastSeen, created, rec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert %s into %s: %w", rec.URL, rec.List, err)
		}
		return nil
	})
}

func (p *Postgres) Delete(ctx context.Context, url string) (bool, error) {
	var removed int64
	err := pgx.BeginFunc(ctx, p.Pool, func(tx pgx.Tx) error {
		if err := lockURL(ctx, tx, url); err != nil {
			return err
		}
		for _, l := range domain.Lists {
			tag, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE url = $1`, l), url)
			if err != nil {
				return fmt.Errorf("delete %s from %s: %w", url, l, err)
			}
			removed += tag.RowsAffected()
		}
		return nil
	})
	return removed > 0, err
}

func (p *Postgres) List(ctx context.Context, list domain.List, limit int) ([]*domain.ReputationRecord, error) {
	if err := checkList(list); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY updated_at ASC, url ASC`, recordColumns, list)
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := p.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", list, err)
	}
	defer rows.Close()

	var out []*domain.ReputationRecord
	for rows.Next() {
		rec, err := scanPostgres(rows, list)
		if err != nil {
			return nil, fmt.Errorf("scan %s row: %w", list, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) Clear(ctx context.Context, list domain.List) (int64, error) {
	if err := checkList(list); err != nil {
		return 0, err
	}
	tag, err := p.Pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, list))
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", list, err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) Counts(ctx context.Context) (map[domain.List]int64, error) {
	out := make(map[domain.List]int64, len(domain.Lists))
	for _, l := range domain.Lists {
		var n int64
		if err := p.Pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, l)).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", l, err)
		}
		out[l] = n
	}
	return out, nil
}

// lockURL serialises writers of one URL until tx ends. The opposite-list
// DELETE does not see another writer's uncommitted INSERT.
func lockURL(ctx context.Context, tx pgx.Tx, url string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, url); err != nil {
		return fmt.Errorf("lock %s: %w", url, err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.Pool.Ping(ctx) }

func (p *Postgres) Close() error {
	p.Pool.Close()
	return nil
}

func (p *Postgres) Backend() string { return BackendPostgres }

func scanPostgres(row pgx.Row, list domain.List) (*domain.ReputationRecord, error) {
	var rec domain.ReputationRecord
	var verdict string
	var confidence int16
	if err := row.Scan(&rec.URL, &rec.Domain, &verdict, &rec.ThreatType, &confidence,
		&rec.Source, &rec.Details, &rec.HitCount, &rec.LastSeen, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.List = list
	rec.Verdict = domain.Verdict(verdict)
	rec.Confidence = int(confidence)
	rec.LastSeen = rec.LastSeen.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}
