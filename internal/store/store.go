package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/urlguard/internal/config"
	"github.com/MrSnakeDoc/urlguard/internal/domain"
	"github.com/MrSnakeDoc/urlguard/internal/logger"
)

// ErrNotFound is returned when a URL is in neither list.
var ErrNotFound = errors.New("reputation record not found")

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Store persists reputation records in two lists.
//
// Implementations guarantee that a URL is held by at most one list: Put
// removes it from the opposite list and upserts it into the target list in a
// single transaction.
type Store interface {
	// Get returns the record for url from whichever list holds it.
	Get(ctx context.Context, url string) (*domain.ReputationRecord, error)

	// Touch increments hit_count, sets last_seen and returns the updated
	// record. ErrNotFound when the URL is in neither list.
	Touch(ctx context.Context, url string, now time.Time) (*domain.ReputationRecord, error)

	// Put moves rec into rec.List. CreatedAt and HitCount of an existing record
	// are kept, everything else is overwritten.
	Put(ctx context.Context, rec *domain.ReputationRecord) error

	// Delete removes url from both lists and reports whether anything was removed.
	Delete(ctx context.Context, url string) (bool, error)

	// List returns up to limit records of one list, least recently updated
	// first. limit <= 0 means no limit.
	List(ctx context.Context, list domain.List, limit int) ([]*domain.ReputationRecord, error)

	// Clear empties one list and returns the number of removed records.
	Clear(ctx context.Context, list domain.List) (int64, error)

	// Counts returns the size of every list.
	Counts(ctx context.Context) (map[domain.List]int64, error)

	Ping(ctx context.Context) error
	Close() error
	Backend() string
}

// Open builds the store selected by URLGUARD_STORE and, for SQL backends,
// applies pending migrations when AutoMigrate is set.
func Open(ctx context.Context, cfg *config.Config, log logger.Logger) (Store, error) {
	log = log.Named("store")

	switch cfg.StoreBackend {
	case BackendMemory:
		log.Warn("using in-memory reputation store, records are lost on restart")
		return NewMemory(), nil

	case BackendSQLite:
		s, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := s.Migrate(ctx, log); err != nil {
				_ = s.Close()
				return nil, err
			}
		}
		log.Info("sqlite reputation store ready", logger.String("path", cfg.SQLitePath))
		return s, nil

	case BackendPostgres:
		s, err := OpenPostgres(ctx, cfg.DatabaseURL, int32(cfg.StoreMaxConns))
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := s.Migrate(ctx, log); err != nil {
				s.Close()
				return nil, err
			}
		}
		log.Info("postgres reputation store ready", logger.Int("max_conns", cfg.StoreMaxConns))
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func checkList(l domain.List) error {
	if !l.Valid() {
		return fmt.Errorf("unknown list %q", l)
	}
	return nil
}

func checkRecord(rec *domain.ReputationRecord) error {
	switch {
	case rec == nil:
		return errors.New("nil record")
	case rec.URL == "":
		return errors.New("record has empty url")
	}
	return checkList(rec.List)
}

// stamped returns a copy of rec with unset timestamps filled in and the
// verdict aligned with the list.
func stamped(rec *domain.ReputationRecord) *domain.ReputationRecord {
	c := *rec
	c.Verdict = c.List.Verdict()
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = c.UpdatedAt
	}
	if c.LastSeen.IsZero() {
		c.LastSeen = c.UpdatedAt
	}
	return &c
}
