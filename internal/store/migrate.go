package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/MrSnakeDoc/urlguard/internal/logger"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Migrator is implemented by the SQL backends.
type Migrator interface {
	Migrate(ctx context.Context, log logger.Logger) error
	MigrationStatus(ctx context.Context) ([]MigrationStatus, error)
}

// MigrationStatus describes one embedded migration.
type MigrationStatus struct {
	Version   int64     `json:"version"`
	Name      string    `json:"name"`
	Applied   bool      `json:"applied"`
	AppliedAt time.Time `json:"applied_at,omitempty"`
}

func newProvider(dialect goose.Dialect, dir string, db *sql.DB) (*goose.Provider, error) {
	fsys, err := fs.Sub(migrationsFS, path.Join("migrations", dir))
	if err != nil {
		return nil, fmt.Errorf("open %s migrations: %w", dir, err)
	}
	p, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("create migration provider: %w", err)
	}
	return p, nil
}

func migrateUp(ctx context.Context, p *goose.Provider, log logger.Logger) error {
	results, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	if len(results) == 0 {
		log.Debug("schema up to date")
		return nil
	}
	for _, r := range results {
		log.Info("migration applied",
			logger.Int64("version", r.Source.Version),
			logger.String("file", path.Base(r.Source.Path)),
			logger.Duration("took", r.Duration))
	}
	return nil
}

func migrationStatus(ctx context.Context, p *goose.Provider) ([]MigrationStatus, error) {
	statuses, err := p.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("read migration status: %w", err)
	}

	out := make([]MigrationStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, MigrationStatus{
			Version:   s.Source.Version,
			Name:      path.Base(s.Source.Path),
			Applied:   s.State == goose.StateApplied,
			AppliedAt: s.AppliedAt,
		})
	}
	return out, nil
}
