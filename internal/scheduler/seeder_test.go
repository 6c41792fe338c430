package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrSnakeDoc/urlguard/internal/domain"
	"github.com/MrSnakeDoc/urlguard/internal/logger"
	"github.com/MrSnakeDoc/urlguard/internal/reputation"
	"github.com/MrSnakeDoc/urlguard/internal/store"
)

func TestSeederReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeds.yaml")
	content := `
whitelist:
  - url: https://intranet.example.com
blacklist:
  - url: http://paypa1-login.example/verify
    threat_type: phishing
  - url: ftp://files.example.com/
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to create seed file: %v", err)
	}

	ctx := context.Background()
	cache := reputation.New(store.NewMemory(), nil, logger.NewNop())

	// A stale verdict for a seeded URL must be replaced, not duplicated.
	if err := cache.Write(ctx, "https://intranet.example.com", domain.VerdictUnsafe, domain.Assessment{Source: "ml"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	s := NewSeeder(path, cache, logger.New("error", false), make(chan struct{}))
	sum, err := s.Reload(ctx)
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if sum.Written != 2 || sum.Failed != 0 || len(sum.Skipped) != 1 {
		t.Errorf("SeedSummary = %+v, want 2 written, 1 skipped", sum)
	}

	stats, err := cache.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Whitelist != 1 || stats.Blacklist != 1 {
		t.Errorf("Stats = %+v, want 1 whitelist and 1 blacklist", stats)
	}

	rec, err := cache.Get(ctx, "https://intranet.example.com/")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.List != domain.Whitelist || rec.Source != "seed" {
		t.Errorf("seeded record = %+v", rec)
	}
}

func TestSeederStartFailsOnMissingFile(t *testing.T) {
	cache := reputation.New(store.NewMemory(), nil, logger.NewNop())
	s := NewSeeder("/nonexistent/seeds.yaml", cache, logger.New("error", false), make(chan struct{}))

	if err := s.Start(context.Background()); err == nil {
		s.Stop()
		t.Error("Start() with missing seed file should return error")
	}
}
