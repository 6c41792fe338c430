package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/urlguard/internal/domain"
	"github.com/MrSnakeDoc/urlguard/internal/logger"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()

	s, err := OpenSQLite(filepath.Join(t.TempDir(), "urlguard.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background(), logger.NewNop()))
	t.Cleanup(func() { _ = s.Close() })

	return map[string]Store{
		BackendMemory: NewMemory(),
		BackendSQLite: s,
	}
}

func record(url string, list domain.List, at time.Time) *domain.ReputationRecord {
	return &domain.ReputationRecord{
		URL:        url,
		Domain:     "example.com",
		List:       list,
		Verdict:    list.Verdict(),
		Confidence: 80,
		Source:     "test",
		LastSeen:   at,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

func TestStoreGetMissing(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "https://nope.example/")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = s.Touch(context.Background(), "https://nope.example/", time.Now())
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStorePutMovesBetweenLists(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	const url = "https://example.com/login"

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, record(url, domain.Blacklist, t0)))
			_, err := s.Touch(ctx, url, t0.Add(time.Minute))
			require.NoError(t, err)

			moved := record(url, domain.Whitelist, t0.Add(time.Hour))
			moved.Source = "virustotal"
			require.NoError(t, s.Put(ctx, moved))

			got, err := s.Get(ctx, url)
			require.NoError(t, err)
			assert.Equal(t, domain.Whitelist, got.List)
			assert.Equal(t, domain.VerdictSafe, got.Verdict)
			assert.Equal(t, "virustotal", got.Source)
			assert.Equal(t, int64(1), got.HitCount, "hit count survives a move")
			assert.True(t, got.CreatedAt.Equal(t0), "created_at survives a move")

			black, err := s.List(ctx, domain.Blacklist, 0)
			require.NoError(t, err)
			assert.Empty(t, black)

			counts, err := s.Counts(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), counts[domain.Whitelist])
			assert.Equal(t, int64(0), counts[domain.Blacklist])
		})
	}
}

func TestStorePutOverwritesAssessment(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	const url = "https://bad.example/"

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			first := record(url, domain.Blacklist, t0)
			first.ThreatType = "phishing"
			require.NoError(t, s.Put(ctx, first))

			second := record(url, domain.Blacklist, t0.Add(time.Hour))
			second.ThreatType = "malware"
			second.Confidence = 95
			require.NoError(t, s.Put(ctx, second))

			got, err := s.Get(ctx, url)
			require.NoError(t, err)
			assert.Equal(t, "malware", got.ThreatType)
			assert.Equal(t, 95, got.Confidence)
			assert.True(t, got.CreatedAt.Equal(t0))
			assert.True(t, got.UpdatedAt.Equal(t0.Add(time.Hour)))
		})
	}
}

func TestStoreTouch(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	const url = "https://example.com/"

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, record(url, domain.Whitelist, t0)))

			for i := 1; i <= 3; i++ {
				got, err := s.Touch(ctx, url, t0.Add(time.Duration(i)*time.Minute))
				require.NoError(t, err)
				assert.Equal(t, int64(i), got.HitCount)
			}

			got, err := s.Get(ctx, url)
			require.NoError(t, err)
			assert.True(t, got.LastSeen.Equal(t0.Add(3*time.Minute)))
		})
	}
}

func TestStoreListOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, record("https://c.example/", domain.Whitelist, t0.Add(2*time.Hour))))
			require.NoError(t, s.Put(ctx, record("https://a.example/", domain.Whitelist, t0)))
			require.NoError(t, s.Put(ctx, record("https://b.example/", domain.Whitelist, t0.Add(time.Hour))))

			all, err := s.List(ctx, domain.Whitelist, 0)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "https://a.example/", all[0].URL)
			assert.Equal(t, "https://c.example/", all[2].URL)

			two, err := s.List(ctx, domain.Whitelist, 2)
			require.NoError(t, err)
			assert.Len(t, two, 2)

			_, err = s.List(ctx, domain.List("greylist"), 0)
			assert.Error(t, err)
		})
	}
}

func TestStoreDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	t0 := time.Now().UTC()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, record("https://a.example/", domain.Whitelist, t0)))
			require.NoError(t, s.Put(ctx, record("https://b.example/", domain.Blacklist, t0)))
			require.NoError(t, s.Put(ctx, record("https://c.example/", domain.Blacklist, t0)))

			removed, err := s.Delete(ctx, "https://a.example/")
			require.NoError(t, err)
			assert.True(t, removed)

			removed, err = s.Delete(ctx, "https://a.example/")
			require.NoError(t, err)
			assert.False(t, removed)

			n, err := s.Clear(ctx, domain.Blacklist)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			counts, err := s.Counts(ctx)
			require.NoError(t, err)
			assert.Zero(t, counts[domain.Whitelist]+counts[domain.Blacklist])
		})
	}
}

func TestStorePutRejectsInvalid(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.Put(context.Background(), nil))
			assert.Error(t, s.Put(context.Background(), &domain.ReputationRecord{URL: "https://x.example/"}))
			assert.Error(t, s.Put(context.Background(), &domain.ReputationRecord{List: domain.Whitelist}))
		})
	}
}

// Concurrent writers flipping the same URL must never leave it in both lists.
func TestStoreNeverHoldsURLInBothLists(t *testing.T) {
	ctx := context.Background()
	const url = "https://flip.example/"

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					list := domain.Whitelist
					if i%2 == 0 {
						list = domain.Blacklist
					}
					assert.NoError(t, s.Put(ctx, record(url, list, time.Now().UTC())))
				}(i)
			}
			wg.Wait()

			counts, err := s.Counts(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), counts[domain.Whitelist]+counts[domain.Blacklist])
		})
	}
}

func TestSQLiteMigrationStatus(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "status.db"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	before, err := s.MigrationStatus(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, before)
	assert.False(t, before[0].Applied)

	require.NoError(t, s.Migrate(ctx, logger.NewNop()))
	require.NoError(t, s.Migrate(ctx, logger.NewNop()), "migrating twice is a no-op")

	after, err := s.MigrationStatus(ctx)
	require.NoError(t, err)
	for _, m := range after {
		assert.True(t, m.Applied, m.Name)
	}
}
