package reputation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/urlguard/internal/domain"
	"github.com/MrSnakeDoc/urlguard/internal/logger"
	"github.com/MrSnakeDoc/urlguard/internal/metrics"
	"github.com/MrSnakeDoc/urlguard/internal/store"
)

// Lookup results recorded in urlguard_cache_lookups_total.
const (
	ResultMiss  = "miss"
	ResultError = "error"
)

// Cache is the read-through reputation cache in front of a Store.
// Every URL is normalised before it reaches the store.
type Cache struct {
	store   store.Store
	metrics *metrics.Metrics
	log     logger.Logger
	now     func() time.Time
}

// Stats is the /api/v1/reputation/stats payload.
type Stats struct {
	Backend   string `json:"backend"`
	Whitelist int64  `json:"whitelist"`
	Blacklist int64  `json:"blacklist"`
	Total     int64  `json:"total"`
}

func New(s store.Store, m *metrics.Metrics, log logger.Logger) *Cache {
	if log == nil {
		log = logger.NewNop()
	}
	return &Cache{
		store:   s,
		metrics: m,
		log:     log.Named("reputation"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Lookup returns the cached record for rawURL and counts the hit.
// A miss returns (nil, nil).
func (c *Cache) Lookup(ctx context.Context, rawURL string) (*domain.ReputationRecord, error) {
	url, err := domain.NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	rec, err := c.store.Touch(ctx, url, c.now())
	switch {
	case err == nil:
		c.metrics.CacheLookup(string(rec.List))
		return rec, nil
	case errors.Is(err, store.ErrNotFound):
		c.metrics.CacheLookup(ResultMiss)
		return nil, nil
	default:
		c.metrics.CacheLookup(ResultError)
		return nil, fmt.Errorf("lookup %s: %w", url, err)
	}
}

// Get returns the record without counting a hit. ErrNotFound on miss.
func (c *Cache) Get(ctx context.Context, rawURL string) (*domain.ReputationRecord, error) {
	url, err := domain.NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	return c.store.Get(ctx, url)
}

// Write stores a verdict: safe goes to the whitelist, unsafe to the
// blacklist, in one transaction that also drops the URL from the other
// list. Unknown verdicts are never cached; any existing record is removed.
func (c *Cache) Write(ctx context.Context, rawURL string, v domain.Verdict, a domain.Assessment) error {
	url, err := domain.NormalizeURL(rawURL)
	if err != nil {
		return err
	}

	if _, ok := domain.ListFor(v); !ok {
		removed, err := c.store.Delete(ctx, url)
		if err != nil {
			return fmt.Errorf("drop %s: %w", url, err)
		}
		if removed {
			c.log.Debug("dropped record after unknown verdict", logger.String("url", url))
		}
		return nil
	}

	rec, err := domain.NewRecord(url, domain.ExtractDomain(url), v, a, c.now())
	if err != nil {
		return err
	}
	if err := c.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("write %s to %s: %w", url, rec.List, err)
	}

	c.log.Debug("reputation written",
		logger.String("url", url),
		logger.String("list", string(rec.List)),
		logger.String("source", rec.Source),
		logger.Int("confidence", rec.Confidence))
	return nil
}

// Invalidate removes rawURL from both lists.
func (c *Cache) Invalidate(ctx context.Context, rawURL string) (bool, error) {
	url, err := domain.NormalizeURL(rawURL)
	if err != nil {
		return false, err
	}
	removed, err := c.store.Delete(ctx, url)
	if err != nil {
		return false, fmt.Errorf("invalidate %s: %w", url, err)
	}
	return removed, nil
}

// Entries lists one list, least recently updated first.
func (c *Cache) Entries(ctx context.Context, list domain.List, limit int) ([]*domain.ReputationRecord, error) {
	return c.store.List(ctx, list, limit)
}

func (c *Cache) Clear(ctx context.Context, list domain.List) (int64, error) {
	n, err := c.store.Clear(ctx, list)
	if err != nil {
		return 0, err
	}
	c.log.Info("reputation list cleared", logger.String("list", string(list)), logger.Int64("removed", n))
	return n, nil
}

func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	counts, err := c.store.Counts(ctx)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{
		Backend:   c.store.Backend(),
		Whitelist: counts[domain.Whitelist],
		Blacklist: counts[domain.Blacklist],
	}
	s.Total = s.Whitelist + s.Blacklist
	return s, nil
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}
