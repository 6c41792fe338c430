package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/urlguard/internal/analysis"
	"github.com/MrSnakeDoc/urlguard/internal/domain"
	"github.com/MrSnakeDoc/urlguard/internal/logger"
	"github.com/MrSnakeDoc/urlguard/internal/metrics"
	"github.com/MrSnakeDoc/urlguard/internal/reputation"
)

const (
	// MaxRefreshLimit caps one batch to bound blocking time and API spend.
	MaxRefreshLimit = 50

	DefaultRefreshLimit       = 10
	DefaultRefreshConcurrency = 4

	TargetAll = "all"
)

// ErrInvalidTarget is returned for a target other than whitelist, blacklist or all.
var ErrInvalidTarget = errors.New("invalid refresh target")

// Analyzer re-analyses one URL. *analysis.Service implements it.
type Analyzer interface {
	AnalyzeURL(ctx context.Context, rawURL string, opts analysis.Options) (*analysis.Result, error)
}

// Summary is the outcome of one refresh batch.
type Summary struct {
	Target    string        `json:"target"`
	Processed int           `json:"processed"`
	Whitelist int           `json:"whitelist"`
	Blacklist int           `json:"blacklist"`
	Unknown   int           `json:"unknown"`
	Errors    int           `json:"errors"`
	Took      time.Duration `json:"took_ns"`
}

// Request is a queued refresh.
type Request struct {
	Target string
	Limit  int
}

// Refresher re-verifies the least recently updated reputation entries, on a
// timer and on demand.
type Refresher struct {
	cache       *reputation.Cache
	analyzer    Analyzer
	metrics     *metrics.Metrics
	logger      logger.Logger
	interval    time.Duration
	defaults    Request
	concurrency int
	stopCh      chan struct{}
	stopOnce    sync.Once
	trigger     chan Request
}

// RefresherConfig holds the periodic refresh settings.
type RefresherConfig struct {
	Interval    time.Duration // 0 disables the timer
	Target      string
	Limit       int
	Concurrency int
}

func NewRefresher(
	cache *reputation.Cache,
	analyzer Analyzer,
	m *metrics.Metrics,
	log logger.Logger,
	cfg RefresherConfig,
) *Refresher {
	if cfg.Limit == 0 {
		cfg.Limit = DefaultRefreshLimit
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultRefreshConcurrency
	}

	return &Refresher{
		cache:       cache,
		analyzer:    analyzer,
		metrics:     m,
		logger:      log.Named("refresh"),
		interval:    cfg.Interval,
		defaults:    Request{Target: cfg.Target, Limit: cfg.Limit},
		concurrency: cfg.Concurrency,
		stopCh:      make(chan struct{}),
		trigger:     make(chan Request, 1),
	}
}

// Start runs queued and periodic refreshes until ctx is done or Stop is called.
func (r *Refresher) Start(ctx context.Context) {
	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
		r.logger.Info("periodic refresh enabled",
			logger.Duration("interval", r.interval),
			logger.String("target", r.defaults.Target),
			logger.Int("limit", r.defaults.Limit))
	}

	for {
		select {
		case <-tick:
			r.runLogged(ctx, r.defaults)
		case req := <-r.trigger:
			r.logger.Info("manual refresh triggered")
			r.runLogged(ctx, req)
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Refresher) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Trigger queues an asynchronous refresh. It returns false when a refresh is
// already queued or the target is invalid.
func (r *Refresher) Trigger(req Request) bool {
	if _, err := ParseTarget(req.Target); err != nil {
		return false
	}
	select {
	case r.trigger <- req:
		return true
	default:
		return false
	}
}

func (r *Refresher) runLogged(ctx context.Context, req Request) {
	if _, err := r.Refresh(ctx, req.Target, req.Limit); err != nil {
		r.logger.Error("refresh failed", logger.Error(err))
	}
}

// Refresh re-analyses up to limit entries (clamped to [1, 50]) of target,
// stalest first, with every gatherer enabled. A failing entry, including a
// failed store write or one cut short by ctx, is counted and does not stop
// the batch.
func (r *Refresher) Refresh(ctx context.Context, target string, limit int) (Summary, error) {
	lists, err := ParseTarget(target)
	if err != nil {
		return Summary{}, err
	}
	limit = ClampLimit(limit)
	start := time.Now()

	entries, err := r.collect(ctx, lists, limit)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Target: targetName(target)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, rec := range entries {
		rec := rec
		g.Go(func() error {
			res, err := r.analyzer.AnalyzeURL(gctx, rec.URL, analysis.Options{UseExternal: true, IgnoreCache: true, StrictWrite: true})

			mu.Lock()
			defer mu.Unlock()
			summary.Processed++
			if err != nil {
				summary.Errors++
				r.metrics.RefreshEntry("error")
				r.logger.Warn("refresh entry failed", logger.String("url", rec.URL), logger.Error(err))
				return nil
			}

			r.metrics.RefreshEntry(string(res.Verdict))
			switch res.Verdict {
			case domain.VerdictSafe:
				summary.Whitelist++
			case domain.VerdictUnsafe:
				summary.Blacklist++
			default:
				summary.Unknown++
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.Took = time.Since(start)
	r.logger.Info("refresh completed",
		logger.String("target", summary.Target),
		logger.Int("processed", summary.Processed),
		logger.Int("whitelist", summary.Whitelist),
		logger.Int("blacklist", summary.Blacklist),
		logger.Int("unknown", summary.Unknown),
		logger.Int("errors", summary.Errors),
		logger.Duration("took", summary.Took))
	return summary, nil
}

// collect returns the limit stalest entries across lists.
func (r *Refresher) collect(ctx context.Context, lists []domain.List, limit int) ([]*domain.ReputationRecord, error) {
	var all []*domain.ReputationRecord
	for _, l := range lists {
		recs, err := r.cache.Entries(ctx, l, limit)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", l, err)
		}
		all = append(all, recs...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].UpdatedAt.Before(all[j].UpdatedAt)
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// ParseTarget maps "", "all", "whitelist" or "blacklist" to lists.
func ParseTarget(target string) ([]domain.List, error) {
	switch t := strings.ToLower(strings.TrimSpace(target)); t {
	case "", TargetAll:
		return domain.Lists, nil
	default:
		l, err := domain.ParseList(t)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
		}
		return []domain.List{l}, nil
	}
}

// ClampLimit bounds a batch size to [1, MaxRefreshLimit].
func ClampLimit(limit int) int {
	return max(1, min(limit, MaxRefreshLimit))
}

func targetName(target string) string {
	t := strings.ToLower(strings.TrimSpace(target))
	if t == "" {
		return TargetAll
	}
	return t
}
