package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrSnakeDoc/urlguard/internal/logger"
	"github.com/MrSnakeDoc/urlguard/internal/reputation"
	"github.com/MrSnakeDoc/urlguard/internal/sources/seedlist"
)

// SeedSummary is the outcome of one seed file load.
type SeedSummary struct {
	File    string             `json:"file"`
	Written int                `json:"written"`
	Failed  int                `json:"failed"`
	Skipped []seedlist.Skipped `json:"skipped,omitempty"`
}

// Seeder writes the YAML seed lists through the reputation cache, at startup
// and on manual reload.
type Seeder struct {
	loader        *seedlist.Loader
	mapper        *seedlist.Mapper
	cache         *reputation.Cache
	logger        logger.Logger
	stopCh        chan struct{}
	stopOnce      sync.Once
	manualTrigger chan struct{}
}

func NewSeeder(
	seedFile string,
	cache *reputation.Cache,
	log logger.Logger,
	manualTrigger chan struct{},
) *Seeder {
	return &Seeder{
		loader:        seedlist.NewLoader(seedFile),
		mapper:        seedlist.NewMapper(),
		cache:         cache,
		logger:        log.Named("seed"),
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start loads the seed file once, then reloads on every manual trigger.
func (s *Seeder) Start(ctx context.Context) error {
	if _, err := s.Reload(ctx); err != nil {
		return fmt.Errorf("initial seed load failed: %w", err)
	}

	go func() {
		for {
			select {
			case <-s.manualTrigger:
				s.logger.Info("manual seed reload triggered")
				if _, err := s.Reload(ctx); err != nil {
					s.logger.Error("failed to reload seed lists", logger.Error(err))
				}
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

func (s *Seeder) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Reload loads, validates and writes every seed. A file listing a URL in both
// lists is rejected as a whole; individual write failures are counted.
func (s *Seeder) Reload(ctx context.Context) (SeedSummary, error) {
	summary := SeedSummary{File: s.loader.Path()}
	s.logger.Info("loading seed lists", logger.String("file", summary.File))

	file, err := s.loader.Load()
	if err != nil {
		return summary, fmt.Errorf("failed to load seed file: %w", err)
	}

	seeds, skipped, err := s.mapper.Map(file)
	if err != nil {
		return summary, fmt.Errorf("failed to map seed file: %w", err)
	}
	summary.Skipped = skipped
	for _, sk := range skipped {
		s.logger.Warn("skipping seed entry", logger.String("url", sk.URL), logger.String("reason", sk.Reason))
	}

	for _, seed := range seeds {
		if err := s.cache.Write(ctx, seed.URL, seed.Verdict, seed.Assessment); err != nil {
			summary.Failed++
			s.logger.Warn("failed to write seed entry", logger.String("url", seed.URL), logger.Error(err))
			continue
		}
		summary.Written++
	}

	s.logger.Info("seed lists loaded",
		logger.Int("written", summary.Written),
		logger.Int("failed", summary.Failed),
		logger.Int("skipped", len(summary.Skipped)))
	return summary, nil
}
