package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/urlguard/internal/domain"
	"github.com/MrSnakeDoc/urlguard/internal/logger"
	"github.com/MrSnakeDoc/urlguard/internal/metrics"
	"github.com/MrSnakeDoc/urlguard/internal/mlmodel"
	"github.com/MrSnakeDoc/urlguard/internal/reputation"
	"github.com/MrSnakeDoc/urlguard/internal/signals"
)

// ErrWriteBack wraps a store failure returned under Options.StrictWrite.
var ErrWriteBack = errors.New("reputation write-back failed")

// Signals is the set of gatherers the orchestrator fans out to.
// *signals.Gatherer implements it.
type Signals interface {
	DomainAge(ctx context.Context, host string) (*int, error)
	TLSInfo(ctx context.Context, host string) (*domain.TLSInfo, error)
	URLScanCheck(ctx context.Context, rawURL, host string) (*domain.ExternalResult, error)
	VirusTotalCheck(ctx context.Context, rawURL string) (*domain.ExternalResult, error)
}

// Service runs the read-through analysis pipeline.
type Service struct {
	cache   *reputation.Cache
	signals Signals
	model   *mlmodel.Model
	metrics *metrics.Metrics
	log     logger.Logger
	now     func() time.Time
}

func NewService(cache *reputation.Cache, sig Signals, model *mlmodel.Model, m *metrics.Metrics, log logger.Logger) *Service {
	if model == nil {
		model = mlmodel.Default()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		cache:   cache,
		signals: sig,
		model:   model,
		metrics: m,
		log:     log.Named("analysis"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// AnalyzeURL returns the cached verdict for rawURL, or gathers signals,
// scores them and writes the verdict back. Gatherer failures never abort an
// analysis. Store failures are logged and the computed result is still
// returned, unless opts.StrictWrite is set.
func (s *Service) AnalyzeURL(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	start := time.Now()

	url, err := domain.NormalizeURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidURL, rawURL)
	}
	host := domain.ExtractDomain(url)

	if !opts.IgnoreCache {
		rec, err := s.cache.Lookup(ctx, url)
		if err != nil {
			s.log.Warn("reputation lookup failed, analysing", logger.String("url", url), logger.Error(err))
		}
		if rec != nil {
			res := fromRecord(rec, s.now())
			s.metrics.ObserveAnalysis(string(res.Verdict), true, time.Since(start))
			return res, nil
		}
	}

	res := s.evaluate(ctx, url, host, opts)

	if opts.StrictWrite {
		// Signals gathered under a cancelled context are incomplete.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	if err := s.cache.Write(ctx, url, res.Verdict, res.assessment()); err != nil {
		if opts.StrictWrite {
			return nil, fmt.Errorf("%w: %w", ErrWriteBack, err)
		}
		s.log.Error("reputation write-back failed", logger.String("url", url), logger.Error(err))
	}

	took := time.Since(start)
	s.metrics.ObserveAnalysis(string(res.Verdict), false, took)
	s.log.Info("url analysed",
		logger.String("id", res.ID),
		logger.String("url", url),
		logger.String("verdict", string(res.Verdict)),
		logger.String("source", res.Source),
		logger.Int("confidence", res.Confidence),
		logger.Duration("took", took))
	return res, nil
}

// Recheck drops any cached verdict and re-analyses with every gatherer.
func (s *Service) Recheck(ctx context.Context, rawURL string) (*Result, error) {
	if _, err := s.cache.Invalidate(ctx, rawURL); err != nil {
		return nil, err
	}
	return s.AnalyzeURL(ctx, rawURL, Options{UseExternal: true, IgnoreCache: true})
}

// evaluate gathers every signal concurrently and combines them.
func (s *Service) evaluate(ctx context.Context, url, host string, opts Options) *Result {
	gathered := s.now()

	var age *int
	var tlsInfo *domain.TLSInfo
	var tlsErr error
	var urlscan, vt *domain.ExternalResult

	var fanout errgroup.Group
	fanout.Go(func() error {
		var err error
		age, err = s.signals.DomainAge(ctx, host)
		s.record(signals.GathererWhois, host, err)
		return nil
	})
	fanout.Go(func() error {
		tlsInfo, tlsErr = s.signals.TLSInfo(ctx, host)
		s.record(signals.GathererTLS, host, tlsErr)
		return nil
	})
	if opts.UseExternal {
		fanout.Go(func() error {
			var err error
			urlscan, err = s.signals.URLScanCheck(ctx, url, host)
			s.record(signals.GathererURLScan, host, err)
			return nil
		})
		fanout.Go(func() error {
			var err error
			vt, err = s.signals.VirusTotalCheck(ctx, url)
			s.record(signals.GathererVirusTotal, host, err)
			return nil
		})
	}
	_ = fanout.Wait()

	meta := &domain.DomainMetadata{Domain: host, DomainAgeDays: age}
	if tlsInfo != nil && !signals.IsDisabled(tlsErr) {
		meta.ApplyTLS(tlsInfo)
	}

	external := domain.MergeExternal(vt, urlscan)

	heur := domain.ScoreHeuristics(domain.HeuristicInput{
		URL:      url,
		Domain:   host,
		Metadata: *meta,
		External: external,
		Now:      gathered,
	})
	ml := s.model.Evaluate(url, host, external, &heur)
	meta.ApplyModel(ml.Score, string(ml.Label))

	d := decide(external, &heur, ml)
	return &Result{
		ID:             uuid.NewString(),
		URL:            url,
		Domain:         host,
		Verdict:        d.Verdict,
		Safe:           safeFor(d.Verdict),
		ThreatType:     d.ThreatType,
		Confidence:     d.Confidence,
		Source:         d.Source,
		DomainMetadata: meta,
		Heuristics:     &heur,
		External:       external,
		Model:          &ml,
		AnalyzedAt:     gathered,
	}
}

// record counts a gatherer call and logs failures at debug.
func (s *Service) record(gatherer, host string, err error) {
	s.metrics.SignalRequest(gatherer, signals.Outcome(err))
	if err != nil && !signals.IsDisabled(err) {
		s.log.Debug("signal unavailable",
			logger.String("gatherer", gatherer),
			logger.String("host", host),
			logger.Error(err))
	}
}

func fromRecord(rec *domain.ReputationRecord, now time.Time) *Result {
	return &Result{
		ID:         uuid.NewString(),
		URL:        rec.URL,
		Domain:     rec.Domain,
		Verdict:    rec.Verdict,
		Safe:       safeFor(rec.Verdict),
		ThreatType: rec.ThreatType,
		Confidence: rec.Confidence,
		Source:     rec.Source,
		Cached:     true,
		HitCount:   rec.HitCount,
		AnalyzedAt: now,
	}
}
