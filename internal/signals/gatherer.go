package signals

import (
	"context"
	"net/http"

	"github.com/MrSnakeDoc/urlguard/internal/config"
	"github.com/MrSnakeDoc/urlguard/internal/domain"
	"github.com/MrSnakeDoc/urlguard/internal/logger"
	"github.com/MrSnakeDoc/urlguard/internal/signalcache"
)

// Gatherer bundles every signal source behind one value.
type Gatherer struct {
	Whois      *Whois
	TLS        *TLSInspector
	URLScan    *URLScan
	VirusTotal *VirusTotal
}

// Status is the per-gatherer view shown on /infra.
type Status struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Breaker string `json:"breaker"`
}

// New wires all gatherers from configuration. Gatherers without credentials
// are created disabled.
func New(cfg *config.Config, cache signalcache.Cache, log logger.Logger) *Gatherer {
	deps := Deps{
		Cache: cache,
		HTTP:  &http.Client{Timeout: cfg.GathererTimeout},
		Log:   log.Named("signals"),
		Breaker: BreakerSettings{
			MaxFailures: uint32(max(cfg.BreakerMaxFailures, 1)),
			OpenTimeout: cfg.BreakerOpenTimeout,
		},
	}

	g := &Gatherer{
		Whois: NewWhois(WhoisConfig{
			APIKey:  cfg.WhoisXMLAPIKey,
			BaseURL: cfg.WhoisXMLURL,
			Raw:     cfg.WhoisRawLookup,
			Timeout: cfg.GathererTimeout,
			TTL:     cfg.WhoisTTL,
		}, deps),
		TLS: NewTLSInspector(TLSConfig{
			Enabled: cfg.TLSInspectEnabled,
			Timeout: cfg.TLSTimeout,
			TTL:     cfg.TLSTTL,
		}, deps),
		URLScan: NewURLScan(URLScanConfig{
			APIKey:  cfg.URLScanAPIKey,
			BaseURL: cfg.URLScanURL,
			Timeout: cfg.GathererTimeout,
			TTL:     cfg.URLScanTTL,
		}, deps),
		VirusTotal: NewVirusTotal(VirusTotalConfig{
			APIKey:      cfg.VirusTotalAPIKey,
			BaseURL:     cfg.VirusTotalURL,
			HourlyLimit: cfg.VirusTotalHourlyLimit,
			Timeout:     cfg.GathererTimeout,
			TTL:         cfg.VirusTotalTTL,
		}, deps),
	}

	if !g.Whois.Enabled() {
		logDisabled(deps.Log, GathererWhois, "WHOISXML_API_KEY")
	}
	if !g.URLScan.Enabled() {
		logDisabled(deps.Log, GathererURLScan, "URLSCAN_API_KEY")
	}
	if !g.VirusTotal.Enabled() {
		logDisabled(deps.Log, GathererVirusTotal, "VIRUSTOTAL_API_KEY")
	}
	return g
}

func (g *Gatherer) DomainAge(ctx context.Context, host string) (*int, error) {
	return g.Whois.DomainAge(ctx, host)
}

func (g *Gatherer) TLSInfo(ctx context.Context, host string) (*domain.TLSInfo, error) {
	return g.TLS.Inspect(ctx, host)
}

func (g *Gatherer) URLScanCheck(ctx context.Context, rawURL, host string) (*domain.ExternalResult, error) {
	return g.URLScan.Check(ctx, rawURL, host)
}

func (g *Gatherer) VirusTotalCheck(ctx context.Context, rawURL string) (*domain.ExternalResult, error) {
	return g.VirusTotal.Check(ctx, rawURL)
}

// Status lists every gatherer in a stable order.
func (g *Gatherer) Status() []Status {
	return []Status{
		{Name: GathererWhois, Enabled: g.Whois.Enabled(), Breaker: g.Whois.BreakerState()},
		{Name: GathererTLS, Enabled: g.TLS.Enabled(), Breaker: g.TLS.BreakerState()},
		{Name: GathererURLScan, Enabled: g.URLScan.Enabled(), Breaker: g.URLScan.BreakerState()},
		{Name: GathererVirusTotal, Enabled: g.VirusTotal.Enabled(), Breaker: g.VirusTotal.BreakerState()},
	}
}
