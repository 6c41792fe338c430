package signals

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrSnakeDoc/urlguard/internal/domain"
)

const (
	GathererURLScan   = "urlscan"
	DefaultURLScanURL = "https://urlscan.io/api/v1"
	DefaultURLScanTTL = time.Hour

	urlscanUnsafeConfidence = 75
	urlscanSafeConfidence   = 65
	urlscanSearchSize       = "10"
)

type URLScanConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	TTL     time.Duration
}

// URLScan searches existing urlscan.io scans of a domain.
type URLScan struct {
	base
	apiKey  string
	baseURL string
}

func NewURLScan(cfg URLScanConfig, deps Deps) *URLScan {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultURLScanURL
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultURLScanTTL
	}
	return &URLScan{
		base:    newBase(GathererURLScan, cfg.TTL, cfg.Timeout, deps),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

func (u *URLScan) Enabled() bool { return hasKey(u.apiKey) }

type urlscanVerdict struct {
	Malicious bool    `json:"malicious"`
	Score     float64 `json:"score"`
}

type urlscanSearch struct {
	Results []struct {
		Page struct {
			URL    string `json:"url"`
			Domain string `json:"domain"`
		} `json:"page"`
		Verdicts *struct {
			Overall *urlscanVerdict `json:"overall"`
		} `json:"verdicts"`
		Task *struct {
			Verdicts *struct {
				Overall *urlscanVerdict `json:"overall"`
			} `json:"verdicts"`
		} `json:"task"`
	} `json:"results"`
}

// Check looks up past scans of the URL's domain. Any malicious or scored scan
// yields an unsafe result, otherwise the domain is reported safe.
func (u *URLScan) Check(ctx context.Context, rawURL, host string) (*domain.ExternalResult, error) {
	if !u.Enabled() {
		return nil, notConfigured(u.name)
	}
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return nil, badResponse(u.name, errEmptyHost)
	}

	if res, ok := cached[*domain.ExternalResult](ctx, &u.base, host); ok && res != nil {
		return res, nil
	}

	res, err := execute(ctx, &u.base, func(ctx context.Context) (*domain.ExternalResult, error) {
		return u.search(ctx, rawURL, host)
	})
	if err != nil {
		return nil, err
	}

	u.store(ctx, host, res)
	return res, nil
}

func (u *URLScan) search(ctx context.Context, rawURL, host string) (*domain.ExternalResult, error) {
	q := url.Values{}
	q.Set("q", "domain:"+host)
	q.Set("size", urlscanSearchSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+"/search/?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, badResponse(u.name, err)
	}
	req.Header.Set("API-Key", u.apiKey)

	var body urlscanSearch
	if _, err := u.doJSON(req, &body); err != nil {
		return nil, err
	}
	return parseURLScan(body, rawURL, host), nil
}

func parseURLScan(body urlscanSearch, rawURL, host string) *domain.ExternalResult {
	for _, item := range body.Results {
		if strings.ToLower(item.Page.Domain) != host && strings.TrimSpace(item.Page.URL) != rawURL {
			continue
		}

		var overall *urlscanVerdict
		switch {
		case item.Verdicts != nil && item.Verdicts.Overall != nil:
			overall = item.Verdicts.Overall
		case item.Task != nil && item.Task.Verdicts != nil:
			overall = item.Task.Verdicts.Overall
		}
		if overall != nil && (overall.Malicious || overall.Score > 0) {
			return &domain.ExternalResult{
				Safe:       domain.BoolPtr(false),
				ThreatType: "malicious",
				Confidence: urlscanUnsafeConfidence,
				Details:    "URLScan.io: malicious or suspicious scan result",
				Source:     GathererURLScan,
			}
		}
	}

	return &domain.ExternalResult{
		Safe:       domain.BoolPtr(true),
		Confidence: urlscanSafeConfidence,
		Details:    "URLScan.io: no malicious scans found",
		Source:     GathererURLScan,
	}
}
