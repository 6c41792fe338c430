package signals

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrSnakeDoc/urlguard/internal/domain"
	"github.com/MrSnakeDoc/urlguard/internal/logger"
)

const (
	GathererVirusTotal   = "virustotal"
	DefaultVirusTotalURL = "https://www.virustotal.com/api/v3"
	DefaultVirusTotalTTL = time.Hour
	DefaultHourlyLimit   = 240

	vtPollAttempts   = 5
	vtPollDelay      = 1500 * time.Millisecond
	vtCleanConf      = 85
	vtDetectionBase  = 70
	vtDetectionStep  = 5
	vtMaxConfidence  = 99
	vtStatusComplete = "completed"
)

var vtMaliciousCategories = map[string]struct{}{
	"malicious":  {},
	"suspicious": {},
	"phishing":   {},
	"ransomware": {},
	"malware":    {},
}

type VirusTotalConfig struct {
	APIKey      string
	BaseURL     string
	HourlyLimit int
	Timeout     time.Duration
	TTL         time.Duration
	// PollDelay is the base wait between analysis polls; attempt n waits n times it.
	PollDelay time.Duration
}

// VirusTotal looks a URL up in VirusTotal, submitting it for analysis when it
// is unknown there.
type VirusTotal struct {
	base
	apiKey    string
	baseURL   string
	quota     *rate.Limiter
	pollDelay time.Duration
}

func NewVirusTotal(cfg VirusTotalConfig, deps Deps) *VirusTotal {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultVirusTotalURL
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultVirusTotalTTL
	}
	if cfg.HourlyLimit <= 0 {
		cfg.HourlyLimit = DefaultHourlyLimit
	}
	if cfg.PollDelay <= 0 {
		cfg.PollDelay = vtPollDelay
	}
	return &VirusTotal{
		base:      newBase(GathererVirusTotal, cfg.TTL, cfg.Timeout, deps),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		quota:     rate.NewLimiter(rate.Every(time.Hour/time.Duration(cfg.HourlyLimit)), cfg.HourlyLimit),
		pollDelay: cfg.PollDelay,
	}
}

func (v *VirusTotal) Enabled() bool { return hasKey(v.apiKey) }

type vtEngine struct {
	Category string `json:"category"`
	Result   string `json:"result"`
}

type vtAttributes struct {
	Status             string              `json:"status"`
	LastAnalysisStats  map[string]int      `json:"last_analysis_stats"`
	LastAnalysisResult map[string]vtEngine `json:"last_analysis_results"`
	// Analysis objects use different field names.
	Stats   map[string]int      `json:"stats"`
	Results map[string]vtEngine `json:"results"`
}

type vtResponse struct {
	Data *struct {
		ID         string       `json:"id"`
		Attributes vtAttributes `json:"attributes"`
	} `json:"data"`
}

// Check returns the VirusTotal verdict for a normalised URL. Only definitive
// verdicts are cached.
func (v *VirusTotal) Check(ctx context.Context, rawURL string) (*domain.ExternalResult, error) {
	if !v.Enabled() {
		return nil, notConfigured(v.name)
	}

	if res, ok := cached[*domain.ExternalResult](ctx, &v.base, rawURL); ok && res != nil {
		return res, nil
	}

	if !v.quota.Allow() {
		return nil, &Error{Gatherer: v.name, Kind: KindRateLimited, Err: errors.New("hourly quota exhausted")}
	}

	res, err := execute(ctx, &v.base, func(ctx context.Context) (*domain.ExternalResult, error) {
		attrs, err := v.lookup(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		return parseVirusTotal(attrs), nil
	})
	if err != nil {
		return nil, err
	}

	if res.Safe != nil {
		v.store(ctx, rawURL, res)
	}
	return res, nil
}

// URLID is the VirusTotal v3 identifier: unpadded URL-safe base64.
func URLID(rawURL string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(rawURL))
}

func (v *VirusTotal) lookup(ctx context.Context, rawURL string) (*vtAttributes, error) {
	var found vtResponse
	status, err := v.request(ctx, http.MethodGet, "/urls/"+URLID(rawURL), nil, &found)
	if err == nil && found.Data != nil {
		return &found.Data.Attributes, nil
	}
	if err != nil && status != http.StatusNotFound {
		return nil, err
	}

	v.log.Debug("url unknown to virustotal, submitting", logger.String("url", rawURL))

	var submitted vtResponse
	form := url.Values{"url": {rawURL}}
	if _, err := v.request(ctx, http.MethodPost, "/urls", form, &submitted); err != nil {
		return nil, err
	}
	if submitted.Data == nil || submitted.Data.ID == "" {
		return nil, badResponse(v.name, errors.New("submission returned no analysis id"))
	}
	return v.poll(ctx, submitted.Data.ID)
}

// poll waits for an analysis to complete, returning the last state seen. It
// stops early rather than outlive ctx's deadline.
func (v *VirusTotal) poll(ctx context.Context, id string) (*vtAttributes, error) {
	var last *vtAttributes
	for attempt := 1; attempt <= vtPollAttempts; attempt++ {
		var resp vtResponse
		if _, err := v.request(ctx, http.MethodGet, "/analyses/"+url.PathEscape(id), nil, &resp); err != nil {
			return nil, err
		}
		if resp.Data != nil {
			last = &resp.Data.Attributes
			if last.Status == vtStatusComplete {
				return last, nil
			}
		}
		if attempt == vtPollAttempts {
			break
		}

		// The next wait plus one more request must fit in the call budget.
		delay := v.pollDelay * time.Duration(attempt)
		if dl, ok := ctx.Deadline(); ok && time.Until(dl) < delay+v.pollDelay {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, transportError(v.name, ctx.Err())
		case <-timer.C:
		}
	}

	v.log.Debug("virustotal analysis did not finish in time", logger.String("analysis_id", id))
	if last == nil {
		return nil, badResponse(v.name, fmt.Errorf("analysis %s returned no data", id))
	}
	return last, nil
}

func (v *VirusTotal) request(ctx context.Context, method, path string, form url.Values, dst any) (int, error) {
	var body io.Reader = http.NoBody
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, v.baseURL+path, body)
	if err != nil {
		return 0, badResponse(v.name, err)
	}
	req.Header.Set("x-apikey", v.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return v.doJSON(req, dst)
}

// parseVirusTotal turns engine statistics into a verdict. No engines means
// no opinion; any detection means unsafe.
func parseVirusTotal(a *vtAttributes) *domain.ExternalResult {
	stats, results := a.LastAnalysisStats, a.LastAnalysisResult
	if stats == nil && results == nil {
		stats, results = a.Stats, a.Results
	}

	malicious := stats["malicious"]
	suspicious := stats["suspicious"]
	total := 0
	for _, n := range stats {
		total += n
	}

	detected := 0
	for _, engine := range results {
		_, badCategory := vtMaliciousCategories[strings.ToLower(engine.Category)]
		_, badResult := vtMaliciousCategories[strings.ToLower(engine.Result)]
		if badCategory || badResult {
			detected++
		}
	}
	malicious = max(malicious, detected)
	total = max(total, len(results))

	ratio := fmt.Sprintf("%d/%d", malicious, total)

	if total == 0 {
		return &domain.ExternalResult{
			Details: "VirusTotal: No analysis data available",
			Source:  GathererVirusTotal,
		}
	}

	if malicious > 0 || suspicious > 0 {
		return &domain.ExternalResult{
			Safe:       domain.BoolPtr(false),
			ThreatType: "malicious",
			Confidence: min(vtMaxConfidence, vtDetectionBase+(malicious+suspicious)*vtDetectionStep),
			Details:    fmt.Sprintf("VirusTotal detections: %s malicious, %d suspicious", ratio, suspicious),
			Source:     GathererVirusTotal,
		}
	}

	return &domain.ExternalResult{
		Safe:       domain.BoolPtr(true),
		Confidence: vtCleanConf,
		Details:    "VirusTotal clean: " + ratio,
		Source:     GathererVirusTotal,
	}
}
