package signals

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"

	"github.com/MrSnakeDoc/urlguard/internal/domain"
	"github.com/MrSnakeDoc/urlguard/internal/logger"
)

const (
	GathererWhois   = "whois"
	DefaultWhoisURL = "https://www.whoisxmlapi.com/whoisserver/WhoisService"
	DefaultWhoisTTL = 24 * time.Hour
)

// creationLayouts are tried in order against WHOIS creation dates.
var creationLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.999999Z",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-Jan-2006",
	"2006.01.02",
}

// WhoisConfig configures the domain-age gatherer.
type WhoisConfig struct {
	APIKey  string // WhoisXML API key
	BaseURL string
	// Raw enables port-43 WHOIS lookups when no API key is set.
	Raw     bool
	Timeout time.Duration
	TTL     time.Duration
}

// RawLookup returns the raw WHOIS text for a domain.
type RawLookup func(ctx context.Context, domain string) (string, error)

// Whois resolves domain age in days, through WhoisXML or raw WHOIS.
type Whois struct {
	base
	apiKey  string
	baseURL string
	raw     RawLookup
	now     func() time.Time
}

func NewWhois(cfg WhoisConfig, deps Deps) *Whois {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultWhoisURL
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultWhoisTTL
	}
	w := &Whois{
		base:    newBase(GathererWhois, cfg.TTL, cfg.Timeout, deps),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: cfg.BaseURL,
		now:     time.Now,
	}
	if cfg.Raw {
		w.raw = rawWhois(w.timeout)
	}
	return w
}

// Enabled is false without an API key unless raw lookups are allowed.
func (w *Whois) Enabled() bool {
	return hasKey(w.apiKey) || w.raw != nil
}

// DomainAge returns the age of host in days. A nil age with a nil error means
// the lookup completed but no creation date is known (possibly cached).
func (w *Whois) DomainAge(ctx context.Context, host string) (*int, error) {
	if !w.Enabled() {
		return nil, notConfigured(w.name)
	}
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" || domain.IsIPHost(host) {
		return nil, nil
	}

	if age, ok := cached[*int](ctx, &w.base, host); ok {
		return age, nil
	}

	created, err := execute(ctx, &w.base, func(ctx context.Context) (time.Time, error) {
		if hasKey(w.apiKey) {
			return w.lookupAPI(ctx, host)
		}
		return w.lookupRaw(ctx, host)
	})
	if err != nil {
		// Timeouts are retried on the next analysis, everything else is
		// remembered as unknown for the TTL.
		if k, _ := KindOf(err); k != KindTimeout {
			w.store(ctx, host, (*int)(nil))
		}
		return nil, err
	}

	age := ageInDays(created, w.now())
	w.store(ctx, host, &age)
	return &age, nil
}

func (w *Whois) lookupAPI(ctx context.Context, host string) (time.Time, error) {
	q := url.Values{}
	q.Set("domainName", host)
	q.Set("apiKey", w.apiKey)
	q.Set("outputFormat", "JSON")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return time.Time{}, badResponse(w.name, err)
	}

	var body map[string]any
	if _, err := w.doJSON(req, &body); err != nil {
		return time.Time{}, err
	}

	created, ok := parseCreationDate(creationField(body))
	if !ok {
		return time.Time{}, badResponse(w.name, errors.New("no creation date in response"))
	}
	return created, nil
}

// lookupRaw queries port-43 WHOIS, retrying the parent domain when the
// subdomain has no record.
func (w *Whois) lookupRaw(ctx context.Context, host string) (time.Time, error) {
	for name := host; name != ""; name = domain.ParentDomain(name) {
		text, err := w.raw(ctx, name)
		if err != nil {
			if ctx.Err() != nil {
				return time.Time{}, transportError(w.name, ctx.Err())
			}
			continue
		}
		info, err := whoisparser.Parse(text)
		if err != nil || info.Domain == nil {
			continue
		}
		if created, ok := parseCreationDate(info.Domain.CreatedDate); ok {
			return created, nil
		}
	}
	return time.Time{}, badResponse(w.name, fmt.Errorf("no whois record for %s", host))
}

// rawWhois wraps the blocking whois client so it honours ctx.
func rawWhois(timeout time.Duration) RawLookup {
	client := whois.NewClient().SetTimeout(timeout)
	return func(ctx context.Context, name string) (string, error) {
		type result struct {
			text string
			err  error
		}
		ch := make(chan result, 1)
		go func() {
			text, err := client.Whois(name)
			ch <- result{text, err}
		}()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case r := <-ch:
			return r.text, r.err
		}
	}
}

// creationField walks the known WhoisXML response shapes.
func creationField(body map[string]any) string {
	rec := asMap(body["WhoisRecord"])
	if rec == nil {
		rec = asMap(body["whoisRecord"])
	}
	if rec == nil {
		rec = body
	}
	reg := asMap(rec["registryData"])
	regDomain := asMap(reg["domain"])

	candidates := []any{
		regDomain["created"],
		regDomain["creationDate"],
		rec["createdDate"],
		reg["createdDate"],
		rec["creationDate"],
		rec["created"],
		body["creationDate"],
	}
	for _, c := range candidates {
		if s, ok := c.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func parseCreationDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range creationLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	// Fall back to the date part of longer timestamps.
	if len(s) >= 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func ageInDays(created, now time.Time) int {
	days := int(now.UTC().Sub(created.UTC()).Hours() / 24)
	return max(0, days)
}

// hasKey rejects empty and placeholder keys ("your_api_key").
func hasKey(key string) bool {
	return key != "" && !strings.Contains(strings.ToLower(key), "your_")
}

// logDisabled is used at startup to explain missing gatherers.
func logDisabled(log logger.Logger, name, env string) {
	log.Info("gatherer disabled", logger.String("gatherer", name), logger.String("missing", env))
}
