package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const redacted = "***REDACTED***"

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s
	RequestTimeout  time.Duration // per-request timeout for the HTTP API (analysis fans out to slow APIs)

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Reputation store
	StoreBackend  string // "memory" | "sqlite" | "postgres"
	SQLitePath    string // used when StoreBackend == "sqlite"
	DatabaseURL   string // used when StoreBackend == "postgres"
	StoreMaxConns int    // postgres pool size
	AutoMigrate   bool   // run goose migrations on startup

	// Signal cache (WHOIS / TLS / threat-intel TTL caches)
	SignalCacheBackend string // "memory" | "redis"
	SignalCacheSize    int    // max entries per gatherer namespace for the memory backend

	// Redis (only when SignalCacheBackend == "redis")
	RedisAddr           string        // ex: "localhost:6379"
	RedisUser           string        // optional
	RedisPassword       string        // optional
	RedisDB             int           // Redis DB number
	RedisDT             time.Duration // dial timeout
	RedisRT             time.Duration // read timeout
	RedisWT             time.Duration // write timeout
	RedisMaxWait        time.Duration // max wait between retries
	RedisPingTimeout    time.Duration // timeout for each ping attempt
	RedisPoolSize       int           // connection pool size
	RedisConnectTimeout time.Duration // total time to retry connecting
	RedisRetryInterval  time.Duration // initial wait between retries (grows exponentially)
	RedisWarnThreshold  int           // warn after this many attempts

	// Risk model
	ModelPath        string // explicit artifact path, highest precedence
	ModelDefaultPath string // bundled artifact, used when ModelPath is empty or unusable

	// External signal gatherers
	GathererTimeout       time.Duration // per-call timeout for HTTP based gatherers
	TLSTimeout            time.Duration // dial+handshake timeout for certificate inspection
	TLSInspectEnabled     bool
	WhoisXMLAPIKey        string
	WhoisXMLURL           string
	WhoisRawLookup        bool // port-43 WHOIS fallback when no WhoisXML key is set
	URLScanAPIKey         string
	URLScanURL            string
	VirusTotalAPIKey      string
	VirusTotalURL         string
	VirusTotalHourlyLimit int
	WhoisTTL              time.Duration
	TLSTTL                time.Duration
	URLScanTTL            time.Duration
	VirusTotalTTL         time.Duration
	BreakerMaxFailures    int           // consecutive failures before a gatherer circuit opens
	BreakerOpenTimeout    time.Duration // how long an open circuit stays open

	// Bulk refresh
	RefreshInterval    time.Duration // 0 disables the periodic refresh
	RefreshTarget      string        // "whitelist" | "blacklist" | "all"
	RefreshLimit       int           // entries per run (clamped to 50)
	RefreshConcurrency int           // analyses in flight during a refresh

	SeedFile string // optional YAML whitelist/blacklist seed file

	AllowedHosts    []string // optional, restrict admin routes to specific Host headers
	AllowedCIDRS    []string // optional, restrict admin routes to specific IPs/CIDRs
	TrustProxy      bool     // true => trust X-Forwarded-For headers
	RateLimitBurst  int      // analyze endpoint: burst per IP
	RateLimitPerMin int      // analyze endpoint: refill per IP per minute
	RateLimitMaxIPs int      // cap on tracked client buckets (LRU)
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first; variables already set in the process win.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("URLGUARD_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("URLGUARD_SHUTDOWN_TIMEOUT", 10*time.Second),
		RequestTimeout:  mustDuration("URLGUARD_REQUEST_TIMEOUT", 45*time.Second),

		// Logging
		LogLevel:  getenv("URLGUARD_LOG_LEVEL", "info"),
		PrettyLog: mustBool("URLGUARD_PRETTY_LOG", false),

		// Reputation store
		StoreBackend:  oneOf("URLGUARD_STORE", "sqlite", "memory", "sqlite", "postgres"),
		SQLitePath:    getenv("URLGUARD_SQLITE_PATH", "data/urlguard.db"),
		StoreMaxConns: getenvInt("URLGUARD_DB_MAX_CONNS", 10),
		AutoMigrate:   mustBool("URLGUARD_AUTO_MIGRATE", true),

		// Signal cache
		SignalCacheBackend: oneOf("URLGUARD_SIGNAL_CACHE", "memory", "memory", "redis"),
		SignalCacheSize:    getenvInt("URLGUARD_SIGNAL_CACHE_SIZE", 10000),

		// Redis settings
		RedisAddr:           getenv("URLGUARD_REDIS_ADDR", "localhost:6379"),
		RedisUser:           getenv("URLGUARD_REDIS_USERNAME", ""),
		RedisPassword:       getenv("URLGUARD_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("URLGUARD_REDIS_DB", 0),
		RedisDT:             mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:  getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Risk model
		ModelPath:        getenv("URLGUARD_MODEL_PATH", ""),
		ModelDefaultPath: getenv("URLGUARD_MODEL_DEFAULT_PATH", "data/url_ml_model.json"),

		// Gatherers
		GathererTimeout:       mustDuration("URLGUARD_GATHERER_TIMEOUT", 15*time.Second),
		TLSTimeout:            mustDuration("URLGUARD_TLS_TIMEOUT", 5*time.Second),
		TLSInspectEnabled:     mustBool("URLGUARD_TLS_INSPECT", true),
		WhoisXMLAPIKey:        getenv("WHOISXML_API_KEY", ""),
		WhoisXMLURL:           getenv("WHOISXML_WHOIS_API", "https://www.whoisxmlapi.com/whoisserver/WhoisService"),
		WhoisRawLookup:        mustBool("URLGUARD_WHOIS_RAW", false),
		URLScanAPIKey:         getenv("URLSCAN_API_KEY", ""),
		URLScanURL:            getenv("URLSCAN_API", "https://urlscan.io/api/v1"),
		VirusTotalAPIKey:      getenv("VIRUSTOTAL_API_KEY", ""),
		VirusTotalURL:         getenv("VIRUSTOTAL_URL_API", "https://www.virustotal.com/api/v3"),
		VirusTotalHourlyLimit: getenvInt("VIRUSTOTAL_HOURLY_LIMIT", 240),
		WhoisTTL:              mustDuration("URLGUARD_WHOIS_TTL", 24*time.Hour),
		TLSTTL:                mustDuration("URLGUARD_TLS_TTL", time.Hour),
		URLScanTTL:            mustDuration("URLGUARD_URLSCAN_TTL", time.Hour),
		VirusTotalTTL:         mustDuration("URLGUARD_VIRUSTOTAL_TTL", time.Hour),
		BreakerMaxFailures:    getenvInt("URLGUARD_BREAKER_MAX_FAILURES", 5),
		BreakerOpenTimeout:    mustDuration("URLGUARD_BREAKER_OPEN_TIMEOUT", 60*time.Second),

		// Bulk refresh
		RefreshInterval:    mustDuration("URLGUARD_REFRESH_INTERVAL", 0),
		RefreshTarget:      oneOf("URLGUARD_REFRESH_TARGET", "all", "all", "whitelist", "blacklist"),
		RefreshLimit:       getenvInt("URLGUARD_REFRESH_LIMIT", 10),
		RefreshConcurrency: getenvInt("URLGUARD_REFRESH_CONCURRENCY", 4),

		SeedFile: getenv("URLGUARD_SEED_FILE", ""),

		// Access restrictions
		AllowedHosts:    getenvSlice("URLGUARD_ALLOWED_HOSTS"),
		AllowedCIDRS:    getenvSlice("URLGUARD_ALLOWED_CIDRS"),
		TrustProxy:      mustBool("URLGUARD_TRUST_PROXY", false),
		RateLimitBurst:  getenvInt("URLGUARD_RATE_LIMIT_BURST", 20),
		RateLimitPerMin: getenvInt("URLGUARD_RATE_LIMIT_PER_MIN", 60),
		RateLimitMaxIPs: getenvInt("URLGUARD_RATE_LIMIT_MAX_IPS", 10000),
	}

	if cfg.StoreBackend == "postgres" {
		cfg.DatabaseURL = requireEnv("URLGUARD_DATABASE_URL")
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", cfg.Redacted())
	}

	return cfg
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	cp := *c
	for _, s := range []*string{&cp.RedisPassword, &cp.DatabaseURL, &cp.WhoisXMLAPIKey, &cp.URLScanAPIKey, &cp.VirusTotalAPIKey} {
		if *s != "" {
			*s = redacted
		}
	}
	return cp
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

// oneOf returns the lower-cased value of key, def when unset, and panics when
// the value is not one of allowed.
func oneOf(key, def string, allowed ...string) string {
	v := strings.ToLower(strings.TrimSpace(getenv(key, def)))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	panic(fmt.Sprintf("❌ FATAL: Invalid value for %s: %q (allowed: %s)", key, v, strings.Join(allowed, ", ")))
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvSlice(key string) []string {
	return splitAndTrim(os.Getenv(key))
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
