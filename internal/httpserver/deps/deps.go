package deps

import (
	"time"

	"github.com/MrSnakeDoc/urlguard/internal/analysis"
	"github.com/MrSnakeDoc/urlguard/internal/logger"
	"github.com/MrSnakeDoc/urlguard/internal/metrics"
	"github.com/MrSnakeDoc/urlguard/internal/mlmodel"
	"github.com/MrSnakeDoc/urlguard/internal/reputation"
	"github.com/MrSnakeDoc/urlguard/internal/scheduler"
	"github.com/MrSnakeDoc/urlguard/internal/signalcache"
	"github.com/MrSnakeDoc/urlguard/internal/signals"
)

type Deps struct {
	Logger    logger.Logger
	StartTime time.Time
	Version   string
	Commit    string
	BuildDate string
	GoVersion string

	AllowedHosts []string // Host headers allowed on admin routes
	AllowedCIDRS []string // IPs/CIDRs allowed on admin routes
	TrustProxy   bool     // true if running behind a trusted reverse proxy (e.g., cloudflared)

	Analysis    *analysis.Service
	Reputation  *reputation.Cache
	Refresher   *scheduler.Refresher
	Gatherers   *signals.Gatherer // nil hides gatherer status on /infra
	SignalCache signalcache.Cache // nil hides the signal cache on /readyz and /infra
	Model       *mlmodel.Model    // nil hides model details on /infra
	Metrics     *metrics.Metrics

	RefreshLimit      int           // default batch size for manual refreshes
	SeedReloadTrigger chan struct{} // nil when no seed file is configured
	RateLimit         RateLimit
}

// RateLimit configures the per-IP limiter on the analyze endpoint.
type RateLimit struct {
	Burst      int
	PerMinute  int
	MaxClients int
}
