package version

import (
	"runtime"
	"time"
)

// Overridden at build time:
//
//	go build -ldflags "-X github.com/MrSnakeDoc/urlguard/internal/version.Version=v0.3.0"
var (
	Version   = "dev"                           // ex: v0.3.0
	Commit    = "none"                          // ex: abcd123
	BuildDate = time.Now().Format(time.RFC3339) // ex: 2026-10-18T18:42:00Z
	GoVersion = runtime.Version()
)

// String renders the one-line build banner used by the CLI and startup logs.
func String() string {
	return Version + " (commit=" + Commit + ", built=" + BuildDate + ", go=" + GoVersion + ")"
}
