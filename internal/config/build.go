package config

import "fmt"

// Set with -ldflags at release build time:
//
//	go build -ldflags "-X eventpipe/internal/config.version=1.2.3 \
//	    -X eventpipe/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X eventpipe/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/pipeline
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo reads the linker-injected variables.
func NewBuildInfo() BuildInfo {
	return BuildInfo{Version: version, Commit: commit, BuildTime: buildTime}
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("%s (%s, built %s)", b.Version, b.Commit, b.BuildTime)
}
