package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBuildInfo(t *testing.T) {
	assert.Equal(t, BuildInfo{Version: "dev", Commit: "none", BuildTime: "unknown"}, NewBuildInfo())
}

func TestNewBuildInfo_LinkerOverrides(t *testing.T) {
	prevVersion, prevCommit, prevTime := version, commit, buildTime
	t.Cleanup(func() { version, commit, buildTime = prevVersion, prevCommit, prevTime })

	version, commit, buildTime = "1.4.0", "a1b2c3d", "2026-05-01T12:00:00Z"

	info := NewBuildInfo()
	assert.Equal(t, "1.4.0", info.Version)
	assert.Equal(t, "1.4.0 (a1b2c3d, built 2026-05-01T12:00:00Z)", info.String())
}
