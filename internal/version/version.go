// Package version provides build-time metadata for the loginguard service.
// The variables are populated via -ldflags at build time.
package version

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/google/uuid"
)

var (
	// Version is the release tag or commit hash.
	// Set via: -ldflags "-X loginguard/internal/version.Version=..."
	Version = "unknown"

	// BuildDate is the ISO 8601 UTC build timestamp.
	// Set via: -ldflags "-X loginguard/internal/version.BuildDate=..."
	BuildDate = "unknown"

	// GitCommit is the source commit SHA.
	// Set via: -ldflags "-X loginguard/internal/version.GitCommit=..."
	GitCommit = "unknown"
)

// Info holds build metadata and runtime identity. Limiter state is per
// process, so InstanceID tells operators which replica made a decision.
type Info struct {
	Version    string `json:"version"`
	GitCommit  string `json:"git_commit"`
	BuildDate  string `json:"build_date"`
	GoVersion  string `json:"go_version"`
	InstanceID string `json:"instance_id"`
	Hostname   string `json:"hostname"`
}

var (
	once sync.Once
	info Info
)

// GetInfo returns build metadata and runtime information.
// Instance ID and hostname are computed once on first call and cached.
func GetInfo() Info {
	once.Do(func() {
		info = Info{
			Version:    Version,
			GitCommit:  GitCommit,
			BuildDate:  BuildDate,
			GoVersion:  runtime.Version(),
			InstanceID: uuid.New().String(),
			Hostname:   getHostname(),
		}
	})
	return info
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}

// String formats version info for CLI display.
func (i Info) String() string {
	return fmt.Sprintf("loginguard %s (commit: %s, built: %s, %s)", i.Version, i.GitCommit, i.BuildDate, i.GoVersion)
}
