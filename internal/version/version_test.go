package version

import (
	"runtime"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GitCommit)
	assert.NotEmpty(t, info.BuildDate)
	assert.NotEmpty(t, info.Hostname)
	assert.Equal(t, runtime.Version(), info.GoVersion)

	_, err := uuid.Parse(info.InstanceID)
	require.NoError(t, err, "instance ID must be a UUID")

	// Subsequent calls return the cached identity
	assert.Equal(t, info, GetInfo())
}

func TestInfoString(t *testing.T) {
	info := Info{
		Version:   "1.2.3",
		GitCommit: "abc1234",
		BuildDate: "2026-02-21T10:00:00Z",
		GoVersion: "go1.25.0",
	}
	assert.Equal(t, "loginguard 1.2.3 (commit: abc1234, built: 2026-02-21T10:00:00Z, go1.25.0)", info.String())
}
