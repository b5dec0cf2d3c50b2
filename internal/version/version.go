package version

import (
	"fmt"
	"runtime"
)

// Set at build time with -ldflags "-X github.com/fbz-tec/pgxserve/internal/version.AppVersion=..."
var (
	AppVersion = "dev"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// String returns a one-line description of the build.
func String() string {
	return fmt.Sprintf("pgxserve %s (commit %s, built %s, %s/%s)",
		AppVersion, GitCommit, BuildTime, runtime.GOOS, runtime.GOARCH)
}
