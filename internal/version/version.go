// Package version exposes build metadata stamped in through ldflags.
//
// Release builds set the variables with -X, for example:
//
//	go build -ldflags "-X github.com/emberworks/enginelink/internal/version.Version=0.4.0 \
//	                   -X github.com/emberworks/enginelink/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

import "fmt"

// A binary built without ldflags reports itself as a dev build.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String renders the version line printed at startup.
func String() string {
	return fmt.Sprintf("%s (%s) built %s", Version, Commit, BuildTime)
}
