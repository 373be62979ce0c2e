// Package version carries build metadata stamped in with ldflags:
//
//	go build -ldflags "-X github.com/rickgao/quoteboard/internal/version.Version=0.3.0 \
//	                   -X github.com/rickgao/quoteboard/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/quoteboard/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" \
//	    ./cmd/quoteboard
package version

import "runtime"

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Product is the name used in the User-Agent header.
const Product = "quoteboard"

// String returns a formatted version string.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime + " " + runtime.Version()
}

// UserAgent identifies this build to the broker's REST and streamer endpoints.
func UserAgent() string {
	return Product + "/" + Version + " (+" + Commit + ")"
}
