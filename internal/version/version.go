// Package version carries build identification injected at link time.
package version

var (
	// Version is the release version, overridden by -ldflags at build time.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)
