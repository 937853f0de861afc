// Package version holds the build-time version string, grounded on the
// teacher's cmd/orris rootCmd.Version wiring.
package version

// Current is overridden at build time via -ldflags
// "-X vssbroker/internal/shared/version.Current=...".
var Current = "dev"
