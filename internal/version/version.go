// Package version exposes the Optilist release version embedded at build time.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var versionContent string

// Get returns the current Optilist version, with whitespace trimmed.
func Get() string {
	return strings.TrimSpace(versionContent)
}
