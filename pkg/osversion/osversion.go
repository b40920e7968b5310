// Package osversion resolves the host OS version as a comparable value.
package osversion

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver"
)

// Parse turns a product version string into a semver value. macOS reports
// two-part versions on some releases ("10.8"); semver pads the missing
// patch.
func Parse(raw string) (*semver.Version, error) {
	v, err := semver.NewVersion(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse OS version %q: %w", raw, err)
	}
	return v, nil
}
