//go:build !darwin

package osversion

import (
	"errors"

	"github.com/Masterminds/semver"
)

// Version errors on non-macOS hosts: there is no product version that the
// FileVault version floors could meaningfully compare against, so callers
// fail closed.
func Version() (*semver.Version, error) {
	return nil, errors.New("OS version comparison is only meaningful on macOS")
}
