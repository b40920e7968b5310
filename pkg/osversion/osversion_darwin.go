//go:build darwin

package osversion

import (
	"fmt"

	"github.com/Masterminds/semver"
	"github.com/shirou/gopsutil/v3/host"
)

// Version returns the host macOS product version (the version sw_vers
// reports, e.g. "14.2.1").
func Version() (*semver.Version, error) {
	_, _, version, err := host.PlatformInformation()
	if err != nil {
		return nil, fmt.Errorf("get platform information: %w", err)
	}
	return Parse(version)
}
