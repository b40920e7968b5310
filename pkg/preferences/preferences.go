// Package preferences loads the managed preferences that control the
// restart behavior.
package preferences

import (
	"errors"
	"fmt"
	"os"

	"github.com/groob/plist"

	"github.com/macadmins/authrestart/pkg/constant"
)

// Preferences are the managed settings read once per invocation. Unset keys
// keep their zero values.
type Preferences struct {
	// PerformAuthRestarts allows attempting FileVault authorized restarts.
	PerformAuthRestarts bool `plist:"PerformAuthRestarts"`
	// RecoveryKeyFile is the path of a plist holding the RecoveryKey secret.
	RecoveryKeyFile string `plist:"RecoveryKeyFile"`
}

// Load reads preferences from the plist at path, or from the default
// managed-preferences location when path is empty. A missing file is not an
// error; every preference falls back to its default.
func Load(path string) (*Preferences, error) {
	if path == "" {
		path = constant.DefaultPreferencesPath
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return &Preferences{}, nil
	case err != nil:
		return nil, fmt.Errorf("read preferences %s: %w", path, err)
	}

	var prefs Preferences
	if err := plist.Unmarshal(data, &prefs); err != nil {
		return nil, fmt.Errorf("parse preferences %s: %w", path, err)
	}
	return &prefs, nil
}
