package constant

const (
	// DefaultDirMode is the default file mode to apply to created directories.
	DefaultDirMode = 0o755
	// DefaultFileMode is the default file mode to apply to created files.
	DefaultFileMode = 0o600
	// DefaultPreferencesPath is where managed preferences are read from when
	// no override is given.
	DefaultPreferencesPath = "/Library/Preferences/ManagedInstalls.plist"
)
