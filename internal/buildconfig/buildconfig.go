package buildconfig

// Overridden at link time with -ldflags "-X ...".
var (
	version = "dev"
	commit  = "unknown"
)

// Version reports the release version baked into the binary.
func Version() string {
	return version
}

// Commit reports the source revision the binary was built from.
func Commit() string {
	return commit
}

// VersionInfo bundles the build identifiers for the health endpoint.
func VersionInfo() map[string]string {
	return map[string]string{
		"version": version,
		"commit":  commit,
	}
}
