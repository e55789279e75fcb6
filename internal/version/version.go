package version

import (
	"flag"

	"github.com/earthboundkid/versioninfo/v2"
)

// GetVersion returns the short version string, e.g. "v1.2.0-rev-abc1234"
func GetVersion() string {
	return versioninfo.Short()
}

// GetFullVersion returns the version with the commit it was built from
func GetFullVersion() string {
	if versioninfo.Revision == "unknown" || versioninfo.Revision == "" {
		return versioninfo.Short()
	}
	return versioninfo.Short() + " (committed " + versioninfo.LastCommit.UTC().Format("2006-01-02") + ")"
}

// AddFlag registers -v and -version on fs
func AddFlag(fs *flag.FlagSet) {
	versioninfo.AddFlag(fs)
}
