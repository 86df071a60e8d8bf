// Package version reports build information and the identity of the running
// relay process.
package version

import "runtime"

// Set via -ldflags "-X github.com/pscheid92/chatrelay/internal/platform/version.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the build of a relay binary and, once known, the role and
// instance ID it announces in the presence set.
type Info struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	BuildTime  string `json:"build_time"`
	GoVersion  string `json:"go_version"`
	Role       string `json:"role,omitempty"`
	InstanceID string `json:"instance_id,omitempty"`
}

// Get returns the build information without a process identity.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// ForInstance returns the build information tagged with a process identity.
func ForInstance(role, instanceID string) Info {
	info := Get()
	info.Role = role
	info.InstanceID = instanceID
	return info
}

// Short is the version advertised to peers: the version plus an abbreviated
// commit when one was injected.
func (i Info) Short() string {
	if i.Commit == "" || i.Commit == "unknown" {
		return i.Version
	}
	commit := i.Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return i.Version + "+" + commit
}
