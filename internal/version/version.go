package version

import (
	"encoding/json"
	"fmt"
	"os"
)

// Set at build time with -ldflags "-X .../version.Version=... -X .../version.Commit=...".
var (
	Version = ""
	Commit  = ""
)

const fallback = "0.0.0"

type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
}

func (i Info) String() string {
	if i.Commit == "" {
		return i.Version
	}
	return fmt.Sprintf("%s (%s)", i.Version, i.Commit)
}

// Load prefers the linked-in version, then the version file at path, then
// 0.0.0. The error reports why the file could not be used; the returned
// Info is always usable.
func Load(path string) (Info, error) {
	if Version != "" {
		return Info{Version: Version, Commit: Commit}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{Version: fallback, Commit: Commit}, fmt.Errorf("read %s: %w", path, err)
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil || info.Version == "" {
		if err == nil {
			err = fmt.Errorf("missing version field")
		}
		return Info{Version: fallback, Commit: Commit}, fmt.Errorf("parse %s: %w", path, err)
	}
	if info.Commit == "" {
		info.Commit = Commit
	}
	return info, nil
}
