// Package build reports the version of the running automachine binary. Release
// builds inject a JSON Info through -ldflags; other builds fall back to the
// module and VCS data the Go toolchain embeds.
package build

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"strings"
)

// injected is set with -ldflags "-X github.com/amp-labs/automachine/build.injected=...".
var injected string //nolint:gochecknoglobals

// Info is build metadata.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"` //nolint:tagliatelle
	GitDate   string `json:"git_date"`   //nolint:tagliatelle
	Modified  bool   `json:"modified"`
	GoVersion string `json:"go_version"` //nolint:tagliatelle
}

// Parse deserializes a JSON string into build Info.
// Returns (nil, false) if the input is empty, "{}", or fails to parse.
func Parse(js string) (*Info, bool) {
	js = strings.TrimSpace(js)
	if js == "" || js == "{}" {
		return nil, false
	}

	var info Info

	if err := json.Unmarshal([]byte(js), &info); err != nil {
		slog.Warn("Failed to parse build info from JSON",
			"data", js,
			"error", err)

		return nil, false
	}

	return &info, true
}

// Current returns the injected Info when present, else what the toolchain
// recorded in the binary.
func Current() Info {
	if info, ok := Parse(injected); ok {
		if info.GoVersion == "" {
			info.GoVersion = runtime.Version()
		}

		return *info
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return Info{Version: "dev", GoVersion: runtime.Version()}
	}

	return fromBuildInfo(bi)
}

func fromBuildInfo(bi *debug.BuildInfo) Info {
	info := Info{Version: bi.Main.Version, GoVersion: bi.GoVersion}

	if info.Version == "" || info.Version == "(devel)" {
		info.Version = "dev"
	}

	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			info.GitCommit = setting.Value
		case "vcs.time":
			info.GitDate = setting.Value
		case "vcs.modified":
			info.Modified = setting.Value == "true"
		}
	}

	return info
}

// String renders the one-line form shown by --version.
func (i Info) String() string {
	var sb strings.Builder

	sb.WriteString(i.Version)

	if i.GitCommit != "" {
		commit := i.GitCommit
		if len(commit) > 12 { //nolint:mnd
			commit = commit[:12]
		}

		sb.WriteString(" (" + commit)

		if i.Modified {
			sb.WriteString(", dirty")
		}

		sb.WriteString(")")
	}

	fmt.Fprintf(&sb, " %s %s/%s", i.GoVersion, runtime.GOOS, runtime.GOARCH)

	return sb.String()
}
