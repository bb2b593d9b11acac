// SPDX-License-Identifier: MIT
//
// Package build holds the metadata stamped into the binary at link time:
//
//	go build -ldflags "-X shaderviz/pkg/build.buildName=shaderviz \
//	  -X shaderviz/pkg/build.buildVersion=0.3.0 ..."
//
// Development builds carry no stamp; Initialize reports that and the
// defaults below stay in place.
package build

import (
	"errors"
	"fmt"
)

// ErrMissingBuildInfo wraps every Initialize failure.
var ErrMissingBuildInfo = errors.New("missing build information")

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Summary renders the flags on one line for startup logging and --version.
func (f *ldFlags) Summary() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", f.Name, f.Version, f.Commit, f.Time)
}

var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:        "shaderviz",
		Description: "Audio and camera reactive fragment shader visualizer",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
)

// Initialize validates and copies the ldflags variables into the build
// flags. It must run before GetBuildFlags is used for anything other than
// defaults. On error the defaults are left untouched.
func Initialize() error {
	if buildName == "" {
		return fmt.Errorf("%w: BuildName is required", ErrMissingBuildInfo)
	}
	if buildTime == "" {
		return fmt.Errorf("%w: BuildTime is required", ErrMissingBuildInfo)
	}
	if buildCommit == "" {
		return fmt.Errorf("%w: BuildCommit is required", ErrMissingBuildInfo)
	}
	if buildVersion == "" {
		return fmt.Errorf("%w: BuildVersion is required", ErrMissingBuildInfo)
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}
