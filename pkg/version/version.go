// pkg/version/version.go
// Package version provides version metadata for the application.
package version

import (
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// These variables are typically injected at build time using -ldflags
var (
	// Version holds the current version of bytehunter.
	Version = "dev"
	// Commit holds the current version commit of bytehunter.
	Commit = "none"
	// BuildDate holds the build date of bytehunter.
	BuildDate = "unknown"
	// StartDate holds the start date of bytehunter.
	StartDate = time.Now()
)

// Struct returns version information in a structured format.
type Struct struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"buildDate" yaml:"buildDate"`
	Release   bool   `json:"release" yaml:"release"`
}

// Info returns a formatted version string.
func Info() string {
	return fmt.Sprintf("ByteHunter %s (commit: %s, date: %s)", Version, Commit, BuildDate)
}

// Get returns version information as a Struct.
func Get() Struct {
	return Struct{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		Release:   IsRelease(),
	}
}

// IsRelease reports whether Version is a semantic version without a
// prerelease tag.
func IsRelease() bool {
	v, err := semver.NewVersion(Version)
	return err == nil && v.Prerelease() == ""
}

// Satisfies checks the running version against a constraint such as
// ">= 0.3.0". Development builds satisfy every constraint.
func Satisfies(constraint string) (bool, error) {
	constraint = strings.TrimSpace(constraint)
	if constraint == "" {
		return true, nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("invalid version constraint %q: %w", constraint, err)
	}
	v, err := semver.NewVersion(Version)
	if err != nil {
		return true, nil
	}
	return c.Check(v), nil
}
