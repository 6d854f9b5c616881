// Package version reports the build version of the bridge binaries.
package version

import "golang.org/x/mod/semver"

// Version is set at build time:
//
//	go build -ldflags "-X order-bridge/internal/version.Version=1.4.0"
var Version = "dev"

const unreleased = "v0.0.0-dev"

// String returns Version as canonical semver ("v1.4.0"), or v0.0.0-dev when
// it is not a valid version.
func String() string {
	return canonical(Version)
}

// SameMajor reports whether two versions share a major version. Unparseable
// versions never match.
func SameMajor(a, b string) bool {
	ca, cb := canonical(a), canonical(b)
	if ca == unreleased || cb == unreleased {
		return false
	}
	return semver.Major(ca) == semver.Major(cb)
}

// canonical adds the "v" prefix if needed for semver parsing.
func canonical(v string) string {
	if v == "" {
		return unreleased
	}
	if v[0] != 'v' {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return unreleased
	}
	return semver.Canonical(v)
}
