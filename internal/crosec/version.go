package crosec

import (
	"regexp"

	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

// Version is a parsed Cros-EC raw version string, e.g.
// "cheese_v1.1.1755-4da9520+".
type Version struct {
	Board   string
	Triplet string
	SHA1    string
	Dirty   bool
}

var versionPattern = regexp.MustCompile(`^(.*)_v(\d+\.\d+\.\d+)-([0-9a-fA-F]+)(\+?)$`)

// ParseVersion parses raw into its board name, MAJOR.MINOR.PATCH triplet,
// short commit hash, and dirty-tree marker.
func ParseVersion(raw string) (Version, error) {
	m := versionPattern.FindStringSubmatch(raw)
	if m == nil {
		return Version{}, fwupderr.New(fwupderr.InvalidData, "malformed cros-ec version %q", raw)
	}

	return Version{
		Board:   m[1],
		Triplet: m[2],
		SHA1:    m[3],
		Dirty:   m[4] == "+",
	}, nil
}
