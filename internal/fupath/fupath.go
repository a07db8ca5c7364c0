// Package fupath resolves the daemon's well-known directories. Every
// location can be overridden through an environment variable so tests and
// self-test harnesses can run against a scratch tree without root.
package fupath

import (
	"os"
	"path/filepath"
)

// Kind names one well-known location.
type Kind int

// Path kinds.
const (
	// KindSysConfDir is the immutable system configuration directory.
	KindSysConfDir Kind = iota
	// KindLocalConfDir is the mutable local-override configuration
	// directory.
	KindLocalConfDir
	// KindCacheDir holds downloaded and dumped firmware blobs.
	KindCacheDir
	// KindStateDir holds persistent daemon state (emulation dumps,
	// pending-update records).
	KindStateDir
	// KindQuirksDir holds the *.quirk keyfiles.
	KindQuirksDir
)

type pathSpec struct {
	env string
	def string
}

var specs = map[Kind]pathSpec{
	KindSysConfDir:   {env: "FWUPD_SYSCONFDIR", def: "/etc/fwupd"},
	KindLocalConfDir: {env: "FWUPD_LOCALCONFDIR", def: "/var/etc/fwupd"},
	KindCacheDir:     {env: "FWUPD_CACHEDIR", def: "/var/cache/fwupd"},
	KindStateDir:     {env: "FWUPD_STATEDIR", def: "/var/lib/fwupd"},
	KindQuirksDir:    {env: "FWUPD_QUIRKSDIR", def: "/usr/share/fwupd/quirks.d"},
}

// FromKind returns the directory for kind, honoring its environment
// override.
func FromKind(kind Kind) string {
	spec := specs[kind]

	if v := os.Getenv(spec.env); v != "" {
		return v
	}

	return spec.def
}

// ConfigFile returns the main daemon config path inside the directory for
// kind.
func ConfigFile(kind Kind) string {
	return filepath.Join(FromKind(kind), "fwupd.conf")
}
