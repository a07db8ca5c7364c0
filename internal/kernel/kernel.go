// Package kernel probes host kernel state the daemon needs before
// touching hardware: the lockdown mode (which blocks raw device I/O) and
// individual build-config options.
package kernel

import (
	"bufio"
	"compress/gzip"
	"os"
	"strings"

	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

// Lockdown modes.
const (
	LockdownNone            = "none"
	LockdownIntegrity       = "integrity"
	LockdownConfidentiality = "confidentiality"
)

// lockdownPath is overridable for tests.
var lockdownPath = "/sys/kernel/security/lockdown"

// Lockdown reads the kernel lockdown mode. The sysfs file lists every
// mode with the active one bracketed, e.g. "none [integrity]
// confidentiality". A missing file means lockdown is not compiled in.
func Lockdown() (string, error) {
	raw, err := os.ReadFile(lockdownPath)
	if err != nil {
		if os.IsNotExist(err) {
			return LockdownNone, nil
		}

		return "", fwupderr.Wrap(fwupderr.PermissionDenied, err, "read lockdown")
	}

	for _, field := range strings.Fields(string(raw)) {
		if strings.HasPrefix(field, "[") && strings.HasSuffix(field, "]") {
			return strings.Trim(field, "[]"), nil
		}
	}

	return LockdownNone, nil
}

// Locked reports whether the kernel restricts raw device access.
func Locked() bool {
	mode, err := Lockdown()
	if err != nil {
		return false
	}

	return mode != LockdownNone
}

// configPath is overridable for tests.
var configPath = "/proc/config.gz"

// ConfigValue returns the value of a CONFIG_* option from the running
// kernel's compiled-in config, e.g. ("CONFIG_USB", "y"). Not every
// distribution enables /proc/config.gz; a missing file is not-supported
// rather than an I/O failure.
func ConfigValue(key string) (string, error) {
	f, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fwupderr.New(fwupderr.NotSupported, "kernel config not exported")
		}

		return "", fwupderr.Wrap(fwupderr.Read, err, "open kernel config")
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return "", fwupderr.Wrap(fwupderr.InvalidData, err, "decompress kernel config")
	}
	defer zr.Close()

	scanner := bufio.NewScanner(zr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		k, v, found := strings.Cut(line, "=")
		if found && k == key {
			return v, nil
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fwupderr.Wrap(fwupderr.Read, err, "scan kernel config")
	}

	return "", fwupderr.New(fwupderr.NotFound, "%s not set", key)
}
