package fwdevice

import (
	"fmt"

	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

// VersionFormat selects how a raw integer version renders as a string.
type VersionFormat int

// Version formats.
const (
	VersionFormatUnknown VersionFormat = iota
	VersionFormatPlain
	VersionFormatPair
	VersionFormatTriplet
	VersionFormatQuad
	VersionFormatBCD
	VersionFormatHex
)

var versionFormatNames = map[VersionFormat]string{
	VersionFormatPlain:   "plain",
	VersionFormatPair:    "pair",
	VersionFormatTriplet: "triplet",
	VersionFormatQuad:    "quad",
	VersionFormatBCD:     "bcd",
	VersionFormatHex:     "hex",
}

// String returns the format's keyfile name.
func (f VersionFormat) String() string {
	if name, ok := versionFormatNames[f]; ok {
		return name
	}

	return "unknown"
}

// VersionFormatFromString parses a keyfile/quirk version-format name.
func VersionFormatFromString(s string) (VersionFormat, error) {
	for format, name := range versionFormatNames {
		if name == s {
			return format, nil
		}
	}

	return VersionFormatUnknown, fwupderr.New(fwupderr.InvalidData, "unknown version format %q", s)
}

// FormatVersion renders raw according to format, using the same field
// splits fwupd applies: pair is hi16.lo16, triplet is 8.8.16, quad is
// 8.8.8.8, bcd decodes each nibble pair as two decimal digits.
func FormatVersion(raw uint32, format VersionFormat) string {
	switch format {
	case VersionFormatPair:
		return fmt.Sprintf("%d.%d", raw>>16, raw&0xffff)
	case VersionFormatTriplet:
		return fmt.Sprintf("%d.%d.%d", raw>>24, (raw>>16)&0xff, raw&0xffff)
	case VersionFormatQuad:
		return fmt.Sprintf("%d.%d.%d.%d", raw>>24, (raw>>16)&0xff, (raw>>8)&0xff, raw&0xff)
	case VersionFormatBCD:
		return fmt.Sprintf("%d.%d", bcdByte(uint8(raw>>8)), bcdByte(uint8(raw)))
	case VersionFormatHex:
		return fmt.Sprintf("0x%08x", raw)
	default:
		return fmt.Sprintf("%d", raw)
	}
}

func bcdByte(b uint8) int {
	return int(b>>4)*10 + int(b&0xf)
}

// SetVersion sets the device's version string directly.
func (d *Device) SetVersion(version string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = version
}

// Version returns the device's version string.
func (d *Device) Version() string { d.mu.Lock(); defer d.mu.Unlock(); return d.version }

// SetVersionBootloader sets the version of the non-active (bootloader)
// region.
func (d *Device) SetVersionBootloader(version string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.versionBootloader = version
}

// VersionBootloader returns the bootloader region's version string.
func (d *Device) VersionBootloader() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.versionBootloader
}

// SetVersionFormat sets how SetVersionRaw renders the integer version.
func (d *Device) SetVersionFormat(format VersionFormat) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.versionFormat = format
}

// VersionFormat returns the device's version format.
func (d *Device) VersionFormat() VersionFormat {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.versionFormat
}

// SetVersionRaw stores the integer version and renders the version string
// from it using the device's version format.
func (d *Device) SetVersionRaw(raw uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.versionRaw = uint64(raw)
	d.version = FormatVersion(raw, d.versionFormat)
}

// VersionRaw returns the stored integer version.
func (d *Device) VersionRaw() uint64 { d.mu.Lock(); defer d.mu.Unlock(); return d.versionRaw }

// UpdateState is the recorded outcome of the last install attempt.
type UpdateState int

// Update states.
const (
	UpdateStateUnknown UpdateState = iota
	UpdateStatePending
	UpdateStateSuccess
	UpdateStateFailed
	UpdateStateNeedsReboot
	UpdateStateFailedTransient
)
