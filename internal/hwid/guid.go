// Package hwid computes HWID/CHID GUIDs from SMBIOS-derived fields and
// matches quirk/instance-ID strings against the fixed HardwareID catalog,
// compatible with Windows ComputerHardwareIds.exe (the worked
// scenario).
package hwid

import (
	"crypto/sha1" //nolint:gosec // required: this is the Microsoft CHID/GUID algorithm, not a security hash.
	"encoding/binary"
	"unicode/utf16"

	"github.com/google/uuid"
)

// namespaceGUID is the fixed namespace used by Microsoft's
// ComputerHardwareIds.exe algorithm, stored as the raw bytes fed directly
// into the SHA-1 checksum (not re-encoded from a textual GUID form).
var namespaceGUID = [16]byte{
	0x70, 0xff, 0xd8, 0x12,
	0x4c, 0x7f, 0x4c, 0x7d,
	0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// FromString hashes an arbitrary instance-ID or CHID composite-key string
// into its GUID form, using the Microsoft-style algorithm: UTF-16LE encode
// the string, SHA-1 it together with the namespace bytes, then read the
// first 8 digest bytes back as little-endian integers (the
// "mixed-endian" Windows GUID convention) before injecting version 5 and
// the RFC4122 variant bits.
//
// This is the same algorithm fwupd uses for build_instance_id_full and for
// CHID hashing, and matches the Windows ComputerHardwareIds.exe output for
// the same input string.
func FromString(s string) string {
	h := sha1.New() //nolint:gosec
	h.Write(namespaceGUID[:])

	for _, r := range utf16.Encode([]rune(s)) {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], r)
		h.Write(b[:])
	}

	digest := h.Sum(nil)

	// The first three fields are read back little-endian (the
	// "mixed-endian" Windows GUID convention) before the version and
	// variant bits are injected, then the 16 bytes are rendered in
	// RFC4122 text order.
	var out [16]byte
	binary.BigEndian.PutUint32(out[0:4], binary.LittleEndian.Uint32(digest[0:4]))
	binary.BigEndian.PutUint16(out[4:6], binary.LittleEndian.Uint16(digest[4:6]))
	binary.BigEndian.PutUint16(out[6:8], (binary.LittleEndian.Uint16(digest[6:8])&0x0fff)|(5<<12))
	copy(out[8:16], digest[8:16])
	out[8] = (digest[8] & 0x3f) | 0x80

	return uuid.UUID(out).String()
}
