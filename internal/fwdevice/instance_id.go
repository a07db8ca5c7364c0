package fwdevice

import (
	"strconv"
	"strings"

	"github.com/fwupd/fwupd-go/internal/fwupderr"
	"github.com/fwupd/fwupd-go/internal/hwid"
)

// InstanceIDFlag controls how BuildInstanceIDFull treats a composite key.
type InstanceIDFlag uint

const (
	// InstanceIDGeneric requests no special handling.
	InstanceIDGeneric InstanceIDFlag = 0
	// InstanceIDVisible marks the resulting instance ID as user-visible.
	InstanceIDVisible InstanceIDFlag = 1 << iota
	// InstanceIDQuirks marks the resulting GUID as eligible for quirk
	// matching.
	InstanceIDQuirks
)

// strsafe normalizes an untrusted component value for instance-ID
// composition: non-ASCII-printable bytes become '_'.
func strsafe(s string) string {
	var b strings.Builder

	for _, r := range s {
		if r >= 0x20 && r < 0x7f {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}

	return b.String()
}

// BuildInstanceIDFull composes `SUBSYSTEM\KEY1_val&KEY2_val…` from subsystem
// and an ordered list of (key, value) pairs, then hashes it to a GUID via
// the Microsoft-style UTF-16LE algorithm (hwid.FromString). Only an empty
// subsystem or an empty key is an error. Values are not checked: a pair
// with an empty value is composed as present-but-empty (`KEY_`), and no
// flag marks a key as required or optional.
func BuildInstanceIDFull(flags InstanceIDFlag, subsystem string, pairs ...[2]string) (string, error) {
	if subsystem == "" {
		return "", fwupderr.New(fwupderr.InvalidData, "build_instance_id_full: empty subsystem")
	}

	var b strings.Builder
	b.WriteString(strsafe(subsystem))

	for i, pair := range pairs {
		key, value := pair[0], pair[1]
		if key == "" {
			return "", fwupderr.New(fwupderr.InvalidData, "build_instance_id_full: empty key at position %d", i)
		}

		if i == 0 {
			b.WriteByte('\\')
		} else {
			b.WriteByte('&')
		}

		b.WriteString(strsafe(key))
		b.WriteByte('_')
		b.WriteString(strsafe(value))
	}

	composite := b.String()

	return hwid.FromString(composite), nil
}

// AddInstanceU8/U16/U32 helpers format an unsigned integer component the
// way fwupd's add_instance_u8/u16/u32 helpers do: zero-padded uppercase
// hex, width matching the integer size.
func AddInstanceU8(v uint8) string  { return formatHex(uint64(v), 2) }
func AddInstanceU16(v uint16) string { return formatHex(uint64(v), 4) }
func AddInstanceU32(v uint32) string { return formatHex(uint64(v), 8) }

func formatHex(v uint64, width int) string {
	s := strconv.FormatUint(v, 16)
	s = strings.ToUpper(s)

	for len(s) < width {
		s = "0" + s
	}

	return s
}
