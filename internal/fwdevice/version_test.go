package fwdevice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatVersion(t *testing.T) {
	for _, tc := range []struct {
		raw    uint32
		format VersionFormat
		want   string
	}{
		{0x0001000a, VersionFormatPair, "1.10"},
		{0x01020003, VersionFormatTriplet, "1.2.3"},
		{0x01020304, VersionFormatQuad, "1.2.3.4"},
		{0x0123, VersionFormatBCD, "1.23"},
		{0xdeadbeef, VersionFormatHex, "0xdeadbeef"},
		{42, VersionFormatPlain, "42"},
	} {
		assert.Equal(t, tc.want, FormatVersion(tc.raw, tc.format))
	}
}

func TestSetVersionRawUsesFormat(t *testing.T) {
	d := New(nil)
	d.SetVersionFormat(VersionFormatTriplet)
	d.SetVersionRaw(0x01020003)

	assert.Equal(t, "1.2.3", d.Version())
	assert.Equal(t, uint64(0x01020003), d.VersionRaw())
}

func TestVersionFormatFromString(t *testing.T) {
	format, err := VersionFormatFromString("pair")
	require.NoError(t, err)
	assert.Equal(t, VersionFormatPair, format)

	_, err = VersionFormatFromString("nonsense")
	assert.Error(t, err)
}

func TestIncorporateCopiesOnlyUnsetFields(t *testing.T) {
	donor := New(nil)
	donor.SetName("Donor")
	donor.SetVendor("Acme")
	donor.SetPhysicalID("usb:1:2")
	donor.SetFlag(FlagUpdatable, true)

	d := New(nil)
	d.SetName("Kept")
	d.Incorporate(donor)

	assert.Equal(t, "Kept", d.Name())
	assert.Equal(t, "Acme", d.Vendor())
	assert.True(t, d.HasFlag(FlagUpdatable))

	id, err := d.EnsureID()
	require.NoError(t, err)

	donorID, err := donor.EnsureID()
	require.NoError(t, err)
	assert.Equal(t, donorID, id)
}

func TestIncorporateMergesPrivateFlags(t *testing.T) {
	RegisterPrivateFlag("incorporate-test")

	donor := New(nil)
	require.NoError(t, donor.SetPrivateFlag("incorporate-test", true))

	d := New(nil)
	d.Incorporate(donor)

	assert.True(t, d.HasPrivateFlag("incorporate-test"))
}

func TestSetQuirkKV(t *testing.T) {
	d := New(nil)

	require.NoError(t, d.SetQuirkKV("Name", "Widget"))
	require.NoError(t, d.SetQuirkKV("Vendor", "Acme"))
	require.NoError(t, d.SetQuirkKV("VersionFormat", "quad"))
	require.NoError(t, d.SetQuirkKV("RemoveDelay", "5000"))

	assert.Equal(t, "Widget", d.Name())
	assert.Equal(t, "Acme", d.Vendor())
	assert.Equal(t, VersionFormatQuad, d.VersionFormat())

	assert.Error(t, d.SetQuirkKV("NotAKey", "x"))
	assert.Error(t, d.SetQuirkKV("RemoveDelay", "soon"))
}

func TestOpenWithoutOpenFuncFails(t *testing.T) {
	d := New(nil)

	_, err := d.Open()
	assert.Error(t, err)
}

func TestOpenRunsCloseExactlyOnce(t *testing.T) {
	opened, closed := 0, 0

	d := New(nil)
	d.SetOpenFuncs(
		func() error { opened++; return nil },
		func() error { closed++; return nil },
	)

	locker, err := d.Open()
	require.NoError(t, err)
	require.NoError(t, locker.Close())
	require.NoError(t, locker.Close())

	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
}

func TestOpenSkipsRealIOWhenEmulated(t *testing.T) {
	d := New(nil)
	d.SetFlag(FlagEmulated, true)
	d.SetOpenFuncs(
		func() error { t.Fatal("real open called on emulated device"); return nil },
		nil,
	)

	locker, err := d.Open()
	require.NoError(t, err)
	assert.NoError(t, locker.Close())
}
