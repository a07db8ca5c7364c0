package crosecplugin

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwupd/fwupd-go/internal/crosec"
	"github.com/fwupd/fwupd-go/internal/crosec/firmware"
	"github.com/fwupd/fwupd-go/internal/fwdevice"
	"github.com/fwupd/fwupd-go/internal/fwupderr"
	"github.com/fwupd/fwupd-go/internal/plugin"
)

// scriptedTransport serves queued IN replies and records every OUT
// transfer; an exhausted queue reads as a timeout.
type scriptedTransport struct {
	writes  [][]byte
	replies [][]byte
}

func (s *scriptedTransport) Bulk(ep uint8, buf []byte, timeoutMs int) (int, error) {
	if ep&0x80 != 0 {
		if len(s.replies) == 0 {
			return 0, fwupderr.New(fwupderr.TimedOut, "no queued reply")
		}

		r := s.replies[0]
		s.replies = s.replies[1:]
		copy(buf, r)

		n := len(r)
		if n > len(buf) {
			n = len(buf)
		}

		return n, nil
	}

	s.writes = append(s.writes, append([]byte(nil), buf...))

	return len(buf), nil
}

func (s *scriptedTransport) queueStatus(status uint32) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, status)
	s.replies = append(s.replies, b)
}

func loadedPlugin(t *testing.T) *Plugin {
	t.Helper()

	p := &Plugin{}
	require.NoError(t, p.Load(context.Background(), plugin.Dependencies{}))
	return p
}

func attachState(p *Plugin, d *fwdevice.Device, ec *crosec.Device) *ecState {
	st := &ecState{ec: ec}
	p.mu.Lock()
	p.states[d] = st
	p.mu.Unlock()
	return st
}

// subcommandOpcodes extracts the opcode of every subcommand frame sent.
func subcommandOpcodes(writes [][]byte) []uint16 {
	var ops []uint16

	for _, w := range writes {
		if len(w) >= 10 && binary.BigEndian.Uint32(w[4:8]) == 0xB007AB1F {
			ops = append(ops, binary.BigEndian.Uint16(w[8:10]))
		}
	}

	return ops
}

func rwOnlyFirmware(size int) *firmware.Firmware {
	return &firmware.Firmware{
		RW: firmware.Section{
			Name:    firmware.SectionRW,
			Offset:  0x40000,
			Size:    uint32(size),
			Payload: make([]byte, size),
			Needed:  true,
			FWID:    "cheese_v1.1.1760-4da9520",
		},
	}
}

// The flash-protected RW scenario: exactly one write pass, the unlock
// subcommand, and the extra-pass marker.
func TestWriteSectionsUnlocksRWWhenProtected(t *testing.T) {
	p := loadedPlugin(t)

	ft := &scriptedTransport{}
	ft.queueStatus(0)                          // block status
	ft.replies = append(ft.replies, []byte{0}) // done-frame ack before unlock
	ft.replies = append(ft.replies, []byte{0}) // unlock subcommand ack

	ec := crosec.NewDevice(ft, nil)
	ec.MaxPDUSize = 4096
	ec.ChunkLen = 64
	ec.WriteableOffset = 0x40000
	ec.FlashProtection = 0x100
	ec.InBootloader = false

	d := fwdevice.New(nil)
	attachState(p, d, ec)

	require.NoError(t, p.writeSections(context.Background(), d, rwOnlyFirmware(256)))

	assert.True(t, d.HasFlag(fwdevice.FlagAnotherWriteRequired))
	assert.Contains(t, subcommandOpcodes(ft.writes), defaultUnlockSubcommand)
	assert.True(t, d.HasPrivateFlag(PrivateFlagROWritten))
}

func TestWriteSectionsMarksRWWrittenInBootloader(t *testing.T) {
	p := loadedPlugin(t)

	ft := &scriptedTransport{}
	ft.queueStatus(0)

	ec := crosec.NewDevice(ft, nil)
	ec.MaxPDUSize = 4096
	ec.ChunkLen = 64
	ec.WriteableOffset = 0x40000
	ec.InBootloader = true

	d := fwdevice.New(nil)
	attachState(p, d, ec)

	require.NoError(t, p.writeSections(context.Background(), d, rwOnlyFirmware(256)))

	assert.True(t, d.HasPrivateFlag(PrivateFlagRWWritten))
	// Only one region written so far: another pass is required.
	assert.True(t, d.HasFlag(fwdevice.FlagAnotherWriteRequired))
}

// The transitory ro->rw auto-jump case skips the transfer entirely.
func TestWriteSectionsSpecialFlowSkipsTransfer(t *testing.T) {
	p := loadedPlugin(t)

	ft := &scriptedTransport{}

	ec := crosec.NewDevice(ft, nil)
	ec.InBootloader = true

	d := fwdevice.New(nil)
	require.NoError(t, d.SetPrivateFlag(PrivateFlagRWWritten, true))
	attachState(p, d, ec)

	require.NoError(t, p.writeSections(context.Background(), d, rwOnlyFirmware(256)))

	assert.True(t, d.HasPrivateFlag(PrivateFlagSpecial))
	assert.True(t, d.HasFlag(fwdevice.FlagAnotherWriteRequired))
	assert.Empty(t, ft.writes)
}

func TestAttachAfterSpecialSkipsReset(t *testing.T) {
	p := loadedPlugin(t)

	ft := &scriptedTransport{}

	ec := crosec.NewDevice(ft, nil)
	ec.InBootloader = true

	d := fwdevice.New(nil)
	require.NoError(t, d.SetPrivateFlag(PrivateFlagSpecial, true))
	attachState(p, d, ec)

	require.NoError(t, p.Attach(context.Background(), d))

	assert.False(t, d.HasPrivateFlag(PrivateFlagSpecial))
	assert.True(t, d.HasFlag(fwdevice.FlagWaitForReplug))
	assert.Empty(t, subcommandOpcodes(ft.writes))
}

func TestAttachAfterROWrittenResetsToRO(t *testing.T) {
	p := loadedPlugin(t)

	ft := &scriptedTransport{}

	ec := crosec.NewDevice(ft, nil)

	d := fwdevice.New(nil)
	require.NoError(t, d.SetPrivateFlag(PrivateFlagROWritten, true))
	attachState(p, d, ec)

	require.NoError(t, p.Attach(context.Background(), d))

	assert.True(t, d.HasPrivateFlag(PrivateFlagRebootingToRO))
	assert.Contains(t, subcommandOpcodes(ft.writes), crosec.SubcommandImmediateReset)
	assert.True(t, d.HasFlag(fwdevice.FlagWaitForReplug))
}

func TestDetachInBootloaderPinsRegion(t *testing.T) {
	p := loadedPlugin(t)

	ec := crosec.NewDevice(&scriptedTransport{}, nil)
	ec.InBootloader = true

	d := fwdevice.New(nil)
	attachState(p, d, ec)

	require.NoError(t, p.Detach(context.Background(), d))
	assert.True(t, d.HasPrivateFlag(PrivateFlagRebootingToRO))
}

func TestCleanupClearsMarkers(t *testing.T) {
	p := loadedPlugin(t)

	d := fwdevice.New(nil)
	require.NoError(t, d.SetPrivateFlag(PrivateFlagROWritten, true))
	require.NoError(t, d.SetPrivateFlag(PrivateFlagSpecial, true))

	require.NoError(t, p.Cleanup(context.Background(), d))

	assert.False(t, d.HasPrivateFlag(PrivateFlagROWritten))
	assert.False(t, d.HasPrivateFlag(PrivateFlagSpecial))
}

func TestWriteFirmwareWithoutSetupFails(t *testing.T) {
	p := loadedPlugin(t)

	d := fwdevice.New(nil)
	err := p.WriteFirmware(context.Background(), d, nil, plugin.InstallNone)
	assert.True(t, fwupderr.Is(err, fwupderr.NotSupported))
}
