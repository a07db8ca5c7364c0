package crosec

import (
	"encoding/binary"
	"fmt"

	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

// Touchpad vendor IDs with known version encodings.
const (
	TouchpadVendorST   uint16 = 0x0483
	TouchpadVendorElan uint16 = 0x04f3
)

// TouchpadInfo is the parsed TOUCHPAD_INFO subcommand reply: where the
// touchpad firmware lives behind the EC and what is currently flashed.
type TouchpadInfo struct {
	Vendor        uint16
	FwAddress     uint32
	FwSize        uint32
	AllowedFwHash [32]byte
	ID            uint16
	FwVersion     uint16
	FwChecksum    uint16
}

// touchpadInfoLen is the wire size of the reply: status byte, reserved
// byte, then the little-endian info fields.
const touchpadInfoLen = 1 + 1 + 2 + 4 + 4 + 32 + 2 + 2 + 2

// ParseTouchpadInfo parses a TOUCHPAD_INFO reply. The leading status byte
// must be zero.
func ParseTouchpadInfo(b []byte) (TouchpadInfo, error) {
	if len(b) < touchpadInfoLen {
		return TouchpadInfo{}, fwupderr.New(fwupderr.InvalidData, "touchpad info reply too short: %d bytes", len(b))
	}

	if b[0] != 0 {
		return TouchpadInfo{}, fwupderr.New(fwupderr.Internal, "target touchpad reporting error %d", b[0])
	}

	info := TouchpadInfo{
		Vendor:     binary.LittleEndian.Uint16(b[2:4]),
		FwAddress:  binary.LittleEndian.Uint32(b[4:8]),
		FwSize:     binary.LittleEndian.Uint32(b[8:12]),
		ID:         binary.LittleEndian.Uint16(b[44:46]),
		FwVersion:  binary.LittleEndian.Uint16(b[46:48]),
		FwChecksum: binary.LittleEndian.Uint16(b[48:50]),
	}
	copy(info.AllowedFwHash[:], b[12:44])

	return info, nil
}

// VersionString renders FwVersion per the vendor's encoding: ST packs the
// pair as low.high, Elan reports a bare number rendered as ver.0.
func (i TouchpadInfo) VersionString() (string, error) {
	switch i.Vendor {
	case TouchpadVendorST:
		return fmt.Sprintf("%d.%d", i.FwVersion&0x00ff, (i.FwVersion&0xff00)>>8), nil
	case TouchpadVendorElan:
		return fmt.Sprintf("%d.0", i.FwVersion), nil
	default:
		return "", fwupderr.New(fwupderr.NotSupported, "unknown touchpad vendor 0x%04x", i.Vendor)
	}
}

// TouchpadInfo issues the TOUCHPAD_INFO subcommand on the parent EC and
// parses the reply.
func (d *Device) TouchpadInfo() (TouchpadInfo, error) {
	resp, err := d.SendSubcommand(SubcommandTouchpadInfo, nil, touchpadInfoLen, false)
	if err != nil {
		return TouchpadInfo{}, err
	}

	return ParseTouchpadInfo(resp)
}

// WriteTouchpad sends a touchpad firmware payload through the parent EC's
// chunked transfer protocol, addressed at the info-reported firmware
// address. The payload length must match the reported firmware size
// exactly.
func (d *Device) WriteTouchpad(info TouchpadInfo, payload []byte) error {
	if uint32(len(payload)) != info.FwSize {
		return fwupderr.New(fwupderr.InvalidData,
			"touchpad image size %d does not match reported fw_size %d",
			len(payload), info.FwSize)
	}

	pduSize := int(d.MaxPDUSize)
	if pduSize <= 0 {
		return fwupderr.New(fwupderr.Internal, "maximum_pdu_size not negotiated")
	}

	d.log.Debugf("touchpad: sending 0x%x bytes to 0x%x", len(payload), info.FwAddress)

	for off := 0; off < len(payload); off += pduSize {
		end := off + pduSize
		if end > len(payload) {
			end = len(payload)
		}

		block := payload[off:end]
		header := Frame{
			BlockSize:    uint32(8 + len(block)),
			CmdBlockBase: info.FwAddress + uint32(off),
		}.Encode()

		if err := WriteBlock(blockWriter{d}, header, ChunkBlock(block, d.chunkLenOrDefault())); err != nil {
			return err
		}
	}

	d.SendDone()

	return nil
}
