// Package crosec implements the Cros-EC update protocol engine: framing,
// handshake, section selection, chunked transfer with smart-trim, and the
// reboot-choreography state machine, transport-agnostic over
// usbbackend.Transport.
package crosec

import (
	"encoding/binary"

	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

// Magic cmd_block_base values.
const (
	magicDone       uint32 = 0xB007AB1E
	magicSubcommand uint32 = 0xB007AB1F
)

// Subcommand opcodes.
const (
	SubcommandImmediateReset uint16 = 0x5
	SubcommandStayInRO       uint16 = 0x16
	SubcommandJumpToRW       uint16 = 0x18
	SubcommandTouchpadInfo   uint16 = 0x14
)

// InterfaceClass/SubClass/Protocol identify the Cros-EC USB interface.
const (
	InterfaceClass    = 0xff
	InterfaceSubClass = 0x53
	InterfaceProtocol = 0xff
)

// Frame is the update-frame header prepended to every request.
type Frame struct {
	BlockSize    uint32
	CmdBlockBase uint32
}

// Encode serializes the frame header, big-endian on the wire.
func (f Frame) Encode() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b[0:4], f.BlockSize)
	binary.BigEndian.PutUint32(b[4:8], f.CmdBlockBase)
	return b
}

// SubcommandFrame builds a subcommand request: an update-frame header with
// cmd_block_base=magicSubcommand, followed by the 16-bit opcode and an
// optional body.
func SubcommandFrame(opcode uint16, body []byte) []byte {
	header := Frame{BlockSize: uint32(8 + 2 + len(body)), CmdBlockBase: magicSubcommand}.Encode()

	out := make([]byte, 0, len(header)+2+len(body))
	out = append(out, header...)

	opBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(opBuf, opcode)
	out = append(out, opBuf...)
	out = append(out, body...)

	return out
}

// DoneFrame builds the zero-length "done" frame sent after every section
// has been transferred.
func DoneFrame() []byte {
	return Frame{BlockSize: 8, CmdBlockBase: magicDone}.Encode()
}

// HandshakeFrame builds the zero-length handshake frame: only a header
// whose block_size equals the header's own size.
func HandshakeFrame() []byte {
	return Frame{BlockSize: 8, CmdBlockBase: 0}.Encode()
}

// FirstResponsePDU is the parsed handshake reply.
type FirstResponsePDU struct {
	ProtocolVersion uint16
	MaximumPDUSize  uint32
	FlashProtection uint32
	WriteableOffset uint32
	Version         string
	ReturnValue     uint32
}

// flashProtectionRWBit is bit 8 of flash_protection: RW protection
// asserted.
const flashProtectionRWBit = 1 << 8

// ParseFirstResponsePDU parses the handshake reply and validates the
// protocol version: only 5 or 6 are accepted.
func ParseFirstResponsePDU(b []byte) (FirstResponsePDU, error) {
	const fixedLen = 2 + 4 + 4 + 4 + 32 + 4

	if len(b) < fixedLen {
		return FirstResponsePDU{}, fwupderr.New(fwupderr.InvalidData, "first response PDU too short")
	}

	pdu := FirstResponsePDU{
		ProtocolVersion: binary.BigEndian.Uint16(b[0:2]),
		MaximumPDUSize:  binary.BigEndian.Uint32(b[2:6]),
		FlashProtection: binary.BigEndian.Uint32(b[6:10]),
		WriteableOffset: binary.BigEndian.Uint32(b[10:14]),
		Version:         trimCString(b[14:46]),
		ReturnValue:     binary.BigEndian.Uint32(b[46:50]),
	}

	if pdu.ProtocolVersion != 5 && pdu.ProtocolVersion != 6 {
		return FirstResponsePDU{}, fwupderr.New(fwupderr.NotSupported, "unsupported protocol_version %d", pdu.ProtocolVersion)
	}

	if pdu.ReturnValue != 0 {
		return FirstResponsePDU{}, fwupderr.New(fwupderr.Internal, "handshake return_value %d", pdu.ReturnValue)
	}

	return pdu, nil
}

// RWProtected reports whether flash_protection's bit 8 (RW protection) is
// asserted.
func (p FirstResponsePDU) RWProtected() bool {
	return p.FlashProtection&flashProtectionRWBit != 0
}

// InBootloader applies the writeable-offset heuristic: a nonzero offset
// indicates the device landed in RO (the bootloader).
func (p FirstResponsePDU) InBootloader() bool {
	return p.WriteableOffset != 0
}

func trimCString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}

	return string(b)
}
