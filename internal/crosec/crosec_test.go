package crosec

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmartTrimKeepsOneSentinelByte(t *testing.T) {
	payload := make([]byte, 1024)

	for i := 0; i < 1024; i++ {
		payload = append(payload, 0xff)
	}

	trimmed := SmartTrim(payload)
	assert.Equal(t, 1025, len(trimmed))
	assert.Equal(t, byte(0xff), trimmed[len(trimmed)-1])
}

func TestSmartTrimNeverEmptiesPayload(t *testing.T) {
	payload := []byte{0xff, 0xff, 0xff}
	trimmed := SmartTrim(payload)
	assert.Equal(t, []byte{0xff}, trimmed)
}

func TestChunkBlockSplitsEvenly(t *testing.T) {
	block := make([]byte, 10)
	chunks := ChunkBlock(block, 4)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 4)
	assert.Len(t, chunks[2], 2)
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("cheese_v1.1.1755-4da9520+")
	require.NoError(t, err)
	assert.Equal(t, "cheese", v.Board)
	assert.Equal(t, "1.1.1755", v.Triplet)
	assert.Equal(t, "4da9520", v.SHA1)
	assert.True(t, v.Dirty)
}

func TestParseVersionCleanTree(t *testing.T) {
	v, err := ParseVersion("hammer_v2.0.0-abcdef1")
	require.NoError(t, err)
	assert.False(t, v.Dirty)
}

func TestParseVersionRejectsMalformed(t *testing.T) {
	_, err := ParseVersion("not-a-version")
	assert.Error(t, err)
}

func buildFirstResponsePDU(protocolVersion uint16, flashProtection, writeableOffset, returnValue uint32) []byte {
	b := make([]byte, 2+4+4+4+32+4)
	binary.BigEndian.PutUint16(b[0:2], protocolVersion)
	binary.BigEndian.PutUint32(b[2:6], 0x1000)
	binary.BigEndian.PutUint32(b[6:10], flashProtection)
	binary.BigEndian.PutUint32(b[10:14], writeableOffset)
	copy(b[14:46], []byte("RO"))
	binary.BigEndian.PutUint32(b[46:50], returnValue)
	return b
}

func TestParseFirstResponsePDU(t *testing.T) {
	b := buildFirstResponsePDU(6, 0x100, 0x40000, 0)

	pdu, err := ParseFirstResponsePDU(b)
	require.NoError(t, err)
	assert.Equal(t, uint16(6), pdu.ProtocolVersion)
	assert.True(t, pdu.RWProtected())
	assert.True(t, pdu.InBootloader())
	assert.Equal(t, "RO", pdu.Version)
}

func TestParseFirstResponsePDURejectsUnsupportedVersion(t *testing.T) {
	b := buildFirstResponsePDU(4, 0, 0, 0)
	_, err := ParseFirstResponsePDU(b)
	assert.Error(t, err)
}

func TestParseFirstResponsePDURejectsNonzeroReturn(t *testing.T) {
	b := buildFirstResponsePDU(6, 0, 0, 1)
	_, err := ParseFirstResponsePDU(b)
	assert.Error(t, err)
}

func TestSessionUnlockRWWhenProtectedNotInBootloader(t *testing.T) {
	result := Step(StateReady, SessionInputs{NeedRW: true, InBootloader: false, RWProtected: true})
	assert.Equal(t, StateUnlockRW, result.Next)

	next := Step(result.Next, SessionInputs{})
	assert.True(t, next.AnotherWriteRequired)
}

func TestSessionWriteROOnlyPath(t *testing.T) {
	result := Step(StateReady, SessionInputs{NeedRO: true})
	assert.Equal(t, StateWriteRO, result.Next)

	result = Step(result.Next, SessionInputs{})
	assert.Equal(t, StateResetToRO, result.Next)

	result = Step(result.Next, SessionInputs{})
	assert.Equal(t, SubcommandImmediateReset, result.Subcommand)
	assert.True(t, result.WaitReplug)
	assert.Equal(t, StateIdle, result.Next)
}

func TestSessionWriteRWInBootloaderUnprotected(t *testing.T) {
	result := Step(StateReady, SessionInputs{NeedRW: true, InBootloader: true, RWProtected: false})
	assert.Equal(t, StateWriteRW, result.Next)

	result = Step(result.Next, SessionInputs{RWProtected: false})
	assert.True(t, result.Done)
}

func TestSessionSpecialAfterRWWrittenInBootloader(t *testing.T) {
	result := Step(StateReady, SessionInputs{RWWritten: true, InBootloader: true})
	assert.Equal(t, StateSpecial, result.Next)

	result = Step(result.Next, SessionInputs{})
	assert.True(t, result.WaitReplug)
	assert.True(t, result.Done)
}
