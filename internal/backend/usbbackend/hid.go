package usbbackend

import (
	"encoding/binary"

	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

// reportDescriptorType is bDescriptorType=0x22 (HID "Report").
const reportDescriptorType = 0x22

// hidGetDescriptor is the standard GET_DESCRIPTOR request code.
const hidGetDescriptor = 0x06

// ReportDescriptorLength reads the little-endian 16-bit length at offset 7
// of a class-specific HID descriptor's first report-descriptor trailer
// entry.
func ReportDescriptorLength(hidDescriptor []byte) (uint16, error) {
	if len(hidDescriptor) < 9 {
		return 0, fwupderr.New(fwupderr.InvalidData, "HID descriptor too short")
	}

	return binary.LittleEndian.Uint16(hidDescriptor[7:9]), nil
}

// FetchReportDescriptor issues GET_DESCRIPTOR(REPORT) against ifaceNum
// after reading length from the class-specific HID descriptor trailer.
func FetchReportDescriptor(t *Transport, ifaceNum uint8, hidDescriptor []byte, timeoutMs int) ([]byte, error) {
	length, err := ReportDescriptorLength(hidDescriptor)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, length)

	value := uint16(reportDescriptorType)<<8 | 0x00

	n, err := t.Control(DirectionIn, RequestTypeStandard, RecipientInterface, hidGetDescriptor, value, uint16(ifaceNum), buf, timeoutMs)
	if err != nil {
		return nil, err
	}

	return buf[:n], nil
}
