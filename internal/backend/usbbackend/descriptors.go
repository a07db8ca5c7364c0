package usbbackend

import (
	"encoding/binary"

	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

// DeviceDescriptor is the parsed USB device descriptor.
type DeviceDescriptor struct {
	VendorID      uint16
	ProductID     uint16
	BCDDevice     uint16
	BCDUSB        uint16
	Class         uint8
	IManufacturer uint8
	IProduct      uint8
	ISerialNumber uint8
}

// ParseDeviceDescriptor parses the 18-byte USB device descriptor.
func ParseDeviceDescriptor(b []byte) (DeviceDescriptor, error) {
	if len(b) < 18 || b[1] != 0x01 {
		return DeviceDescriptor{}, fwupderr.New(fwupderr.InvalidData, "malformed device descriptor")
	}

	return DeviceDescriptor{
		BCDUSB:        binary.LittleEndian.Uint16(b[2:4]),
		Class:         b[4],
		VendorID:      binary.LittleEndian.Uint16(b[8:10]),
		ProductID:     binary.LittleEndian.Uint16(b[10:12]),
		BCDDevice:     binary.LittleEndian.Uint16(b[12:14]),
		IManufacturer: b[14],
		IProduct:      b[15],
		ISerialNumber: b[16],
	}, nil
}

// Endpoint is one parsed endpoint descriptor.
type Endpoint struct {
	Address       uint8
	Attributes    uint8
	MaxPacketSize uint16
	Interval      uint8
}

// Interface is one parsed interface descriptor and its endpoints.
type Interface struct {
	Number     uint8
	AltSetting uint8
	Class      uint8
	SubClass   uint8
	Protocol   uint8
	Endpoints  []Endpoint
}

// ConfigDescriptor is a parsed active configuration descriptor: its
// interfaces and their endpoints, cached as owned objects during probe
// §4.3's probe step.
type ConfigDescriptor struct {
	Interfaces []Interface
}

// Descriptor type codes (USB 2.0 spec table 9-5).
const (
	descTypeConfig    = 0x02
	descTypeInterface = 0x04
	descTypeEndpoint  = 0x05
	descTypeBOS       = 0x0f
	descTypeDevCap    = 0x10
)

// ParseConfigDescriptor walks the active configuration descriptor's
// interface and endpoint sub-descriptors.
func ParseConfigDescriptor(b []byte) (ConfigDescriptor, error) {
	var cfg ConfigDescriptor
	var current *Interface

	for i := 0; i+2 <= len(b); {
		length := int(b[i])
		if length == 0 || i+length > len(b) {
			break
		}

		descType := b[i+1]

		switch descType {
		case descTypeInterface:
			if length < 9 {
				return cfg, fwupderr.New(fwupderr.InvalidData, "malformed interface descriptor")
			}

			cfg.Interfaces = append(cfg.Interfaces, Interface{
				Number:     b[i+2],
				AltSetting: b[i+3],
				Class:      b[i+5],
				SubClass:   b[i+6],
				Protocol:   b[i+7],
			})
			current = &cfg.Interfaces[len(cfg.Interfaces)-1]
		case descTypeEndpoint:
			if length < 7 {
				return cfg, fwupderr.New(fwupderr.InvalidData, "malformed endpoint descriptor")
			}

			if current == nil {
				return cfg, fwupderr.New(fwupderr.InvalidData, "endpoint descriptor before any interface")
			}

			current.Endpoints = append(current.Endpoints, Endpoint{
				Address:       b[i+2],
				Attributes:    b[i+3],
				MaxPacketSize: binary.LittleEndian.Uint16(b[i+4 : i+6]),
				Interval:      b[i+6],
			})
		}

		i += length
	}

	return cfg, nil
}

// PlatformCapability is one BOS platform-capability descriptor.
type PlatformCapability struct {
	UUID        [16]byte
	PlatformVer uint32
	VendorCode  uint8
	Raw         []byte
}

// fwDS20UUID and msDS20UUID are the platform-capability UUIDs
// names for the DS20 quirk-blob descriptor, reproduced byte-for-byte in
// the wire order fwupd compares them in (little-endian UUID fields).
var (
	fwDS20UUID = [16]byte{0x84, 0xda, 0x41, 0xe0, 0x7e, 0x6f, 0x1c, 0x43, 0x85, 0x26, 0xba, 0xd0, 0x02, 0x75, 0x33, 0x1b}
	msDS20UUID = [16]byte{0x88, 0x32, 0xb2, 0x1f, 0x71, 0x6b, 0x7f, 0x4b, 0x9c, 0xd3, 0x92, 0x64, 0x28, 0x2e, 0xf2, 0x94}
)

// ParseBOSPlatformCapabilities walks a BOS descriptor's platform-capability
// sub-descriptors, walked only for bcdUSB > 0x0200 devices.
func ParseBOSPlatformCapabilities(b []byte) []PlatformCapability {
	var caps []PlatformCapability

	for i := 0; i+3 <= len(b); {
		length := int(b[i])
		if length == 0 || i+length > len(b) {
			break
		}

		if b[i+1] == descTypeDevCap && length >= 20 && b[i+2] == 0x05 {
			var uuid [16]byte
			copy(uuid[:], b[i+3:i+19])

			caps = append(caps, PlatformCapability{
				UUID: uuid,
				Raw:  b[i : i+length],
			})
		}

		i += length
	}

	return caps
}

// SelectFwDS20 picks the newest fw-DS20 capability whose PlatformVer is at
// most currentVersion and at least lowerBound, honoring the
// "sorted by platform_ver descending" selection rule. The capability's
// PlatformVer/VendorCode fields must already be populated by the caller
// from the raw descriptor's vendor-specific trailer (offset 19 onward),
// since that trailer's layout is itself vendor-specific.
func SelectFwDS20(caps []PlatformCapability, lowerBound, currentVersion uint32) (PlatformCapability, bool) {
	var best PlatformCapability
	found := false

	for _, c := range caps {
		if c.UUID != fwDS20UUID {
			continue
		}

		if c.PlatformVer > currentVersion || c.PlatformVer < lowerBound {
			continue
		}

		if !found || c.PlatformVer > best.PlatformVer {
			best = c
			found = true
		}
	}

	return best, found
}
