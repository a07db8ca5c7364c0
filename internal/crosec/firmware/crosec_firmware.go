package firmware

import "github.com/fwupd/fwupd-go/internal/fwupderr"

// SectionName is one of the two Cros-EC firmware regions.
type SectionName string

// Section names, matching the FMAP area names EC images carry.
const (
	SectionRO SectionName = "EC_RO"
	SectionRW SectionName = "EC_RW"
)

var fwidAreaName = map[SectionName]string{
	SectionRO: "RO_FRID",
	SectionRW: "RW_FWID",
}

// Section is one parsed, offset-addressable Cros-EC firmware region.
type Section struct {
	Name     SectionName
	Offset   uint32
	Size     uint32
	Payload  []byte
	FWID     string
	Needed   bool
}

// Firmware is a parsed Cros-EC firmware image: its two FMAP-addressed
// sections plus each section's raw version ID string.
type Firmware struct {
	RO Section
	RW Section
}

// ParseImage reads raw's EC_RO/EC_RW FMAP areas (and their RO_FRID/RW_FWID
// sibling areas) into a Firmware.
func ParseImage(raw []byte) (*Firmware, error) {
	fmapImg, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	fw := &Firmware{}

	for _, sec := range []SectionName{SectionRO, SectionRW} {
		area, ok := fmapImg.Area(string(sec))
		if !ok {
			return nil, fwupderr.New(fwupderr.InvalidData, "%s image not found", sec)
		}

		payload, err := area.Bytes(raw)
		if err != nil {
			return nil, err
		}

		fwidArea, ok := fmapImg.Area(fwidAreaName[sec])
		if !ok {
			return nil, fwupderr.New(fwupderr.InvalidData, "%s image not found", fwidAreaName[sec])
		}

		fwidRaw, err := fwidArea.Bytes(raw)
		if err != nil {
			return nil, err
		}

		section := Section{
			Name:    sec,
			Offset:  area.Offset,
			Size:    area.Size,
			Payload: payload,
			FWID:    trimCString(fwidRaw),
		}

		if sec == SectionRO {
			fw.RO = section
		} else {
			fw.RW = section
		}
	}

	return fw, nil
}

// PickSections marks RO/RW Needed according to writeableOffset: the
// section whose Offset matches writeableOffset is needed. No section
// matching at all means the image does not fit this device.
func (fw *Firmware) PickSections(writeableOffset uint32) error {
	matched := false

	if fw.RO.Offset == writeableOffset {
		fw.RO.Needed = true
		matched = true
	}

	if fw.RW.Offset == writeableOffset {
		fw.RW.Needed = true
		matched = true
	}

	if !matched {
		return fwupderr.New(fwupderr.InvalidData, "no section matches writeable_offset 0x%x", writeableOffset)
	}

	return nil
}
