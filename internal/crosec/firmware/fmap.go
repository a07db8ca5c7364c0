// Package firmware parses FMAP-indexed Cros-EC firmware images: the flat
// offset/size area table coreboot/flashmap defines, used here to locate
// the EC_RO/EC_RW sections and RO_FRID/RW_FWID version strings.
package firmware

import (
	"bytes"
	"encoding/binary"

	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

const fmapSignature = "__FMAP__"

// areaNameLen is the fixed area-name field width the flashmap format uses.
const areaNameLen = 32

// Area is one named FMAP region.
type Area struct {
	Name   string
	Offset uint32
	Size   uint32
	Flags  uint16
}

// Image is a parsed FMAP table: the image's declared base/size plus its
// area list, in on-disk order.
type Image struct {
	Base  uint64
	Size  uint32
	Name  string
	Areas []Area
}

// Parse locates the "__FMAP__" signature anywhere in data and parses the
// header and area table that follow it.
func Parse(data []byte) (*Image, error) {
	idx := bytes.Index(data, []byte(fmapSignature))
	if idx < 0 {
		return nil, fwupderr.New(fwupderr.InvalidData, "no FMAP signature found")
	}

	// header: signature(8) + ver_major(1) + ver_minor(1) + base(8) + size(4) + name(32) + nareas(2)
	const headerLen = 8 + 1 + 1 + 8 + 4 + 32 + 2

	if idx+headerLen > len(data) {
		return nil, fwupderr.New(fwupderr.InvalidData, "truncated FMAP header")
	}

	h := data[idx:]

	base := binary.LittleEndian.Uint64(h[10:18])
	size := binary.LittleEndian.Uint32(h[18:22])
	name := trimCString(h[22:54])
	nareas := binary.LittleEndian.Uint16(h[54:56])

	img := &Image{Base: base, Size: size, Name: name}

	const areaLen = 4 + 4 + areaNameLen + 2
	off := idx + headerLen

	for i := 0; i < int(nareas); i++ {
		if off+areaLen > len(data) {
			return nil, fwupderr.New(fwupderr.InvalidData, "truncated FMAP area table")
		}

		a := data[off : off+areaLen]

		img.Areas = append(img.Areas, Area{
			Offset: binary.LittleEndian.Uint32(a[0:4]),
			Size:   binary.LittleEndian.Uint32(a[4:8]),
			Name:   trimCString(a[8 : 8+areaNameLen]),
			Flags:  binary.LittleEndian.Uint16(a[8+areaNameLen : areaLen]),
		})

		off += areaLen
	}

	return img, nil
}

// Area returns the named area, or false if absent.
func (img *Image) Area(name string) (Area, bool) {
	for _, a := range img.Areas {
		if a.Name == name {
			return a, true
		}
	}

	return Area{}, false
}

// Bytes slices raw according to a's offset/size, bounds-checked against
// the backing image data.
func (a Area) Bytes(raw []byte) ([]byte, error) {
	if int(a.Offset)+int(a.Size) > len(raw) {
		return nil, fwupderr.New(fwupderr.InvalidData, "area %q out of bounds", a.Name)
	}

	return raw[a.Offset : a.Offset+a.Size], nil
}

func trimCString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}

	return string(b)
}
