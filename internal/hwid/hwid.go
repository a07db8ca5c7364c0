package hwid

import (
	"sort"
	"strings"
)

// Well-known SMBIOS-derived domain keys.
const (
	KeyBiosVendor            = "BiosVendor"
	KeyBiosVersion           = "BiosVersion"
	KeyBiosMajorRelease       = "BiosMajorRelease"
	KeyBiosMinorRelease       = "BiosMinorRelease"
	KeyFirmwareMajorRelease   = "FirmwareMajorRelease"
	KeyFirmwareMinorRelease   = "FirmwareMinorRelease"
	KeyManufacturer           = "Manufacturer"
	KeyFamily                 = "Family"
	KeyProductName            = "ProductName"
	KeyProductSku             = "ProductSku"
	KeyEnclosureKind          = "EnclosureKind"
	KeyBaseboardManufacturer = "BaseboardManufacturer"
	KeyBaseboardProduct      = "BaseboardProduct"
)

// Map is the set of domain key->value pairs gathered from SMBIOS.
type Map map[string]string

// catalog holds the fixed CHID pattern name -> ampersand-joined key
// list: the Windows 10 CHID set plus the fwupd-* extras.
var catalog = map[string][]string{
	"HardwareID-00": {KeyManufacturer, KeyFamily, KeyProductName, KeyProductSku, KeyBiosVendor, KeyBiosVersion, KeyBiosMajorRelease, KeyBiosMinorRelease},
	"HardwareID-01": {KeyManufacturer, KeyFamily, KeyProductName, KeyBiosVendor, KeyBiosVersion, KeyBiosMajorRelease, KeyBiosMinorRelease},
	"HardwareID-02": {KeyManufacturer, KeyProductName, KeyBiosVendor, KeyBiosVersion, KeyBiosMajorRelease, KeyBiosMinorRelease},
	"HardwareID-03": {KeyManufacturer, KeyFamily, KeyProductName, KeyProductSku, KeyBaseboardManufacturer, KeyBaseboardProduct},
	"HardwareID-04": {KeyManufacturer, KeyFamily, KeyProductName, KeyProductSku},
	"HardwareID-05": {KeyManufacturer, KeyFamily, KeyProductName},
	"HardwareID-06": {KeyManufacturer, KeyProductSku, KeyBaseboardManufacturer, KeyBaseboardProduct},
	"HardwareID-07": {KeyManufacturer, KeyProductSku},
	"HardwareID-08": {KeyManufacturer, KeyProductName, KeyBaseboardManufacturer, KeyBaseboardProduct},
	"HardwareID-09": {KeyManufacturer, KeyProductName},
	"HardwareID-10": {KeyManufacturer, KeyFamily, KeyBaseboardManufacturer, KeyBaseboardProduct},
	"HardwareID-11": {KeyManufacturer, KeyFamily},
	"HardwareID-12": {KeyManufacturer, KeyEnclosureKind},
	"HardwareID-13": {KeyManufacturer, KeyBaseboardManufacturer, KeyBaseboardProduct},
	"HardwareID-14": {KeyManufacturer},
	"fwupd-04":       {KeyManufacturer, KeyFamily, KeyProductName, KeyProductSku, KeyBiosVendor},
	"fwupd-05":       {KeyManufacturer, KeyFamily, KeyProductName, KeyBiosVendor},
	"fwupd-14":       {KeyManufacturer, KeyBiosVendor},
}

// PatternNames returns the sorted set of CHID pattern names.
func PatternNames() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Expand builds the ampersand-joined composite key for a CHID pattern
// given the current set of domain values. The second return is false if
// any required key is missing: the expansion fails closed rather than
// hashing a partial key.
func Expand(pattern string, values Map) (string, bool) {
	keys, ok := catalog[pattern]
	if !ok {
		return "", false
	}

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, ok := values[k]
		if !ok || v == "" {
			return "", false
		}

		parts = append(parts, v)
	}

	return strings.Join(parts, "&"), true
}

// CHID computes the GUID for a single named pattern against the given
// domain values, or ("", false) if a required key is missing.
func CHID(pattern string, values Map) (string, bool) {
	composite, ok := Expand(pattern, values)
	if !ok {
		return "", false
	}

	return FromString(composite), true
}

// AllCHIDs computes every catalog pattern that can be satisfied by values,
// keyed by pattern name.
func AllCHIDs(values Map) map[string]string {
	out := map[string]string{}
	for pattern := range catalog {
		if guid, ok := CHID(pattern, values); ok {
			out[pattern] = guid
		}
	}

	return out
}
