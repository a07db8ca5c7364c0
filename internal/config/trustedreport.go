package config

import (
	"net/url"
	"strings"

	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

// TrustedReportSpec is one parsed `TrustedReports` entry: a set of
// constraints a device report must satisfy to be auto-accepted without a
// human in the loop.
type TrustedReportSpec struct {
	VendorID       string // numeric ID, or "$OEM" to resolve against the running vendor.
	DistroID       string
	DistroVariant  string
	DistroVersion  string
	RemoteID       string
	Flags          []string
}

// trustedReportKeys is the closed set of keys a TrustedReports entry may
// name.
var trustedReportKeys = map[string]bool{
	"VendorId":     true,
	"DistroId":     true,
	"DistroVariant": true,
	"DistroVersion": true,
	"RemoteId":     true,
	"Flags":        true,
}

// OSInfoResolver resolves a `$`-prefixed placeholder (e.g. "$OEM",
// "$DISTRO_ID") against the running system's OS-release information.
type OSInfoResolver func(placeholder string) (string, bool)

// ParseTrustedReports parses the repeated `K=V&K=V…` specs that make up a
// config file's TrustedReports value (GetValueStrv splits entries on ';';
// ParseTrustedReports handles one entry's internal '&'-joined grammar).
// Each entry is parsed with net/url.ParseQuery since the grammar is exactly
// a URL query string; $-prefixed values are resolved through resolve.
func ParseTrustedReports(entry string, resolve OSInfoResolver) (TrustedReportSpec, error) {
	values, err := url.ParseQuery(entry)
	if err != nil {
		return TrustedReportSpec{}, fwupderr.Wrap(fwupderr.InvalidData, err, "parsing TrustedReports entry %q", entry)
	}

	var spec TrustedReportSpec

	for key, vals := range values {
		if !trustedReportKeys[key] {
			return TrustedReportSpec{}, fwupderr.New(fwupderr.InvalidData, "unknown TrustedReports key %q", key)
		}

		if len(vals) == 0 {
			continue
		}

		v, err := resolvePlaceholder(vals[0], resolve)
		if err != nil {
			return TrustedReportSpec{}, err
		}

		switch key {
		case "VendorId":
			spec.VendorID = v
		case "DistroId":
			spec.DistroID = v
		case "DistroVariant":
			spec.DistroVariant = v
		case "DistroVersion":
			spec.DistroVersion = v
		case "RemoteId":
			spec.RemoteID = v
		case "Flags":
			spec.Flags = strings.Split(v, ",")
		}
	}

	return spec, nil
}

func resolvePlaceholder(v string, resolve OSInfoResolver) (string, error) {
	if !strings.HasPrefix(v, "$") {
		return v, nil
	}

	if resolve == nil {
		return "", fwupderr.New(fwupderr.InvalidData, "TrustedReports value %q requires OS-info resolution but none was configured", v)
	}

	resolved, ok := resolve(v)
	if !ok {
		return "", fwupderr.New(fwupderr.InvalidData, "could not resolve TrustedReports placeholder %q", v)
	}

	return resolved, nil
}

// Matches reports whether a candidate report's observed values satisfy
// the spec's VendorID, DistroID, DistroVariant, DistroVersion and RemoteID
// constraints (empty fields on the spec are wildcards). Flags are not
// compared.
func (t TrustedReportSpec) Matches(vendorID, distroID, distroVariant, distroVersion, remoteID string) bool {
	if t.VendorID != "" && t.VendorID != vendorID {
		return false
	}

	if t.DistroID != "" && t.DistroID != distroID {
		return false
	}

	if t.DistroVariant != "" && t.DistroVariant != distroVariant {
		return false
	}

	if t.DistroVersion != "" && t.DistroVersion != distroVersion {
		return false
	}

	if t.RemoteID != "" && t.RemoteID != remoteID {
		return false
	}

	return true
}
