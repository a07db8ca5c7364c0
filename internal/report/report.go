// Package report defines the interface the daemon's trusted-report policy
// targets. The real submission client (network, signing) lives outside
// this module; the daemon only needs a type to validate policy against
// and to hand results to.
package report

import "context"

// Attrs is the metadata attached to one install report.
type Attrs struct {
	VendorID      uint64
	DistroID      string
	DistroVariant string
	DistroVersion string
	RemoteID      string
	Flags         []string
}

// Submitter receives finished install reports.
type Submitter interface {
	// Submit delivers one report; the implementation decides transport
	// and batching.
	Submit(ctx context.Context, deviceID string, success bool, attrs Attrs) error
}

// Discard is a Submitter that drops every report, used when reporting is
// disabled by configuration.
type Discard struct{}

// Submit implements Submitter.
func (Discard) Submit(ctx context.Context, deviceID string, success bool, attrs Attrs) error {
	return nil
}
