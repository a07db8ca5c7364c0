package hwid

import (
	"fmt"
	"sync"

	"github.com/jaypipes/pcidb"
)

// VendorLookup resolves PCI vendor/device/subsystem IDs to human-readable
// names for device labels and diagnostics, using
// the system's PCI ID database rather than a hand-maintained table.
type VendorLookup struct {
	once sync.Once
	err  error
	db   *pcidb.PCIDB
}

// NewVendorLookup returns a lazily-initialized lookup. The database load is
// deferred to the first call since it touches disk (/usr/share/hwdata or
// pcidb's bundled copy) and most processes never query PCI names.
func NewVendorLookup() *VendorLookup {
	return &VendorLookup{}
}

func (v *VendorLookup) ensure() error {
	v.once.Do(func() {
		v.db, v.err = pcidb.New()
	})

	return v.err
}

// VendorName returns the human-readable vendor name for a 4-hex-digit PCI
// vendor ID (e.g. "8086"), or ok=false if the database is unavailable or the
// ID is unknown.
func (v *VendorLookup) VendorName(vendorID string) (string, bool) {
	if err := v.ensure(); err != nil {
		return "", false
	}

	vendor, ok := v.db.Vendors[vendorID]
	if !ok {
		return "", false
	}

	return vendor.Name, true
}

// ProductName returns the human-readable product name for a vendor/device
// ID pair, or ok=false if either is unknown.
func (v *VendorLookup) ProductName(vendorID, deviceID string) (string, bool) {
	if err := v.ensure(); err != nil {
		return "", false
	}

	vendor, ok := v.db.Vendors[vendorID]
	if !ok {
		return "", false
	}

	for _, product := range vendor.Products {
		if product.ID == deviceID {
			return product.Name, true
		}
	}

	return "", false
}

// Label formats a best-effort "Vendor Product" string, falling back to the
// raw hex IDs for any component the database can't resolve.
func (v *VendorLookup) Label(vendorID, deviceID string) string {
	vendorName, ok := v.VendorName(vendorID)
	if !ok {
		vendorName = fmt.Sprintf("[%s]", vendorID)
	}

	productName, ok := v.ProductName(vendorID, deviceID)
	if !ok {
		productName = fmt.Sprintf("[%s]", deviceID)
	}

	return vendorName + " " + productName
}
