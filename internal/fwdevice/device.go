// Package fwdevice implements the device object model: identity,
// instance-ID composition, flags, parent/child composition, scoped
// open/close, retry, inhibit reasons, and event capture/replay for
// emulation.
package fwdevice

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/fwupd/fwupd-go/internal/eventlog"
	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

// Device is one physical or logical firmware-updatable entity.
type Device struct {
	mu sync.Mutex

	id         string
	physicalID string
	logicalID  string
	backendID  string
	name       string
	vendor     string
	summary    string

	vendorIDs []string

	version           string
	versionBootloader string
	versionRaw        uint64
	versionFormat     VersionFormat

	flags        Flag
	privateFlags map[string]bool

	guids       []string
	instanceIDs []string

	parent   *Device
	children []*Device
	proxy    *Device

	inhibits map[string]string // key -> reason

	created     time.Time
	removeDelay time.Duration

	updateState UpdateState
	updateError string

	openFn  func() error
	closeFn func() error
	probeFn func() error
	setupFn func() error
	dumpFn  func() ([]byte, error)

	probed bool

	recorder *eventlog.Recorder
}

// New returns a Device with an empty identity; callers populate it via
// SetPhysicalID/SetLogicalID and AddGUID/AddInstanceID before EnsureID.
func New(recorder *eventlog.Recorder) *Device {
	return &Device{
		privateFlags: map[string]bool{},
		inhibits:     map[string]string{},
		created:      time.Now().UTC(),
		recorder:     recorder,
	}
}

// SetPhysicalID sets the device's physical identity component (e.g. a USB
// topology path). Combined with the logical ID this determines EnsureID's
// stable device_id.
func (d *Device) SetPhysicalID(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.physicalID = id
	d.id = ""
}

// SetLogicalID sets the device's logical identity component (e.g. a
// sub-interface number), distinguishing multiple logical devices sharing
// one physical device.
func (d *Device) SetLogicalID(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logicalID = id
	d.id = ""
}

// SetName sets the device's human-readable label.
func (d *Device) SetName(name string) { d.mu.Lock(); defer d.mu.Unlock(); d.name = name }

// Name returns the device's human-readable label.
func (d *Device) Name() string { d.mu.Lock(); defer d.mu.Unlock(); return d.name }

// EnsureID returns the device's stable identifier, computing it
// deterministically from physical+logical id on first call and caching it
// thereafter: the id is stable across repeated calls and identical for
// two devices that share physical+logical id.
func (d *Device) EnsureID() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.id != "" {
		return d.id, nil
	}

	if d.physicalID == "" {
		return "", fwupderr.New(fwupderr.InvalidData, "ensure_id: physical id not set")
	}

	composite := d.physicalID
	if d.logicalID != "" {
		composite += "|" + d.logicalID
	}

	id, err := BuildInstanceIDFull(InstanceIDGeneric, "DEVICE", [2]string{"ID", composite})
	if err != nil {
		return "", err
	}

	d.id = id

	return d.id, nil
}

// AddGUID appends guid to the device's GUID list if not already present.
func (d *Device) AddGUID(guid string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, g := range d.guids {
		if g == guid {
			return
		}
	}

	d.guids = append(d.guids, guid)
}

// GUIDs returns a snapshot of the device's GUID list.
func (d *Device) GUIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]string, len(d.guids))
	copy(out, d.guids)
	return out
}

// AddInstanceIDFull composes an instance ID via BuildInstanceIDFull and
// records its GUID, adding that GUID to the device's GUID list
// when flags mark it Visible or Quirks-eligible (both are exposed
// identities; a purely Generic instance ID is retained for matching only).
func (d *Device) AddInstanceIDFull(flags InstanceIDFlag, subsystem string, pairs ...[2]string) error {
	guid, err := BuildInstanceIDFull(flags, subsystem, pairs...)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.instanceIDs = append(d.instanceIDs, guid)
	d.mu.Unlock()

	if flags&(InstanceIDVisible|InstanceIDQuirks) != 0 {
		d.AddGUID(guid)
	}

	return nil
}

// InstanceIDs returns a snapshot of the GUID of every composed instance ID,
// in composition order.
func (d *Device) InstanceIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]string, len(d.instanceIDs))
	copy(out, d.instanceIDs)
	return out
}

// SetFlag sets or clears a public flag bit.
func (d *Device) SetFlag(bit Flag, on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if on {
		d.flags = d.flags.Set(bit)
	} else {
		d.flags = d.flags.Clear(bit)
	}
}

// HasFlag reports whether a public flag bit is set.
func (d *Device) HasFlag(bit Flag) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flags.Has(bit)
}

// SetPrivateFlag sets or clears a plugin-declared private flag. Setting
// an unregistered name is a programming error surfaced as Internal.
func (d *Device) SetPrivateFlag(name string, on bool) error {
	if !isRegisteredPrivateFlag(name) {
		return fwupderr.New(fwupderr.Internal, "private flag %q was never registered", name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if on {
		d.privateFlags[name] = true
	} else {
		delete(d.privateFlags, name)
	}

	return nil
}

// HasPrivateFlag reports whether a private flag is currently set.
func (d *Device) HasPrivateFlag(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.privateFlags[name]
}

// SetProxy sets the device used to perform I/O on this device's behalf
// (e.g. a composite device's parent transport).
func (d *Device) SetProxy(proxy *Device) { d.mu.Lock(); defer d.mu.Unlock(); d.proxy = proxy }

// Proxy returns the proxy device, or nil.
func (d *Device) Proxy() *Device { d.mu.Lock(); defer d.mu.Unlock(); return d.proxy }

// AddChild appends child to this device's children and sets its parent
// pointer.
func (d *Device) AddChild(child *Device) {
	d.mu.Lock()
	d.children = append(d.children, child)
	d.mu.Unlock()

	child.mu.Lock()
	child.parent = d
	child.mu.Unlock()
}

// Children returns a snapshot of the device's direct children.
func (d *Device) Children() []*Device {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]*Device, len(d.children))
	copy(out, d.children)
	return out
}

// Parent returns the device's parent, or nil for a top-level device.
func (d *Device) Parent() *Device { d.mu.Lock(); defer d.mu.Unlock(); return d.parent }

// Inhibit marks the device unusable for reason, keyed by key so multiple
// independent inhibitors can coexist; Uninhibit only clears its own key.
func (d *Device) Inhibit(key, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inhibits[key] = reason
}

// Uninhibit clears the inhibit registered under key.
func (d *Device) Uninhibit(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inhibits, key)
}

// IsInhibited reports whether any inhibit key is currently set.
func (d *Device) IsInhibited() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inhibits) > 0
}

// InhibitReasons returns a snapshot map of key -> reason for every active
// inhibit.
func (d *Device) InhibitReasons() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]string, len(d.inhibits))
	for k, v := range d.inhibits {
		out[k] = v
	}

	return out
}

// Recorder returns the device's event recorder, used by transports to
// replay or capture calls under emulation.
func (d *Device) Recorder() *eventlog.Recorder { return d.recorder }

// SetBackendID sets the backend identity, typically the device's sysfs
// path.
func (d *Device) SetBackendID(id string) { d.mu.Lock(); defer d.mu.Unlock(); d.backendID = id }

// BackendID returns the backend identity.
func (d *Device) BackendID() string { d.mu.Lock(); defer d.mu.Unlock(); return d.backendID }

// SetVendor sets the device's vendor label.
func (d *Device) SetVendor(vendor string) { d.mu.Lock(); defer d.mu.Unlock(); d.vendor = vendor }

// Vendor returns the device's vendor label.
func (d *Device) Vendor() string { d.mu.Lock(); defer d.mu.Unlock(); return d.vendor }

// SetSummary sets the device's one-line description.
func (d *Device) SetSummary(summary string) { d.mu.Lock(); defer d.mu.Unlock(); d.summary = summary }

// Summary returns the device's one-line description.
func (d *Device) Summary() string { d.mu.Lock(); defer d.mu.Unlock(); return d.summary }

// AddVendorID appends a vendor ID (e.g. "USB:0x18D1") if not already
// present.
func (d *Device) AddVendorID(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, v := range d.vendorIDs {
		if v == id {
			return
		}
	}

	d.vendorIDs = append(d.vendorIDs, id)
}

// VendorIDs returns a snapshot of the vendor ID list.
func (d *Device) VendorIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]string, len(d.vendorIDs))
	copy(out, d.vendorIDs)
	return out
}

// Created returns the device object's creation timestamp.
func (d *Device) Created() time.Time { d.mu.Lock(); defer d.mu.Unlock(); return d.created }

// SetRemoveDelay sets how long the runtime keeps the device object alive
// after an unplug before destroying it, so a replug during an update is
// matched back to the same object.
func (d *Device) SetRemoveDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeDelay = delay
}

// RemoveDelay returns the unplug debounce delay.
func (d *Device) RemoveDelay() time.Duration { d.mu.Lock(); defer d.mu.Unlock(); return d.removeDelay }

// SetUpdateState records the outcome of the last install attempt, kept
// separately from write_firmware's synchronous return so a later
// get_results hook can report it.
func (d *Device) SetUpdateState(state UpdateState, message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updateState = state
	d.updateError = message
}

// UpdateState returns the last recorded install outcome and its error
// message, if any.
func (d *Device) UpdateState() (UpdateState, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.updateState, d.updateError
}

// SetOpenFuncs registers the transport-specific open and close functions
// Open wraps in a Locker.
func (d *Device) SetOpenFuncs(openFn, closeFn func() error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openFn = openFn
	d.closeFn = closeFn
}

// Open acquires the device through its registered open function, returning
// a Locker whose Close releases it on every exit path. An emulated device
// opens without touching hardware: the registered functions are skipped
// entirely since all I/O resolves through the event log.
func (d *Device) Open() (*Locker, error) {
	d.mu.Lock()
	openFn, closeFn := d.openFn, d.closeFn
	emulated := d.flags.Has(FlagEmulated)
	d.mu.Unlock()

	if emulated {
		return &Locker{}, nil
	}

	if openFn == nil {
		return nil, fwupderr.New(fwupderr.NotSupported, "device has no open function")
	}

	return NewLocker(openFn, closeFn)
}

// SetProbeFunc registers the backend-specific probe step: descriptor and
// sysfs reads that build the device's instance IDs.
func (d *Device) SetProbeFunc(probeFn func() error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.probeFn = probeFn
}

// SetSetupFunc registers the transport-dependent setup step that fills
// version and name once the device is open.
func (d *Device) SetSetupFunc(setupFn func() error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setupFn = setupFn
}

// SetDumpFirmwareFunc registers the firmware read-back implementation.
func (d *Device) SetDumpFirmwareFunc(dumpFn func() ([]byte, error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dumpFn = dumpFn
}

// Probe runs the registered probe step once; repeated calls are no-ops
// until Rescan clears the probed state. A device with no probe step
// probes trivially.
func (d *Device) Probe() error {
	d.mu.Lock()
	probeFn, probed := d.probeFn, d.probed
	d.mu.Unlock()

	if probed {
		return nil
	}

	if probeFn != nil {
		if err := probeFn(); err != nil {
			return err
		}
	}

	d.mu.Lock()
	d.probed = true
	d.mu.Unlock()

	return nil
}

// Setup runs the registered setup step. Callers open the device first;
// a device with no setup step sets up trivially.
func (d *Device) Setup() error {
	d.mu.Lock()
	setupFn := d.setupFn
	d.mu.Unlock()

	if setupFn == nil {
		return nil
	}

	return setupFn()
}

// Rescan clears the probed state and probes again, picking up identity
// changes after a firmware update.
func (d *Device) Rescan() error {
	d.mu.Lock()
	d.probed = false
	d.mu.Unlock()

	return d.Probe()
}

// DumpFirmware reads back the device's current firmware image.
func (d *Device) DumpFirmware() ([]byte, error) {
	d.mu.Lock()
	dumpFn := d.dumpFn
	d.mu.Unlock()

	if dumpFn == nil {
		return nil, fwupderr.New(fwupderr.NotSupported, "device cannot dump firmware")
	}

	return dumpFn()
}

// Incorporate copies identity and version fields from donor into d, but
// only where d's field is still at its zero value — the donor-merge
// rule. Flags and private flags are OR-merged: a flag set on the donor
// is set on d.
func (d *Device) Incorporate(donor *Device) {
	donor.mu.Lock()
	snapshot := &Device{
		physicalID:        donor.physicalID,
		logicalID:         donor.logicalID,
		backendID:         donor.backendID,
		name:              donor.name,
		vendor:            donor.vendor,
		summary:           donor.summary,
		vendorIDs:         append([]string(nil), donor.vendorIDs...),
		guids:             append([]string(nil), donor.guids...),
		instanceIDs:       append([]string(nil), donor.instanceIDs...),
		version:           donor.version,
		versionBootloader: donor.versionBootloader,
		versionRaw:        donor.versionRaw,
		versionFormat:     donor.versionFormat,
		flags:             donor.flags,
		privateFlags:      make(map[string]bool, len(donor.privateFlags)),
	}
	for k, v := range donor.privateFlags {
		snapshot.privateFlags[k] = v
	}
	donor.mu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.physicalID == "" {
		d.physicalID = snapshot.physicalID
	}
	if d.logicalID == "" {
		d.logicalID = snapshot.logicalID
	}
	if d.backendID == "" {
		d.backendID = snapshot.backendID
	}
	if d.name == "" {
		d.name = snapshot.name
	}
	if d.vendor == "" {
		d.vendor = snapshot.vendor
	}
	if d.summary == "" {
		d.summary = snapshot.summary
	}
	if len(d.vendorIDs) == 0 {
		d.vendorIDs = snapshot.vendorIDs
	}
	if len(d.guids) == 0 {
		d.guids = snapshot.guids
	}
	if len(d.instanceIDs) == 0 {
		d.instanceIDs = snapshot.instanceIDs
	}
	if d.version == "" {
		d.version = snapshot.version
	}
	if d.versionBootloader == "" {
		d.versionBootloader = snapshot.versionBootloader
	}
	if d.versionRaw == 0 {
		d.versionRaw = snapshot.versionRaw
	}
	if d.versionFormat == VersionFormatUnknown {
		d.versionFormat = snapshot.versionFormat
	}

	d.flags |= snapshot.flags

	for name, set := range snapshot.privateFlags {
		if set {
			d.privateFlags[name] = true
		}
	}
}

// SetQuirkKV applies one Key=Value quirk line to the device, e.g. from a
// matched quirk entry or a DS20 descriptor blob. Unknown keys are an
// error so a malformed vendor blob is rejected rather than silently
// ignored.
func (d *Device) SetQuirkKV(key, value string) error {
	switch key {
	case "Name":
		d.SetName(value)
	case "Summary":
		d.SetSummary(value)
	case "Vendor":
		d.SetVendor(value)
	case "VendorId":
		d.AddVendorID(value)
	case "Guid":
		d.AddGUID(value)
	case "RemoveDelay":
		ms, err := strconv.ParseUint(value, 0, 32)
		if err != nil {
			return fwupderr.Wrap(fwupderr.InvalidData, err, "quirk RemoveDelay %q", value)
		}
		d.SetRemoveDelay(time.Duration(ms) * time.Millisecond)
	case "VersionFormat":
		format, err := VersionFormatFromString(value)
		if err != nil {
			return err
		}
		d.SetVersionFormat(format)
	default:
		return fwupderr.New(fwupderr.NotSupported, "unknown quirk key %q", key)
	}

	return nil
}

// SortedChildIDs returns the device IDs of children in sorted order, used
// by dump-to-JSON code to present a stable Children list.
func SortedChildIDs(children []*Device) []string {
	ids := make([]string, 0, len(children))

	for _, c := range children {
		id, err := c.EnsureID()
		if err == nil {
			ids = append(ids, id)
		}
	}

	sort.Strings(ids)

	return ids
}
