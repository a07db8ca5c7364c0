// Package backend defines the common device-arrival shape shared by every
// enumeration/monitor backend (udevbackend, usbbackend), so the plugin
// runtime can dispatch BackendDeviceAdded/Changed/Removed hooks without
// depending on either backend's concrete event type.
package backend

// Device is one backend-reported device, reduced to the identity and
// property lookup every plugin's backend_device_added probe needs.
type Device struct {
	Syspath    string
	Devnode    string
	Subsystem  string
	Properties map[string]string
}

// Property returns a udev-style property value and whether it was present.
func (d Device) Property(key string) (string, bool) {
	v, ok := d.Properties[key]
	return v, ok
}
