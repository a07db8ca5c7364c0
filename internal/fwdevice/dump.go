package fwdevice

import (
	"encoding/json"
	"time"

	"github.com/fwupd/fwupd-go/internal/deviceevent"
	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

// deviceJSON is the top-level per-device emulation dump: identity plus the
// recorded Events[] array. The GType key carries the device's registered
// kind name so a loader knows which device type to instantiate for
// replay.
type deviceJSON struct {
	GType     string               `json:"GType"`
	BackendID string               `json:"BackendId,omitempty"`
	Created   string               `json:"Created"`
	Events    []*deviceevent.Event `json:"Events"`
}

// DumpJSON serializes the device's identity and recorded event log for
// offline emulation. kind names the device type to recreate on load.
func (d *Device) DumpJSON(kind string) ([]byte, error) {
	d.mu.Lock()
	backendID := d.backendID
	created := d.created
	d.mu.Unlock()

	events := []*deviceevent.Event{}
	if d.recorder != nil {
		events = d.recorder.Log().Events()
	}

	out, err := json.MarshalIndent(deviceJSON{
		GType:     kind,
		BackendID: backendID,
		Created:   created.Format(time.RFC3339),
		Events:    events,
	}, "", "  ")
	if err != nil {
		return nil, fwupderr.Wrap(fwupderr.Internal, err, "dump device json")
	}

	return out, nil
}

// LoadedDevice is the parsed form of a DumpJSON blob.
type LoadedDevice struct {
	GType     string
	BackendID string
	Created   time.Time
	Events    []*deviceevent.Event
}

// LoadJSON parses a DumpJSON blob back into its kind name, identity, and
// event list, ready to seed an emulated device's event log.
func LoadJSON(data []byte) (*LoadedDevice, error) {
	var raw deviceJSON

	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fwupderr.Wrap(fwupderr.InvalidFile, err, "parse device json")
	}

	created, err := time.Parse(time.RFC3339, raw.Created)
	if err != nil {
		return nil, fwupderr.Wrap(fwupderr.InvalidData, err, "parse device Created timestamp")
	}

	return &LoadedDevice{
		GType:     raw.GType,
		BackendID: raw.BackendID,
		Created:   created,
		Events:    raw.Events,
	}, nil
}
