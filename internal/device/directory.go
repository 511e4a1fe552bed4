package device

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hertzlab/micboost/internal/types"
)

// Directory holds the current snapshot of known audio endpoints. Each
// Refresh replaces the snapshot wholesale; there is no incremental
// reconciliation. Safe for concurrent use.
type Directory struct {
	backend Backend

	mu      sync.RWMutex
	devices map[types.DeviceKind][]types.AudioDevice

	// onChange, when set, runs after every refresh that changed the
	// snapshot. Used to push device lists to connected clients.
	onChange func()
}

// NewDirectory returns an empty directory backed by the given backend.
// Call Refresh to populate it.
func NewDirectory(backend Backend) *Directory {
	return &Directory{
		backend: backend,
		devices: make(map[types.DeviceKind][]types.AudioDevice),
	}
}

// OnChange registers a callback invoked after a refresh that changed the
// device set. Must be called before the directory is shared.
func (d *Directory) OnChange(fn func()) {
	d.onChange = fn
}

// Refresh re-enumerates both device kinds and replaces the snapshot.
// On error the previous snapshot is kept.
func (d *Directory) Refresh() error {
	inputs, err := d.backend.Enumerate(types.DeviceKindInput)
	if err != nil {
		return err
	}
	outputs, err := d.backend.Enumerate(types.DeviceKindOutput)
	if err != nil {
		return err
	}

	d.mu.Lock()
	changed := !sameDevices(d.devices[types.DeviceKindInput], inputs) ||
		!sameDevices(d.devices[types.DeviceKindOutput], outputs)
	d.devices[types.DeviceKindInput] = inputs
	d.devices[types.DeviceKindOutput] = outputs
	d.mu.Unlock()

	if changed {
		slog.Info("Device directory refreshed", "inputs", len(inputs), "outputs", len(outputs))
		if d.onChange != nil {
			d.onChange()
		}
	}
	return nil
}

// Watch re-enumerates the device topology every interval so hot-plugged
// endpoints show up without a manual refresh. miniaudio has no portable
// device-change notification, so polling stands in for one; a changed set
// still fires the OnChange callback like any other refresh. The returned
// stop function halts the watcher and waits for it to exit.
func (d *Directory) Watch(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := d.Refresh(); err != nil {
					slog.Warn("device re-enumeration failed", "error", err)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-exited
		})
	}
}

func sameDevices(a, b []types.AudioDevice) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Devices returns the snapshot for the given kind.
func (d *Directory) Devices(kind types.DeviceKind) []types.AudioDevice {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]types.AudioDevice(nil), d.devices[kind]...)
}

// All returns both kinds in one listing, inputs first.
func (d *Directory) All() []types.AudioDevice {
	d.mu.RLock()
	defer d.mu.RUnlock()
	all := append([]types.AudioDevice(nil), d.devices[types.DeviceKindInput]...)
	return append(all, d.devices[types.DeviceKindOutput]...)
}

// Lookup finds a device by kind and ID.
func (d *Directory) Lookup(kind types.DeviceKind, id string) (types.AudioDevice, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, dev := range d.devices[kind] {
		if dev.ID == id {
			return dev, true
		}
	}
	return types.AudioDevice{}, false
}

// DefaultFor returns the platform default device of the given kind, or the
// first known device when the platform marks none as default.
func (d *Directory) DefaultFor(kind types.DeviceKind) (types.AudioDevice, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	devs := d.devices[kind]
	for _, dev := range devs {
		if dev.IsDefault {
			return dev, true
		}
	}
	if len(devs) > 0 {
		return devs[0], true
	}
	return types.AudioDevice{}, false
}
