// Package devices keeps the serial number to device index mapping of the
// tracking runtime.
package devices

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jangxx/UniversalTrackerMarkers/internal/vr"
)

// serialBufferSize is the first-try buffer for serial number reads.
const serialBufferSize = 128

// Device is one tracked device as last seen by Refresh.
type Device struct {
	Serial string
	Class  vr.DeviceClass
	Index  uint32
}

// Registry maps serial numbers to runtime device indices.
// Safe for concurrent use.
type Registry struct {
	system vr.System

	mu      sync.Mutex
	devices map[string]Device
}

// NewRegistry creates an empty registry reading from system.
func NewRegistry(system vr.System) *Registry {
	return &Registry{
		system:  system,
		devices: make(map[string]Device),
	}
}

// Refresh rebuilds the registry from the runtime. Device indices are walked
// from zero and the walk stops at the first invalid class, since the
// runtime fills its table contiguously. On failure the registry is empty.
func (r *Registry) Refresh() error {
	found := make(map[string]Device)

	for index := uint32(0); index < vr.MaxTrackedDeviceCount; index++ {
		class := r.system.DeviceClass(index)
		if class == vr.ClassInvalid {
			break
		}

		serial, err := r.readSerial(index)
		if err != nil {
			r.replace(make(map[string]Device))
			return fmt.Errorf("refresh devices: %w", err)
		}

		found[serial] = Device{Serial: serial, Class: class, Index: index}
	}

	r.replace(found)
	return nil
}

func (r *Registry) replace(devices map[string]Device) {
	r.mu.Lock()
	r.devices = devices
	r.mu.Unlock()
}

// readSerial reads the serial number property, retrying once with the size
// reported by the runtime when the first buffer is too small.
func (r *Registry) readSerial(index uint32) (string, error) {
	buf := make([]byte, serialBufferSize)
	size, code := r.system.StringProperty(index, vr.PropSerialNumber, buf)

	if code == vr.PropErrorBufferTooSmall {
		buf = make([]byte, size)
		size, code = r.system.StringProperty(index, vr.PropSerialNumber, buf)
	}
	if code != vr.PropSuccess {
		return "", &vr.PropertyQueryError{Device: index, Code: code}
	}

	return trimNUL(buf, size), nil
}

func trimNUL(buf []byte, size uint32) string {
	n := int(size)
	if n > len(buf) {
		n = len(buf)
	}
	for i := 0; i < n; i++ {
		if buf[i] == 0 {
			return string(buf[:i])
		}
	}
	return string(buf[:n])
}

// List returns a copy of all devices ordered by runtime index.
func (r *Registry) List() []Device {
	r.mu.Lock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Exists reports whether serial was present at the last refresh.
func (r *Registry) Exists(serial string) bool {
	_, ok := r.Lookup(serial)
	return ok
}

// Lookup returns the device registered under serial.
func (r *Registry) Lookup(serial string) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[serial]
	return d, ok
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}
