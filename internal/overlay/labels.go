package overlay

import (
	"errors"
	"fmt"

	"github.com/jangxx/UniversalTrackerMarkers/internal/devices"
	"github.com/jangxx/UniversalTrackerMarkers/internal/posemath"
	"github.com/jangxx/UniversalTrackerMarkers/internal/proximity"
	"github.com/jangxx/UniversalTrackerMarkers/internal/vr"
)

const (
	labelWidth = 0.3

	// labels float above the device; higher on the headset so they do not
	// clip when looking up
	hmdLabelLift    = 0.25
	deviceLabelLift = 0.1
)

// LabelTextures renders a serial number into a texture the runtime can show.
type LabelTextures interface {
	SerialTexture(serial string) (vr.Texture, error)
	ReleaseTexture(tex vr.Texture)
}

type label struct {
	serial  string
	index   uint32
	handle  vr.OverlayHandle
	texture vr.Texture
}

// SyncLabels creates a label for every device in devs when shown is true
// and removes labels of devices that are gone. With shown false all labels
// are destroyed.
func (m *Manager) SyncLabels(shown bool, devs []devices.Device) error {
	m.labelMu.Lock()
	defer m.labelMu.Unlock()

	keep := make(map[string]devices.Device, len(devs))
	if shown {
		for _, d := range devs {
			keep[d.Serial] = d
		}
	}

	var errs []error
	for serial, l := range m.labels {
		if _, ok := keep[serial]; ok {
			continue
		}
		errs = append(errs, m.destroyLabel(l))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	for _, d := range devs {
		if !shown {
			break
		}
		if l, ok := m.labels[d.Serial]; ok {
			l.index = d.Index
			continue
		}
		if err := m.createLabel(d); err != nil {
			return err
		}
	}

	return nil
}

// LabelCount returns the number of live labels.
func (m *Manager) LabelCount() int {
	m.labelMu.Lock()
	defer m.labelMu.Unlock()
	return len(m.labels)
}

// createLabel callers hold m.labelMu.
func (m *Manager) createLabel(d devices.Device) error {
	if m.textures == nil {
		return errors.New("overlay: no label texture source configured")
	}

	h, code := m.rt.CreateOverlay(
		fmt.Sprintf("%sserial_%s", keyPrefix, d.Serial),
		fmt.Sprintf("Universal Tracker Serial Overlay %s", d.Serial),
	)
	if err := vr.Check("CreateOverlay", code); err != nil {
		return fmt.Errorf("label %s: %w", d.Serial, err)
	}

	tex, err := m.textures.SerialTexture(d.Serial)
	if err != nil {
		_ = m.rt.DestroyOverlay(h)
		return fmt.Errorf("label %s: render texture: %w", d.Serial, err)
	}

	l := &label{serial: d.Serial, index: d.Index, handle: h, texture: tex}
	m.labels[d.Serial] = l

	if err := vr.Check("SetOverlayTexture", m.rt.SetOverlayTexture(h, tex)); err != nil {
		return fmt.Errorf("label %s: %w", d.Serial, err)
	}
	if err := vr.Check("ShowOverlay", m.rt.ShowOverlay(h)); err != nil {
		return fmt.Errorf("label %s: %w", d.Serial, err)
	}
	if err := vr.Check("SetOverlayWidthInMeters", m.rt.SetOverlayWidthInMeters(h, labelWidth)); err != nil {
		return fmt.Errorf("label %s: %w", d.Serial, err)
	}

	m.debug("serial label created", "serial", d.Serial)
	return nil
}

// destroyLabel callers hold m.labelMu.
func (m *Manager) destroyLabel(l *label) error {
	delete(m.labels, l.serial)
	if m.textures != nil {
		m.textures.ReleaseTexture(l.texture)
	}
	if err := vr.Check("DestroyOverlay", m.rt.DestroyOverlay(l.handle)); err != nil {
		return fmt.Errorf("label %s: %w", l.serial, err)
	}
	return nil
}

// PlaceLabels moves every label above its device, turned towards the
// headset. Labels of untracked devices keep their last transform.
func (m *Manager) PlaceLabels(snap proximity.Snapshot) error {
	m.labelMu.Lock()
	defer m.labelMu.Unlock()

	if len(m.labels) == 0 {
		return nil
	}

	hmd, ok := snap.Position(snap.HMD)
	if !ok {
		return nil
	}

	for _, l := range m.labels {
		pos, ok := snap.Position(l.index)
		if !ok {
			continue
		}

		if l.index == vr.HMDDeviceIndex {
			pos[1] += hmdLabelLift
		} else {
			pos[1] += deviceLabelLift
		}

		transform := posemath.Translation(pos).Mul4(posemath.LookAt(hmd, pos))
		code := m.rt.SetOverlayTransformAbsolute(l.handle, vr.OriginRawAndUncalibrated, posemath.ToMatrix34(transform))
		if err := vr.Check("SetOverlayTransformAbsolute", code); err != nil {
			return fmt.Errorf("label %s: %w", l.serial, err)
		}
	}

	return nil
}
