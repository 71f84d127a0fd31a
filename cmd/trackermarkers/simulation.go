package main

import (
	"github.com/jangxx/UniversalTrackerMarkers/internal/model"
	"github.com/jangxx/UniversalTrackerMarkers/internal/vr"
	"github.com/jangxx/UniversalTrackerMarkers/internal/vr/simvr"
)

// seedSimulation populates the simulated runtime with a headset, both
// controllers and one tracker per configured serial, spread out in front
// of the user at waist height.
func seedSimulation(rt *simvr.Runtime, markers []model.Marker) {
	rt.AddDevice(simvr.Device{Class: vr.ClassHMD, Serial: "SIM-HMD", Pose: simvr.PoseAt(0, 1.7, 0)})

	left := rt.AddDevice(simvr.Device{Class: vr.ClassController, Serial: "SIM-LEFT", Pose: simvr.PoseAt(-0.3, 1.1, -0.3)})
	rt.SetRole(vr.RoleLeftHand, left)
	right := rt.AddDevice(simvr.Device{Class: vr.ClassController, Serial: "SIM-RIGHT", Pose: simvr.PoseAt(0.3, 1.1, -0.3)})
	rt.SetRole(vr.RoleRightHand, right)

	seen := make(map[string]bool)
	x := float32(-0.5)
	for _, m := range markers {
		if m.TrackerSerial == nil || seen[*m.TrackerSerial] {
			continue
		}
		seen[*m.TrackerSerial] = true
		rt.AddDevice(simvr.Device{Class: vr.ClassGenericTracker, Serial: *m.TrackerSerial, Pose: simvr.PoseAt(x, 1.0, -1)})
		x += 0.25
	}
}
