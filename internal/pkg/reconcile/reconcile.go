// Package reconcile pairs intercom devices with the cameras that watch them.
//
// A device and a camera belong together when the device's cctv_number equals
// the camera's number.  Every camera ends up either paired with exactly one
// device or in the standalone list.
package reconcile

import (
	"github.com/jake-scott/ufanet-bridge/internal/pkg/ufanetapi"
)

// Pairing is an intercom device and the camera it claimed, if any
type Pairing struct {
	Device ufanetapi.IntercomDevice `json:"domofon"`
	Camera *ufanetapi.Camera        `json:"camera"`
}

// Reconcile joins cameras to devices.  Devices claim cameras in iteration
// order, so when two devices share a linkage key the first one wins.  When
// several cameras share a number only the first can be claimed; the rest
// are standalone.  A repeated device id is ignored after its first
// occurrence.  Neither input is modified.
func Reconcile(devices []ufanetapi.IntercomDevice, cameras []ufanetapi.Camera) (map[ufanetapi.Identifier]Pairing, []ufanetapi.Camera) {
	lookup := make(map[ufanetapi.Identifier]int, len(cameras))
	for i, cam := range cameras {
		if cam.Number == "" {
			continue
		}
		if _, dup := lookup[cam.Number]; dup {
			continue
		}
		lookup[cam.Number] = i
	}

	claimed := make([]bool, len(cameras))
	pairs := make(map[ufanetapi.Identifier]Pairing, len(devices))

	for _, device := range devices {
		if _, seen := pairs[device.ID]; seen {
			continue
		}

		pairing := Pairing{Device: device}

		if device.CCTVNumber != "" {
			if i, ok := lookup[device.CCTVNumber]; ok {
				camera := cameras[i]
				pairing.Camera = &camera
				claimed[i] = true
				delete(lookup, device.CCTVNumber)
			}
		}

		pairs[device.ID] = pairing
	}

	standalone := make([]ufanetapi.Camera, 0, len(cameras))
	for i, cam := range cameras {
		if !claimed[i] {
			standalone = append(standalone, cam)
		}
	}

	return pairs, standalone
}
