package entities

import (
	"fmt"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/coordinator"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/ufanetapi"
)

const standaloneDevice = "standalone_camera"

func cameraAttributes(cam ufanetapi.Camera) map[string]interface{} {
	return map[string]interface{}{
		"address":   cam.Address,
		"latitude":  cam.Latitude,
		"longitude": cam.Longitude,
	}
}

// stream source is the state value of a camera, nil when it has none
func streamValue(cam ufanetapi.Camera) interface{} {
	if cam.StreamSource == "" {
		return nil
	}
	return cam.StreamSource
}

// IntercomCamera is the camera paired with an intercom device
type IntercomCamera struct {
	deviceID ufanetapi.Identifier
	camera   ufanetapi.Camera
}

func NewIntercomCamera(deviceID ufanetapi.Identifier, cam ufanetapi.Camera) *IntercomCamera {
	return &IntercomCamera{deviceID: deviceID, camera: cam}
}

func (c *IntercomCamera) UniqueID() string {
	return fmt.Sprintf("ufanet_domofon_%s_camera", c.deviceID)
}

// Refresh follows the pairing of the device, not the camera number
func (c *IntercomCamera) Refresh(snap *coordinator.Snapshot) bool {
	if snap == nil {
		return false
	}

	p, ok := snap.DeviceCameras[c.deviceID]
	if !ok || p.Camera == nil {
		return false
	}

	c.camera = *p.Camera
	return true
}

func (c *IntercomCamera) State() State {
	deviceName := "Домофон " + c.camera.Title

	attrs := cameraAttributes(c.camera)
	attrs["domofon_id"] = c.deviceID.String()
	attrs["camera_name"] = deviceName

	return State{
		Kind:       KindCamera,
		Name:       "Камера",
		Value:      streamValue(c.camera),
		Attributes: attrs,
		Device: DeviceInfo{
			Identifier:   c.deviceID.String(),
			Name:         deviceName,
			Manufacturer: manufacturer,
		},
	}
}

// StandaloneCamera is a camera paired with no intercom device
type StandaloneCamera struct {
	number ufanetapi.Identifier
	camera ufanetapi.Camera
}

func NewStandaloneCamera(cam ufanetapi.Camera) *StandaloneCamera {
	return &StandaloneCamera{number: cam.Number, camera: cam}
}

func (c *StandaloneCamera) UniqueID() string {
	return fmt.Sprintf("ufanet_camera_%s", c.number)
}

func (c *StandaloneCamera) Refresh(snap *coordinator.Snapshot) bool {
	cam, ok := snap.StandaloneCamera(c.number)
	if !ok {
		return false
	}

	c.camera = cam
	return true
}

func (c *StandaloneCamera) State() State {
	return State{
		Kind:       KindCamera,
		Name:       c.camera.Name(),
		Value:      streamValue(c.camera),
		Attributes: cameraAttributes(c.camera),
		Device: DeviceInfo{
			Identifier:   standaloneDevice,
			Name:         "Камеры Ufanet",
			Manufacturer: manufacturer,
		},
	}
}
