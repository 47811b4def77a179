package entities

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/coordinator"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/events"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/logging"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/ufanetapi"
)

// Opener sends the open-door command
type Opener interface {
	OpenDoor(ctx context.Context, deviceID ufanetapi.Identifier) bool
}

// DoorButton opens the door of one intercom device
type DoorButton struct {
	id     ufanetapi.Identifier
	opener Opener
	bus    *events.Bus

	mu         sync.Mutex
	device     ufanetapi.IntercomDevice
	lastOpened time.Time
}

func NewDoorButton(device ufanetapi.IntercomDevice, opener Opener, bus *events.Bus) *DoorButton {
	return &DoorButton{
		id:     device.ID,
		opener: opener,
		bus:    bus,
		device: device,
	}
}

func (b *DoorButton) UniqueID() string {
	return fmt.Sprintf("ufanet_domofon_%s_button", b.id)
}

func (b *DoorButton) DeviceID() ufanetapi.Identifier {
	return b.id
}

func (b *DoorButton) Refresh(snap *coordinator.Snapshot) bool {
	device, ok := snap.Device(b.id)
	if !ok {
		return false
	}

	b.mu.Lock()
	b.device = device
	b.mu.Unlock()
	return true
}

func (b *DoorButton) name() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.device.Name()
}

// Press opens the door.  Success is recorded as the last opening and fired
// as a door-opened event.
func (b *DoorButton) Press(ctx context.Context) bool {
	name := b.name()
	ctxLogger := logging.Logger(ctx).WithField("domofon_id", b.id)

	ok := b.opener.OpenDoor(ctx, b.id)
	now := time.Now()

	ev := events.Event{
		DomofonID: b.id.String(),
		Name:      name,
		Timestamp: now,
	}

	if ok {
		b.mu.Lock()
		b.lastOpened = now
		b.mu.Unlock()

		ctxLogger.Infof("door opened for %s", name)
		ev.Type = events.DoorOpened
	} else {
		ctxLogger.Errorf("failed to open door for %s", name)
		ev.Type = events.DoorOpenFailed
	}

	b.bus.Fire(ctx, ev)
	return ok
}

func (b *DoorButton) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	name := b.device.Name()

	var lastOpened interface{}
	if !b.lastOpened.IsZero() {
		lastOpened = b.lastOpened.Format(time.RFC3339)
	}

	return State{
		Kind: KindButton,
		Name: name + " Open Door",
		Icon: "mdi:door-open",
		Attributes: map[string]interface{}{
			"domofon_id":   b.id.String(),
			"domofon_name": name,
			"last_opened":  lastOpened,
		},
		Device: DeviceInfo{
			Identifier:   b.id.String(),
			Name:         name,
			Manufacturer: manufacturer,
			Model:        "Domofon System",
		},
	}
}
