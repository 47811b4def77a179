package entities

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/coordinator"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/events"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/reconcile"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/ufanetapi"
)

type fakeSource struct {
	mu     sync.Mutex
	snap   *coordinator.Snapshot
	subs   map[int]func(coordinator.Update)
	nextID int
	fail   map[ufanetapi.Identifier]bool
	opened []ufanetapi.Identifier
}

func newFakeSource(snap *coordinator.Snapshot) *fakeSource {
	return &fakeSource{
		snap: snap,
		subs: make(map[int]func(coordinator.Update)),
		fail: make(map[ufanetapi.Identifier]bool),
	}
}

func (f *fakeSource) Snapshot() *coordinator.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSource) Subscribe(fn func(coordinator.Update)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	f.subs[id] = fn

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeSource) OpenDoor(ctx context.Context, id ufanetapi.Identifier) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.opened = append(f.opened, id)
	return !f.fail[id]
}

func (f *fakeSource) publish(u coordinator.Update) {
	f.mu.Lock()
	if u.Err == nil {
		f.snap = u.Snapshot
	}
	subs := make([]func(coordinator.Update), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(u)
	}
}

func snapshot() *coordinator.Snapshot {
	front := ufanetapi.IntercomDevice{ID: "1", CustomName: "Front", CCTVNumber: "42"}
	back := ufanetapi.IntercomDevice{ID: "2"}
	gate := ufanetapi.Camera{Number: "42", Title: "Gate", StreamSource: "rtsp://cam1.example.com/42?token=abc"}
	yard := ufanetapi.Camera{Number: "99"}

	return &coordinator.Snapshot{
		Devices: []ufanetapi.IntercomDevice{front, back},
		Cameras: []ufanetapi.Camera{gate, yard},
		DeviceCameras: map[ufanetapi.Identifier]reconcile.Pairing{
			"1": {Device: front, Camera: &gate},
			"2": {Device: back},
		},
		Standalone: []ufanetapi.Camera{yard},
		Contracts: []ufanetapi.Contract{
			{ID: "555", Title: "Home", Balance: ufanetapi.NewDecimal(123.456)},
		},
		RefreshedAt: time.Now(),
	}
}

func statesByID(s *Set) map[string]State {
	out := map[string]State{}
	for _, st := range s.States() {
		out[st.UniqueID] = st
	}
	return out
}

func TestSetBuildsEntities(t *testing.T) {
	set := NewSet(newFakeSource(snapshot()), nil)
	defer set.Close()

	states := statesByID(set)

	want := []string{
		"ufanet_domofon_1_button",
		"ufanet_domofon_2_button",
		"ufanet_domofon_1_camera",
		"ufanet_camera_99",
		"ufanet_contract_555_balance",
		"ufanet_contract_555_limit",
	}
	if len(states) != len(want) {
		t.Errorf("expected %d entities, got %d: %v", len(want), len(states), states)
	}
	for _, id := range want {
		st, ok := states[id]
		if !ok {
			t.Errorf("missing entity %s", id)
			continue
		}
		if !st.Available || st.Stale {
			t.Errorf("%s: expected available and fresh, got %+v", id, st)
		}
	}

	if n := states["ufanet_domofon_1_button"].Name; n != "Front Open Door" {
		t.Errorf("unexpected button name %q", n)
	}
	if n := states["ufanet_domofon_2_button"].Name; n != "Domofon Open Door" {
		t.Errorf("unexpected default button name %q", n)
	}

	cam := states["ufanet_domofon_1_camera"]
	if cam.Name != "Камера" || cam.Device.Name != "Домофон Gate" || cam.Value != "rtsp://cam1.example.com/42?token=abc" {
		t.Errorf("unexpected intercom camera %+v", cam)
	}

	standalone := states["ufanet_camera_99"]
	if standalone.Name != "Camera 99" || standalone.Device.Identifier != "standalone_camera" || standalone.Value != nil {
		t.Errorf("unexpected standalone camera %+v", standalone)
	}

	balance := states["ufanet_contract_555_balance"]
	if balance.Value != 123.46 || balance.Unit != "RUB" || balance.DeviceClass != "monetary" {
		t.Errorf("unexpected balance sensor %+v", balance)
	}
	if v := states["ufanet_contract_555_limit"].Value; v != nil {
		t.Errorf("expected no limit value, got %v", v)
	}
}

func TestSetFollowsUpdates(t *testing.T) {
	src := newFakeSource(snapshot())
	set := NewSet(src, nil)
	defer set.Close()

	// the contract disappears and a new camera shows up
	next := snapshot()
	next.Contracts = []ufanetapi.Contract{}
	next.Standalone = append(next.Standalone, ufanetapi.Camera{Number: "100", Title: "Street"})
	src.publish(coordinator.Update{Snapshot: next})

	states := statesByID(set)
	if states["ufanet_contract_555_balance"].Available {
		t.Error("expected the balance sensor to go unavailable")
	}
	if st, ok := states["ufanet_camera_100"]; !ok || st.Name != "Street" || !st.Available {
		t.Errorf("expected a new camera entity, got %+v", st)
	}

	// a failed cycle keeps the last state, marked stale
	src.publish(coordinator.Update{Snapshot: next, Err: errors.New("update failed")})
	states = statesByID(set)
	btn := states["ufanet_domofon_1_button"]
	if !btn.Available || !btn.Stale {
		t.Errorf("expected an available but stale button, got %+v", btn)
	}

	src.publish(coordinator.Update{Snapshot: next})
	if statesByID(set)["ufanet_domofon_1_button"].Stale {
		t.Error("expected stale to clear after a good cycle")
	}

}

func TestWatchDoesNotBlockUpdates(t *testing.T) {
	src := newFakeSource(snapshot())
	set := NewSet(src, nil)
	defer set.Close()

	release := make(chan struct{})
	got := make(chan []State, 10)
	unwatch := set.Watch(func(states []State) {
		<-release
		got <- states
	})

	// the watcher is stuck; cycles still go through
	done := make(chan struct{})
	go func() {
		defer close(done)
		src.publish(coordinator.Update{Snapshot: snapshot()})

		next := snapshot()
		next.Standalone = append(next.Standalone, ufanetapi.Camera{Number: "100"})
		src.publish(coordinator.Update{Snapshot: next})
		src.publish(coordinator.Update{Snapshot: next})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("a blocked watcher held up the cycles")
	}

	close(release)

	// the first delivery was already taken, the rest collapse to the latest
	deadline := time.After(2 * time.Second)
	var last []State
	for len(last) != 7 {
		select {
		case last = <-got:
		case <-deadline:
			t.Fatalf("never saw the latest states, last had %d", len(last))
		}
	}

	unwatch()
	unwatch()
	for len(got) > 0 {
		<-got
	}

	src.publish(coordinator.Update{Snapshot: snapshot()})
	select {
	case <-got:
		t.Error("notified after unwatch")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPress(t *testing.T) {
	src := newFakeSource(snapshot())
	src.fail["2"] = true

	bus := events.NewBus()
	var fired []events.Event
	bus.Attach(events.HandlerFunc(func(ctx context.Context, ev events.Event) error {
		fired = append(fired, ev)
		return nil
	}))

	set := NewSet(src, bus)
	defer set.Close()

	ok, err := set.Press(context.Background(), "1")
	if err != nil || !ok {
		t.Fatalf("expected success, got %v %v", ok, err)
	}

	st, _ := set.Get("ufanet_domofon_1_button")
	if st.Attributes["last_opened"] == nil {
		t.Error("expected last_opened to be set")
	}

	ok, err = set.PressButton(context.Background(), "ufanet_domofon_2_button")
	if err != nil || ok {
		t.Errorf("expected a failed open, got %v %v", ok, err)
	}
	st, _ = set.Get("ufanet_domofon_2_button")
	if st.Attributes["last_opened"] != nil {
		t.Error("failed open recorded as last_opened")
	}

	if len(fired) != 2 || fired[0].Type != events.DoorOpened || fired[0].DomofonID != "1" || fired[0].Name != "Front" {
		t.Errorf("unexpected events %+v", fired)
	}
	if fired[1].Type != events.DoorOpenFailed {
		t.Errorf("expected a failure event, got %+v", fired[1])
	}

	if _, err := set.Press(context.Background(), "nope"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("expected ErrUnknownDevice, got %v", err)
	}
	if _, err := set.PressButton(context.Background(), "ufanet_camera_99"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("expected ErrUnknownDevice for a camera, got %v", err)
	}
}

func TestSetBeforeFirstSnapshot(t *testing.T) {
	src := newFakeSource(nil)
	set := NewSet(src, nil)
	defer set.Close()

	if n := len(set.States()); n != 0 {
		t.Errorf("expected no entities, got %d", n)
	}

	src.publish(coordinator.Update{Snapshot: snapshot()})
	if n := len(set.States()); n != 6 {
		t.Errorf("expected 6 entities, got %d", n)
	}
}
