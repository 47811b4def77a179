package coordinator

import (
	"encoding/json"
	"testing"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/reconcile"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/ufanetapi"
)

func TestSnapshotLookups(t *testing.T) {
	var nilSnap *Snapshot
	if _, ok := nilSnap.Device("1"); ok {
		t.Error("nil snapshot found a device")
	}
	if _, ok := nilSnap.StandaloneCamera("1"); ok {
		t.Error("nil snapshot found a camera")
	}
	if _, ok := nilSnap.Contract("1"); ok {
		t.Error("nil snapshot found a contract")
	}

	snap := &Snapshot{
		DeviceCameras: map[ufanetapi.Identifier]reconcile.Pairing{
			"1": {Device: ufanetapi.IntercomDevice{ID: "1", CustomName: "Front"}},
		},
		Standalone: []ufanetapi.Camera{{Number: "9"}},
		Contracts:  []ufanetapi.Contract{{ID: "5", Title: "Home"}},
	}

	if d, ok := snap.Device("1"); !ok || d.CustomName != "Front" {
		t.Errorf("unexpected device %+v %v", d, ok)
	}
	if _, ok := snap.StandaloneCamera("9"); !ok {
		t.Error("standalone camera not found")
	}
	if c, ok := snap.Contract("5"); !ok || c.Title != "Home" {
		t.Errorf("unexpected contract %+v %v", c, ok)
	}
}

func TestStateText(t *testing.T) {
	b, err := json.Marshal(Status{State: StateReconciling})
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["state"] != "reconciling" {
		t.Errorf("expected state reconciling, got %v", raw["state"])
	}

	if s := State(42).String(); s != "unknown" {
		t.Errorf("expected unknown, got %q", s)
	}
}

func TestUpdateFailedError(t *testing.T) {
	auth := &ufanetapi.AuthenticationError{Reason: "nope"}
	err := &UpdateFailedError{Err: auth}

	if !IsAuthFailure(err) || !IsUpdateFailed(err) {
		t.Error("classification lost through the wrapper")
	}
	if IsAuthFailure(&UpdateFailedError{Err: &ufanetapi.CommunicationError{Op: "login"}}) {
		t.Error("communication error classified as an auth failure")
	}
}
