package coordinator

import (
	"time"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/reconcile"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/ufanetapi"
)

// Snapshot is the result of one successful refresh cycle.  It is published
// whole and never modified afterwards; consumers must treat it as read-only.
type Snapshot struct {
	Devices       []ufanetapi.IntercomDevice                 `json:"domofons"`
	Cameras       []ufanetapi.Camera                         `json:"cameras"`
	DeviceCameras map[ufanetapi.Identifier]reconcile.Pairing `json:"domofon_camera_map"`
	Standalone    []ufanetapi.Camera                         `json:"standalone_cameras"`
	Contracts     []ufanetapi.Contract                       `json:"contracts"`
	RefreshedAt   time.Time                                  `json:"refreshed_at"`
}

// Device looks up an intercom device by id
func (s *Snapshot) Device(id ufanetapi.Identifier) (ufanetapi.IntercomDevice, bool) {
	if s == nil {
		return ufanetapi.IntercomDevice{}, false
	}

	p, ok := s.DeviceCameras[id]
	return p.Device, ok
}

// StandaloneCamera looks up an unpaired camera by number
func (s *Snapshot) StandaloneCamera(number ufanetapi.Identifier) (ufanetapi.Camera, bool) {
	if s == nil {
		return ufanetapi.Camera{}, false
	}

	for _, cam := range s.Standalone {
		if cam.Number == number {
			return cam, true
		}
	}
	return ufanetapi.Camera{}, false
}

// Contract looks up a billing contract by id
func (s *Snapshot) Contract(id ufanetapi.Identifier) (ufanetapi.Contract, bool) {
	if s == nil {
		return ufanetapi.Contract{}, false
	}

	for _, c := range s.Contracts {
		if c.ID == id {
			return c, true
		}
	}
	return ufanetapi.Contract{}, false
}

// Update is what subscribers receive after every cycle.  On failure Err is
// set and Snapshot is the last good one, possibly nil.
type Update struct {
	Snapshot *Snapshot
	Err      error
}

// State of the refresh state machine
type State int

const (
	StateUninitialized State = iota
	StateAuthenticating
	StateFetching
	StateReconciling
	StatePublished
	StateFailed
)

var stateNames = []string{
	"uninitialized",
	"authenticating",
	"fetching",
	"reconciling",
	"published",
	"failed",
}

func (s State) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status describes the coordinator for the host
type Status struct {
	State       State     `json:"state"`
	Stale       bool      `json:"stale"`
	LastError   string    `json:"last_error,omitempty"`
	AuthFailure bool      `json:"auth_failure,omitempty"`
	LastAttempt time.Time `json:"last_attempt"`
	RefreshedAt time.Time `json:"refreshed_at"`
}
