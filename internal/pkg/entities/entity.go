/*
Package entities projects coordinator snapshots onto host entities: a door
button per intercom, a camera per paired intercom, standalone cameras and
balance/limit sensors per contract.

Every entity is an Entity[P], a coordinator-bound wrapper that tracks
availability and staleness, around a variant payload that knows how to pick
its backing object out of a snapshot and how to present its state.
*/
package entities

import (
	"sync"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/coordinator"
)

const manufacturer = "Ufanet"

type Kind string

const (
	KindButton Kind = "button"
	KindCamera Kind = "camera"
	KindSensor Kind = "sensor"
)

// DeviceInfo groups entities under one host device
type DeviceInfo struct {
	Identifier   string `json:"identifier"`
	Name         string `json:"name,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
}

// State is the presentation of one entity to the host
type State struct {
	UniqueID    string                 `json:"unique_id"`
	Kind        Kind                   `json:"kind"`
	Name        string                 `json:"name"`
	Available   bool                   `json:"available"`
	Stale       bool                   `json:"stale"`
	Value       interface{}            `json:"value"`
	Unit        string                 `json:"unit,omitempty"`
	Icon        string                 `json:"icon,omitempty"`
	DeviceClass string                 `json:"device_class,omitempty"`
	StateClass  string                 `json:"state_class,omitempty"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
	Device      DeviceInfo             `json:"device"`
}

// Payload is the variant part of an entity
type Payload interface {
	UniqueID() string

	// Refresh picks the backing object out of snap and reports whether it
	// is still present
	Refresh(snap *coordinator.Snapshot) bool

	State() State
}

// Entity binds a payload to the refresh cycle
type Entity[P Payload] struct {
	mu        sync.RWMutex
	payload   P
	available bool
	stale     bool
}

// Bind wraps p.  The entity is available until a snapshot says otherwise.
func Bind[P Payload](p P) *Entity[P] {
	return &Entity[P]{payload: p, available: true}
}

func (e *Entity[P]) UniqueID() string {
	return e.payload.UniqueID()
}

func (e *Entity[P]) Payload() P {
	return e.payload
}

// Update applies the outcome of one cycle.  A failed cycle keeps the last
// state and marks it stale.
func (e *Entity[P]) Update(u coordinator.Update) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if u.Err != nil {
		e.stale = true
		return
	}

	e.stale = false
	e.available = e.payload.Refresh(u.Snapshot)
}

func (e *Entity[P]) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := e.payload.State()
	st.UniqueID = e.payload.UniqueID()
	st.Available = e.available
	st.Stale = e.stale
	return st
}

func (e *Entity[P]) Available() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.available
}

// bound is what the Set keeps for every entity regardless of its payload
type bound interface {
	UniqueID() string
	Update(u coordinator.Update)
	State() State
}
