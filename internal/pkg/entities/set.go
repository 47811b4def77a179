package entities

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/coordinator"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/events"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/ufanetapi"
)

// ErrUnknownDevice is returned when pressing a button that does not exist
var ErrUnknownDevice = errors.New("unknown domofon")

// Source is the coordinator surface the entities depend on
type Source interface {
	Opener
	Snapshot() *coordinator.Snapshot
	Subscribe(f func(coordinator.Update)) func()
}

// Set holds every entity derived from one coordinator.  New backing objects
// get an entity on the cycle they appear; entities are never removed, they
// go unavailable instead.
type Set struct {
	source Source
	bus    *events.Bus
	cancel func()

	mu       sync.RWMutex
	order    []bound
	byID     map[string]bound
	buttons  map[ufanetapi.Identifier]*Entity[*DoorButton]
	watchers map[string]*watcher
}

// NewSet builds the entities of the current snapshot and follows every later
// cycle of source.  Events fired by door buttons go to bus, which may be nil.
func NewSet(source Source, bus *events.Bus) *Set {
	s := &Set{
		source:   source,
		bus:      bus,
		byID:     make(map[string]bound),
		buttons:  make(map[ufanetapi.Identifier]*Entity[*DoorButton]),
		watchers: make(map[string]*watcher),
	}

	if snap := source.Snapshot(); snap != nil {
		s.sync(snap)
	}
	s.cancel = source.Subscribe(s.Update)

	return s
}

// Close stops following the coordinator
func (s *Set) Close() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Set) add(e bound) {
	if _, ok := s.byID[e.UniqueID()]; ok {
		return
	}
	s.byID[e.UniqueID()] = e
	s.order = append(s.order, e)
}

// sync creates entities for objects not seen before
func (s *Set) sync(snap *coordinator.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range snap.Devices {
		if _, ok := s.buttons[d.ID]; !ok {
			b := Bind(NewDoorButton(d, s.source, s.bus))
			s.buttons[d.ID] = b
			s.add(b)
		}
	}

	for _, d := range snap.Devices {
		p, ok := snap.DeviceCameras[d.ID]
		if ok && p.Camera != nil {
			s.add(Bind(NewIntercomCamera(d.ID, *p.Camera)))
		}
	}

	for _, cam := range snap.Standalone {
		if cam.Number != "" {
			s.add(Bind(NewStandaloneCamera(cam)))
		}
	}

	for _, c := range snap.Contracts {
		s.add(Bind(NewContractSensor(c, Balance)))
		s.add(Bind(NewContractSensor(c, Limit)))
	}
}

// Update applies one coordinator cycle to every entity and tells the
// watchers
func (s *Set) Update(u coordinator.Update) {
	if u.Err == nil && u.Snapshot != nil {
		s.sync(u.Snapshot)
	}

	s.mu.RLock()
	all := append([]bound(nil), s.order...)
	s.mu.RUnlock()

	for _, e := range all {
		e.Update(u)
	}

	s.notify()
}

func (s *Set) notify() {
	s.mu.RLock()
	watchers := make([]*watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.mu.RUnlock()

	if len(watchers) == 0 {
		return
	}

	states := s.States()
	for _, w := range watchers {
		w.offer(states)
	}
}

// watcher delivers states to f on its own goroutine so that a slow f
// never holds up a refresh cycle or a button press.  Only the latest
// undelivered states are kept.
type watcher struct {
	mu      sync.Mutex
	pending chan []State
	done    chan struct{}
	stopped chan struct{}
}

func newWatcher(f func([]State)) *watcher {
	w := &watcher{
		pending: make(chan []State, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(w.stopped)
		for {
			select {
			case <-w.done:
				return
			case states := <-w.pending:
				f(states)
			}
		}
	}()

	return w
}

func (w *watcher) offer(states []State) {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.pending:
	default:
	}
	w.pending <- states
}

func (w *watcher) stop() {
	close(w.done)
	<-w.stopped
}

// Watch registers f to receive all entity states after every cycle and
// after every button press.  f runs on its own goroutine and may miss
// intermediate states while it is busy.  The returned function removes
// it, waiting for a running f to return; it must not be called from f.
func (s *Set) Watch(f func([]State)) func() {
	id := uuid.New().String()
	w := newWatcher(f)

	s.mu.Lock()
	s.watchers[id] = w
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()

			w.stop()
		})
	}
}

// States returns the state of every entity in creation order
func (s *Set) States() []State {
	s.mu.RLock()
	all := append([]bound(nil), s.order...)
	s.mu.RUnlock()

	states := make([]State, 0, len(all))
	for _, e := range all {
		states = append(states, e.State())
	}
	return states
}

// Get returns the state of one entity
func (s *Set) Get(uniqueID string) (State, bool) {
	s.mu.RLock()
	e, ok := s.byID[uniqueID]
	s.mu.RUnlock()

	if !ok {
		return State{}, false
	}
	return e.State(), true
}

// Press presses the door button of one intercom device
func (s *Set) Press(ctx context.Context, deviceID ufanetapi.Identifier) (bool, error) {
	s.mu.RLock()
	b, ok := s.buttons[deviceID]
	s.mu.RUnlock()

	if !ok {
		return false, errors.Wrapf(ErrUnknownDevice, "domofon %s", deviceID)
	}

	success := b.Payload().Press(ctx)
	s.notify()
	return success, nil
}

// PressButton presses a door button by its entity id
func (s *Set) PressButton(ctx context.Context, uniqueID string) (bool, error) {
	var deviceID ufanetapi.Identifier

	s.mu.RLock()
	for id, b := range s.buttons {
		if b.UniqueID() == uniqueID {
			deviceID = id
			break
		}
	}
	s.mu.RUnlock()

	if deviceID == "" {
		return false, errors.Wrapf(ErrUnknownDevice, "button %s", uniqueID)
	}
	return s.Press(ctx, deviceID)
}
