package events

import (
	"context"
	"sync"
	"time"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/logging"
)

type Type string

const (
	DoorOpened     Type = "ufanet_door_opened"
	DoorOpenFailed Type = "ufanet_door_open_failed"
)

// Event is fired on the host bus for automations to react to
type Event struct {
	Type      Type      `json:"event_type"`
	DomofonID string    `json:"domofon_id"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

type Handler interface {
	HandleEvent(ctx context.Context, ev Event) error
}

// HandlerFunc adapts a function to a Handler
type HandlerFunc func(ctx context.Context, ev Event) error

func (f HandlerFunc) HandleEvent(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Bus delivers events to every attached handler in attach order.  A
// failing handler is logged and does not stop delivery to the others.
// The nil Bus drops everything.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Attach(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *Bus) Fire(ctx context.Context, ev Event) {
	if b == nil {
		return
	}

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h.HandleEvent(ctx, ev); err != nil {
			logging.Logger(ctx).WithError(err).Warnf("delivering %s event", ev.Type)
		}
	}
}
