package mqttbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/entities"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/events"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	messages     []message
	failTopic    string
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	if topic == c.failTopic {
		return &fakeToken{err: errors.New("not connected")}
	}

	c.messages = append(c.messages, message{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return &fakeToken{}
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func TestHandleEvent(t *testing.T) {
	c := &fakeClient{}
	p := newPublisher(c, "/home/ufanet/")

	ev := events.Event{Type: events.DoorOpened, DomofonID: "1", Name: "Front", Timestamp: time.Now()}
	if err := p.HandleEvent(context.Background(), ev); err != nil {
		t.Fatal(err)
	}

	if len(c.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(c.messages))
	}

	m := c.messages[0]
	if m.topic != "home/ufanet/event/ufanet_door_opened" || m.qos != 1 || m.retained {
		t.Errorf("unexpected message %+v", m)
	}

	var got events.Event
	if err := json.Unmarshal(m.payload, &got); err != nil {
		t.Fatal(err)
	}
	if got.DomofonID != "1" || got.Name != "Front" || got.Type != events.DoorOpened {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestHandleEventError(t *testing.T) {
	c := &fakeClient{failTopic: "ufanet/event/ufanet_door_opened"}
	p := newPublisher(c, "")

	if err := p.HandleEvent(context.Background(), events.Event{Type: events.DoorOpened}); err == nil {
		t.Error("expected the publish error")
	}
}

func TestPublishStates(t *testing.T) {
	c := &fakeClient{failTopic: "ufanet/state/broken"}
	p := newPublisher(c, "")

	p.PublishStates([]entities.State{
		{UniqueID: "ufanet_domofon_1_button", Kind: entities.KindButton, Available: true},
		{UniqueID: "broken"},
		{UniqueID: "ufanet_contract_5_balance", Kind: entities.KindSensor, Value: 10.5},
	})

	if len(c.messages) != 2 {
		t.Fatalf("expected the other states to be published, got %d", len(c.messages))
	}
	for _, m := range c.messages {
		if !m.retained {
			t.Errorf("%s: expected a retained message", m.topic)
		}
	}
	if c.messages[1].topic != "ufanet/state/ufanet_contract_5_balance" {
		t.Errorf("unexpected topic %s", c.messages[1].topic)
	}

	p.Close()
	if !c.disconnected {
		t.Error("expected Close to disconnect")
	}
}

func TestConnectNeedsBroker(t *testing.T) {
	if _, err := Connect(Options{}); err == nil {
		t.Error("expected an error without a broker")
	}
}
