// Package mqttbus mirrors door events and entity states onto an MQTT broker.
package mqttbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/entities"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/events"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/logging"
)

const (
	DefaultTopicPrefix = "ufanet"

	eventQoS  = 1
	stateQoS  = 0
	quiesceMs = 250
)

var connectTimeout = 10 * time.Second

type Options struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// client is the part of mqtt.Client the publisher uses
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type Publisher struct {
	client  client
	prefix  string
	timeout time.Duration
}

// Connect dials the broker and returns a publisher for it
func Connect(opts Options) (*Publisher, error) {
	if opts.Broker == "" {
		return nil, errors.New("no MQTT broker configured")
	}

	clientID := opts.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("ufanet-bridge-%d", time.Now().UnixNano())
	}

	mopts := mqtt.NewClientOptions().AddBroker(opts.Broker).SetClientID(clientID)
	mopts = mopts.SetOrderMatters(false).SetAutoReconnect(true)
	if opts.Username != "" {
		mopts = mopts.SetUsername(opts.Username).SetPassword(opts.Password)
	}

	c := mqtt.NewClient(mopts)
	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, errors.Errorf("timed out connecting to MQTT broker %s", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "connecting to MQTT broker %s", opts.Broker)
	}

	logging.Logger(nil).Infof("connected to MQTT broker %s as %s", opts.Broker, clientID)
	return newPublisher(c, opts.TopicPrefix), nil
}

func newPublisher(c client, prefix string) *Publisher {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}

	return &Publisher{
		client:  c,
		prefix:  prefix,
		timeout: connectTimeout,
	}
}

func (p *Publisher) EventTopic(t events.Type) string {
	return p.prefix + "/event/" + string(t)
}

func (p *Publisher) StateTopic(uniqueID string) string {
	return p.prefix + "/state/" + uniqueID
}

func (p *Publisher) publish(topic string, qos byte, retained bool, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encoding payload for %s", topic)
	}

	token := p.client.Publish(topic, qos, retained, data)
	if !token.WaitTimeout(p.timeout) {
		return errors.Errorf("timed out publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "publishing to %s", topic)
	}

	return nil
}

// HandleEvent publishes a bus event
func (p *Publisher) HandleEvent(ctx context.Context, ev events.Event) error {
	topic := p.EventTopic(ev.Type)
	if err := p.publish(topic, eventQoS, false, ev); err != nil {
		return err
	}

	logging.Logger(ctx).Debugf("published %s", topic)
	return nil
}

// PublishStates publishes every entity state as a retained message.  A
// failed publish is logged and the rest are still sent.
func (p *Publisher) PublishStates(states []entities.State) {
	failed := 0
	for _, st := range states {
		if err := p.publish(p.StateTopic(st.UniqueID), stateQoS, true, st); err != nil {
			logging.Logger(nil).WithError(err).Warn("publishing entity state")
			failed++
		}
	}

	logging.Logger(nil).Debugf("published %d entity states, %d failed", len(states)-failed, failed)
}

func (p *Publisher) Close() {
	p.client.Disconnect(quiesceMs)
}
