package mqttbus

import (
	"encoding/json"
	"fmt"
	"time"
)

// Publisher mirrors device state onto the broker. Signals are retained so
// late subscribers see the current value; property changes are not.
type Publisher struct {
	transport Transport
	topics    Topics
	now       func() time.Time
}

type propertyMessage struct {
	Name     string    `json:"name"`
	Value    any       `json:"value"`
	Previous any       `json:"previous"`
	At       time.Time `json:"at"`
}

func NewPublisher(transport Transport, topics Topics) *Publisher {
	return &Publisher{transport: transport, topics: topics, now: time.Now}
}

func (p *Publisher) PublishSignal(name string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode signal %s: %w", name, err)
	}
	return p.transport.Publish(p.topics.State(name), payload, true)
}

func (p *Publisher) PublishProperty(name string, value, previous any) error {
	payload, err := json.Marshal(propertyMessage{
		Name:     name,
		Value:    value,
		Previous: previous,
		At:       p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode property %s: %w", name, err)
	}
	return p.transport.Publish(p.topics.Property(name), payload, false)
}
