package mqttbus

import (
	"errors"
	"io"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Transport is the subset of a broker session the RPC caller and the
// publisher need.
type Transport interface {
	Subscribe(topic string, cb func([]byte)) (func(), error)
	Publish(topic string, payload []byte, retained bool) error
}

type Config struct {
	Broker    string
	Username  string
	Password  string
	KeepAlive time.Duration
	Logger    *log.Logger
}

// Client is a broker session with per-topic callback fan-out. Topics are
// resubscribed after every reconnect.
type Client struct {
	client mqtt.Client
	logger *log.Logger

	mu     sync.Mutex
	subs   map[string]map[int]func([]byte)
	nextID int
}

var _ Transport = (*Client)(nil)

func Connect(cfg Config) (*Client, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", log.LstdFlags)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetClientID("mivac-" + uuid.NewString())
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	if cfg.KeepAlive > 0 {
		opts.SetKeepAlive(cfg.KeepAlive)
	}

	c := &Client{logger: logger, subs: make(map[string]map[int]func([]byte))}
	opts.SetDefaultPublishHandler(c.dispatch)
	opts.OnConnect = func(_ mqtt.Client) {
		logger.Printf("mqtt: connected to %s", cfg.Broker)
		c.resubscribeAll()
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Printf("mqtt: connection lost: %v", err)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	c.client = client
	return c, nil
}

// Subscribe registers cb for topic. The returned func removes it and
// unsubscribes from the broker once the topic has no callbacks left.
func (c *Client) Subscribe(topic string, cb func([]byte)) (func(), error) {
	c.mu.Lock()
	if c.subs[topic] == nil {
		c.subs[topic] = make(map[int]func([]byte))
	}
	id := c.nextID
	c.nextID++
	c.subs[topic][id] = cb
	needSubscribe := len(c.subs[topic]) == 1
	c.mu.Unlock()

	if needSubscribe {
		if token := c.client.Subscribe(topic, 1, c.dispatch); token.Wait() && token.Error() != nil {
			c.remove(topic, id)
			return nil, token.Error()
		}
	}

	return func() {
		if c.remove(topic, id) {
			_ = c.client.Unsubscribe(topic).Wait()
		}
	}, nil
}

// remove drops one callback and reports whether the topic is now unused.
func (c *Client) remove(topic string, id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	callbacks := c.subs[topic]
	if callbacks == nil {
		return false
	}
	delete(callbacks, id)
	if len(callbacks) == 0 {
		delete(c.subs, topic)
		return true
	}
	return false
}

func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	if token := c.client.Publish(topic, 1, retained, payload); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (c *Client) Close() {
	c.client.Disconnect(250)
}

func (c *Client) dispatch(_ mqtt.Client, msg mqtt.Message) {
	c.mu.Lock()
	callbacks := c.subs[msg.Topic()]
	list := make([]func([]byte), 0, len(callbacks))
	for _, cb := range callbacks {
		list = append(list, cb)
	}
	c.mu.Unlock()
	for _, cb := range list {
		cb(msg.Payload())
	}
}

func (c *Client) resubscribeAll() {
	c.mu.Lock()
	topics := make([]string, 0, len(c.subs))
	for topic := range c.subs {
		topics = append(topics, topic)
	}
	c.mu.Unlock()
	for _, topic := range topics {
		if token := c.client.Subscribe(topic, 1, c.dispatch); token.Wait() && token.Error() != nil {
			c.logger.Printf("mqtt: resubscribe %s: %v", topic, token.Error())
		}
	}
}
