// Package mqtttest provides an in-memory mqtt.Client for tests. Every
// client created from the same Broker sees the messages of the others.
package mqtttest

import (
	"context"
	"errors"
	"sync"

	"github.com/autopeer-io/houston/pkg/mqtt"
)

// Message is a published message.
type Message struct {
	Topic   string
	Payload []byte
	Retain  bool
}

// Broker routes messages between its clients synchronously.
type Broker struct {
	mu       sync.Mutex
	clients  []*Client
	messages []Message
}

func NewBroker() *Broker {
	return &Broker{}
}

// Client returns a new connected client.
func (b *Broker) Client() *Client {
	c := &Client{broker: b, handlers: map[string]mqtt.MessageHandler{}}
	c.connected = true
	b.mu.Lock()
	b.clients = append(b.clients, c)
	b.mu.Unlock()
	return c
}

// Messages returns every message published so far.
func (b *Broker) Messages() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.messages...)
}

func (b *Broker) route(ctx context.Context, m Message) {
	b.mu.Lock()
	b.messages = append(b.messages, m)
	clients := append([]*Client(nil), b.clients...)
	b.mu.Unlock()

	for _, c := range clients {
		for _, h := range c.matching(m.Topic) {
			h(ctx, m.Topic, m.Payload)
		}
	}
}

// Client implements mqtt.Client against a Broker.
type Client struct {
	broker *Broker

	mu        sync.Mutex
	handlers  map[string]mqtt.MessageHandler
	connected bool
	// FailPublish makes Publish return an error.
	FailPublish bool
}

var _ mqtt.Client = (*Client)(nil)

var ErrNotConnected = errors.New("mqtttest: not connected")

func (c *Client) Start(context.Context) error {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *Client) Disconnect(context.Context) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *Client) Publish(ctx context.Context, topic string, _ int, retain bool, payload []byte) error {
	c.mu.Lock()
	ok, fail := c.connected, c.FailPublish
	c.mu.Unlock()
	if !ok || fail {
		return ErrNotConnected
	}
	c.broker.route(ctx, Message{Topic: topic, Payload: append([]byte(nil), payload...), Retain: retain})
	return nil
}

func (c *Client) Subscribe(_ context.Context, topic string, _ int, handler mqtt.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
	return nil
}

func (c *Client) Unsubscribe(_ context.Context, topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, topic)
	return nil
}

func (c *Client) AwaitConnection(ctx context.Context) error {
	if c.IsConnected() {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) matching(topic string) []mqtt.MessageHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	var out []mqtt.MessageHandler
	for filter, h := range c.handlers {
		if mqtt.TopicMatches(filter, topic) {
			out = append(out, h)
		}
	}
	return out
}
