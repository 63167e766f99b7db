package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Client is one connected websocket viewer. Send is drained by the
// connection's write loop; the hub never blocks on a slow client.
type Client struct {
	ID     string
	Send   chan []byte
	topics map[string]struct{}
	mu     sync.RWMutex
}

func NewClient(id string, bufferSize int) *Client {
	return &Client{
		ID:     id,
		Send:   make(chan []byte, bufferSize),
		topics: make(map[string]struct{}),
	}
}

func (c *Client) AddTopics(topics []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		c.topics[t] = struct{}{}
	}
}

func (c *Client) RemoveTopics(topics []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.topics, t)
	}
}

func (c *Client) Topics() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	topics := make([]string, 0, len(c.topics))
	for t := range c.topics {
		topics = append(topics, t)
	}
	return topics
}

type event struct {
	topic string
	data  []byte
}

// Hub fans published events out to clients subscribed to the event's
// topic. Publishing is fire-and-forget with a bounded queue; when the
// queue or a client buffer is full the event is dropped rather than
// stalling a telemetry write.
type Hub struct {
	mu           sync.RWMutex
	clients      map[*Client]struct{}
	topicClients map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	events     chan event

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:      make(map[*Client]struct{}),
		topicClients: make(map[string]map[*Client]struct{}),
		register:     make(chan *Client, 16),
		unregister:   make(chan *Client, 16),
		events:       make(chan event, 256),
		logger:       logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.ID, "total", h.ClientCount())

		case client := <-h.unregister:
			h.removeClient(client)

		case ev := <-h.events:
			h.fanout(ev)
		}
	}
}

func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.AddTopics(topics)

	for _, topic := range topics {
		if h.topicClients[topic] == nil {
			h.topicClients[topic] = make(map[*Client]struct{})
		}
		h.topicClients[topic][client] = struct{}{}
	}
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.RemoveTopics(topics)

	for _, topic := range topics {
		if h.topicClients[topic] != nil {
			delete(h.topicClients[topic], client)
			if len(h.topicClients[topic]) == 0 {
				delete(h.topicClients, topic)
			}
		}
	}
}

type envelope struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// Publish serializes payload once and queues it for every subscriber
// of topic.
func (h *Hub) Publish(topic string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("publish payload not serializable", "topic", topic, "error", err)
		return
	}
	data, err := json.Marshal(envelope{Type: "event", Topic: topic, Payload: raw})
	if err != nil {
		return
	}

	select {
	case h.events <- event{topic: topic, data: data}:
	default:
		h.logger.Warn("event queue full, dropping publish", "topic", topic)
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) fanout(ev event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.topicClients[ev.topic]
	if !ok {
		return
	}
	for client := range clients {
		select {
		case client.Send <- ev.data:
		default:
			h.logger.Debug("client send buffer full", "client_id", client.ID, "topic", ev.topic)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	for _, topic := range client.Topics() {
		if h.topicClients[topic] != nil {
			delete(h.topicClients[topic], client)
			if len(h.topicClients[topic]) == 0 {
				delete(h.topicClients, topic)
			}
		}
	}

	delete(h.clients, client)
	close(client.Send)
	h.logger.Debug("client unregistered", "client_id", client.ID)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[*Client]struct{})
	h.topicClients = make(map[string]map[*Client]struct{})
}
