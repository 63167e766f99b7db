package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"campusbus/internal/domain"
	"campusbus/internal/hub"
	"campusbus/internal/store"
)

// WSMetrics tracks connected viewer counts.
type WSMetrics interface {
	WSClientConnected()
	WSClientDisconnected()
}

type WSHandler struct {
	hub       *hub.Hub
	positions store.PositionStore
	logger    *slog.Logger
	bufSize   int
	metrics   WSMetrics
}

func NewWSHandler(h *hub.Hub, positions store.PositionStore, bufSize int, logger *slog.Logger, metrics WSMetrics) *WSHandler {
	return &WSHandler{
		hub:       h,
		positions: positions,
		logger:    logger.With("handler", "ws"),
		bufSize:   bufSize,
		metrics:   metrics,
	}
}

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type SubscribePayload struct {
	Topics []string `json:"topics"`
}

type SnapshotMessage struct {
	Type    string          `json:"type"`
	Payload SnapshotPayload `json:"payload"`
}

type SnapshotPayload struct {
	Positions []domain.Position `json:"positions"`
}

type PongMessage struct {
	Type string `json:"type"`
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	clientID := uuid.New().String()
	client := hub.NewClient(clientID, h.bufSize)

	h.hub.Register(client)
	if h.metrics != nil {
		h.metrics.WSClientConnected()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, client)

	h.readLoop(ctx, conn, client)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	defer func() {
		h.hub.Unregister(client)
		if h.metrics != nil {
			h.metrics.WSClientDisconnected()
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid message format", "client_id", client.ID, "error", err)
			continue
		}

		switch msg.Type {
		case "subscribe":
			var payload SubscribePayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			if len(payload.Topics) > 0 {
				h.hub.Subscribe(client, payload.Topics)
				h.sendSnapshot(ctx, client, payload.Topics)
			}

		case "unsubscribe":
			var payload SubscribePayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			if len(payload.Topics) > 0 {
				h.hub.Unsubscribe(client, payload.Topics)
			}

		case "ping":
			h.sendPong(client)
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// sendSnapshot gives a fresh subscriber the latest known position for
// every vehicle:<id> topic it just subscribed to, so the map does not
// start empty.
func (h *WSHandler) sendSnapshot(ctx context.Context, client *hub.Client, topics []string) {
	var positions []domain.Position
	for _, topic := range topics {
		vehicleID, ok := strings.CutPrefix(topic, "vehicle:")
		if !ok {
			continue
		}
		pos, err := h.positions.Latest(ctx, vehicleID)
		if err != nil {
			continue
		}
		positions = append(positions, *pos)
	}
	if len(positions) == 0 {
		return
	}

	data, err := json.Marshal(SnapshotMessage{
		Type:    "snapshot",
		Payload: SnapshotPayload{Positions: positions},
	})
	if err != nil {
		return
	}

	select {
	case client.Send <- data:
	default:
		h.logger.Debug("failed to send snapshot, buffer full", "client_id", client.ID)
	}
}

func (h *WSHandler) sendPong(client *hub.Client) {
	data, err := json.Marshal(PongMessage{Type: "pong"})
	if err != nil {
		return
	}

	select {
	case client.Send <- data:
	default:
	}
}
