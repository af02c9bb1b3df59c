package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"

	"github.com/wavedeck/studio/internal/model"
)

const (
	sendBuffer   = 64
	pingInterval = 30 * time.Second
)

// Client represents a WebSocket subscriber of one operation
type Client struct {
	OperationID string
	Send        chan []byte
}

// NewClient creates a subscriber with a buffered send queue
func NewClient(opID string) *Client {
	return &Client{OperationID: opID, Send: make(chan []byte, sendBuffer)}
}

// Hub fans operation events out to WebSocket subscribers
type Hub struct {
	// Clients grouped by operation ID; owned by Run
	clients map[string]map[*Client]bool

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Broadcast messages to operation subscribers
	broadcast chan *BroadcastMessage

	// Messages for a single client
	direct chan directMessage

	// Closed when Run returns
	done chan struct{}

	log zerolog.Logger
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	OperationID string
	Message     []byte
}

type directMessage struct {
	client  *Client
	message []byte
}

// NewHub creates a new Hub
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		direct:     make(chan directMessage, 16),
		done:       make(chan struct{}),
		log:        log.With().Str("component", "hub").Logger(),
	}
}

// Run starts the hub's main loop and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, clients := range h.clients {
				for client := range clients {
					close(client.Send)
				}
			}
			h.clients = make(map[string]map[*Client]bool)
			return

		case client := <-h.register:
			if h.clients[client.OperationID] == nil {
				h.clients[client.OperationID] = make(map[*Client]bool)
			}
			h.clients[client.OperationID][client] = true
			h.log.Debug().Str("operation_id", client.OperationID).Msg("client registered")

		case client := <-h.unregister:
			h.drop(client)
			h.log.Debug().Str("operation_id", client.OperationID).Msg("client unregistered")

		case msg := <-h.broadcast:
			for client := range h.clients[msg.OperationID] {
				select {
				case client.Send <- msg.Message:
				default:
					// Slow consumer
					h.drop(client)
				}
			}

		case msg := <-h.direct:
			if !h.clients[msg.client.OperationID][msg.client] {
				continue
			}
			select {
			case msg.client.Send <- msg.message:
			default:
				h.drop(msg.client)
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	clients, ok := h.clients[client.OperationID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.OperationID)
	}
}

// Register adds a new client. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastProgress sends a unit progress update to all operation subscribers
func (h *Hub) BroadcastProgress(opID string, event model.ProgressEvent) {
	h.publish(opID, model.WSProgressMessage{
		Type:        model.WSMessageTypeProgress,
		OperationID: opID,
		Index:       event.Index,
		Total:       event.Total,
		JobID:       event.JobID,
		Phase:       event.Phase,
		ElapsedMs:   event.ElapsedMs(),
		Cost:        event.Cost,
	})
}

// BroadcastComplete sends a completion message to all operation subscribers
func (h *Hub) BroadcastComplete(opID string, artifacts []model.Artifact, mirrorURLs []string) {
	h.publish(opID, model.WSCompleteMessage{
		Type:        model.WSMessageTypeComplete,
		OperationID: opID,
		Artifacts:   artifacts,
		MirrorURLs:  mirrorURLs,
	})
}

// BroadcastError sends an error message to all operation subscribers
func (h *Hub) BroadcastError(opID string, code, message string) {
	h.publish(opID, model.WSErrorMessage{
		Type:        model.WSMessageTypeError,
		OperationID: opID,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	})
}

// publish never blocks the caller; progress is dropped when the queue is full.
func (h *Hub) publish(opID string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal message")
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{OperationID: opID, Message: data}:
	default:
		h.log.Warn().Str("operation_id", opID).Msg("broadcast queue full, message dropped")
	}
}

// Reply sends msg to one registered client only. It is a no-op once the
// client is unregistered or the hub has stopped.
func (h *Hub) Reply(client *Client, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal message")
		return
	}
	select {
	case h.direct <- directMessage{client: client, message: data}:
	case <-h.done:
	}
}

// HandleConnection serves one WebSocket connection. initial, when non-nil,
// is written before any broadcast so late subscribers see the current state.
func (h *Hub) HandleConnection(c *websocket.Conn, opID string, initial []byte) {
	client := NewClient(opID)
	if initial != nil {
		client.Send <- initial
	}

	if !h.Register(client) {
		return
	}
	defer h.Unregister(client)

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					_ = c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn().Err(err).Str("operation_id", opID).Msg("websocket error")
			}
			break
		}

		// Handle client messages (ping/pong)
		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			h.Reply(client, model.WSMessage{Type: model.WSMessageTypePong})
		}
	}
}
