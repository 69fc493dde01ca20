package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fantasta/go/internal/auction/coordinator"
	"github.com/mcdev12/fantasta/go/internal/auction/engine"
)

// Coordinator is the part of the coordinator the gateway needs.
type Coordinator interface {
	Submit(ctx context.Context, cmd coordinator.Command) (coordinator.Result, error)
	Subscribe(ctx context.Context, id string, outbox chan coordinator.Update) error
	Unsubscribe(ctx context.Context, id string) error
	State(ctx context.Context) (coordinator.View, error)
}

// ConnectionManager manages the WebSocket connections of the auction room
type ConnectionManager struct {
	connections map[*Connection]bool
	// last snapshot frame, sent to new connections
	latest []byte
	mu     sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	coordinator Coordinator
	broadcastCh chan []byte
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID            string
	ParticipantID string
	Conn          *websocket.Conn
	Send          chan []byte
	Manager       *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time
	closeOnce   sync.Once
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	CommandTimeout  time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		CommandTimeout:  5 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  64,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(c Coordinator, config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		coordinator: c,
		broadcastCh: make(chan []byte, 256),
	}
}

// Start subscribes to the coordinator and fans every state change out to the
// connected clients until ctx is done.
func (cm *ConnectionManager) Start(ctx context.Context, subscriberID string) error {
	updates := make(chan coordinator.Update, 64)
	if err := cm.coordinator.Subscribe(ctx, subscriberID, updates); err != nil {
		return fmt.Errorf("subscribe gateway: %w", err)
	}
	log.Info().Str("subscriber_id", subscriberID).Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return nil

		case u, ok := <-updates:
			if !ok {
				// dropped by the coordinator for being slow, join again
				log.Warn().Msg("gateway subscription closed, resubscribing")
				updates = make(chan coordinator.Update, 64)
				if err := cm.coordinator.Subscribe(ctx, subscriberID, updates); err != nil {
					cm.closeAll()
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return fmt.Errorf("resubscribe gateway: %w", err)
				}
				continue
			}
			cm.Broadcast(u.Version, u.Snapshot)

		case frame := <-cm.broadcastCh:
			cm.handleBroadcast(frame)
		}
	}
}

// Broadcast queues a snapshot for every connected client.
func (cm *ConnectionManager) Broadcast(version uint64, s engine.Snapshot) {
	frame, err := encode(snapshotMessage(version, s))
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal snapshot for broadcast")
		return
	}

	cm.mu.Lock()
	cm.latest = frame
	cm.mu.Unlock()

	select {
	case cm.broadcastCh <- frame:
	default:
		log.Warn().Uint64("version", version).Msg("broadcast channel full, dropping snapshot")
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, participantID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:            uuid.New().String(),
		ParticipantID: participantID,
		Conn:          conn,
		Send:          make(chan []byte, cm.config.SendBufferSize),
		Manager:       cm,
		ConnectedAt:   time.Now(),
		LastPing:      time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("participant_id", participantID).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn] = true
	if cm.latest != nil {
		conn.Send <- cm.latest
	}

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, ok := cm.connections[conn]; !ok {
		return
	}
	delete(cm.connections, conn)
	close(conn.Send)

	log.Info().
		Str("connection_id", conn.ID).
		Str("participant_id", conn.ParticipantID).
		Msg("connection unregistered")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.Lock()
	conns := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.Unlock()

	for _, conn := range conns {
		cm.unregisterConnection(conn)
	}
}

// handleBroadcast sends frame to every connection. Sends happen under the
// read lock so unregisterConnection cannot close a Send channel mid-send.
func (cm *ConnectionManager) handleBroadcast(frame []byte) {
	var slow []*Connection

	cm.mu.RLock()
	sent := len(cm.connections)
	for conn := range cm.connections {
		select {
		case conn.Send <- frame:
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("participant_id", conn.ParticipantID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.close()
	}

	log.Debug().Int("connections", sent-len(slow)).Msg("snapshot broadcasted")
}

// ConnectionStats describes the connected clients.
type ConnectionStats struct {
	TotalConnections int `json:"total_connections"`
	Participants     int `json:"participants"`
	Spectators       int `json:"spectators"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{TotalConnections: len(cm.connections)}
	seen := make(map[string]bool)
	for conn := range cm.connections {
		switch {
		case conn.ParticipantID == "":
			stats.Spectators++
		case !seen[conn.ParticipantID]:
			seen[conn.ParticipantID] = true
			stats.Participants++
		}
	}
	return stats
}

func (c *Connection) close() {
	c.closeOnce.Do(func() { c.Conn.Close() })
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage submits a bidder command and answers the sender only.
func (c *Connection) handleClientMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.reply(ServerMessage{Type: MessageError, Reason: "malformed message"})
		return
	}

	participantID := msg.ParticipantID
	if participantID == "" {
		participantID = c.ParticipantID
	}
	if participantID == "" {
		c.reply(ServerMessage{Type: MessageError, RequestID: msg.RequestID, Reason: "participantId is required"})
		return
	}

	cmd := coordinator.Command{ParticipantID: participantID}
	switch msg.Type {
	case MessagePlaceBid:
		if msg.Amount <= 0 {
			c.reply(ServerMessage{Type: MessageError, RequestID: msg.RequestID, Reason: "amount must be positive"})
			return
		}
		cmd.Type = coordinator.CmdBid
		cmd.Amount = msg.Amount
	case MessageSetReady:
		cmd.Type = coordinator.CmdSetReady
	default:
		c.reply(ServerMessage{Type: MessageError, RequestID: msg.RequestID, Reason: fmt.Sprintf("unsupported message type %q", msg.Type)})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Manager.config.CommandTimeout)
	defer cancel()

	res, err := c.Manager.coordinator.Submit(ctx, cmd)
	accepted := err == nil
	out := ServerMessage{Type: MessageResult, RequestID: msg.RequestID, Accepted: &accepted, Version: res.Version}
	if err != nil {
		out.Reason = err.Error()
		out.Code = engine.RejectionCode(err)
		if out.Code == "" {
			log.Error().
				Err(err).
				Str("connection_id", c.ID).
				Str("command", string(cmd.Type)).
				Msg("command failed")
		}
	}
	c.reply(out)
}

func (c *Connection) reply(m ServerMessage) {
	frame, err := encode(m)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal reply")
		return
	}

	c.Manager.mu.RLock()
	defer c.Manager.mu.RUnlock()
	if !c.Manager.connections[c] {
		return
	}
	select {
	case c.Send <- frame:
	default:
		log.Warn().Str("connection_id", c.ID).Msg("reply dropped, send buffer full")
	}
}
