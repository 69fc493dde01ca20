package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/fantasta/go/internal/auction/coordinator"
	"github.com/mcdev12/fantasta/go/internal/auction/engine"
	"github.com/mcdev12/fantasta/go/internal/models"
)

type room struct {
	coord   *coordinator.Coordinator
	manager *ConnectionManager
	srv     *httptest.Server
	alice   string
}

func newRoom(t *testing.T) *room {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	coord := coordinator.New(ctx, engine.New(), coordinator.Config{InstanceID: "authority", Clock: clockwork.NewFakeClock()})

	_, err := coord.Submit(ctx, coordinator.Command{Type: coordinator.CmdAddLot, Lot: &models.Lot{
		Name: "Nicolo Barella", Category: models.CategoryMidfielder, Group: "Inter", BaseValue: 50,
	}})
	require.NoError(t, err)
	res, err := coord.Submit(ctx, coordinator.Command{Type: coordinator.CmdAddParticipant, Name: "Alice"})
	require.NoError(t, err)
	_, err = coord.Submit(ctx, coordinator.Command{Type: coordinator.CmdInitialize, InitialCredits: 200})
	require.NoError(t, err)

	cm := NewConnectionManager(coord, DefaultConnectionConfig())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = cm.Start(ctx, "gateway")
	}()

	mux := http.NewServeMux()
	NewWebSocketHandler(cm).RegisterRoutes(mux)
	NewStateHandler(coord).RegisterStateRoutes(mux)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
		coord.Stop()
	})
	return &room{coord: coord, manager: cm, srv: srv, alice: res.Participant.ID}
}

func (r *room) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(r.srv.URL, "http") + "/ws/auction" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil returns the first frame matching match.
func readUntil(t *testing.T, conn *websocket.Conn, match func(ServerMessage) bool) ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg ServerMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		if match(msg) {
			return msg
		}
	}
}

func isResult(requestID string) func(ServerMessage) bool {
	return func(m ServerMessage) bool { return m.Type == MessageResult && m.RequestID == requestID }
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func TestGateway_InitialSnapshot(t *testing.T) {
	r := newRoom(t)
	conn := r.dial(t, "")

	msg := readUntil(t, conn, func(m ServerMessage) bool { return m.Type == MessageSnapshot })
	require.NotNil(t, msg.Data)
	assert.Equal(t, models.AuctionStatusReady, msg.Data.Status)
	assert.NotZero(t, msg.Version)
}

func TestGateway_BidFlow(t *testing.T) {
	r := newRoom(t)
	conn := r.dial(t, "?participant_id="+r.alice)
	ctx := context.Background()

	send(t, conn, ClientMessage{Type: MessageSetReady, RequestID: "ready"})
	res := readUntil(t, conn, isResult("ready"))
	require.NotNil(t, res.Accepted)
	assert.True(t, *res.Accepted)

	_, err := r.coord.Submit(ctx, coordinator.Command{Type: coordinator.CmdStart})
	require.NoError(t, err)

	send(t, conn, ClientMessage{Type: MessagePlaceBid, RequestID: "low", Amount: 10})
	res = readUntil(t, conn, isResult("low"))
	require.NotNil(t, res.Accepted)
	assert.False(t, *res.Accepted)
	assert.Equal(t, "bid_too_low", res.Code)
	assert.NotEmpty(t, res.Reason)

	send(t, conn, ClientMessage{Type: MessagePlaceBid, RequestID: "ok", ParticipantID: r.alice, Amount: 60})
	res = readUntil(t, conn, isResult("ok"))
	assert.True(t, *res.Accepted)

	snap := readUntil(t, conn, func(m ServerMessage) bool {
		return m.Type == MessageSnapshot && m.Data != nil && m.Data.CurrentBid != nil
	})
	assert.Equal(t, models.AuctionStatusBidding, snap.Data.Status)
	assert.Equal(t, 60, snap.Data.CurrentBid.Amount)
	assert.Equal(t, r.alice, snap.Data.CurrentBid.ParticipantID)
}

func TestGateway_RejectsBadMessages(t *testing.T) {
	r := newRoom(t)
	conn := r.dial(t, "")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msg := readUntil(t, conn, func(m ServerMessage) bool { return m.Type == MessageError })
	assert.Equal(t, "malformed message", msg.Reason)

	send(t, conn, ClientMessage{Type: MessageSetReady, RequestID: "anon"})
	msg = readUntil(t, conn, func(m ServerMessage) bool { return m.Type == MessageError && m.RequestID == "anon" })
	assert.Contains(t, msg.Reason, "participantId")

	send(t, conn, ClientMessage{Type: MessagePlaceBid, RequestID: "zero", ParticipantID: r.alice})
	msg = readUntil(t, conn, func(m ServerMessage) bool { return m.Type == MessageError && m.RequestID == "zero" })
	assert.Contains(t, msg.Reason, "amount")

	send(t, conn, ClientMessage{Type: "Reset", RequestID: "admin", ParticipantID: r.alice})
	msg = readUntil(t, conn, func(m ServerMessage) bool { return m.Type == MessageError && m.RequestID == "admin" })
	assert.Contains(t, msg.Reason, "unsupported")

	// bids before the auction started are a rejection, not an error
	send(t, conn, ClientMessage{Type: MessagePlaceBid, RequestID: "early", ParticipantID: r.alice, Amount: 60})
	msg = readUntil(t, conn, isResult("early"))
	assert.Equal(t, "wrong_phase", msg.Code)
}

func TestGateway_ConnectionStats(t *testing.T) {
	r := newRoom(t)
	a := r.dial(t, "?participant_id="+r.alice)
	b := r.dial(t, "")
	readUntil(t, a, func(m ServerMessage) bool { return m.Type == MessageSnapshot })
	readUntil(t, b, func(m ServerMessage) bool { return m.Type == MessageSnapshot })

	resp, err := http.Get(r.srv.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats ConnectionStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, ConnectionStats{TotalConnections: 2, Participants: 1, Spectators: 1}, stats)
}

func TestStateHandler(t *testing.T) {
	r := newRoom(t)

	rec := httptest.NewRecorder()
	NewStateHandler(r.coord).HandleGetState(rec, httptest.NewRequest(http.MethodGet, "/api/auction/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body StateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "authority", body.Role)
	assert.Equal(t, uint64(3), body.Version)
	assert.Equal(t, models.AuctionStatusReady, body.Snapshot.Status)

	rec = httptest.NewRecorder()
	NewStateHandler(r.coord).HandleGetState(rec, httptest.NewRequest(http.MethodPost, "/api/auction/state", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// serverConn returns the server side of a live WebSocket connection.
func serverConn(t *testing.T) *websocket.Conn {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err == nil {
			conns <- conn
		}
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case conn := <-conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
		return nil
	}
}

func drain(ch <-chan []byte) (frames []string, closed bool) {
	for {
		select {
		case f, ok := <-ch:
			if !ok {
				return frames, true
			}
			frames = append(frames, string(f))
		default:
			return frames, false
		}
	}
}

func TestConnectionManager_BroadcastDropsSlowConnections(t *testing.T) {
	cm := NewConnectionManager(nil, DefaultConnectionConfig())
	slow := &Connection{ID: "slow", Conn: serverConn(t), Send: make(chan []byte, 1), Manager: cm}
	fast := &Connection{ID: "fast", Conn: serverConn(t), Send: make(chan []byte, 4), Manager: cm}
	cm.registerConnection(slow)
	cm.registerConnection(fast)

	cm.handleBroadcast([]byte("v1"))
	cm.handleBroadcast([]byte("v2"))

	assert.Equal(t, 1, cm.GetConnectionStats().TotalConnections)
	frames, closed := drain(slow.Send)
	assert.Equal(t, []string{"v1"}, frames)
	assert.True(t, closed)

	frames, closed = drain(fast.Send)
	assert.Equal(t, []string{"v1", "v2"}, frames)
	assert.False(t, closed)
}

func TestConnectionManager_SendAfterUnregister(t *testing.T) {
	cm := NewConnectionManager(nil, DefaultConnectionConfig())
	conn := &Connection{ID: "gone", Conn: serverConn(t), Send: make(chan []byte, 4), Manager: cm}
	cm.registerConnection(conn)
	cm.unregisterConnection(conn)

	require.NotPanics(t, func() {
		cm.handleBroadcast([]byte("v1"))
		conn.reply(ServerMessage{Type: MessageResult, RequestID: "late"})
	})

	frames, closed := drain(conn.Send)
	assert.Empty(t, frames)
	assert.True(t, closed)
}

func TestConnectionManager_ConcurrentBroadcastAndUnregister(t *testing.T) {
	cm := NewConnectionManager(nil, DefaultConnectionConfig())
	conns := make([]*Connection, 8)
	for i := range conns {
		conns[i] = &Connection{ID: fmt.Sprintf("c%d", i), Conn: serverConn(t), Send: make(chan []byte, 256), Manager: cm}
		cm.registerConnection(conns[i])
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			cm.handleBroadcast([]byte("frame"))
		}
	}()
	for _, conn := range conns {
		cm.unregisterConnection(conn)
	}
	<-done

	assert.Zero(t, cm.GetConnectionStats().TotalConnections)
}
