package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/classwatcher/classwatcher/internal/domain/events"
	"github.com/classwatcher/classwatcher/internal/testutil"
	"github.com/gorilla/websocket"
)

type mockStatusProvider struct {
	status events.WatchStatus
	uptime int64
}

func (m *mockStatusProvider) WatchStatus() events.WatchStatus { return m.status }
func (m *mockStatusProvider) UptimeSeconds() int64           { return m.uptime }

type frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func dial(t *testing.T, h *Handler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) frame {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return f
}

func TestNewHandler_Defaults(t *testing.T) {
	h := NewHandler(nil, nil, 0)
	if h.heartbeatInterval != DefaultHeartbeatInterval {
		t.Errorf("heartbeatInterval = %v", h.heartbeatInterval)
	}
	if h.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d", h.ClientCount())
	}
	// Broadcast with no clients is a no-op.
	h.Broadcast([]byte("x"))
	h.removeClient("missing")
}

func TestHandler_StatusSnapshotThenEvents(t *testing.T) {
	hub := testutil.NewMockEventHub()
	h := NewHandler(hub, &mockStatusProvider{status: events.StatusWatching}, time.Hour)
	defer h.Stop()

	ws := dial(t, h)

	first := readFrame(t, ws)
	if first.Event != string(events.EventTypeStatusChanged) {
		t.Fatalf("first frame = %s, want status_changed", first.Event)
	}
	var st events.StatusChangedPayload
	if err := json.Unmarshal(first.Payload, &st); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if st.Status != events.StatusWatching || st.Label != "Watching..." {
		t.Errorf("snapshot = %+v", st)
	}

	testutil.WaitFor(t, time.Second, func() bool { return hub.SubscriberCount() == 1 }, "hub subscription")

	hub.Publish(events.NewUploadCompletedEvent("sess", "/a.mp3", "a.mp3", 3))
	next := readFrame(t, ws)
	if next.Event != string(events.EventTypeUploadCompleted) {
		t.Errorf("frame = %s, want upload_completed", next.Event)
	}
}

func TestHandler_Heartbeat(t *testing.T) {
	h := NewHandler(nil, &mockStatusProvider{status: events.StatusNotWatching, uptime: 42}, 20*time.Millisecond)
	h.Start()
	defer h.Stop()

	ws := dial(t, h)
	_ = readFrame(t, ws) // status snapshot

	f := readFrame(t, ws)
	if f.Event != string(events.EventTypeHeartbeat) {
		t.Fatalf("frame = %s, want heartbeat", f.Event)
	}
	var hb events.HeartbeatPayload
	if err := json.Unmarshal(f.Payload, &hb); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if hb.Status != "not_watching" || hb.Uptime != 42 || hb.Sequence < 1 {
		t.Errorf("heartbeat = %+v", hb)
	}
}

func TestHandler_DisconnectUnsubscribes(t *testing.T) {
	hub := testutil.NewMockEventHub()
	h := NewHandler(hub, nil, time.Hour)
	defer h.Stop()

	ws := dial(t, h)
	testutil.WaitFor(t, time.Second, func() bool { return h.ClientCount() == 1 }, "client registered")

	_ = ws.Close()

	testutil.WaitFor(t, 2*time.Second, func() bool { return h.ClientCount() == 0 }, "client removed")
	testutil.WaitFor(t, time.Second, func() bool { return hub.SubscriberCount() == 0 }, "hub unsubscribed")
}

func TestHandler_StopClosesClients(t *testing.T) {
	h := NewHandler(nil, nil, time.Hour)
	ws := dial(t, h)
	testutil.WaitFor(t, time.Second, func() bool { return h.ClientCount() == 1 }, "client registered")

	h.Stop()
	h.Stop()

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Error("expected the connection to be closed")
	}
}

func TestClientSubscriber_ClosedClient(t *testing.T) {
	c := &Client{id: "c1", send: make(chan []byte, 1), done: make(chan struct{})}
	sub := NewClientSubscriber(c)

	if err := sub.Send(events.NewLogEvent("", "hello")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(c.send) != 1 {
		t.Errorf("queued = %d, want 1", len(c.send))
	}

	// Full buffer drops instead of blocking.
	if err := sub.Send(events.NewLogEvent("", "again")); err != nil {
		t.Errorf("Send() on full buffer error = %v", err)
	}

	_ = sub.Close()
	select {
	case <-sub.Done():
	default:
		t.Error("Done() should be closed")
	}
	if err := sub.Send(events.NewLogEvent("", "late")); err == nil {
		t.Error("Send() after Close should fail")
	}
	if sub.ID() != "c1" {
		t.Errorf("ID() = %q", sub.ID())
	}
}
