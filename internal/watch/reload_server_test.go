package watch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialReload(t *testing.T, rs *ReloadServer) (*websocket.Conn, func()) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(rs.HandleWebSocket))
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		server.Close()
		t.Fatalf("Dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		server.Close()
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) ReloadMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var msg ReloadMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("unmarshaling %q: %v", payload, err)
	}
	return msg
}

func waitForConnections(t *testing.T, rs *ReloadServer, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for rs.ConnectionCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("connection count = %d, want %d", rs.ConnectionCount(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestReloadServerBroadcastsModels(t *testing.T) {
	rs := NewReloadServer(nil)
	defer rs.Close()

	conn, cleanup := dialReload(t, rs)
	defer cleanup()
	waitForConnections(t, rs, 1)

	rs.NotifyModels([]string{"Post", "User"}, 7, 120*time.Millisecond)

	msg := readMessage(t, conn)
	if msg.Type != MessageModels {
		t.Fatalf("type = %q, want %q", msg.Type, MessageModels)
	}
	if len(msg.Models) != 2 || msg.Models[0] != "Post" {
		t.Fatalf("models = %v", msg.Models)
	}
	if msg.FilesWritten != 7 {
		t.Fatalf("files written = %d, want 7", msg.FilesWritten)
	}
	if msg.DurationMillis != 120 {
		t.Fatalf("duration = %v, want 120", msg.DurationMillis)
	}
	if msg.Timestamp == 0 {
		t.Fatal("timestamp missing")
	}
}

func TestReloadServerBroadcastsRegeneratingAndErrors(t *testing.T) {
	rs := NewReloadServer(nil)
	defer rs.Close()

	conn, cleanup := dialReload(t, rs)
	defer cleanup()
	waitForConnections(t, rs, 1)

	rs.NotifyRegenerating([]string{"db/zero_schema.json"})
	msg := readMessage(t, conn)
	if msg.Type != MessageRegenerating || len(msg.Files) != 1 {
		t.Fatalf("unexpected message: %+v", msg)
	}

	rs.NotifyError("users: table has no columns list")
	msg = readMessage(t, conn)
	if msg.Type != MessageError || !strings.Contains(msg.Error, "no columns") {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestReloadServerCountsConnections(t *testing.T) {
	rs := NewReloadServer(nil)
	defer rs.Close()

	if got := rs.ConnectionCount(); got != 0 {
		t.Fatalf("initial count = %d, want 0", got)
	}

	conn1, cleanup1 := dialReload(t, rs)
	defer cleanup1()
	waitForConnections(t, rs, 1)

	_, cleanup2 := dialReload(t, rs)
	defer cleanup2()
	waitForConnections(t, rs, 2)

	conn1.Close()
	waitForConnections(t, rs, 1)
}

func TestReloadServerRejectsForeignOrigins(t *testing.T) {
	rs := NewReloadServer(nil)
	defer rs.Close()

	server := httptest.NewServer(http.HandlerFunc(rs.HandleWebSocket))
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	header := http.Header{}
	header.Set("Origin", "http://evil.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		conn.Close()
		t.Fatal("foreign origin should be rejected")
	}
}
