package statusd

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/mattsch/caldav-tasks/internal/model"
	syncengine "github.com/mattsch/caldav-tasks/internal/sync"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(0, nil)
	if err := server.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	time.Sleep(100 * time.Millisecond)
	return server
}

func dialTest(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("websocket.Dial() failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func TestServer_StartStop(t *testing.T) {
	server := NewServer(0, nil)
	if err := server.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if server.Addr() == "" {
		t.Fatal("Addr() is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
}

func TestServer_BroadcastsSyncSummary(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialTest(t, ctx, server)

	if count := server.ClientCount(); count != 1 {
		t.Fatalf("ClientCount() = %d, want 1", count)
	}

	server.SyncCompleted(syncengine.Summary{CalendarID: 7, Pushed: 2, Pulled: 3})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if msg.Type != MessageTypeSyncSummary {
		t.Errorf("Type = %s, want %s", msg.Type, MessageTypeSyncSummary)
	}

	var sum syncengine.Summary
	if err := json.Unmarshal(msg.Data, &sum); err != nil {
		t.Fatalf("payload unmarshal failed: %v", err)
	}
	if sum.CalendarID != 7 || sum.Pushed != 2 || sum.Pulled != 3 {
		t.Errorf("payload = %+v, want the broadcast summary", sum)
	}
}

func TestServer_BroadcastsConflictsSeparately(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialTest(t, ctx, server)

	sum := syncengine.Summary{CalendarID: 1}
	sum.Conflicts = append(sum.Conflicts, model.Conflict{UID: "r1", LocalEtag: `"a"`, RemoteEtag: `"b"`})
	server.SyncCompleted(sum)

	// First the summary, then one message per conflict.
	types := []MessageType{MessageTypeSyncSummary, MessageTypeConflict}
	for _, want := range types {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read() failed: %v", err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if msg.Type != want {
			t.Errorf("Type = %s, want %s", msg.Type, want)
		}
	}
}

func TestServer_SyncFailed(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialTest(t, ctx, server)

	server.SyncFailed(3, context.DeadlineExceeded)

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if msg.Type != MessageTypeSyncError {
		t.Errorf("Type = %s, want %s", msg.Type, MessageTypeSyncError)
	}
	var payload SyncErrorData
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("payload unmarshal failed: %v", err)
	}
	if payload.CalendarID != 3 || payload.Error == "" {
		t.Errorf("payload = %+v, want calendar 3 with error text", payload)
	}
}

func TestServer_BroadcastWithoutClients(t *testing.T) {
	server := startTestServer(t)

	// Nothing connected: the broadcast must simply be dropped.
	server.PublishCounts(TaskCountsData{Total: 5})
	server.SyncCompleted(syncengine.Summary{CalendarID: 1})
}
