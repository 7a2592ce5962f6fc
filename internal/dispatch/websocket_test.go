package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/studiowebux/postdad/internal/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// echoServer upgrades and echoes every text frame back.
func echoServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestWebSocket_SendReceive(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	req := &types.ResolvedRequest{
		Transport: types.TransportWebSocket,
		URL:       wsURL(server),
		Timeout:   5 * time.Second,
		Messages: []types.WebSocketMessage{
			{Name: "hello", Direction: "send", Type: "text", Content: "ping"},
			{Name: "reply", Direction: "receive", TimeoutSec: 5},
		},
	}

	result := New().Dispatch(context.Background(), req)
	if !result.Success() {
		t.Fatalf("expected success, got %+v", result.Failure)
	}

	var tr transcript
	if err := json.Unmarshal([]byte(result.Body), &tr); err != nil {
		t.Fatalf("body is not a transcript: %v", err)
	}
	if tr.State != StateClosed {
		t.Errorf("state = %s", tr.State)
	}
	if tr.SentCount != 1 || tr.ReceivedCount != 1 {
		t.Errorf("sent=%d received=%d", tr.SentCount, tr.ReceivedCount)
	}
	if tr.Messages[1].Content != "ping" {
		t.Errorf("echo content = %q", tr.Messages[1].Content)
	}
}

func TestWebSocket_ConnectFailure(t *testing.T) {
	req := &types.ResolvedRequest{
		Transport: types.TransportWebSocket,
		URL:       "ws://127.0.0.1:9",
		Timeout:   time.Second,
	}

	result := New().Dispatch(context.Background(), req)
	if result.Success() {
		t.Fatal("expected transport failure")
	}
	if result.Failure.Kind != types.FailureTransport {
		t.Errorf("kind = %s", result.Failure.Kind)
	}
}

func TestWebSocket_ReceiveTimeout(t *testing.T) {
	// Server that never sends anything.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	req := &types.ResolvedRequest{
		Transport: types.TransportWebSocket,
		URL:       wsURL(server),
		Timeout:   5 * time.Second,
		Messages: []types.WebSocketMessage{
			{Name: "never", Direction: "receive", TimeoutSec: 1},
		},
	}

	result := New().Dispatch(context.Background(), req)
	if result.Success() {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(result.Failure.Reason, "timeout") {
		t.Errorf("reason = %s", result.Failure.Reason)
	}
}

func TestWebSocket_InvalidJSONMessage(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	req := &types.ResolvedRequest{
		Transport: types.TransportWebSocket,
		URL:       wsURL(server),
		Timeout:   5 * time.Second,
		Messages: []types.WebSocketMessage{
			{Name: "bad", Direction: "send", Type: "json", Content: "{not json"},
		},
	}

	result := New().Dispatch(context.Background(), req)
	if result.Success() {
		t.Fatal("expected failure for invalid JSON payload")
	}
}
