package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWebSocketPracticeFlow(t *testing.T) {
	service := newTestService(t)
	wsHandler := NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/practice", wsHandler.ServePractice)
	server := httptest.NewServer(mux)
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws/practice?learnerId=l1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect the current lesson first.
	_, payload := readNext(conn, t, "today")
	if payload == nil {
		t.Fatalf("expected today payload, got nil")
	}

	attempt := map[string]any{
		"type": "attempt",
		"payload": map[string]any{
			"topicId":         "greetings",
			"day":             1,
			"transcript":      passTranscript,
			"durationSeconds": passDuration,
		},
	}
	if err := conn.WriteJSON(attempt); err != nil {
		t.Fatalf("write attempt: %v", err)
	}

	// Expect attemptResult then a refreshed today frame.
	_, payload = readNext(conn, t, "attemptResult")
	if passed, ok := payload["passed"].(bool); !ok || !passed {
		t.Fatalf("expected passing attempt, got %+v", payload)
	}
	_, payload = readNext(conn, t, "today")
	lesson, ok := payload["lesson"].(map[string]any)
	if !ok {
		t.Fatalf("expected lesson in today frame, got %+v", payload)
	}
	if day, _ := lesson["day"].(float64); day != 2 {
		t.Fatalf("expected day 2 offered after pass, got %v", lesson["day"])
	}
}

func TestWebSocketRequiresLearnerID(t *testing.T) {
	service := newTestService(t)
	wsHandler := NewWSHandler(service)

	server := httptest.NewServer(http.HandlerFunc(wsHandler.ServePractice))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without learnerId, got %d", resp.StatusCode)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
