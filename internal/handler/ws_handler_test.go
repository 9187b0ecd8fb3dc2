package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/freeeve/hexwar/internal/auth"
	"github.com/freeeve/hexwar/internal/service"
)

// readEvents reads frames until n events arrived. The write pump may
// pack several events into one frame, newline separated.
func readEvents(t *testing.T, conn *websocket.Conn, n int) []WSEvent {
	t.Helper()
	var out []WSEvent
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for len(out) < n {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read after %d events: %v", len(out), err)
		}
		for _, line := range bytes.Split(msg, []byte("\n")) {
			var ev WSEvent
			if err := json.Unmarshal(line, &ev); err != nil {
				t.Fatalf("decode %q: %v", line, err)
			}
			out = append(out, ev)
		}
	}
	return out
}

func TestServeWSRejectsBadTokens(t *testing.T) {
	jwtMgr := auth.NewJWTManager("test-secret", 0, 0)
	h := NewWSHandler(NewHub(), jwtMgr, nil)
	refresh, _ := jwtMgr.GenerateRefreshToken("user-1")

	for _, q := range []string{"", "?token=junk", "?token=" + refresh} {
		rec := httptest.NewRecorder()
		h.ServeWS(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ws"+q, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%q: expected 401, got %d", q, rec.Code)
		}
	}
}

func TestServeWSReplaysAndBroadcasts(t *testing.T) {
	jwtMgr := auth.NewJWTManager("test-secret", 0, 0)
	hub := NewHub()
	cache := newMemCache()
	ctx := context.Background()
	cache.PushEvent(ctx, "m1", json.RawMessage(`{"type":"unit_moved","data":{"unit_id":3}}`))
	cache.PushEvent(ctx, "m1", json.RawMessage(`{"type":"turn_ended","data":{"turn":1}}`))

	srv := httptest.NewServer(http.HandlerFunc(NewWSHandler(hub, jwtMgr, cache).ServeWS))
	defer srv.Close()

	token, _ := jwtMgr.GenerateAccessToken("user-1")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if ev := readEvents(t, conn, 1); ev[0].Type != "connected" {
		t.Fatalf("expected welcome, got %+v", ev[0])
	}

	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", MatchID: "m1"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	replayed := readEvents(t, conn, 2)
	if replayed[0].Type != service.EventUnitMoved || replayed[1].Type != service.EventTurnEnded {
		t.Fatalf("unexpected replay order: %+v", replayed)
	}
	if replayed[0].MatchID != "m1" {
		t.Errorf("expected match_id m1, got %q", replayed[0].MatchID)
	}

	deadline := time.Now().Add(5 * time.Second)
	for hub.MatchSubscriberCount("m1") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	hub.BroadcastMatchEvent("m1", service.EventMatchEnded, map[string]any{"winner": 2})
	live := readEvents(t, conn, 1)
	if live[0].Type != service.EventMatchEnded {
		t.Errorf("expected match_ended, got %+v", live[0])
	}
}
