package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func TestWSWatcher_SubscribeAndNotify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		defer c.Close()

		// Read subscribe request
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}

		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}

		if req.Method != "logsSubscribe" {
			t.Errorf("expected logsSubscribe, got %s", req.Method)
		}

		filter, ok := req.Params[0].(map[string]interface{})
		if !ok {
			t.Errorf("expected mentions filter, got %v", req.Params[0])
		} else if mentions, _ := filter["mentions"].([]interface{}); len(mentions) != 1 || mentions[0] != "escrowProgram111" {
			t.Errorf("expected mentions [escrowProgram111], got %v", filter["mentions"])
		}

		// Send subscription confirmation
		resp := wsSubscribeResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  42,
		}
		if err := c.WriteJSON(resp); err != nil {
			return
		}

		// Send a log notification for the subscription
		time.Sleep(50 * time.Millisecond)
		notif := wsNotification{
			JSONRPC: "2.0",
			Method:  "logsNotification",
			Params: &wsNotificationParams{
				Subscription: 42,
				Result: wsNotificationResult{
					Context: &wsContext{Slot: 1000},
					Value: wsLogsValue{
						Signature: "sig1",
						Logs:      []string{"Program log: exchange"},
					},
				},
			},
		}
		if err := c.WriteJSON(notif); err != nil {
			return
		}

		// Keep the connection open
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	watcher, err := NewWSWatcher(context.Background(), wsURL, "escrowProgram111", nil)
	if err != nil {
		t.Fatalf("NewWSWatcher: %v", err)
	}
	defer watcher.Close()

	select {
	case n := <-watcher.Notifications():
		if n.Signature != "sig1" {
			t.Errorf("expected signature sig1, got %s", n.Signature)
		}
		if n.Slot != 1000 {
			t.Errorf("expected slot 1000, got %d", n.Slot)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestWSWatcher_CloseClosesChannel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		defer c.Close()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	watcher, err := NewWSWatcher(context.Background(), wsURL, "escrowProgram111", nil)
	if err != nil {
		t.Fatalf("NewWSWatcher: %v", err)
	}

	if err := watcher.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case _, open := <-watcher.Notifications():
		if open {
			t.Error("expected closed notification channel")
		}
	case <-time.After(time.Second):
		t.Fatal("notification channel not closed")
	}
}
