package wstransport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatship-io/chatship/internal/domain"
	"github.com/chatship-io/chatship/internal/ports"
)

// nopLogger implements ports.Logger for testing.
type nopLogger struct{}

func (nopLogger) Debug(msg string, fields ...ports.Field) {}
func (nopLogger) Info(msg string, fields ...ports.Field)  {}
func (nopLogger) Warn(msg string, fields ...ports.Field)  {}
func (nopLogger) Error(msg string, fields ...ports.Field) {}

var upgrader = websocket.Upgrader{}

func newFeedServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn, r)
	}))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, wsURL
}

// drain keeps the server side open until the client closes.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestSubscription_DeliversFrames(t *testing.T) {
	ev := domain.StreamEvent{ID: "ev-6", Offset: 6, Kind: domain.KindText, SenderID: "bob"}

	srv, wsURL := newFeedServer(t, func(conn *websocket.Conn, r *http.Request) {
		if got := r.Header.Get("X-Stream-Offset"); got != "5" {
			t.Errorf("X-Stream-Offset = %q, want 5", got)
		}
		if got := r.Header.Get("X-Stream-Owner"); got != "alice" {
			t.Errorf("X-Stream-Owner = %q, want alice", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q, want Bearer test-key", got)
		}

		conn.WriteJSON(frame{Type: "ack", Offset: 5})
		conn.WriteJSON(frame{Type: "event", Event: &ev})
		conn.WriteJSON(frame{Type: "gap", Offset: 9})
		drain(conn)
	})
	defer srv.Close()

	tr := New(nil, nopLogger{}, Config{URL: wsURL, AuthKey: "test-key"})
	sub, err := tr.Subscribe(context.Background(), 5, domain.ScopeFilter{OwnerID: "alice"})
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	defer sub.Close()

	ctx := context.Background()

	msg, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if msg.Kind != ports.MessageAck || msg.Offset != 5 {
		t.Errorf("first message = %+v, want ack at 5", msg)
	}

	msg, err = sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if msg.Kind != ports.MessageEvent || msg.Event == nil || msg.Event.Offset != 6 {
		t.Errorf("second message = %+v, want event at 6", msg)
	}

	msg, err = sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if msg.Kind != ports.MessageGap {
		t.Errorf("third message = %+v, want gap", msg)
	}
}

func TestSubscription_UnknownFrameIsProtocolError(t *testing.T) {
	srv, wsURL := newFeedServer(t, func(conn *websocket.Conn, r *http.Request) {
		conn.WriteJSON(frame{Type: "surprise"})
		drain(conn)
	})
	defer srv.Close()

	tr := New(nil, nopLogger{}, Config{URL: wsURL})
	sub, err := tr.Subscribe(context.Background(), 0, domain.ScopeFilter{OwnerID: "alice"})
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	defer sub.Close()

	_, err = sub.Next(context.Background())
	var pe *domain.ProtocolError
	if !errors.As(err, &pe) {
		t.Errorf("Next() error = %v, want ProtocolError", err)
	}
}

func TestSubscription_DroppedFeedIsRetryable(t *testing.T) {
	srv, wsURL := newFeedServer(t, func(conn *websocket.Conn, r *http.Request) {
		conn.WriteJSON(frame{Type: "ack", Offset: 0})
		// Return closes the connection abruptly.
	})
	defer srv.Close()

	tr := New(nil, nopLogger{}, Config{URL: wsURL})
	sub, err := tr.Subscribe(context.Background(), 0, domain.ScopeFilter{OwnerID: "alice"})
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	defer sub.Close()

	if _, err := sub.Next(context.Background()); err != nil {
		t.Fatalf("Next() on ack error: %v", err)
	}

	_, err = sub.Next(context.Background())
	if err == nil {
		t.Fatal("Next() after drop = nil error")
	}
	if !domain.Retryable(err) {
		t.Errorf("Retryable(%v) = false, want true", err)
	}
}

func TestSubscription_NextHonorsContext(t *testing.T) {
	srv, wsURL := newFeedServer(t, func(conn *websocket.Conn, r *http.Request) {
		drain(conn)
	})
	defer srv.Close()

	tr := New(nil, nopLogger{}, Config{URL: wsURL})
	sub, err := tr.Subscribe(context.Background(), 0, domain.ScopeFilter{OwnerID: "alice"})
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = sub.Next(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next() = %v, want DeadlineExceeded", err)
	}
}

func TestTransport_DialFailureIsRetryable(t *testing.T) {
	srv, wsURL := newFeedServer(t, func(conn *websocket.Conn, r *http.Request) {})
	srv.Close() // refuse connections

	tr := New(nil, nopLogger{}, Config{URL: wsURL})
	_, err := tr.Subscribe(context.Background(), 0, domain.ScopeFilter{OwnerID: "alice"})
	if err == nil {
		t.Fatal("Subscribe() error = nil")
	}
	if !domain.Retryable(err) {
		t.Errorf("Retryable(%v) = false, want true", err)
	}
}
