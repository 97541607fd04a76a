// Package wstransport layers a websocket push data plane over another
// ports.Transport.
//
// Subscribe dials the websocket feed; every other operation delegates to the
// wrapped transport, so range reads, sends and uploads keep riding the HTTP
// adapter underneath.
package wstransport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatship-io/chatship/internal/domain"
	"github.com/chatship-io/chatship/internal/ports"
)

// Keepalive timing for the websocket feed.
const (
	pingInterval = 20 * time.Second
	pongWait     = 45 * time.Second
	writeWait    = 10 * time.Second
)

// Config holds the websocket connection settings.
type Config struct {
	// URL is the stream endpoint, ws:// or wss://.
	URL string

	// AuthKey is passed through as a bearer token.
	AuthKey string
}

// Transport adds a websocket Subscribe on top of an inner transport.
type Transport struct {
	ports.Transport

	dialer *websocket.Dialer
	logger ports.Logger
	cfg    Config
}

// New wraps inner with a websocket push feed.
func New(inner ports.Transport, logger ports.Logger, cfg Config) *Transport {
	return &Transport{
		Transport: inner,
		dialer:    websocket.DefaultDialer,
		logger:    logger,
		cfg:       cfg,
	}
}

// Subscribe dials the push feed starting after offset.
func (t *Transport) Subscribe(ctx context.Context, offset uint64, scope domain.ScopeFilter) (ports.Subscription, error) {
	header := http.Header{}
	if t.cfg.AuthKey != "" {
		header.Set("Authorization", "Bearer "+t.cfg.AuthKey)
	}
	header.Set("X-Stream-Offset", fmt.Sprintf("%d", offset))
	header.Set("X-Stream-Owner", scope.OwnerID)
	if scope.PeerID != "" {
		header.Set("X-Stream-Peer", scope.PeerID)
	}

	conn, resp, err := t.dialer.DialContext(ctx, t.cfg.URL, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, domain.NewTransportError("subscribe", err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	sub := &subscription{
		conn:   conn,
		logger: t.logger,
		msgs:   make(chan ports.SubscriptionMessage, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
	go sub.readLoop()
	go sub.keepalive()
	return sub, nil
}

// frame is one wire message on the push feed.
type frame struct {
	Type   string              `json:"type"`
	Offset uint64              `json:"offset"`
	Event  *domain.StreamEvent `json:"event,omitempty"`
}

type subscription struct {
	conn   *websocket.Conn
	logger ports.Logger
	msgs   chan ports.SubscriptionMessage
	errs   chan error

	closeOnce sync.Once
	closed    chan struct{}
}

// Next returns the next feed message, blocking until one arrives, the feed
// fails, or ctx is done.
func (s *subscription) Next(ctx context.Context) (ports.SubscriptionMessage, error) {
	select {
	case msg := <-s.msgs:
		return msg, nil
	case err := <-s.errs:
		return ports.SubscriptionMessage{}, err
	case <-s.closed:
		return ports.SubscriptionMessage{}, domain.NewTransportError("subscription", fmt.Errorf("feed closed"))
	case <-ctx.Done():
		return ports.SubscriptionMessage{}, ctx.Err()
	}
}

// Close tears down the websocket. Safe to call concurrently with Next.
func (s *subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		deadline := time.Now().Add(writeWait)
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = s.conn.Close()
	})
	return err
}

// readLoop decodes feed frames into subscription messages until the
// connection fails.
func (s *subscription) readLoop() {
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(domain.NewTransportError("read feed", err))
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.fail(&domain.ProtocolError{Reason: "malformed feed frame: " + err.Error()})
			return
		}

		msg, err := f.toMessage()
		if err != nil {
			s.fail(err)
			return
		}

		select {
		case s.msgs <- msg:
		case <-s.closed:
			return
		}
	}
}

func (f frame) toMessage() (ports.SubscriptionMessage, error) {
	switch f.Type {
	case "ack":
		return ports.SubscriptionMessage{Kind: ports.MessageAck, Offset: f.Offset}, nil
	case "event":
		if f.Event == nil {
			return ports.SubscriptionMessage{}, &domain.ProtocolError{Reason: "event frame without event"}
		}
		return ports.SubscriptionMessage{Kind: ports.MessageEvent, Offset: f.Event.Offset, Event: f.Event}, nil
	case "gap":
		return ports.SubscriptionMessage{Kind: ports.MessageGap, Offset: f.Offset}, nil
	default:
		return ports.SubscriptionMessage{}, &domain.ProtocolError{Reason: "unknown feed frame type " + f.Type}
	}
}

// keepalive pings the remote on a fixed interval so half-open connections
// surface as read deadline failures.
func (s *subscription) keepalive() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-s.closed:
			return
		}
	}
}

// fail delivers one terminal error to Next unless the consumer already
// closed the subscription.
func (s *subscription) fail(err error) {
	select {
	case <-s.closed:
	default:
		select {
		case s.errs <- err:
		default:
		}
	}
}
