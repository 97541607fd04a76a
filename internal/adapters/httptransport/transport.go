// Package httptransport implements ports.Transport against the transfer
// endpoint's HTTP/JSON API.
//
// This adapter provides the bounded-timeout poll data plane; Subscribe
// reports domain.ErrPushUnsupported so consumers fall back to Poll. Wrap it
// with the wstransport adapter where the endpoint offers a push feed.
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/chatship-io/chatship/internal/domain"
	"github.com/chatship-io/chatship/internal/ports"
)

// API endpoints, relative to the service base URL.
const (
	pollEndpoint    = "/v1/stream/poll"
	rangeEndpoint   = "/v1/stream/range"
	eventsEndpoint  = "/v1/stream/events"
	uploadsEndpoint = "/v1/uploads"
)

// Config holds the adapter's connection settings.
type Config struct {
	// BaseURL is the service base URL without a trailing slash.
	BaseURL string

	// AuthKey is passed through as a bearer token; the endpoint owns
	// authentication.
	AuthKey string
}

// Transport implements ports.Transport using HTTP.
type Transport struct {
	client ports.HTTPClient
	logger ports.Logger
	cfg    Config
}

// New creates a new HTTP transport adapter.
func New(client ports.HTTPClient, logger ports.Logger, cfg Config) *Transport {
	return &Transport{
		client: client,
		logger: logger,
		cfg:    cfg,
	}
}

// Subscribe reports that this adapter has no push data plane.
func (t *Transport) Subscribe(ctx context.Context, offset uint64, scope domain.ScopeFilter) (ports.Subscription, error) {
	return nil, domain.ErrPushUnsupported
}

type scopeBody struct {
	OwnerID string `json:"owner_id"`
	PeerID  string `json:"peer_id,omitempty"`
}

type pollRequest struct {
	Offset         uint64    `json:"offset"`
	Scope          scopeBody `json:"scope"`
	TimeoutSeconds int       `json:"timeout_seconds"`
}

type pollResponse struct {
	Events     []domain.StreamEvent `json:"events"`
	NextOffset uint64               `json:"next_offset"`
	HasMore    bool                 `json:"has_more"`
}

// Poll returns events after offset, waiting up to timeout server-side.
func (t *Transport) Poll(ctx context.Context, offset uint64, scope domain.ScopeFilter, timeout time.Duration) (ports.EventBatch, error) {
	req := pollRequest{
		Offset:         offset,
		Scope:          scopeBody{OwnerID: scope.OwnerID, PeerID: scope.PeerID},
		TimeoutSeconds: int(timeout / time.Second),
	}
	var resp pollResponse
	if err := t.do(ctx, "poll", pollEndpoint, req, &resp); err != nil {
		return ports.EventBatch{}, err
	}
	return ports.EventBatch{
		Events:     resp.Events,
		NextOffset: resp.NextOffset,
		HasMore:    resp.HasMore,
	}, nil
}

type rangeRequest struct {
	Start uint64 `json:"start_offset"`
	End   uint64 `json:"end_offset,omitempty"`
	Limit int    `json:"limit"`
}

type rangeResponse struct {
	Events      []domain.StreamEvent `json:"events"`
	StartOffset uint64               `json:"start_offset"`
	EndOffset   uint64               `json:"end_offset"`
	TotalOffset uint64               `json:"total_offset"`
	HasMore     bool                 `json:"has_more"`
}

// RangeRead returns events in (start, end], paged by limit.
func (t *Transport) RangeRead(ctx context.Context, start, end uint64, limit int) (ports.RangeResult, error) {
	req := rangeRequest{Start: start, End: end, Limit: limit}
	var resp rangeResponse
	if err := t.do(ctx, "range read", rangeEndpoint, req, &resp); err != nil {
		return ports.RangeResult{}, err
	}
	return ports.RangeResult{
		Events:      resp.Events,
		StartOffset: resp.StartOffset,
		EndOffset:   resp.EndOffset,
		TotalOffset: resp.TotalOffset,
		HasMore:     resp.HasMore,
	}, nil
}

type sendRequest struct {
	SenderID    string           `json:"sender_id"`
	RecipientID string           `json:"recipient_id"`
	Kind        domain.EventKind `json:"kind"`
	Content     []byte           `json:"content"`

	// ClientRef lets the remote deduplicate a retried append.
	ClientRef string `json:"client_ref"`
}

// SendEvent appends one event to the log.
func (t *Transport) SendEvent(ctx context.Context, senderID, recipientID string, content []byte, kind domain.EventKind) (domain.SendReceipt, error) {
	req := sendRequest{
		ClientRef:   uuid.NewString(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Kind:        kind,
		Content:     content,
	}
	var receipt domain.SendReceipt
	if err := t.do(ctx, "send event", eventsEndpoint, req, &receipt); err != nil {
		return domain.SendReceipt{}, err
	}
	return receipt, nil
}

type createSessionRequest struct {
	Signature  domain.FileSignature `json:"signature"`
	TotalBytes int64                `json:"total_bytes"`
	Metadata   map[string]string    `json:"metadata,omitempty"`
}

type createSessionResponse struct {
	SessionID    string `json:"session_id"`
	ResumeOffset int64  `json:"resume_offset"`
}

// CreateOrResumeUploadSession probes for a resumable session matching sig
// and creates one if none exists.
func (t *Transport) CreateOrResumeUploadSession(ctx context.Context, sig domain.FileSignature, totalBytes int64, meta map[string]string) (domain.UploadGrant, error) {
	req := createSessionRequest{Signature: sig, TotalBytes: totalBytes, Metadata: meta}
	var resp createSessionResponse
	if err := t.do(ctx, "create upload session", uploadsEndpoint, req, &resp); err != nil {
		return domain.UploadGrant{}, err
	}
	return domain.UploadGrant{
		SessionID:    resp.SessionID,
		ResumeOffset: resp.ResumeOffset,
	}, nil
}

type chunkResponse struct {
	NextOffset int64  `json:"next_offset"`
	Completed  bool   `json:"completed"`
	Location   string `json:"location,omitempty"`
}

// UploadChunk transmits one chunk as a raw body; the byte offset travels in
// a header so the remote can deduplicate retried chunks.
func (t *Transport) UploadChunk(ctx context.Context, sessionID string, offset int64, chunk []byte) (ports.ChunkResult, error) {
	url := t.cfg.BaseURL + uploadsEndpoint + "/" + sessionID + "/chunks"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(chunk))
	if err != nil {
		return ports.ChunkResult{}, fmt.Errorf("create chunk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Upload-Offset", strconv.FormatInt(offset, 10))
	t.setAuth(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return ports.ChunkResult{}, domain.NewTransportError("upload chunk", err)
	}
	defer resp.Body.Close()

	if err := t.checkStatus("upload chunk", resp); err != nil {
		return ports.ChunkResult{}, err
	}

	var out chunkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ports.ChunkResult{}, &domain.ProtocolError{Reason: "malformed chunk response: " + err.Error()}
	}
	return ports.ChunkResult{
		NextOffset: out.NextOffset,
		Completed:  out.Completed,
		Location:   out.Location,
	}, nil
}

// do executes one JSON request/response round trip.
func (t *Transport) do(ctx context.Context, op, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	t.setAuth(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return domain.NewTransportError(op, err)
	}
	defer resp.Body.Close()

	if err := t.checkStatus(op, resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.ProtocolError{Reason: "malformed " + op + " response: " + err.Error()}
	}
	return nil
}

func (t *Transport) setAuth(req *http.Request) {
	if t.cfg.AuthKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.cfg.AuthKey)
	}
}

// checkStatus maps HTTP status codes onto the error taxonomy: 5xx and 408
// are transient transport failures, quota rejections are capacity errors,
// a missing upload session is the start-fresh sentinel, and the rest of
// 4xx means the request itself was invalid.
func (t *Transport) checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode/100 == 2 {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	switch {
	case resp.StatusCode/100 == 5 || resp.StatusCode == http.StatusRequestTimeout:
		return domain.NewTransportError(op,
			fmt.Errorf("server returned %d: %s", resp.StatusCode, detail))
	case resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode == http.StatusRequestEntityTooLarge ||
		resp.StatusCode == http.StatusInsufficientStorage:
		return &domain.CapacityError{Detail: string(detail)}
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, op)
	default:
		return &domain.ProtocolError{
			Reason: fmt.Sprintf("%s rejected with %d: %s", op, resp.StatusCode, detail),
		}
	}
}
