// Package api is the HTTP client for the message service. Every call carries
// the bearer token and the profile's device identifier; responses arrive in a
// uniform envelope that is unwrapped here so callers only see domain types.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/davrbek/chatline/internal/identity"
	"github.com/davrbek/chatline/internal/model"
	"github.com/davrbek/chatline/internal/protocol"
)

// Client talks to the message service REST API.
type Client struct {
	http     *http.Client
	baseURL  string
	token    string
	deviceID string
	log      *zap.Logger
}

// New creates a client for the given base URL.
func New(baseURL, token, deviceID string, log *zap.Logger) *Client {
	return &Client{
		http:     &http.Client{Timeout: 60 * time.Second},
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		deviceID: deviceID,
		log:      log,
	}
}

// Error is a failed API call, carrying the service's error classification.
type Error struct {
	StatusCode int
	Code       string
	ErrorCode  string
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("api: request failed with status %d", e.StatusCode)
}

// AuthFailure reports whether the call was rejected for credentials.
func (e *Error) AuthFailure() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

type envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Code      string          `json:"code"`
	ErrorCode string          `json:"errorCode"`
	Data      json.RawMessage `json:"data"`
}

// ChatList is the result of listing conversations.
type ChatList struct {
	Conversations []*model.Conversation
	TotalUnread   int
}

type wireChatList struct {
	Chats       []*protocol.WireChat `json:"chats"`
	TotalUnread int                  `json:"totalUnread"`
}

// ListChats fetches every conversation plus the server-side unread total.
func (c *Client) ListChats(ctx context.Context) (*ChatList, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/chats", nil, "")
	if err != nil {
		return nil, err
	}
	var wire wireChatList
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode chat list: %w", err)
	}
	out := &ChatList{TotalUnread: wire.TotalUnread}
	for _, wc := range wire.Chats {
		conv, err := wc.ToModel()
		if err != nil {
			c.log.Warn("skipping malformed chat in listing", zap.Error(err))
			continue
		}
		out.Conversations = append(out.Conversations, conv)
	}
	return out, nil
}

// ListMessages fetches the full message history of one conversation.
func (c *Client) ListMessages(ctx context.Context, chatID identity.ID) ([]*model.Message, error) {
	if chatID.IsProvisional() {
		return nil, fmt.Errorf("list messages: conversation has no server identity yet")
	}
	data, err := c.do(ctx, http.MethodGet, "/api/chats/"+chatID.ServerID()+"/messages", nil, "")
	if err != nil {
		return nil, err
	}
	var wire []*protocol.WireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode message history: %w", err)
	}
	msgs := make([]*model.Message, 0, len(wire))
	for _, wm := range wire {
		m, err := wm.ToModel()
		if err != nil {
			c.log.Warn("skipping malformed message in history", zap.Error(err))
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// SendRequest describes one outbound message. When Attachment is set the
// request goes out as multipart and Progress, if non-nil, receives upload
// byte counts.
type SendRequest struct {
	ReceiverID string
	Content    string
	Kind       model.MessageKind
	ReplyTo    identity.ID
	System     bool
	Attachment *model.DraftAttachment
	Progress   func(sent, total int64)
}

type sendPayload struct {
	ReceiverID       string `json:"receiverId"`
	Content          string `json:"content,omitempty"`
	Type             string `json:"type,omitempty"`
	ReplyToMessageID string `json:"replyToMessageId,omitempty"`
	System           bool   `json:"system,omitempty"`
	DurationMs       int64  `json:"durationMs,omitempty"`
}

// SendMessage posts a message and returns the server-confirmed entity.
func (c *Client) SendMessage(ctx context.Context, req SendRequest) (*model.Message, error) {
	payload := sendPayload{
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		Type:       protocol.KindToWire(req.Kind),
		System:     req.System,
	}
	if !req.ReplyTo.IsZero() && !req.ReplyTo.IsProvisional() {
		payload.ReplyToMessageID = req.ReplyTo.ServerID()
	}

	var data json.RawMessage
	var err error
	if req.Attachment == nil {
		body, merr := json.Marshal(payload)
		if merr != nil {
			return nil, fmt.Errorf("encode send payload: %w", merr)
		}
		data, err = c.do(ctx, http.MethodPost, "/api/chats/send", bytes.NewReader(body), "application/json")
	} else {
		payload.DurationMs = req.Attachment.Duration.Milliseconds()
		data, err = c.sendMultipart(ctx, payload, req.Attachment, req.Progress)
	}
	if err != nil {
		return nil, err
	}

	var wire protocol.WireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode send response: %w", err)
	}
	return wire.ToModel()
}

func (c *Client) sendMultipart(ctx context.Context, payload sendPayload, att *model.DraftAttachment, progress func(sent, total int64)) (json.RawMessage, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	meta, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode send payload: %w", err)
	}
	if err := w.WriteField("payload", string(meta)); err != nil {
		return nil, fmt.Errorf("write payload part: %w", err)
	}
	part, err := w.CreateFormFile("file", att.Name)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(att.Data); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finish multipart body: %w", err)
	}

	var body io.Reader = &buf
	if progress != nil {
		body = &progressReader{r: &buf, total: int64(buf.Len()), report: progress}
	}
	return c.do(ctx, http.MethodPost, "/api/chats/send", body, w.FormDataContentType())
}

// EditMessage replaces a message's text. The new content travels as a plain
// text body, matching the service's edit endpoint.
func (c *Client) EditMessage(ctx context.Context, msgID identity.ID, content string) (*model.Message, error) {
	if msgID.IsProvisional() {
		return nil, fmt.Errorf("edit: message has no server identity yet")
	}
	data, err := c.do(ctx, http.MethodPatch, "/api/chats/messages/"+msgID.ServerID(),
		strings.NewReader(content), "text/plain")
	if err != nil {
		return nil, err
	}
	var wire protocol.WireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode edit response: %w", err)
	}
	return wire.ToModel()
}

// DeleteMessage removes a message on the server.
func (c *Client) DeleteMessage(ctx context.Context, msgID identity.ID) error {
	if msgID.IsProvisional() {
		return fmt.Errorf("delete: message has no server identity yet")
	}
	_, err := c.do(ctx, http.MethodDelete, "/api/chats/messages/"+msgID.ServerID(), nil, "")
	return err
}

// DeleteChat removes a conversation and its history on the server.
func (c *Client) DeleteChat(ctx context.Context, chatID identity.ID) error {
	if chatID.IsProvisional() {
		return fmt.Errorf("delete: conversation has no server identity yet")
	}
	_, err := c.do(ctx, http.MethodDelete, "/api/chats/"+chatID.ServerID(), nil, "")
	return err
}

// DownloadAttachment streams a message's attachment. The caller must close
// the returned reader.
func (c *Client) DownloadAttachment(ctx context.Context, msgID identity.ID) (io.ReadCloser, error) {
	if msgID.IsProvisional() {
		return nil, fmt.Errorf("download: message has no server identity yet")
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/api/chats/messages/"+msgID.ServerID()+"/download", nil, "")
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &Error{StatusCode: resp.StatusCode, Message: "download failed"}
	}
	return resp.Body, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Device-Id", c.deviceID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read response: %w", method, path, err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, &Error{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
			}
			return nil, fmt.Errorf("%s %s: decode envelope: %w", method, path, err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || (len(raw) > 0 && !env.Success) {
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Code:       env.Code,
			ErrorCode:  env.ErrorCode,
			Message:    env.Message,
		}
	}
	return env.Data, nil
}

// progressReader reports cumulative bytes read to a callback.
type progressReader struct {
	r      io.Reader
	total  int64
	sent   int64
	report func(sent, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.report(p.sent, p.total)
	}
	return n, err
}
