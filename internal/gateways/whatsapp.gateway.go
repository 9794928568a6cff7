package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coachdesk/campaign-gateway/pkg/logger"
	"github.com/valyala/fasthttp"
)

var (
	// ErrSessionDisconnected means the upstream WhatsApp session is down.
	// Sends are doomed until it reconnects, so a dispatch cycle should
	// short-circuit instead of attempting them.
	ErrSessionDisconnected = errors.New("whatsapp session disconnected")
	// ErrRejected means the provider explicitly refused the payload.
	ErrRejected = errors.New("message rejected by provider")
)

// SendRequest is one outbound message to one conversation target.
type SendRequest struct {
	GroupJID  string `json:"group_jid"`
	Message   string `json:"message"`
	MediaURL  string `json:"media_url,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

// Validate enforces the send contract: a valid target, and content unless
// media is attached.
func (r *SendRequest) Validate() error {
	if r.GroupJID == "" {
		return errors.New("group_jid is required")
	}
	if r.Message == "" && r.MediaURL == "" {
		return errors.New("message or media is required")
	}
	return nil
}

// SendResponse is the gateway's synchronous answer. Accepted means the
// provider took the message for asynchronous delivery; the true outcome
// arrives later via webhook. It never implies final delivery.
type SendResponse struct {
	Accepted  bool   `json:"accepted"`
	MessageID string `json:"message_id,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_message,omitempty"`
}

type sessionStatusResponse struct {
	Connected bool   `json:"connected"`
	State     string `json:"state,omitempty"`
}

type Config struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	MaxConns        int
	ReadBufferSize  int
	WriteBufferSize int
}

// Client talks to the WhatsApp VPS gateway over HTTP.
type Client struct {
	config *Config
	client *fasthttp.Client
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.BaseURL == "" {
		return nil, errors.New("gateway base URL is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}

	httpClient := &fasthttp.Client{
		MaxConnsPerHost:     config.MaxConns,
		ReadTimeout:         config.Timeout,
		WriteTimeout:        config.Timeout,
		MaxIdleConnDuration: 60 * time.Second,
		ReadBufferSize:      config.ReadBufferSize,
		WriteBufferSize:     config.WriteBufferSize,
	}

	logger.Info("Gateway client initialized", "base_url", config.BaseURL, "timeout", config.Timeout)

	return &Client{
		config: config,
		client: httpClient,
	}, nil
}

// SessionStatus reports whether the upstream WhatsApp session is connected.
func (c *Client) SessionStatus(ctx context.Context) (bool, error) {
	body, status, err := c.doRequest(ctx, "GET", "/api/session/status", nil)
	if err != nil {
		return false, err
	}
	if status != fasthttp.StatusOK {
		return false, fmt.Errorf("unexpected status code: %d", status)
	}

	var resp sessionStatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("failed to unmarshal session status: %w", err)
	}
	return resp.Connected, nil
}

// SendMessage submits one message. Distinct failure modes:
// transport errors are returned wrapped, a disconnected session maps to
// ErrSessionDisconnected, and an explicit provider rejection to ErrRejected.
func (c *Client) SendMessage(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	startTime := time.Now()
	body, status, err := c.doRequest(ctx, "POST", "/api/messages/send", reqBody)
	latency := time.Since(startTime).Milliseconds()
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	switch {
	case status == fasthttp.StatusOK || status == fasthttp.StatusAccepted:
		// fall through to decode
	case status == fasthttp.StatusConflict || status == fasthttp.StatusServiceUnavailable:
		return nil, fmt.Errorf("%w (status %d)", ErrSessionDisconnected, status)
	case status >= 400 && status < 500:
		return nil, fmt.Errorf("%w (status %d): %s", ErrRejected, status, body)
	default:
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", status, body)
	}

	var resp SendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	logger.Info("Message submitted to gateway",
		"group_jid", req.GroupJID,
		"accepted", resp.Accepted,
		"provider_message_id", resp.MessageID,
		"latency_ms", latency)

	return &resp, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.config.BaseURL + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if c.config.APIKey != "" {
		req.Header.Set("X-API-Key", c.config.APIKey)
	}

	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}

	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, 0, err
	}

	result := make([]byte, len(resp.Body()))
	copy(result, resp.Body())

	return result, resp.StatusCode(), nil
}
