package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sweeney/ledrig-monitor/internal/logic"
)

const (
	defaultTimeout = 4 * time.Second
	maxBodyBytes   = 1 << 20

	// RequestIDHeader carries the command id to the rig.
	RequestIDHeader = "X-Request-ID"
)

// HTTPConfig controls how the rig client behaves.
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
	Logger  zerolog.Logger
	HTTP    *http.Client
}

// HTTPClient implements Client against the rig's HTTP API.
type HTTPClient struct {
	baseURL *url.URL
	client  *http.Client
	logger  zerolog.Logger
	newID   func() string
}

// NewHTTPClient constructs a rig client. It does not contact the rig.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("device: base url is required")
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("device: invalid base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("device: unsupported scheme %q", parsed.Scheme)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &HTTPClient{
		baseURL: parsed,
		client:  httpClient,
		logger:  cfg.Logger,
		newID:   func() string { return uuid.NewString() },
	}, nil
}

// Status fetches GET /status.
func (c *HTTPClient) Status(ctx context.Context) (*logic.Snapshot, error) {
	const op = "get status"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/status"), nil)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &NetworkError{Op: op, StatusCode: resp.StatusCode, Message: errorField(body)}
	}

	snap, err := DecodeStatus(body)
	if err != nil {
		return nil, &MalformedResponseError{Op: op, Err: err}
	}
	return snap, nil
}

// SetLED sends POST /set_led.
func (c *HTTPClient) SetLED(ctx context.Context, channel string, on bool) (Ack, error) {
	return c.command(ctx, "set led", "/set_led", setLEDRequest{LED: channel, State: on})
}

// SetFaultMode sends POST /set_fault_mode.
func (c *HTTPClient) SetFaultMode(ctx context.Context, mode string) (Ack, error) {
	return c.command(ctx, "set fault mode", "/set_fault_mode", setFaultModeRequest{Mode: mode})
}

func (c *HTTPClient) command(ctx context.Context, op, p string, body any) (Ack, error) {
	ack := Ack{RequestID: c.newID()}

	payload, err := json.Marshal(body)
	if err != nil {
		return ack, fmt.Errorf("%s: marshal request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(p), bytes.NewReader(payload))
	if err != nil {
		return ack, &NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, ack.RequestID)

	resp, err := c.client.Do(req)
	if err != nil {
		return ack, &NetworkError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return ack, &NetworkError{Op: op, Err: err}
	}

	var decoded commandResponse
	// Command replies may legitimately be empty; a body that is not JSON only
	// loses the optional message.
	_ = json.Unmarshal(data, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ack, &NetworkError{Op: op, StatusCode: resp.StatusCode, Message: decoded.Error}
	}

	ack.Message = decoded.Message
	c.logger.Debug().
		Str("op", op).
		Str("request_id", ack.RequestID).
		Str("message", ack.Message).
		Msg("command acknowledged")
	return ack, nil
}

func (c *HTTPClient) endpoint(p string) string {
	u := *c.baseURL
	u.Path = path.Join("/", u.Path, p)
	return u.String()
}

func errorField(body []byte) string {
	var decoded commandResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return ""
	}
	return decoded.Error
}
