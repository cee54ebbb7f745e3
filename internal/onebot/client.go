package onebot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mozi2244/webot/internal/config"
)

// actionRequest is the envelope for every OneBot action call. The echo field
// correlates responses with requests.
type actionRequest struct {
	Action string `json:"action"`
	Params any    `json:"params"`
	Echo   string `json:"echo"`
}

// actionResponse is the envelope of every OneBot action response.
type actionResponse struct {
	Status  string          `json:"status"`
	Retcode int64           `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Echo    string          `json:"echo"`
}

// Client calls the OneBot HTTP action API.
type Client struct {
	apiURL      string
	accessToken string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a OneBot API client from configuration.
func NewClient(cfg config.OneBotConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		apiURL:      strings.TrimRight(cfg.APIURL, "/"),
		accessToken: cfg.AccessToken,
		httpClient:  &http.Client{Timeout: cfg.RequestTimeout},
		logger:      logger.With("component", "onebot_client"),
	}
}

// call performs one action request and returns the raw data payload.
func (c *Client) call(ctx context.Context, action string, params any) (json.RawMessage, error) {
	if params == nil {
		params = struct{}{}
	}
	body, err := json.Marshal(actionRequest{
		Action: action,
		Params: params,
		Echo:   uuid.NewString(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s returned HTTP %d: %s", action, resp.StatusCode, string(preview))
	}

	var ar actionResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", action, err)
	}
	if ar.Status != "ok" {
		return nil, fmt.Errorf("%s failed: retcode=%d message=%q", action, ar.Retcode, ar.Message)
	}
	return ar.Data, nil
}

// GetSelfInfo returns the bot's own account information. It doubles as the
// startup connectivity check against the event source.
func (c *Client) GetSelfInfo(ctx context.Context) (*SelfInfo, error) {
	data, err := c.call(ctx, "get_self_info", nil)
	if err != nil {
		return nil, err
	}
	var info SelfInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to decode self info: %w", err)
	}
	return &info, nil
}

// GetLatestEvents pulls the next batch of events, long-polling for up to
// timeoutSeconds. The data payload may be either a bare event list or an
// object wrapping it under "events"; both are accepted, and individually
// malformed events are skipped rather than failing the batch.
func (c *Client) GetLatestEvents(ctx context.Context, timeoutSeconds int) ([]Event, error) {
	data, err := c.call(ctx, "get_latest_events", map[string]any{"timeout": timeoutSeconds})
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		var wrapped struct {
			Events []json.RawMessage `json:"events"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			c.logger.Debug("Unrecognized get_latest_events payload shape, ignoring", "payload_preview", logPreview(data))
			return nil, nil
		}
		raw = wrapped.Events
	}

	events := make([]Event, 0, len(raw))
	for _, r := range raw {
		var ev Event
		if err := json.Unmarshal(r, &ev); err != nil {
			c.logger.Debug("Skipping malformed event", "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// SendMessage delivers an outbound reply through the send_message action.
func (c *Client) SendMessage(ctx context.Context, msg *OutgoingMessage) error {
	_, err := c.call(ctx, "send_message", msg)
	return err
}

// GetFriendList returns the raw friend list payload. The caller persists it
// verbatim; the shape varies between upstream implementations.
func (c *Client) GetFriendList(ctx context.Context) (json.RawMessage, error) {
	return c.call(ctx, "get_friend_list", nil)
}

func logPreview(data []byte) string {
	const max = 256
	if len(data) <= max {
		return string(data)
	}
	return string(data[:max]) + "..."
}
