// Package voice is the HTTP client for the outbound voice-agent provider.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"leadpipe/internal/leads/ports"
	"leadpipe/platform/config"
	"leadpipe/platform/logger"

	"golang.org/x/time/rate"
)

const (
	defaultVoiceID   = "en-US-Neural2-F"
	callType         = "lead_verification"
	maxRecordingSize = 200 << 20
)

// Client implements ports.VoiceProvider over the provider's REST API.
type Client struct {
	baseURL     string
	apiKey      string
	voiceID     string
	callbackURL string
	http        *http.Client
	limiter     *rate.Limiter
	log         *logger.Logger
}

var _ ports.VoiceProvider = (*Client)(nil)

type initiateRequest struct {
	PhoneNumber string       `json:"phone_number"`
	CallScript  ports.Script `json:"call_script"`
	VoiceID     string       `json:"voice_id"`
	RecordCall  bool         `json:"record_call"`
	CallbackURL string       `json:"callback_url,omitempty"`
	Metadata    callMetadata `json:"metadata"`
}

type callMetadata struct {
	LeadID string `json:"lead_id"`
	Type   string `json:"type"`
}

type initiateResponse struct {
	CallID string `json:"call_id"`
	Status string `json:"status"`
}

type statusResponse struct {
	Status     string          `json:"status"`
	Transcript json.RawMessage `json:"transcript"`
	StartTime  json.RawMessage `json:"start_time"`
	EndTime    json.RawMessage `json:"end_time"`
}

type recordingResponse struct {
	RecordingURL string `json:"recording_url"`
}

// NewClient builds a client from config. Requests are rate limited to
// GetVoiceRateLimit per second.
func NewClient(cfg config.VoiceConfig, log *logger.Logger) (*Client, error) {
	if cfg.GetVoiceAPIURL() == "" {
		return nil, errors.New("voice: api url is required")
	}
	voiceID := cfg.GetVoiceID()
	if voiceID == "" {
		voiceID = defaultVoiceID
	}
	limit := rate.Inf
	if r := cfg.GetVoiceRateLimit(); r > 0 {
		limit = rate.Limit(r)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.GetVoiceAPIURL(), "/"),
		apiKey:      cfg.GetVoiceAPIKey(),
		voiceID:     voiceID,
		callbackURL: cfg.GetVoiceCallbackURL(),
		http:        &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(limit, 1),
		log:         log.WithComponent("voice_client"),
	}, nil
}

// Initiate places a call and returns its handle.
func (c *Client) Initiate(ctx context.Context, req ports.CallRequest) (ports.CallHandle, error) {
	payload := initiateRequest{
		PhoneNumber: req.Phone,
		CallScript:  req.Script,
		VoiceID:     c.voiceID,
		RecordCall:  true,
		CallbackURL: c.callbackURL,
		Metadata:    callMetadata{LeadID: req.LeadID, Type: callType},
	}
	var out initiateResponse
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/calls", payload, &out); err != nil {
		return ports.CallHandle{}, fmt.Errorf("initiate call: %w", err)
	}
	if out.CallID == "" {
		return ports.CallHandle{}, errors.New("initiate call: response has no call_id")
	}
	c.log.Info("call placed", "call_id", out.CallID, "lead_id", req.LeadID)
	return ports.CallHandle{CallID: out.CallID, Status: out.Status}, nil
}

// Status fetches the current call state. The status field is authoritative:
// a malformed transcript never turns a terminal call into an error.
func (c *Client) Status(ctx context.Context, callID string) (ports.CallStatus, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, c.callURL(callID), nil, &raw); err != nil {
		return ports.CallStatus{}, fmt.Errorf("call status: %w", err)
	}
	var out statusResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return ports.CallStatus{}, fmt.Errorf("decode call status: %w", err)
	}

	responses, dropped := decodeResponses(out.Transcript)
	if dropped {
		c.log.Warn("call transcript partly unreadable", "call_id", callID, "status", out.Status)
	}
	return ports.CallStatus{
		Status:    strings.ToLower(strings.TrimSpace(out.Status)),
		Responses: responses,
		StartTime: parseTime(timeText(out.StartTime)),
		EndTime:   parseTime(timeText(out.EndTime)),
		Raw:       raw,
	}, nil
}

// DownloadRecording resolves the recording location and downloads it.
func (c *Client) DownloadRecording(ctx context.Context, callID string) (ports.Recording, error) {
	var meta recordingResponse
	if err := c.doJSON(ctx, http.MethodGet, c.callURL(callID)+"/recording", nil, &meta); err != nil {
		return ports.Recording{}, fmt.Errorf("recording location: %w", err)
	}
	if meta.RecordingURL == "" {
		return ports.Recording{}, errors.New("recording location: no recording_url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.RecordingURL, nil)
	if err != nil {
		return ports.Recording{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return ports.Recording{}, fmt.Errorf("download recording: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= http.StatusBadRequest {
		return ports.Recording{}, fmt.Errorf("download recording: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordingSize))
	if err != nil {
		return ports.Recording{}, fmt.Errorf("read recording: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	return ports.Recording{
		Data:        data,
		ContentType: contentType,
		Extension:   recordingExtension(meta.RecordingURL, contentType),
	}, nil
}

func (c *Client) callURL(callID string) string {
	return c.baseURL + "/calls/" + url.PathEscape(callID)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("voice request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("voice service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// parseTime accepts RFC 3339 and naive ISO timestamps, the latter as UTC.
func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func recordingExtension(rawURL, contentType string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if ext := path.Ext(u.Path); ext != "" && len(ext) <= 5 {
			return strings.ToLower(ext)
		}
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "audio/wav", "audio/x-wav":
			return ".wav"
		case "audio/ogg":
			return ".ogg"
		case "audio/webm":
			return ".webm"
		}
	}
	return ".mp3"
}
