package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/oisp-sensor/core/pkg/policy"
)

// Client is the bearer-token HTTP client for the cloud wire API:
// device registration/enrollment, heartbeat, token rotation, batch export,
// and policy fetch. Registration/enrollment/rotation use a plain transport
// with a manually-set Authorization header (rotation cannot go through its
// own oauth2.Transport without recursing); every other authenticated call
// goes through an oauth2.Transport backed by a TokenSource that rotates
// automatically on expiry.
type Client struct {
	baseURL string
	plain   *http.Client // no auth; callers set headers themselves
	authed  *http.Client // wraps plain via oauth2.Transport + rotatingSource
	source  *rotatingSource
}

// NewClient constructs a Client for baseURL. The 10s connect deadline is
// approximated here by the overall 30s client timeout rather than a
// per-dial transport deadline.
func NewClient(baseURL string, store CredentialStore) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	plain := &http.Client{Timeout: 30 * time.Second}

	c := &Client{baseURL: baseURL, plain: plain}
	c.source = &rotatingSource{client: c}
	// The rotatingSource is its own cache (a mutex plus a wall-clock expiry
	// check), so the transport asks it directly on every request; wrapping
	// it in oauth2.ReuseTokenSource would keep serving a token the server
	// has already rejected.
	c.authed = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &oauth2.Transport{
			Source: c.source,
			Base:   plain.Transport,
		},
	}
	return c
}

// ForceRotate rotates the device token immediately, regardless of its
// believed expiry — the reactive path for a 403 arriving while the clock
// still says the token is valid. The fresh credentials go through the same
// persistence hook as a proactive rotation.
func (c *Client) ForceRotate(ctx context.Context) error {
	c.source.mu.Lock()
	cur := c.source.current
	c.source.mu.Unlock()

	rotated, err := c.rotateToken(ctx, cur)
	if err != nil {
		return err
	}

	c.source.mu.Lock()
	c.source.current = rotated
	onRotate := c.source.onRotate
	c.source.mu.Unlock()

	if onRotate != nil {
		onRotate(rotated)
	}
	return nil
}

// SetCredentials seeds the token source so the next authenticated call uses
// cur without an extra rotation round-trip.
func (c *Client) SetCredentials(cur Credentials) {
	c.source.mu.Lock()
	c.source.current = cur
	c.source.mu.Unlock()
}

// OnRotate registers a callback invoked with the freshly rotated
// credentials whenever the token source rotates the device token, so the
// Connector can persist it via the CredentialStore.
func (c *Client) OnRotate(fn func(Credentials)) {
	c.source.mu.Lock()
	c.source.onRotate = fn
	c.source.mu.Unlock()
}

// Register enrolls via the API-key flow (POST /v1/devices/register).
func (c *Client) Register(ctx context.Context, apiKey string, info DeviceInfo) (Device, Credentials, error) {
	return c.enroll(ctx, "/v1/devices/register", "X-API-Key", apiKey, info)
}

// Enroll enrolls via the enrollment-token flow (POST /v1/devices/enroll).
func (c *Client) Enroll(ctx context.Context, enrollmentToken string, info DeviceInfo) (Device, Credentials, error) {
	return c.enroll(ctx, "/v1/devices/enroll", "Authorization", "Bearer "+enrollmentToken, info)
}

func (c *Client) enroll(ctx context.Context, path, headerName, headerValue string, info DeviceInfo) (Device, Credentials, error) {
	body, err := json.Marshal(registerRequest{Device: info})
	if err != nil {
		return Device{}, Credentials{}, fmt.Errorf("cloud: marshal device info: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Device{}, Credentials{}, fmt.Errorf("cloud: build enrollment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerName, headerValue)

	resp, err := c.plain.Do(req)
	if err != nil {
		return Device{}, Credentials{}, &APIError{Kind: KindNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return Device{}, Credentials{}, apiErrorFromResponse(resp)
	}

	var out registrationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Device{}, Credentials{}, fmt.Errorf("cloud: decode enrollment response: %w", err)
	}

	creds := Credentials{
		DeviceID:       out.Device.ID,
		DeviceToken:    out.Credentials.DeviceToken,
		TokenExpiresAt: out.Credentials.ExpiresAt,
		OrgID:          out.Device.OrganizationID,
		WorkspaceID:    out.Device.WorkspaceID,
		APIEndpoint:    c.baseURL,
		CreatedAt:      time.Now().UTC(),
	}
	return out.Device, creds, nil
}

// rotateToken posts to /v1/devices/{id}/rotate-token using cur's (possibly
// soon-to-expire) token directly, bypassing the oauth2.Transport so the
// rotation call itself doesn't recurse through the TokenSource it feeds.
func (c *Client) rotateToken(ctx context.Context, cur Credentials) (Credentials, error) {
	if cur.DeviceID == "" || cur.DeviceToken == "" {
		return Credentials{}, ErrNoCredentials
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/v1/devices/%s/rotate-token", c.baseURL, cur.DeviceID), nil)
	if err != nil {
		return Credentials{}, fmt.Errorf("cloud: build rotate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cur.DeviceToken)

	resp, err := c.plain.Do(req)
	if err != nil {
		return Credentials{}, &APIError{Kind: KindNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return Credentials{}, apiErrorFromResponse(resp)
	}

	var out rotateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Credentials{}, fmt.Errorf("cloud: decode rotate response: %w", err)
	}

	next := cur
	next.DeviceToken = out.DeviceToken
	next.TokenExpiresAt = out.ExpiresAt
	return next, nil
}

// Heartbeat posts the device's current status/stats and returns any
// server-issued commands.
func (c *Client) Heartbeat(ctx context.Context, deviceID string, status DeviceStatus, stats HeartbeatStats) (ok bool, commands []ServerCommand, policyVersion string, err error) {
	body, merr := json.Marshal(heartbeatRequest{Status: status, Stats: stats})
	if merr != nil {
		return false, nil, "", fmt.Errorf("cloud: marshal heartbeat: %w", merr)
	}

	req, rerr := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/v1/devices/%s/heartbeat", c.baseURL, deviceID), bytes.NewReader(body))
	if rerr != nil {
		return false, nil, "", fmt.Errorf("cloud: build heartbeat request: %w", rerr)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, derr := c.authed.Do(req)
	if derr != nil {
		return false, nil, "", classifyTransportErr(derr)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return false, nil, "", apiErrorFromResponse(resp)
	}

	var out heartbeatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, nil, "", fmt.Errorf("cloud: decode heartbeat response: %w", err)
	}
	return out.OK, out.Commands, out.PolicyVersion, nil
}

// PostBatch sends a batch of already-serialized events to
// /v1/events/batch.
func (c *Client) PostBatch(ctx context.Context, deviceID string, events []json.RawMessage) (batchID string, err error) {
	body, merr := json.Marshal(batchRequest{DeviceID: deviceID, Events: events})
	if merr != nil {
		return "", fmt.Errorf("cloud: marshal batch: %w", merr)
	}

	req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/events/batch", bytes.NewReader(body))
	if rerr != nil {
		return "", fmt.Errorf("cloud: build batch request: %w", rerr)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, derr := c.authed.Do(req)
	if derr != nil {
		return "", classifyTransportErr(derr)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", apiErrorFromResponse(resp)
	}

	var out batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("cloud: decode batch response: %w", err)
	}
	return out.BatchID, nil
}

// FetchPolicies fetches the current policy document from the cloud.
func (c *Client) FetchPolicies(ctx context.Context, deviceID string) (policy.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/devices/%s/policies", c.baseURL, deviceID), nil)
	if err != nil {
		return policy.Document{}, fmt.Errorf("cloud: build policy fetch request: %w", err)
	}

	resp, err := c.authed.Do(req)
	if err != nil {
		return policy.Document{}, classifyTransportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return policy.Document{}, apiErrorFromResponse(resp)
	}

	var doc policy.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return policy.Document{}, fmt.Errorf("cloud: decode policy document: %w", err)
	}
	return doc, nil
}

func apiErrorFromResponse(resp *http.Response) *APIError {
	var body errorBody
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &body)
	if body.Message == "" {
		body.Message = string(raw)
	}

	var retryAfter time.Duration
	if resp.StatusCode == http.StatusTooManyRequests {
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
	}
	return classifyStatus(resp.StatusCode, body, retryAfter)
}

func classifyTransportErr(err error) error {
	return &APIError{Kind: KindNetwork, Message: err.Error()}
}
