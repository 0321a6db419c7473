// Package backendapi tells the remote backend that biometric login was set up.
// Its failures are logged by callers and never block the local enrollment.
package backendapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-ctap/biobridge/pkg/options"
)

var ErrNotConfigured = errors.New("backendapi: base URL is not configured")

// VerificationData describes how the face or fingerprint was verified on device.
type VerificationData struct {
	LivenessScore  float64 `json:"livenessScore"`
	FaceMatchScore float64 `json:"faceMatchScore"`
	SecurityLevel  string  `json:"securityLevel,omitempty"`
	HardwareTEE    bool    `json:"hardwareTEE"`
}

// FaceProfile is the registration body of POST /biometric/face/register.
type FaceProfile struct {
	Mobile           string           `json:"mobile,omitempty"`
	Type             string           `json:"type"`
	DeviceID         string           `json:"deviceId"`
	ScanType         string           `json:"scanType,omitempty"`
	VerificationData VerificationData `json:"verificationData"`
}

// Response is the envelope every backend call is reduced to.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ToggleData is the data of a successful toggle.
type ToggleData struct {
	Biometric struct {
		Enabled bool `json:"enabled"`
	} `json:"biometric"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, opts ...options.Option) *Client {
	oo := options.NewOptions(opts...)

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     oo.Logger,
	}
}

// RegisterFace records the biometric profile of the signed-in user.
func (c *Client) RegisterFace(ctx context.Context, profile FaceProfile, token string) (Response, error) {
	return c.post(ctx, "/biometric/face/register", profile, token)
}

// ToggleBiometric enables biometric login for the signed-in user.
func (c *Client) ToggleBiometric(ctx context.Context, token string) (Response, error) {
	return c.post(ctx, "/biometric/toggle", nil, token)
}

func (c *Client) post(ctx context.Context, path string, payload any, token string) (Response, error) {
	if c.baseURL == "" {
		return Response{}, ErrNotConfigured
	}

	var body io.Reader = http.NoBody
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Response{}, fmt.Errorf("failed to marshal %s payload: %w", path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to execute request to %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Response{}, fmt.Errorf("failed to read %s response: %w", path, err)
	}

	c.logger.Debug("backendapi: response", "path", path, "status", resp.StatusCode)

	out := Response{Success: resp.StatusCode < 400}
	var envelope struct {
		Success *bool           `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   any             `json:"error"`
		Message string          `json:"message"`
	}
	if len(raw) > 0 && json.Unmarshal(raw, &envelope) == nil {
		if envelope.Success != nil {
			out.Success = out.Success && *envelope.Success
		}
		out.Data = envelope.Data
		if len(out.Data) == 0 && out.Success {
			out.Data = raw
		}
		if !out.Success {
			out.Error = errorText(envelope.Error, envelope.Message)
		}
	}
	if !out.Success && out.Error == "" {
		out.Error = fmt.Sprintf("backend returned status %d", resp.StatusCode)
	}

	return out, nil
}

func errorText(v any, message string) string {
	switch e := v.(type) {
	case string:
		return e
	case map[string]any:
		if m, ok := e["message"].(string); ok {
			return m
		}
	}
	return message
}
