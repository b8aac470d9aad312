package otp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrProviderUnavailable = errors.New("otp provider unavailable")

// HTTPProvider delegates code delivery and verification to an external auth
// service exposing POST /otp/send and POST /otp/verify.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type upstreamError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (p *HTTPProvider) RequestCode(ctx context.Context, phone string) error {
	return p.post(ctx, "/otp/send", map[string]string{"phone": phone})
}

func (p *HTTPProvider) VerifyCode(ctx context.Context, phone, code string) error {
	return p.post(ctx, "/otp/verify", map[string]string{"phone": phone, "code": code})
}

func (p *HTTPProvider) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("otp: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 400 {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var upstream upstreamError
	if err := json.Unmarshal(raw, &upstream); err == nil {
		msg := upstream.Message
		if msg == "" {
			msg = upstream.Error
		}
		if msg != "" {
			if resp.StatusCode == http.StatusTooManyRequests && !strings.Contains(msg, ErrTooManyAttempts.Error()) {
				return fmt.Errorf("%w: %s", ErrResendTooSoon, msg)
			}
			return classify(errors.New(msg))
		}
	}
	return fmt.Errorf("otp: upstream returned HTTP %d", resp.StatusCode)
}
