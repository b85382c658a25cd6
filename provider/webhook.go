package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

// webhookConfig is the decrypted credential shape for the webhook provider.
type webhookConfig struct {
	// Token is sent as a bearer token when non-empty.
	Token string `json:"token"`
}

// WebhookAdapter delivers webhook-channel messages by POSTing the payload
// to the recipient URL. Provider type "webhook", channel "webhook".
//
// A 2xx from the receiving endpoint is a synchronous delivery confirmation,
// so results carry Delivered=true.
type WebhookAdapter struct {
	decryptor Decryptor
	client    *http.Client
}

// NewWebhookAdapter creates a webhook adapter using the given credential
// decryptor. A nil httpClient falls back to a client with a 30s timeout.
func NewWebhookAdapter(decryptor Decryptor, httpClient *http.Client) *WebhookAdapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &WebhookAdapter{decryptor: decryptor, client: httpClient}
}

// Send performs exactly one POST to the recipient endpoint.
func (a *WebhookAdapter) Send(ctx context.Context, params SendParams) (*SendResult, error) {
	plaintext, perr := decryptConfig(a.decryptor, params.Credentials)
	if perr != nil {
		return nil, perr
	}

	var cfg webhookConfig
	if err := json.Unmarshal(plaintext, &cfg); err != nil {
		return nil, Permanent(CodeDecryptFailed, "unusable webhook credential config: %v", err)
	}

	target, err := url.Parse(params.Recipient)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		return nil, Permanent(CodeInvalidRecipient, "recipient %q is not an http(s) URL", params.Recipient)
	}

	if !json.Valid([]byte(params.Payload)) {
		return nil, Permanent(CodeInvalidPayload, "webhook payload is not valid JSON")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader([]byte(params.Payload)))
	if err != nil {
		return nil, Permanent(CodeInvalidRecipient, "cannot build request for %q: %v", params.Recipient, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	}
	if params.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", params.IdempotencyKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, Transient(CodeServiceUnavailable, "endpoint unreachable: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return &SendResult{Delivered: true}, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, Transient(CodeThrottling, "endpoint throttled the request")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, Permanent(CodeUnauthorized, "endpoint rejected credentials (status %d)", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, Transient(CodeServiceUnavailable, "endpoint error (status %d)", resp.StatusCode)
	default:
		return nil, Permanent(CodeInvalidPayload, "endpoint rejected payload (status %d)", resp.StatusCode)
	}
}
