package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// smsConfig is the decrypted credential shape for the HTTP SMS gateway.
type smsConfig struct {
	BaseURL string `json:"baseURL"`
	APIKey  string `json:"apiKey"`
}

// smsPayload is the tenant-submitted payload shape for the sms channel.
type smsPayload struct {
	Body string `json:"body"`
}

// smsRequest is the gateway wire format.
type smsRequest struct {
	To             string `json:"to"`
	From           string `json:"from"`
	Body           string `json:"body"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// smsResponse is the gateway acceptance response.
type smsResponse struct {
	ID string `json:"id"`
}

// SMSAdapter delivers sms-channel messages through a JSON-over-HTTP SMS
// gateway. Provider type "httpsms", channel "sms".
type SMSAdapter struct {
	decryptor Decryptor
	client    *http.Client
}

// NewSMSAdapter creates an SMS adapter using the given credential decryptor.
// A nil httpClient falls back to a client with a 30s timeout.
func NewSMSAdapter(decryptor Decryptor, httpClient *http.Client) *SMSAdapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &SMSAdapter{decryptor: decryptor, client: httpClient}
}

// Send performs exactly one gateway call for the message.
func (a *SMSAdapter) Send(ctx context.Context, params SendParams) (*SendResult, error) {
	plaintext, perr := decryptConfig(a.decryptor, params.Credentials)
	if perr != nil {
		return nil, perr
	}

	var cfg smsConfig
	if err := json.Unmarshal(plaintext, &cfg); err != nil {
		return nil, Permanent(CodeDecryptFailed, "unusable sms credential config: %v", err)
	}
	if cfg.BaseURL == "" || cfg.APIKey == "" {
		return nil, Permanent(CodeDecryptFailed, "sms credential config missing baseURL or apiKey")
	}

	var payload smsPayload
	if err := json.Unmarshal([]byte(params.Payload), &payload); err != nil {
		return nil, Permanent(CodeInvalidPayload, "unparseable sms payload: %v", err)
	}
	if payload.Body == "" {
		return nil, Permanent(CodeInvalidPayload, "sms payload missing body")
	}

	body, err := json.Marshal(smsRequest{
		To:             params.Recipient,
		From:           params.Identity,
		Body:           payload.Body,
		IdempotencyKey: params.IdempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, Permanent(CodeDecryptFailed, "invalid sms gateway URL: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, Transient(CodeServiceUnavailable, "sms gateway unreachable: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusAccepted:
		var accepted smsResponse
		if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
			// Accepted without a parseable body still counts as sent.
			return &SendResult{}, nil
		}
		return &SendResult{ProviderRef: accepted.ID}, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, Transient(CodeThrottling, "sms gateway throttled the request")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, Permanent(CodeUnauthorized, "sms gateway rejected credentials (status %d)", resp.StatusCode)
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest:
		return nil, Permanent(CodeInvalidRecipient, "sms gateway rejected request (status %d)", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, Transient(CodeServiceUnavailable, "sms gateway error (status %d)", resp.StatusCode)
	default:
		return nil, Transient(CodeUnknown, "unexpected sms gateway status %d", resp.StatusCode)
	}
}
