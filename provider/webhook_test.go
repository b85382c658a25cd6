package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sealedWebhookConfig(t *testing.T, cipher *AESCipher, config string) []byte {
	t.Helper()
	blob, err := cipher.Encrypt([]byte(config))
	require.NoError(t, err)
	return blob
}

func TestWebhookAdapter_Send(t *testing.T) {
	cipher, err := NewAESCipher(testKey(t))
	require.NoError(t, err)

	var gotBody []byte
	var gotAuth, gotIdempotencyKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotAuth = r.Header.Get("Authorization")
		gotIdempotencyKey = r.Header.Get("Idempotency-Key")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	adapter := NewWebhookAdapter(cipher, server.Client())
	result, err := adapter.Send(context.Background(), SendParams{
		Recipient:      server.URL,
		Payload:        `{"orderID":42}`,
		Credentials:    sealedWebhookConfig(t, cipher, `{"token":"hook-secret"}`),
		IdempotencyKey: "msg-9",
	})

	require.NoError(t, err)
	assert.True(t, result.Delivered, "a 2xx from the endpoint confirms delivery")
	assert.JSONEq(t, `{"orderID":42}`, string(gotBody))
	assert.Equal(t, "Bearer hook-secret", gotAuth)
	assert.Equal(t, "msg-9", gotIdempotencyKey)
}

func TestWebhookAdapter_NoTokenNoAuthHeader(t *testing.T) {
	cipher, err := NewAESCipher(testKey(t))
	require.NoError(t, err)

	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	adapter := NewWebhookAdapter(cipher, server.Client())
	_, err = adapter.Send(context.Background(), SendParams{
		Recipient:   server.URL,
		Payload:     `{}`,
		Credentials: sealedWebhookConfig(t, cipher, `{}`),
	})

	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestWebhookAdapter_InvalidRecipient(t *testing.T) {
	cipher, err := NewAESCipher(testKey(t))
	require.NoError(t, err)

	tests := []struct {
		name      string
		recipient string
	}{
		{name: "Not a URL", recipient: "user@example.com"},
		{name: "Unsupported scheme", recipient: "ftp://example.com/inbox"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := NewWebhookAdapter(cipher, nil)
			_, err := adapter.Send(context.Background(), SendParams{
				Recipient:   tt.recipient,
				Payload:     `{}`,
				Credentials: sealedWebhookConfig(t, cipher, `{}`),
			})

			require.Error(t, err)
			perr, ok := err.(*Error)
			require.True(t, ok)
			assert.Equal(t, CodeInvalidRecipient, perr.Code)
			assert.False(t, perr.Retryable)
		})
	}
}

func TestWebhookAdapter_InvalidPayload(t *testing.T) {
	cipher, err := NewAESCipher(testKey(t))
	require.NoError(t, err)

	adapter := NewWebhookAdapter(cipher, nil)
	_, err = adapter.Send(context.Background(), SendParams{
		Recipient:   "https://example.com/hook",
		Payload:     "{broken",
		Credentials: sealedWebhookConfig(t, cipher, `{}`),
	})

	require.Error(t, err)
	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidPayload, perr.Code)
	assert.False(t, perr.Retryable)
}

func TestWebhookAdapter_StatusClassification(t *testing.T) {
	cipher, err := NewAESCipher(testKey(t))
	require.NoError(t, err)

	tests := []struct {
		name              string
		status            int
		expectedCode      string
		expectedRetryable bool
	}{
		{
			name:              "Throttled",
			status:            http.StatusTooManyRequests,
			expectedCode:      CodeThrottling,
			expectedRetryable: true,
		},
		{
			name:              "Forbidden",
			status:            http.StatusForbidden,
			expectedCode:      CodeUnauthorized,
			expectedRetryable: false,
		},
		{
			name:              "Server error",
			status:            http.StatusInternalServerError,
			expectedCode:      CodeServiceUnavailable,
			expectedRetryable: true,
		},
		{
			name:              "Endpoint rejected payload",
			status:            http.StatusBadRequest,
			expectedCode:      CodeInvalidPayload,
			expectedRetryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			adapter := NewWebhookAdapter(cipher, server.Client())
			result, err := adapter.Send(context.Background(), SendParams{
				Recipient:   server.URL,
				Payload:     `{}`,
				Credentials: sealedWebhookConfig(t, cipher, `{}`),
			})

			assert.Nil(t, result)
			require.Error(t, err)
			perr, ok := err.(*Error)
			require.True(t, ok)
			assert.Equal(t, tt.expectedCode, perr.Code)
			assert.Equal(t, tt.expectedRetryable, perr.Retryable)
		})
	}
}
