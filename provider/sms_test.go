package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sealedSMSConfig(t *testing.T, cipher *AESCipher, baseURL string) []byte {
	t.Helper()
	blob, err := cipher.Encrypt([]byte(fmt.Sprintf(`{"baseURL":%q,"apiKey":"key-123"}`, baseURL)))
	require.NoError(t, err)
	return blob
}

func TestSMSAdapter_Send(t *testing.T) {
	cipher, err := NewAESCipher(testKey(t))
	require.NoError(t, err)

	var gotAuth string
	var gotRequest smsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotRequest)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(smsResponse{ID: "sms-789"})
	}))
	defer server.Close()

	adapter := NewSMSAdapter(cipher, server.Client())
	result, err := adapter.Send(context.Background(), SendParams{
		Recipient:      "+4915112345678",
		Payload:        `{"body":"your code is 4711"}`,
		Credentials:    sealedSMSConfig(t, cipher, server.URL),
		Identity:       "ACME",
		IdempotencyKey: "msg-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "sms-789", result.ProviderRef)
	assert.False(t, result.Delivered)

	assert.Equal(t, "Bearer key-123", gotAuth)
	assert.Equal(t, "+4915112345678", gotRequest.To)
	assert.Equal(t, "ACME", gotRequest.From)
	assert.Equal(t, "your code is 4711", gotRequest.Body)
	assert.Equal(t, "msg-1", gotRequest.IdempotencyKey)
}

func TestSMSAdapter_StatusClassification(t *testing.T) {
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
			name:              "Unauthorized",
			status:            http.StatusUnauthorized,
			expectedCode:      CodeUnauthorized,
			expectedRetryable: false,
		},
		{
			name:              "Bad recipient",
			status:            http.StatusUnprocessableEntity,
			expectedCode:      CodeInvalidRecipient,
			expectedRetryable: false,
		},
		{
			name:              "Gateway error",
			status:            http.StatusBadGateway,
			expectedCode:      CodeServiceUnavailable,
			expectedRetryable: true,
		},
		{
			name:              "Unexpected status",
			status:            http.StatusTeapot,
			expectedCode:      CodeUnknown,
			expectedRetryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			adapter := NewSMSAdapter(cipher, server.Client())
			result, err := adapter.Send(context.Background(), SendParams{
				Recipient:   "+4915112345678",
				Payload:     `{"body":"hello"}`,
				Credentials: sealedSMSConfig(t, cipher, server.URL),
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

func TestSMSAdapter_PayloadErrors(t *testing.T) {
	cipher, err := NewAESCipher(testKey(t))
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload string
	}{
		{name: "Unparseable payload", payload: "not json"},
		{name: "Missing body", payload: `{"body":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := NewSMSAdapter(cipher, nil)
			_, err := adapter.Send(context.Background(), SendParams{
				Recipient:   "+4915112345678",
				Payload:     tt.payload,
				Credentials: sealedSMSConfig(t, cipher, "http://localhost:1"),
			})

			require.Error(t, err)
			perr, ok := err.(*Error)
			require.True(t, ok)
			assert.Equal(t, CodeInvalidPayload, perr.Code)
			assert.False(t, perr.Retryable)
		})
	}
}

func TestSMSAdapter_BadCredentials(t *testing.T) {
	cipher, err := NewAESCipher(testKey(t))
	require.NoError(t, err)

	adapter := NewSMSAdapter(cipher, nil)
	_, err = adapter.Send(context.Background(), SendParams{
		Recipient:   "+4915112345678",
		Payload:     `{"body":"hello"}`,
		Credentials: []byte("garbage"),
	})

	require.Error(t, err)
	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, CodeDecryptFailed, perr.Code)
	assert.False(t, perr.Retryable)
}
