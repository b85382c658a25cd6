package relay

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/relay/model"
	"github.com/coregx/relay/provider"
)

type memoryCredentials struct {
	mu    sync.Mutex
	seq   int64
	items map[int64]model.ProviderCredential
}

func newMemoryCredentials() *memoryCredentials {
	return &memoryCredentials{items: make(map[int64]model.ProviderCredential)}
}

func (r *memoryCredentials) Load(_ context.Context, id int64) (model.ProviderCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok {
		return model.ProviderCredential{}, ErrNoData
	}
	return c, nil
}

func (r *memoryCredentials) Save(_ context.Context, c *model.ProviderCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == 0 {
		r.seq++
		c.ID = r.seq
	}
	r.items[c.ID] = *c
	return nil
}

func newCredentialManagerFixture(t *testing.T) (*CredentialManager, *memoryCredentials, *memoryAssociations, *provider.AESCipher) {
	t.Helper()

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	cipher, err := provider.NewAESCipher(key)
	require.NoError(t, err)

	credentials := newMemoryCredentials()
	associations := newMemoryAssociations()
	manager, err := NewCredentialManager(
		WithCredentialRepositories(credentials, associations),
		WithCredentialEncryptor(cipher),
		WithCredentialLogger(&NoopLogger{}),
	)
	require.NoError(t, err)
	return manager, credentials, associations, cipher
}

func TestCredentialManager_RegisterCredential(t *testing.T) {
	manager, credentials, _, cipher := newCredentialManagerFixture(t)

	plaintext := `{"host":"smtp.example.com","port":587,"password":"hunter2"}`
	credential, err := manager.RegisterCredential(context.Background(), RegisterCredentialRequest{
		OrganizationID: 7,
		ProviderType:   "smtp",
		Channel:        model.ChannelEmail,
		Config:         plaintext,
	})
	require.NoError(t, err)

	assert.NotZero(t, credential.ID)
	assert.True(t, credential.IsActive)
	assert.NotContains(t, string(credential.EncryptedConfig), "hunter2",
		"the plaintext config must never reach storage")

	stored, err := credentials.Load(context.Background(), credential.ID)
	require.NoError(t, err)
	recovered, err := cipher.Decrypt(stored.EncryptedConfig)
	require.NoError(t, err)
	assert.Equal(t, plaintext, string(recovered))
}

func TestCredentialManager_RegisterCredentialValidation(t *testing.T) {
	manager, _, _, _ := newCredentialManagerFixture(t)

	tests := []struct {
		name string
		req  RegisterCredentialRequest
	}{
		{
			name: "Missing organization",
			req:  RegisterCredentialRequest{ProviderType: "smtp", Channel: "email", Config: "{}"},
		},
		{
			name: "Missing provider type",
			req:  RegisterCredentialRequest{OrganizationID: 1, Channel: "email", Config: "{}"},
		},
		{
			name: "Missing config",
			req:  RegisterCredentialRequest{OrganizationID: 1, ProviderType: "smtp", Channel: "email"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manager.RegisterCredential(context.Background(), tt.req)
			require.Error(t, err)
			relayErr, ok := err.(*Error)
			require.True(t, ok)
			assert.Equal(t, ErrCodeValidation, relayErr.Code)
		})
	}
}

func TestCredentialManager_BindProject(t *testing.T) {
	manager, _, associations, _ := newCredentialManagerFixture(t)

	credential, err := manager.RegisterCredential(context.Background(), RegisterCredentialRequest{
		OrganizationID: 7,
		ProviderType:   "smtp",
		Channel:        model.ChannelEmail,
		Config:         `{"host":"smtp.example.com"}`,
	})
	require.NoError(t, err)

	association, err := manager.BindProject(context.Background(), BindProjectRequest{
		ProjectID:    42,
		Channel:      model.ChannelEmail,
		CredentialID: credential.ID,
		Identity:     "noreply@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(42), association.ProjectID)
	assert.Equal(t, credential.ID, association.CredentialID)
	assert.Equal(t, model.ProviderType("smtp"), association.ProviderType)
	assert.Equal(t, "noreply@example.com", association.Identity)
	assert.True(t, association.IsActive)
	require.Len(t, associations.saved, 1)
}

func TestCredentialManager_BindProjectRejections(t *testing.T) {
	manager, credentials, _, cipher := newCredentialManagerFixture(t)

	sealed, err := cipher.Encrypt([]byte(`{}`))
	require.NoError(t, err)

	active := model.NewProviderCredential(7, "smtp", model.ChannelEmail, sealed)
	require.NoError(t, credentials.Save(context.Background(), &active))

	inactive := model.NewProviderCredential(7, "smtp", model.ChannelEmail, sealed)
	inactive.Deactivate()
	require.NoError(t, credentials.Save(context.Background(), &inactive))

	tests := []struct {
		name string
		req  BindProjectRequest
	}{
		{
			name: "Unknown credential",
			req:  BindProjectRequest{ProjectID: 42, Channel: "email", CredentialID: 999, Identity: "x"},
		},
		{
			name: "Inactive credential",
			req:  BindProjectRequest{ProjectID: 42, Channel: "email", CredentialID: inactive.ID, Identity: "x"},
		},
		{
			name: "Channel mismatch",
			req:  BindProjectRequest{ProjectID: 42, Channel: "sms", CredentialID: active.ID, Identity: "x"},
		},
		{
			name: "Missing identity",
			req:  BindProjectRequest{ProjectID: 42, Channel: "email", CredentialID: active.ID},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manager.BindProject(context.Background(), tt.req)
			require.Error(t, err)
			relayErr, ok := err.(*Error)
			require.True(t, ok)
			assert.Equal(t, ErrCodeValidation, relayErr.Code)
		})
	}
}

func TestCredentialManager_BindProjectReplacesActiveBinding(t *testing.T) {
	manager, _, associations, _ := newCredentialManagerFixture(t)

	first, err := manager.RegisterCredential(context.Background(), RegisterCredentialRequest{
		OrganizationID: 7, ProviderType: "smtp", Channel: model.ChannelEmail, Config: `{"host":"a"}`,
	})
	require.NoError(t, err)
	second, err := manager.RegisterCredential(context.Background(), RegisterCredentialRequest{
		OrganizationID: 7, ProviderType: "ses", Channel: model.ChannelEmail, Config: `{"region":"eu-west-1"}`,
	})
	require.NoError(t, err)

	_, err = manager.BindProject(context.Background(), BindProjectRequest{
		ProjectID: 42, Channel: model.ChannelEmail, CredentialID: first.ID, Identity: "noreply@example.com",
	})
	require.NoError(t, err)
	association, err := manager.BindProject(context.Background(), BindProjectRequest{
		ProjectID: 42, Channel: model.ChannelEmail, CredentialID: second.ID, Identity: "noreply@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, second.ID, association.CredentialID)
	assert.Equal(t, model.ProviderType("ses"), association.ProviderType)
	require.Len(t, associations.saved, 2, "the old binding is deactivated, not deleted")
}

func TestNewCredentialManager_RequiredOptions(t *testing.T) {
	_, err := NewCredentialManager()
	require.Error(t, err)

	_, err = NewCredentialManager(
		WithCredentialRepositories(newMemoryCredentials(), newMemoryAssociations()),
		WithCredentialLogger(&NoopLogger{}),
	)
	require.Error(t, err, "encryptor is required")
}
