package model

import (
	"database/sql"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ProviderType identifies a concrete provider implementation (e.g. "smtp",
// "httpsms", "webhook"). Together with the channel it selects an adapter
// from the registry.
type ProviderType string

// ProviderCredential holds a tenant's encrypted provider configuration.
// Scoped to an organization; optionally restricted to a single project.
// The plaintext configuration is only ever materialized inside an adapter
// call, right before the provider SDK is invoked.
type ProviderCredential struct {
	ID              int64         `json:"id" db:"id"`
	OrganizationID  int64         `json:"organizationID" db:"organization_id"`
	ProjectID       sql.NullInt64 `json:"projectID" db:"project_id"`
	ProviderType    ProviderType  `json:"providerType" db:"provider_type"`
	Channel         Channel       `json:"channel" db:"channel"`
	EncryptedConfig []byte        `json:"-" db:"encrypted_config"`
	IsActive        bool          `json:"isActive" db:"is_active"`
	CreatedAt       time.Time     `json:"createdAt" db:"created_at"`
}

// TableName returns the database table name for ProviderCredential.
func (c ProviderCredential) TableName() string {
	return tablePrefix + "credential"
}

// NewProviderCredential creates an active credential for an organization.
func NewProviderCredential(orgID int64, providerType ProviderType, channel Channel, encryptedConfig []byte) ProviderCredential {
	return ProviderCredential{
		OrganizationID:  orgID,
		ProviderType:    providerType,
		Channel:         channel,
		EncryptedConfig: encryptedConfig,
		IsActive:        true,
		CreatedAt:       time.Now(),
	}
}

// Validate checks the structural invariants of a credential.
func (c ProviderCredential) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.OrganizationID, validation.Required),
		validation.Field(&c.ProviderType, validation.Required),
		validation.Field(&c.Channel, validation.Required),
		validation.Field(&c.EncryptedConfig, validation.Required),
	)
}

// Deactivate disables the credential without deleting it.
func (c *ProviderCredential) Deactivate() {
	c.IsActive = false
}

// ProjectProvider links a project to exactly one active credential per
// channel. The worker resolves this association to decide which adapter and
// credential serve a given message.
type ProjectProvider struct {
	ID           int64        `json:"id" db:"id"`
	ProjectID    int64        `json:"projectID" db:"project_id"`
	Channel      Channel      `json:"channel" db:"channel"`
	CredentialID int64        `json:"credentialID" db:"credential_id"`
	ProviderType ProviderType `json:"providerType" db:"provider_type"`
	// Identity is the verified sender identity for this association
	// (from-address for email, sender id for SMS).
	Identity  string    `json:"identity" db:"identity"`
	IsActive  bool      `json:"isActive" db:"is_active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// TableName returns the database table name for ProjectProvider.
func (p ProjectProvider) TableName() string {
	return tablePrefix + "project_provider"
}

// NewProjectProvider creates an active project-provider association.
func NewProjectProvider(projectID int64, channel Channel, credentialID int64, providerType ProviderType, identity string) ProjectProvider {
	return ProjectProvider{
		ProjectID:    projectID,
		Channel:      channel,
		CredentialID: credentialID,
		ProviderType: providerType,
		Identity:     identity,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
}

// Validate checks the structural invariants of an association.
func (p ProjectProvider) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ProjectID, validation.Required),
		validation.Field(&p.Channel, validation.Required),
		validation.Field(&p.CredentialID, validation.Required),
		validation.Field(&p.ProviderType, validation.Required),
	)
}

// Deactivate disables the association without deleting it.
func (p *ProjectProvider) Deactivate() {
	p.IsActive = false
}

// ResolvedProvider bundles everything dispatch needs to hand a message to an
// adapter: the association plus its (still encrypted) credential.
type ResolvedProvider struct {
	Association ProjectProvider
	Credential  ProviderCredential
}
