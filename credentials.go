package relay

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/coregx/relay/model"
	"github.com/coregx/relay/provider"
)

// CredentialManager handles the tenant-facing credential lifecycle: sealing
// and storing provider configurations and binding projects to them. It is
// the library surface the (external) management API builds on.
//
// Thread safety: safe for concurrent use.
type CredentialManager struct {
	credentials  CredentialRepository
	associations AssociationRepository
	encryptor    provider.Encryptor
	logger       Logger
}

// CredentialManagerOption is a function that configures a CredentialManager.
type CredentialManagerOption func(*CredentialManager) error

// NewCredentialManager creates a CredentialManager with the provided options.
//
// Required options:
//   - WithCredentialRepositories: credential and association repositories
//   - WithCredentialEncryptor: the encryptor sealing provider configs
//   - WithCredentialLogger: logger instance
func NewCredentialManager(opts ...CredentialManagerOption) (*CredentialManager, error) {
	cm := &CredentialManager{}

	for _, opt := range opts {
		if err := opt(cm); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply credential manager option", err)
		}
	}

	if cm.credentials == nil {
		return nil, NewError(ErrCodeConfiguration, "CredentialRepository is required")
	}
	if cm.associations == nil {
		return nil, NewError(ErrCodeConfiguration, "AssociationRepository is required")
	}
	if cm.encryptor == nil {
		return nil, NewError(ErrCodeConfiguration, "Encryptor is required")
	}
	if cm.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required")
	}

	return cm, nil
}

// WithCredentialRepositories sets the required repository dependencies.
func WithCredentialRepositories(credentialRepo CredentialRepository, associationRepo AssociationRepository) CredentialManagerOption {
	return func(cm *CredentialManager) error {
		if credentialRepo == nil {
			return fmt.Errorf("credentialRepo cannot be nil")
		}
		if associationRepo == nil {
			return fmt.Errorf("associationRepo cannot be nil")
		}
		cm.credentials = credentialRepo
		cm.associations = associationRepo
		return nil
	}
}

// WithCredentialEncryptor sets the encryptor used to seal provider configs.
func WithCredentialEncryptor(encryptor provider.Encryptor) CredentialManagerOption {
	return func(cm *CredentialManager) error {
		if encryptor == nil {
			return fmt.Errorf("encryptor cannot be nil")
		}
		cm.encryptor = encryptor
		return nil
	}
}

// WithCredentialLogger sets the logger instance.
func WithCredentialLogger(logger Logger) CredentialManagerOption {
	return func(cm *CredentialManager) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		cm.logger = logger
		return nil
	}
}

// RegisterCredentialRequest is a request to store a provider credential.
type RegisterCredentialRequest struct {
	OrganizationID int64              `json:"organizationID"`
	ProviderType   model.ProviderType `json:"providerType"`
	Channel        model.Channel      `json:"channel"`
	// Config is the plaintext provider configuration JSON; it is sealed
	// before it touches storage and never logged.
	Config string `json:"config"`
}

// Validate checks the request.
func (m RegisterCredentialRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.OrganizationID, validation.Required),
		validation.Field(&m.ProviderType, validation.Required),
		validation.Field(&m.Channel, validation.Required),
		validation.Field(&m.Config, validation.Required),
	)
}

// BindProjectRequest is a request to bind a project to a credential for a
// channel.
type BindProjectRequest struct {
	ProjectID    int64         `json:"projectID"`
	Channel      model.Channel `json:"channel"`
	CredentialID int64         `json:"credentialID"`
	Identity     string        `json:"identity"`
}

// Validate checks the request.
func (m BindProjectRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ProjectID, validation.Required),
		validation.Field(&m.Channel, validation.Required),
		validation.Field(&m.CredentialID, validation.Required),
		validation.Field(&m.Identity, validation.Required, validation.Length(1, 255)),
	)
}

// RegisterCredential seals the plaintext configuration and stores it as an
// active credential for the organization.
func (cm *CredentialManager) RegisterCredential(ctx context.Context, req RegisterCredentialRequest) (model.ProviderCredential, error) {
	if err := req.Validate(); err != nil {
		return model.ProviderCredential{}, NewErrorWithCause(ErrCodeValidation, "invalid credential request", err)
	}

	sealed, err := cm.encryptor.Encrypt([]byte(req.Config))
	if err != nil {
		return model.ProviderCredential{}, NewErrorWithCause(ErrCodeCrypto, "failed to seal provider config", err)
	}

	credential := model.NewProviderCredential(req.OrganizationID, req.ProviderType, req.Channel, sealed)
	if err := cm.credentials.Save(ctx, &credential); err != nil {
		return model.ProviderCredential{}, NewErrorWithCause(ErrCodeDatabase, "failed to save credential", err)
	}

	cm.logger.Infof("Credential registered: id=%d, org=%d, provider=%s, channel=%s",
		credential.ID, credential.OrganizationID, credential.ProviderType, credential.Channel)
	return credential, nil
}

// BindProject associates a project with a credential for one channel,
// replacing any existing active association for that project and channel:
// a project holds exactly one active credential per channel.
func (cm *CredentialManager) BindProject(ctx context.Context, req BindProjectRequest) (model.ProjectProvider, error) {
	if err := req.Validate(); err != nil {
		return model.ProjectProvider{}, NewErrorWithCause(ErrCodeValidation, "invalid bind request", err)
	}

	credential, err := cm.credentials.Load(ctx, req.CredentialID)
	if err != nil {
		if IsNoData(err) {
			return model.ProjectProvider{}, NewError(ErrCodeValidation, fmt.Sprintf("credential %d not found", req.CredentialID))
		}
		return model.ProjectProvider{}, NewErrorWithCause(ErrCodeDatabase, "failed to load credential", err)
	}
	if !credential.IsActive {
		return model.ProjectProvider{}, NewError(ErrCodeValidation, fmt.Sprintf("credential %d is inactive", req.CredentialID))
	}
	if credential.Channel != req.Channel {
		return model.ProjectProvider{}, NewError(ErrCodeValidation,
			fmt.Sprintf("credential %d serves channel %q, not %q", req.CredentialID, credential.Channel, req.Channel))
	}

	if err := cm.associations.DeactivateForChannel(ctx, req.ProjectID, req.Channel); err != nil {
		return model.ProjectProvider{}, NewErrorWithCause(ErrCodeDatabase, "failed to deactivate previous association", err)
	}

	association := model.NewProjectProvider(req.ProjectID, req.Channel, credential.ID, credential.ProviderType, req.Identity)
	if err := cm.associations.Save(ctx, &association); err != nil {
		return model.ProjectProvider{}, NewErrorWithCause(ErrCodeDatabase, "failed to save association", err)
	}

	cm.logger.Infof("Project bound: project=%d, channel=%s, credential=%d, provider=%s",
		association.ProjectID, association.Channel, association.CredentialID, association.ProviderType)
	return association, nil
}
