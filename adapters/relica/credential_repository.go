package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/relica"

	"github.com/coregx/relay"
	"github.com/coregx/relay/model"
)

// CredentialRepository implements relay.CredentialRepository using Relica.
type CredentialRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewCredentialRepository creates a new CredentialRepository with default table prefix.
func NewCredentialRepository(sqlDB *sql.DB, driverName string) *CredentialRepository {
	return &CredentialRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "relay_"}
}

// NewCredentialRepositoryWithPrefix creates a new CredentialRepository with custom table prefix.
func NewCredentialRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *CredentialRepository {
	return &CredentialRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *CredentialRepository) tableName() string {
	return r.tablePrefix + "credential"
}

// Load retrieves a credential by ID.
func (r *CredentialRepository) Load(ctx context.Context, id int64) (model.ProviderCredential, error) {
	var credential model.ProviderCredential
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&credential)
	if errors.Is(err, sql.ErrNoRows) {
		return credential, relay.ErrNoData
	}
	if err != nil {
		return credential, relay.NewErrorWithCause(relay.ErrCodeDatabase, "failed to load credential", err)
	}
	return credential, nil
}

// Save creates or updates a credential.
func (r *CredentialRepository) Save(ctx context.Context, c *model.ProviderCredential) error {
	if c.ID == 0 {
		err := r.db.WithContext(ctx).Model(c).Table(r.tableName()).Insert()
		if err != nil {
			return relay.NewErrorWithCause(relay.ErrCodeDatabase, "failed to insert credential", err)
		}
		return nil
	}

	err := r.db.WithContext(ctx).Model(c).Table(r.tableName()).Update()
	if err != nil {
		return relay.NewErrorWithCause(relay.ErrCodeDatabase, "failed to update credential", err)
	}
	return nil
}
