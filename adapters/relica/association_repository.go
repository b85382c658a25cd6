package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/relica"

	"github.com/coregx/relay"
	"github.com/coregx/relay/model"
)

// AssociationRepository implements relay.AssociationRepository using Relica.
type AssociationRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewAssociationRepository creates a new AssociationRepository with default table prefix.
func NewAssociationRepository(sqlDB *sql.DB, driverName string) *AssociationRepository {
	return &AssociationRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "relay_"}
}

// NewAssociationRepositoryWithPrefix creates a new AssociationRepository with custom table prefix.
func NewAssociationRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *AssociationRepository {
	return &AssociationRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *AssociationRepository) tableName() string {
	return r.tablePrefix + "project_provider"
}

func (r *AssociationRepository) credentialTableName() string {
	return r.tablePrefix + "credential"
}

// Save creates or updates an association.
func (r *AssociationRepository) Save(ctx context.Context, a *model.ProjectProvider) error {
	if a.ID == 0 {
		err := r.db.WithContext(ctx).Model(a).Table(r.tableName()).Insert()
		if err != nil {
			return relay.NewErrorWithCause(relay.ErrCodeDatabase, "failed to insert association", err)
		}
		return nil
	}

	err := r.db.WithContext(ctx).Model(a).Table(r.tableName()).Update()
	if err != nil {
		return relay.NewErrorWithCause(relay.ErrCodeDatabase, "failed to update association", err)
	}
	return nil
}

// Resolve returns the active association for a project and channel together
// with its credential. Returns ErrNoData when the project has no active
// association for the channel, or the credential behind it is gone or
// inactive.
func (r *AssociationRepository) Resolve(ctx context.Context, projectID int64, channel model.Channel) (model.ResolvedProvider, error) {
	var resolved model.ResolvedProvider

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("project_id = ? AND channel = ? AND is_active = ?", projectID, channel, true).
		OrderBy("created_at DESC").
		Limit(1).
		WithContext(ctx).
		One(&resolved.Association)
	if errors.Is(err, sql.ErrNoRows) {
		return resolved, relay.ErrNoData
	}
	if err != nil {
		return resolved, relay.NewErrorWithCause(relay.ErrCodeDatabase, "failed to resolve association", err)
	}

	err = r.db.WithContext(ctx).Select("*").
		From(r.credentialTableName()).
		Where("id = ? AND is_active = ?", resolved.Association.CredentialID, true).
		One(&resolved.Credential)
	if errors.Is(err, sql.ErrNoRows) {
		return resolved, relay.ErrNoData
	}
	if err != nil {
		return resolved, relay.NewErrorWithCause(relay.ErrCodeDatabase, "failed to load association credential", err)
	}

	return resolved, nil
}

// DeactivateForChannel disables any active association for the project and channel.
func (r *AssociationRepository) DeactivateForChannel(ctx context.Context, projectID int64, channel model.Channel) error {
	_, err := r.db.WithContext(ctx).Update(r.tableName()).
		Set(map[string]interface{}{
			"is_active": false,
		}).
		Where("project_id = ? AND channel = ? AND is_active = ?", projectID, channel, true).
		WithContext(ctx).
		Execute()

	if err != nil {
		return relay.NewErrorWithCause(relay.ErrCodeDatabase, "failed to deactivate associations", err)
	}
	return nil
}
