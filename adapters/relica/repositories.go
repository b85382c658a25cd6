package relica

import (
	"database/sql"

	"github.com/coregx/relay"
)

// Repositories holds all repository implementations.
type Repositories struct {
	Message     relay.MessageRepository
	Credential  relay.CredentialRepository
	Association relay.AssociationRepository
	Stream      relay.Stream
}

// NewRepositories creates all repository implementations using Relica.
//
// The db parameter should be an *sql.DB connected to MySQL, PostgreSQL, or SQLite.
// The driverName should be "mysql", "postgres", or "sqlite3".
// The table prefix defaults to "relay_" but can be customized.
func NewRepositories(db *sql.DB, driverName string) *Repositories {
	return &Repositories{
		Message:     NewMessageRepository(db, driverName),
		Credential:  NewCredentialRepository(db, driverName),
		Association: NewAssociationRepository(db, driverName),
		Stream:      NewStreamRepository(db, driverName),
	}
}

// NewRepositoriesWithPrefix creates all repository implementations with a custom table prefix.
func NewRepositoriesWithPrefix(db *sql.DB, driverName, prefix string) *Repositories {
	return &Repositories{
		Message:     NewMessageRepositoryWithPrefix(db, driverName, prefix),
		Credential:  NewCredentialRepositoryWithPrefix(db, driverName, prefix),
		Association: NewAssociationRepositoryWithPrefix(db, driverName, prefix),
		Stream:      NewStreamRepositoryWithPrefix(db, driverName, prefix),
	}
}
