package relica

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coregx/relica"

	"github.com/coregx/relay"
	"github.com/coregx/relay/model"
)

// MessageRepository implements relay.MessageRepository using Relica.
type MessageRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewMessageRepository creates a new MessageRepository with default table prefix.
func NewMessageRepository(sqlDB *sql.DB, driverName string) *MessageRepository {
	return &MessageRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "relay_"}
}

// NewMessageRepositoryWithPrefix creates a new MessageRepository with custom table prefix.
func NewMessageRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *MessageRepository {
	return &MessageRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *MessageRepository) tableName() string {
	return r.tablePrefix + "message"
}

// Load retrieves a message by ID.
func (r *MessageRepository) Load(ctx context.Context, id string) (model.Message, error) {
	var msg model.Message
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return msg, relay.ErrNoData
	}
	if err != nil {
		return msg, relay.NewErrorWithCause(relay.ErrCodeDatabase, "failed to load message", err)
	}
	return msg, nil
}

// Create inserts a new message row.
func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	err := r.db.WithContext(ctx).Model(m).Table(r.tableName()).Insert()
	if err != nil {
		return relay.NewErrorWithCause(relay.ErrCodeDatabase, "failed to insert message", err)
	}
	return nil
}

// Update persists the message's current state.
func (r *MessageRepository) Update(ctx context.Context, m *model.Message) error {
	m.UpdatedAt = time.Now()
	err := r.db.WithContext(ctx).Model(m).Table(r.tableName()).Update()
	if err != nil {
		return relay.NewErrorWithCause(relay.ErrCodeDatabase, "failed to update message", err)
	}
	return nil
}

// FindStuck retrieves messages sitting in the given status since before olderThan.
func (r *MessageRepository) FindStuck(ctx context.Context, status model.MessageStatus, olderThan time.Time, limit int) ([]model.Message, error) {
	var messages []model.Message

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("status = ? AND updated_at < ?", status, olderThan).
		OrderBy("updated_at ASC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&messages)

	if err != nil {
		return nil, relay.NewErrorWithCause(relay.ErrCodeDatabase, "failed to find stuck messages", err)
	}

	if len(messages) == 0 {
		return nil, relay.ErrNoData
	}

	return messages, nil
}

// FindOrphaned retrieves messages in the given status created within the
// (newerThan, olderThan) age band.
func (r *MessageRepository) FindOrphaned(ctx context.Context, status model.MessageStatus, olderThan, newerThan time.Time, limit int) ([]model.Message, error) {
	var messages []model.Message

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("status = ? AND created_at < ? AND created_at > ?", status, olderThan, newerThan).
		OrderBy("created_at ASC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&messages)

	if err != nil {
		return nil, relay.NewErrorWithCause(relay.ErrCodeDatabase, "failed to find orphaned messages", err)
	}

	if len(messages) == 0 {
		return nil, relay.ErrNoData
	}

	return messages, nil
}

// CountByStatus returns message counts per status.
func (r *MessageRepository) CountByStatus(ctx context.Context) (map[model.MessageStatus]int, error) {
	statuses := []model.MessageStatus{
		model.StatusQueued,
		model.StatusProcessing,
		model.StatusSent,
		model.StatusDelivered,
		model.StatusFailed,
		model.StatusMalformed,
	}

	counts := make(map[model.MessageStatus]int, len(statuses))
	for _, status := range statuses {
		var count int
		err := r.db.WithContext(ctx).Select("COUNT(*)").From(r.tableName()).Where("status = ?", status).One(&count)
		if err != nil {
			return nil, relay.NewErrorWithCause(relay.ErrCodeDatabase, "failed to count messages", err)
		}
		counts[status] = count
	}

	return counts, nil
}
