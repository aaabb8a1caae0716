// Package audit appends activity records and serves them back. Recording is
// best-effort: a failed insert is logged and swallowed so it never undoes
// the mutation it describes.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/safar/go-stock-ledger/internal/models"
	"github.com/safar/go-stock-ledger/internal/store"
)

const (
	maxDescriptionLen = 500
	maxUserNameLen    = 100
	maxIPAddressLen   = 45
	recordTimeout     = 5 * time.Second
)

type Entry struct {
	Actor       models.Actor
	Action      string
	EntityType  string
	EntityID    *int64
	Description string
}

// Recorder is what mutating components depend on.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// Publisher mirrors committed audit rows to an external consumer.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

type Log struct {
	db        *sql.DB
	publisher Publisher
	logger    *slog.Logger
}

type Option func(*Log)

func WithPublisher(p Publisher) Option {
	return func(l *Log) { l.publisher = p }
}

func New(db *sql.DB, logger *slog.Logger, opts ...Option) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Log{db: db, logger: logger.With("component", "audit")}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record inserts exactly one activity row for entry. It runs detached from
// ctx cancellation because the mutation being described has already
// committed.
func (l *Log) Record(ctx context.Context, entry Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	row := models.ActivityLog{
		UserID:      entry.Actor.ID,
		UserName:    truncate(entry.Actor.Name, maxUserNameLen),
		Action:      entry.Action,
		EntityType:  entry.EntityType,
		EntityID:    entry.EntityID,
		Description: truncate(entry.Description, maxDescriptionLen),
		IPAddress:   truncate(entry.Actor.IPAddress, maxIPAddressLen),
	}

	created, err := store.InsertActivityLog(ctx, l.db, row)
	if err != nil {
		l.logger.Error("audit insert failed",
			"error", err,
			"user_id", row.UserID,
			"action", row.Action,
			"entity_type", row.EntityType,
			"entity_id", row.EntityID,
			"description", row.Description,
		)
		return
	}

	l.publish(ctx, created)
}

func (l *Log) publish(ctx context.Context, entry *models.ActivityLog) {
	if l.publisher == nil {
		return
	}

	value, err := json.Marshal(entry)
	if err != nil {
		l.logger.Error("audit mirror encode failed", "error", err, "activity_id", entry.ID)
		return
	}

	if err := l.publisher.Publish(ctx, []byte(MessageKey(entry)), value); err != nil {
		l.logger.Warn("audit mirror publish failed", "error", err, "activity_id", entry.ID)
	}
}

// MessageKey groups mirrored rows by entity, falling back to the user for
// account-level actions.
func MessageKey(entry *models.ActivityLog) string {
	if entry.EntityID != nil {
		return entry.EntityType + ":" + strconv.FormatInt(*entry.EntityID, 10)
	}
	return models.EntityUser + ":" + entry.UserID
}

func (l *Log) RecordLogin(ctx context.Context, actor models.Actor) {
	l.Record(ctx, Entry{
		Actor:       actor,
		Action:      models.ActionLogin,
		EntityType:  models.EntityUser,
		Description: fmt.Sprintf("User %s logged in", displayName(actor)),
	})
}

func (l *Log) RecordLogout(ctx context.Context, actor models.Actor) {
	l.Record(ctx, Entry{
		Actor:       actor,
		Action:      models.ActionLogout,
		EntityType:  models.EntityUser,
		Description: fmt.Sprintf("User %s logged out", displayName(actor)),
	})
}

func (l *Log) Recent(ctx context.Context, limit int) ([]models.ActivityLog, error) {
	return store.ListRecentActivity(ctx, l.db, limit)
}

func (l *Log) ForUser(ctx context.Context, userID string, limit int) ([]models.ActivityLog, error) {
	return store.ListUserActivity(ctx, l.db, userID, limit)
}

func (l *Log) ForEntity(ctx context.Context, entityType string, entityID int64, limit int) ([]models.ActivityLog, error) {
	return store.ListEntityActivity(ctx, l.db, entityType, entityID, limit)
}

func (l *Log) Page(ctx context.Context, page, pageSize int) (*store.OffsetPage, error) {
	return store.ListActivity(ctx, l.db, page, pageSize)
}

func (l *Log) After(ctx context.Context, cursor string, limit int) (*store.CursorPage, error) {
	return store.ListActivityCursor(ctx, l.db, cursor, limit)
}

func displayName(actor models.Actor) string {
	if actor.Name != "" {
		return actor.Name
	}
	return actor.ID
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
