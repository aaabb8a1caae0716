package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/models"
)

const activityColumns = `id, user_id, user_name, action, entity_type, entity_id, description, timestamp, ip_address`

func scanActivity(row rowScanner) (*models.ActivityLog, error) {
	var (
		entry    models.ActivityLog
		entityID sql.NullInt64
	)

	err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.UserName,
		&entry.Action,
		&entry.EntityType,
		&entityID,
		&entry.Description,
		&entry.Timestamp,
		&entry.IPAddress,
	)
	if err != nil {
		return nil, err
	}

	if entityID.Valid {
		entry.EntityID = &entityID.Int64
	}
	return &entry, nil
}

// InsertActivityLog appends one audit row. Activity rows are never updated
// or deleted.
func InsertActivityLog(ctx context.Context, q database.Querier, entry models.ActivityLog) (*models.ActivityLog, error) {
	var entityID sql.NullInt64
	if entry.EntityID != nil {
		entityID = sql.NullInt64{Int64: *entry.EntityID, Valid: true}
	}

	query := `
		INSERT INTO activity_logs (user_id, user_name, action, entity_type, entity_id, description, timestamp, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), $7)
		RETURNING ` + activityColumns

	created, err := scanActivity(q.QueryRowContext(ctx, query,
		entry.UserID,
		entry.UserName,
		entry.Action,
		entry.EntityType,
		entityID,
		entry.Description,
		entry.IPAddress,
	))
	if err != nil {
		return nil, fmt.Errorf("insert activity log: %w", err)
	}

	return created, nil
}

func ListRecentActivity(ctx context.Context, q database.Querier, limit int) ([]models.ActivityLog, error) {
	query := `
		SELECT ` + activityColumns + `
		FROM activity_logs
		ORDER BY timestamp DESC, id DESC
		LIMIT $1`

	entries, err := queryActivity(ctx, q, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent activity: %w", err)
	}
	return entries, nil
}

func ListUserActivity(ctx context.Context, q database.Querier, userID string, limit int) ([]models.ActivityLog, error) {
	query := `
		SELECT ` + activityColumns + `
		FROM activity_logs
		WHERE user_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2`

	entries, err := queryActivity(ctx, q, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list user activity: %w", err)
	}
	return entries, nil
}

// ListEntityActivity returns the history of one entity. It works for
// entities that have since been deleted.
func ListEntityActivity(ctx context.Context, q database.Querier, entityType string, entityID int64, limit int) ([]models.ActivityLog, error) {
	query := `
		SELECT ` + activityColumns + `
		FROM activity_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY timestamp DESC, id DESC
		LIMIT $3`

	entries, err := queryActivity(ctx, q, query, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("list entity activity: %w", err)
	}
	return entries, nil
}

func ListActivity(ctx context.Context, q database.Querier, page, pageSize int) (*OffsetPage, error) {
	var total int64
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_logs`).Scan(&total); err != nil {
		return nil, fmt.Errorf("count activity: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + activityColumns + `
		FROM activity_logs
		ORDER BY timestamp DESC, id DESC
		LIMIT $1 OFFSET $2`

	entries, err := queryActivity(ctx, q, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}

	return newOffsetPage(entries, total, page, pageSize), nil
}

func ListActivityCursor(ctx context.Context, q database.Querier, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + activityColumns + `
		FROM activity_logs
		WHERE (timestamp, id) < ($1, $2)
		ORDER BY timestamp DESC, id DESC
		LIMIT $3`

	entries, err := queryActivity(ctx, q, query, cursorData.Timestamp, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}

	var nextCursor string
	if hasMore && len(entries) > 0 {
		last := entries[len(entries)-1]
		nextCursor = EncodeCursor(ActivityCursor{
			Timestamp: last.Timestamp,
			ID:        last.ID,
		})
	}

	return &CursorPage{
		Items:      entries,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func CountActivity(ctx context.Context, q database.Querier) (int64, error) {
	var total int64
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_logs`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count activity: %w", err)
	}
	return total, nil
}

func queryActivity(ctx context.Context, q database.Querier, query string, args ...any) ([]models.ActivityLog, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.ActivityLog{}
	for rows.Next() {
		entry, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity log: %w", err)
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return entries, nil
}
