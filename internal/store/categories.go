package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/models"
)

func CreateCategory(ctx context.Context, q database.Querier, name, description string) (*models.Category, error) {
	category := &models.Category{}

	query := `
		INSERT INTO categories (name, description, is_active, created_at)
		VALUES ($1, $2, TRUE, NOW())
		RETURNING id, name, description, is_active, created_at`

	err := q.QueryRowContext(ctx, query, name, description).Scan(
		&category.ID,
		&category.Name,
		&category.Description,
		&category.IsActive,
		&category.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, database.ErrDuplicateCategory
		}
		return nil, fmt.Errorf("create category: %w", err)
	}

	return category, nil
}

func GetCategory(ctx context.Context, q database.Querier, id int64) (*models.Category, error) {
	category := &models.Category{}

	query := `
		SELECT c.id, c.name, c.description, c.is_active, c.created_at,
		       (SELECT COUNT(*) FROM stock_items s WHERE s.category_id = c.id)
		FROM categories c
		WHERE c.id = $1`

	err := q.QueryRowContext(ctx, query, id).Scan(
		&category.ID,
		&category.Name,
		&category.Description,
		&category.IsActive,
		&category.CreatedAt,
		&category.ItemCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}

	return category, nil
}

func ListCategories(ctx context.Context, q database.Querier, activeOnly bool) ([]models.Category, error) {
	query := `
		SELECT c.id, c.name, c.description, c.is_active, c.created_at, COUNT(s.id)
		FROM categories c
		LEFT JOIN stock_items s ON s.category_id = c.id
		WHERE NOT $1 OR c.is_active
		GROUP BY c.id
		ORDER BY c.name`

	rows, err := q.QueryContext(ctx, query, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var category models.Category
		err := rows.Scan(
			&category.ID,
			&category.Name,
			&category.Description,
			&category.IsActive,
			&category.CreatedAt,
			&category.ItemCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, category)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return categories, nil
}

// UpdateCategory returns the row as it was before the update alongside the
// updated row. A nil isActive keeps the current flag.
func UpdateCategory(ctx context.Context, tx *sql.Tx, id int64, name, description string, isActive *bool) (before, after *models.Category, err error) {
	before = &models.Category{}
	err = tx.QueryRowContext(ctx, `
		SELECT id, name, description, is_active, created_at
		FROM categories
		WHERE id = $1
		FOR UPDATE`, id).Scan(
		&before.ID,
		&before.Name,
		&before.Description,
		&before.IsActive,
		&before.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, database.ErrCategoryNotFound
		}
		return nil, nil, fmt.Errorf("lock category: %w", err)
	}

	after = &models.Category{}
	err = tx.QueryRowContext(ctx, `
		UPDATE categories
		SET name = $1, description = $2, is_active = COALESCE($3, is_active)
		WHERE id = $4
		RETURNING id, name, description, is_active, created_at`,
		name, description, isActive, id).Scan(
		&after.ID,
		&after.Name,
		&after.Description,
		&after.IsActive,
		&after.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, nil, database.ErrDuplicateCategory
		}
		return nil, nil, fmt.Errorf("update category: %w", err)
	}

	return before, after, nil
}

func CountStockItemsInCategory(ctx context.Context, q database.Querier, categoryID int64) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stock_items WHERE category_id = $1`,
		categoryID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count stock items in category: %w", err)
	}
	return count, nil
}

// DeleteCategory removes an unreferenced category and returns its name. A
// stock item inserted concurrently is still caught by the foreign key.
func DeleteCategory(ctx context.Context, q database.Querier, id int64) (string, error) {
	var name string
	err := q.QueryRowContext(ctx,
		`DELETE FROM categories WHERE id = $1 RETURNING name`, id).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", database.ErrCategoryNotFound
		}
		if _, ok := database.IsForeignKeyViolation(err); ok {
			return "", &database.ReferentialIntegrityError{
				Entity:       "category",
				EntityID:     id,
				Relationship: "stock_items",
			}
		}
		return "", fmt.Errorf("delete category: %w", err)
	}

	return name, nil
}
