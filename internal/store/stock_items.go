package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/models"
	"github.com/shopspring/decimal"
)

const stockItemColumns = `
	s.id, s.name, s.category_id, c.name, s.quantity, s.price, s.supplier,
	s.purchase_date, s.description, s.location, s.sku, s.minimum_quantity,
	s.reorder_point, s.is_active, s.created_by, s.updated_by, s.created_at,
	s.updated_at, s.version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStockItem(row rowScanner) (*models.StockItem, error) {
	var (
		item         models.StockItem
		sku          sql.NullString
		minimumQty   sql.NullInt64
		reorderPoint sql.NullInt64
		updatedBy    sql.NullString
	)

	err := row.Scan(
		&item.ID,
		&item.Name,
		&item.CategoryID,
		&item.CategoryName,
		&item.Quantity,
		&item.Price,
		&item.Supplier,
		&item.PurchaseDate,
		&item.Description,
		&item.Location,
		&sku,
		&minimumQty,
		&reorderPoint,
		&item.IsActive,
		&item.CreatedBy,
		&updatedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.Version,
	)
	if err != nil {
		return nil, err
	}

	if sku.Valid {
		item.SKU = &sku.String
	}
	if minimumQty.Valid {
		v := int(minimumQty.Int64)
		item.MinimumQuantity = &v
	}
	if reorderPoint.Valid {
		v := int(reorderPoint.Int64)
		item.ReorderPoint = &v
	}
	if updatedBy.Valid {
		item.UpdatedBy = &updatedBy.String
	}

	return &item, nil
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullableString(v *string) sql.NullString {
	if v == nil || *v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func CreateStockItem(ctx context.Context, q database.Querier, fields models.StockItemFields, actorID string) (*models.StockItem, error) {
	query := `
		WITH s AS (
			INSERT INTO stock_items (
				name, category_id, quantity, price, supplier, purchase_date,
				description, location, sku, minimum_quantity, reorder_point,
				is_active, created_by, created_at, updated_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW(), 1)
			RETURNING *)
		SELECT` + stockItemColumns + `
		FROM s JOIN categories c ON c.id = s.category_id`

	item, err := scanStockItem(q.QueryRowContext(ctx, query,
		fields.Name,
		fields.CategoryID,
		fields.Quantity,
		fields.Price,
		fields.Supplier,
		fields.PurchaseDate,
		fields.Description,
		fields.Location,
		nullableString(fields.SKU),
		nullableInt(fields.MinimumQuantity),
		nullableInt(fields.ReorderPoint),
		fields.IsActive,
		actorID,
	))
	if err != nil {
		if _, ok := database.IsForeignKeyViolation(err); ok {
			return nil, database.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("create stock item: %w", err)
	}

	return item, nil
}

func GetStockItem(ctx context.Context, q database.Querier, id int64) (*models.StockItem, error) {
	query := `
		SELECT` + stockItemColumns + `
		FROM stock_items s JOIN categories c ON c.id = s.category_id
		WHERE s.id = $1`

	item, err := scanStockItem(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrStockItemNotFound
		}
		return nil, fmt.Errorf("get stock item: %w", err)
	}

	return item, nil
}

// UpdateStockItemOptimistic overwrites every editable field provided the row
// is still at version. A version mismatch (or a missing row) yields
// ErrWriteConflict; callers re-read to tell the two apart.
func UpdateStockItemOptimistic(ctx context.Context, q database.Querier, id int64, fields models.StockItemFields, version int, actorID string) (*models.StockItem, error) {
	query := `
		WITH s AS (
			UPDATE stock_items
			SET name = $1, category_id = $2, quantity = $3, price = $4,
			    supplier = $5, purchase_date = $6, description = $7,
			    location = $8, sku = $9, minimum_quantity = $10,
			    reorder_point = $11, is_active = $12, updated_by = $13,
			    updated_at = NOW(), version = version + 1
			WHERE id = $14 AND version = $15
			RETURNING *)
		SELECT` + stockItemColumns + `
		FROM s JOIN categories c ON c.id = s.category_id`

	item, err := scanStockItem(q.QueryRowContext(ctx, query,
		fields.Name,
		fields.CategoryID,
		fields.Quantity,
		fields.Price,
		fields.Supplier,
		fields.PurchaseDate,
		fields.Description,
		fields.Location,
		nullableString(fields.SKU),
		nullableInt(fields.MinimumQuantity),
		nullableInt(fields.ReorderPoint),
		fields.IsActive,
		actorID,
		id,
		version,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrWriteConflict
		}
		if _, ok := database.IsForeignKeyViolation(err); ok {
			return nil, database.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("update stock item: %w", err)
	}

	return item, nil
}

// DecrementStock removes quantity units in a single conditional statement.
// Zero affected rows means either the item is gone or it holds fewer than
// quantity units; both come back as ErrInsufficientStock.
func DecrementStock(ctx context.Context, q database.Querier, id int64, quantity int, actorID string) (*models.StockItem, error) {
	query := `
		WITH s AS (
			UPDATE stock_items
			SET quantity = quantity - $1,
			    updated_by = $2,
			    updated_at = NOW(),
			    version = version + 1
			WHERE id = $3
			  AND quantity >= $1
			RETURNING *)
		SELECT` + stockItemColumns + `
		FROM s JOIN categories c ON c.id = s.category_id`

	item, err := scanStockItem(q.QueryRowContext(ctx, query, quantity, actorID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrInsufficientStock
		}
		return nil, fmt.Errorf("decrement stock: %w", err)
	}

	return item, nil
}

// DeleteStockItem removes the row and returns its name as it was at the
// moment of deletion.
func DeleteStockItem(ctx context.Context, q database.Querier, id int64) (string, error) {
	var name string
	err := q.QueryRowContext(ctx,
		`DELETE FROM stock_items WHERE id = $1 RETURNING name`, id).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", database.ErrStockItemNotFound
		}
		return "", fmt.Errorf("delete stock item: %w", err)
	}

	return name, nil
}

type StockFilter struct {
	Search     string
	CategoryID *int64
	ActiveOnly bool
	Sort       string
}

const (
	SortName         = "name"
	SortNameDesc     = "name_desc"
	SortDate         = "date"
	SortDateDesc     = "date_desc"
	SortQuantity     = "quantity"
	SortQuantityDesc = "quantity_desc"
)

var stockSortClauses = map[string]string{
	SortName:         "s.name ASC, s.id ASC",
	SortNameDesc:     "s.name DESC, s.id DESC",
	SortDate:         "s.purchase_date ASC, s.id ASC",
	SortDateDesc:     "s.purchase_date DESC, s.id DESC",
	SortQuantity:     "s.quantity ASC, s.id ASC",
	SortQuantityDesc: "s.quantity DESC, s.id DESC",
}

func (f StockFilter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)

	if term := strings.TrimSpace(f.Search); term != "" {
		args = append(args, "%"+escapeLike(term)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(s.name ILIKE $%d OR s.supplier ILIKE $%d OR c.name ILIKE $%d)", n, n, n))
	}
	if f.CategoryID != nil {
		args = append(args, *f.CategoryID)
		conds = append(conds, fmt.Sprintf("s.category_id = $%d", len(args)))
	}
	if f.ActiveOnly {
		conds = append(conds, "s.is_active")
	}

	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func (f StockFilter) orderBy() string {
	if clause, ok := stockSortClauses[f.Sort]; ok {
		return clause
	}
	return stockSortClauses[SortName]
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func ListStockItems(ctx context.Context, q database.Querier, filter StockFilter, page, pageSize int) (*OffsetPage, error) {
	where, args := filter.where()

	var total int64
	countQuery := `SELECT COUNT(*) FROM stock_items s JOIN categories c ON c.id = s.category_id ` + where
	if err := q.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count stock items: %w", err)
	}

	offset := (page - 1) * pageSize
	query := fmt.Sprintf(`
		SELECT %s
		FROM stock_items s JOIN categories c ON c.id = s.category_id
		%s
		ORDER BY %s
		LIMIT $%d OFFSET $%d`,
		stockItemColumns, where, filter.orderBy(), len(args)+1, len(args)+2)

	items, err := queryStockItems(ctx, q, query, append(args, pageSize, offset)...)
	if err != nil {
		return nil, fmt.Errorf("list stock items: %w", err)
	}

	return newOffsetPage(items, total, page, pageSize), nil
}

// ListLowStockItems returns items holding fewer than threshold units, lowest
// first.
func ListLowStockItems(ctx context.Context, q database.Querier, threshold, limit int) ([]models.StockItem, error) {
	query := `
		SELECT` + stockItemColumns + `
		FROM stock_items s JOIN categories c ON c.id = s.category_id
		WHERE s.quantity < $1
		ORDER BY s.quantity ASC, s.id ASC
		LIMIT $2`

	items, err := queryStockItems(ctx, q, query, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("list low stock items: %w", err)
	}
	return items, nil
}

func ListRecentStockItems(ctx context.Context, q database.Querier, limit int) ([]models.StockItem, error) {
	query := `
		SELECT` + stockItemColumns + `
		FROM stock_items s JOIN categories c ON c.id = s.category_id
		ORDER BY s.created_at DESC, s.id DESC
		LIMIT $1`

	items, err := queryStockItems(ctx, q, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent stock items: %w", err)
	}
	return items, nil
}

func queryStockItems(ctx context.Context, q database.Querier, query string, args ...any) ([]models.StockItem, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.StockItem{}
	for rows.Next() {
		item, err := scanStockItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock item: %w", err)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

type StockSummary struct {
	TotalItems    int64           `json:"total_items"`
	LowStockCount int64           `json:"low_stock_count"`
	TotalValue    decimal.Decimal `json:"total_value"`
}

func GetStockSummary(ctx context.Context, q database.Querier, lowStockThreshold int) (*StockSummary, error) {
	summary := &StockSummary{}

	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE quantity < $1),
		       COALESCE(SUM(price * quantity), 0)
		FROM stock_items`, lowStockThreshold).Scan(
		&summary.TotalItems,
		&summary.LowStockCount,
		&summary.TotalValue,
	)
	if err != nil {
		return nil, fmt.Errorf("stock summary: %w", err)
	}

	return summary, nil
}

type CategorySummary struct {
	CategoryID   int64           `json:"category_id"`
	CategoryName string          `json:"category_name"`
	ItemCount    int64           `json:"item_count"`
	TotalValue   decimal.Decimal `json:"total_value"`
}

func ListCategorySummaries(ctx context.Context, q database.Querier) ([]CategorySummary, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT c.id, c.name, COUNT(s.id), COALESCE(SUM(s.price * s.quantity), 0)
		FROM categories c
		JOIN stock_items s ON s.category_id = c.id
		GROUP BY c.id, c.name
		ORDER BY c.name`)
	if err != nil {
		return nil, fmt.Errorf("category summaries: %w", err)
	}
	defer rows.Close()

	summaries := []CategorySummary{}
	for rows.Next() {
		var cs CategorySummary
		if err := rows.Scan(&cs.CategoryID, &cs.CategoryName, &cs.ItemCount, &cs.TotalValue); err != nil {
			return nil, fmt.Errorf("scan category summary: %w", err)
		}
		summaries = append(summaries, cs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return summaries, nil
}
