package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/safar/go-stock-ledger/internal/audit"
	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/models"
	"github.com/safar/go-stock-ledger/internal/store"
)

type Catalog struct {
	db     *sql.DB
	audit  audit.Recorder
	logger *slog.Logger
}

func New(db *sql.DB, recorder audit.Recorder, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{db: db, audit: recorder, logger: logger.With("component", "catalog")}
}

type CategoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active,omitempty"`
}

func (in CategoryInput) validate() (CategoryInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)

	switch {
	case in.Name == "":
		return in, &database.ValidationError{Field: "name", Message: "is required"}
	case utf8.RuneCountInString(in.Name) > 50:
		return in, &database.ValidationError{Field: "name", Message: "must be at most 50 characters"}
	case utf8.RuneCountInString(in.Description) > 200:
		return in, &database.ValidationError{Field: "description", Message: "must be at most 200 characters"}
	}
	return in, nil
}

func (c *Catalog) Create(ctx context.Context, in CategoryInput, actor models.Actor) (*models.Category, error) {
	in, err := in.validate()
	if err != nil {
		return nil, err
	}

	category, err := store.CreateCategory(ctx, c.db, in.Name, in.Description)
	if err != nil {
		return nil, err
	}

	c.audit.Record(ctx, audit.Entry{
		Actor:       actor,
		Action:      models.ActionCreate,
		EntityType:  models.EntityCategory,
		EntityID:    &category.ID,
		Description: fmt.Sprintf("Created category: %s", category.Name),
	})

	return category, nil
}

func (c *Catalog) Update(ctx context.Context, id int64, in CategoryInput, actor models.Actor) (*models.Category, error) {
	in, err := in.validate()
	if err != nil {
		return nil, err
	}

	var before, after *models.Category
	err = database.WithTransaction(ctx, c.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		before, after, err = store.UpdateCategory(ctx, tx, id, in.Name, in.Description, in.IsActive)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.audit.Record(ctx, audit.Entry{
		Actor:       actor,
		Action:      models.ActionUpdate,
		EntityType:  models.EntityCategory,
		EntityID:    &after.ID,
		Description: fmt.Sprintf("Updated category: %s -> %s", before.Name, after.Name),
	})

	return after, nil
}

// Delete refuses to remove a category that still has stock items. No rows
// change when the guard trips.
func (c *Catalog) Delete(ctx context.Context, id int64, actor models.Actor) error {
	var name string
	err := database.WithTransaction(ctx, c.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if _, err := store.GetCategory(ctx, tx, id); err != nil {
			return err
		}

		count, err := store.CountStockItemsInCategory(ctx, tx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return &database.ReferentialIntegrityError{
				Entity:       "category",
				EntityID:     id,
				Relationship: "stock_items",
				Count:        count,
			}
		}

		name, err = store.DeleteCategory(ctx, tx, id)
		return err
	})
	if err != nil {
		return err
	}

	c.logger.Info("category deleted", "category_id", id, "actor", actor.ID)
	c.audit.Record(ctx, audit.Entry{
		Actor:       actor,
		Action:      models.ActionDelete,
		EntityType:  models.EntityCategory,
		EntityID:    &id,
		Description: fmt.Sprintf("Deleted category: %s", name),
	})

	return nil
}

func (c *Catalog) Get(ctx context.Context, id int64) (*models.Category, error) {
	return store.GetCategory(ctx, c.db, id)
}

func (c *Catalog) List(ctx context.Context, activeOnly bool) ([]models.Category, error) {
	return store.ListCategories(ctx, c.db, activeOnly)
}
