package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
)

const (
	itemFields = `id, session_id, name, description, item_type, quantity, is_equipped, created_at, updated_at`

	listItemsBySessionQuery = `
        SELECT ` + itemFields + `
        FROM items
        WHERE session_id = $1
        ORDER BY created_at
    `
	getItemBySessionAndNameQuery = `
        SELECT ` + itemFields + `
        FROM items
        WHERE session_id = $1 AND name = $2
    `
	insertItemQuery = `
        INSERT INTO items
            (id, session_id, name, description, item_type, quantity, is_equipped, created_at, updated_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	updateItemQuery = `
        UPDATE items
        SET quantity = $2, is_equipped = $3, updated_at = NOW()
        WHERE id = $1
    `
	deleteItemBySessionAndNameQuery = `
        DELETE FROM items
        WHERE session_id = $1 AND name = $2
    `
)

// Compile-time check to ensure pgItemRepository implements the interface
var _ ItemRepository = (*pgItemRepository)(nil)

type pgItemRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgItemRepository создает новый репозиторий предметов.
func NewPgItemRepository(db DBTX, logger *zap.Logger) ItemRepository {
	return &pgItemRepository{
		db:     db,
		logger: logger.Named("PgItemRepo"),
	}
}

func (r *pgItemRepository) ListBySessionID(ctx context.Context, querier DBTX, sessionID uuid.UUID) ([]*models.Item, error) {
	var items []*models.Item
	err := pgxscan.Select(ctx, querier, &items, listItemsBySessionQuery, sessionID)
	if err != nil {
		r.logger.Error("Failed to list items", zap.String("sessionID", sessionID.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения предметов сессии %s: %w", sessionID, err)
	}
	if items == nil {
		items = []*models.Item{}
	}
	return items, nil
}

func (r *pgItemRepository) GetBySessionAndName(ctx context.Context, querier DBTX, sessionID uuid.UUID, name string) (*models.Item, error) {
	var item models.Item
	err := pgxscan.Get(ctx, querier, &item, getItemBySessionAndNameQuery, sessionID, name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get item by name",
			zap.String("sessionID", sessionID.String()), zap.String("name", name), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения предмета %q сессии %s: %w", name, sessionID, err)
	}
	return &item, nil
}

func (r *pgItemRepository) Create(ctx context.Context, querier DBTX, item *models.Item) error {
	now := time.Now().UTC()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.CreatedAt = now
	item.UpdatedAt = now

	_, err := querier.Exec(ctx, insertItemQuery,
		item.ID,
		item.SessionID,
		item.Name,
		item.Description,
		item.ItemType,
		item.Quantity,
		item.IsEquipped,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to insert item", zap.String("name", item.Name), zap.Error(err))
		return fmt.Errorf("ошибка создания предмета %q: %w", item.Name, err)
	}
	return nil
}

func (r *pgItemRepository) Update(ctx context.Context, querier DBTX, id uuid.UUID, quantity int, isEquipped bool) error {
	cmdTag, err := querier.Exec(ctx, updateItemQuery, id, quantity, isEquipped)
	if err != nil {
		r.logger.Error("Failed to update item", zap.String("itemID", id.String()), zap.Error(err))
		return fmt.Errorf("ошибка обновления предмета %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *pgItemRepository) DeleteBySessionAndName(ctx context.Context, querier DBTX, sessionID uuid.UUID, name string) error {
	_, err := querier.Exec(ctx, deleteItemBySessionAndNameQuery, sessionID, name)
	if err != nil {
		r.logger.Error("Failed to delete item",
			zap.String("sessionID", sessionID.String()), zap.String("name", name), zap.Error(err))
		return fmt.Errorf("ошибка удаления предмета %q сессии %s: %w", name, sessionID, err)
	}
	// Удаление отсутствующего предмета - no-op, не ошибка.
	return nil
}
