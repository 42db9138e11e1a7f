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
	sceneBackgroundFields = `id, scenario_id, session_id, location_name, description, image_path, created_at`

	getSceneBackgroundByIDQuery = `
        SELECT ` + sceneBackgroundFields + `
        FROM scene_backgrounds
        WHERE id = $1
    `
	listSceneBackgroundsByScenarioQuery = `
        SELECT ` + sceneBackgroundFields + `
        FROM scene_backgrounds
        WHERE scenario_id = $1 AND session_id IS NULL
        ORDER BY created_at
    `
	listSceneBackgroundsBySessionQuery = `
        SELECT ` + sceneBackgroundFields + `
        FROM scene_backgrounds
        WHERE session_id = $1
        ORDER BY created_at
    `
	findSceneBackgroundBySessionAndDescQuery = `
        SELECT ` + sceneBackgroundFields + `
        FROM scene_backgrounds
        WHERE session_id = $1 AND description = $2
        ORDER BY created_at DESC
        LIMIT 1
    `
	findSceneBackgroundByScenarioAndDescQuery = `
        SELECT ` + sceneBackgroundFields + `
        FROM scene_backgrounds
        WHERE scenario_id = $1 AND session_id IS NULL AND description = $2
        ORDER BY created_at DESC
        LIMIT 1
    `
	insertSceneBackgroundQuery = `
        INSERT INTO scene_backgrounds
            (id, scenario_id, session_id, location_name, description, image_path, created_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7)
    `
)

// Compile-time check to ensure pgSceneBackgroundRepository implements the interface
var _ SceneBackgroundRepository = (*pgSceneBackgroundRepository)(nil)

type pgSceneBackgroundRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgSceneBackgroundRepository создает новый репозиторий фонов сцен.
func NewPgSceneBackgroundRepository(db DBTX, logger *zap.Logger) SceneBackgroundRepository {
	return &pgSceneBackgroundRepository{
		db:     db,
		logger: logger.Named("PgSceneBackgroundRepo"),
	}
}

func (r *pgSceneBackgroundRepository) GetByID(ctx context.Context, querier DBTX, id uuid.UUID) (*models.SceneBackground, error) {
	var bg models.SceneBackground
	err := pgxscan.Get(ctx, querier, &bg, getSceneBackgroundByIDQuery, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get scene background", zap.String("backgroundID", id.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения фона сцены %s: %w", id, err)
	}
	return &bg, nil
}

func (r *pgSceneBackgroundRepository) ListByScenarioID(ctx context.Context, querier DBTX, scenarioID uuid.UUID) ([]*models.SceneBackground, error) {
	return r.list(ctx, querier, listSceneBackgroundsByScenarioQuery, scenarioID)
}

func (r *pgSceneBackgroundRepository) ListBySessionID(ctx context.Context, querier DBTX, sessionID uuid.UUID) ([]*models.SceneBackground, error) {
	return r.list(ctx, querier, listSceneBackgroundsBySessionQuery, sessionID)
}

func (r *pgSceneBackgroundRepository) list(ctx context.Context, querier DBTX, query string, ownerID uuid.UUID) ([]*models.SceneBackground, error) {
	var backgrounds []*models.SceneBackground
	err := pgxscan.Select(ctx, querier, &backgrounds, query, ownerID)
	if err != nil {
		r.logger.Error("Failed to list scene backgrounds", zap.String("ownerID", ownerID.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения фонов сцен для %s: %w", ownerID, err)
	}
	if backgrounds == nil {
		backgrounds = []*models.SceneBackground{}
	}
	return backgrounds, nil
}

func (r *pgSceneBackgroundRepository) FindBySessionAndDescription(ctx context.Context, querier DBTX, sessionID uuid.UUID, description string) (*models.SceneBackground, error) {
	return r.find(ctx, querier, findSceneBackgroundBySessionAndDescQuery, sessionID, description)
}

func (r *pgSceneBackgroundRepository) FindByScenarioAndDescription(ctx context.Context, querier DBTX, scenarioID uuid.UUID, description string) (*models.SceneBackground, error) {
	return r.find(ctx, querier, findSceneBackgroundByScenarioAndDescQuery, scenarioID, description)
}

func (r *pgSceneBackgroundRepository) find(ctx context.Context, querier DBTX, query string, ownerID uuid.UUID, description string) (*models.SceneBackground, error) {
	var bg models.SceneBackground
	err := pgxscan.Get(ctx, querier, &bg, query, ownerID, description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to find scene background by description",
			zap.String("ownerID", ownerID.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка поиска фона сцены по описанию для %s: %w", ownerID, err)
	}
	return &bg, nil
}

func (r *pgSceneBackgroundRepository) Create(ctx context.Context, querier DBTX, bg *models.SceneBackground) error {
	if bg.ID == uuid.Nil {
		bg.ID = uuid.New()
	}
	bg.CreatedAt = time.Now().UTC()

	_, err := querier.Exec(ctx, insertSceneBackgroundQuery,
		bg.ID,
		bg.ScenarioID,
		bg.SessionID,
		bg.LocationName,
		bg.Description,
		bg.ImagePath,
		bg.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to insert scene background", zap.String("backgroundID", bg.ID.String()), zap.Error(err))
		return fmt.Errorf("ошибка создания фона сцены %s: %w", bg.ID, err)
	}
	return nil
}
