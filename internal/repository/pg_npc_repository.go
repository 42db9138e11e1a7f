package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
)

const (
	npcFields = `id, scenario_id, session_id, name, profile, goals, state, location_x, location_y, image_path, emotion_images, is_active, created_at, updated_at`

	listNpcsByScenarioQuery = `
        SELECT ` + npcFields + `
        FROM npcs
        WHERE scenario_id = $1 AND session_id IS NULL
        ORDER BY name
    `
	listActiveNpcsBySessionQuery = `
        SELECT ` + npcFields + `
        FROM npcs
        WHERE session_id = $1 AND is_active = TRUE
        ORDER BY name
    `
	getNpcBySessionAndNameQuery = `
        SELECT ` + npcFields + `
        FROM npcs
        WHERE session_id = $1 AND name = $2
    `
	insertNpcQuery = `
        INSERT INTO npcs
            (id, scenario_id, session_id, name, profile, goals, state, location_x, location_y, image_path, emotion_images, is_active, created_at, updated_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
    `
	updateNpcStateQuery = `
        UPDATE npcs
        SET state = state || $2, updated_at = NOW()
        WHERE id = $1
    `
	updateNpcLocationQuery = `
        UPDATE npcs
        SET location_x = $2, location_y = $3, updated_at = NOW()
        WHERE id = $1
    `
	updateNpcImagePathQuery = `
        UPDATE npcs
        SET image_path = $2, updated_at = NOW()
        WHERE id = $1
    `
	// Слияние внутри UPDATE, чтобы параллельные записи эмоций
	// одного NPC не теряли ключи друг друга.
	updateNpcEmotionImageQuery = `
        UPDATE npcs
        SET emotion_images = COALESCE(emotion_images, '{}'::jsonb) || jsonb_build_object($2::text, $3::text),
            updated_at = NOW()
        WHERE id = $1
    `
)

// Compile-time check to ensure pgNpcRepository implements the interface
var _ NpcRepository = (*pgNpcRepository)(nil)

type pgNpcRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgNpcRepository создает новый репозиторий NPC.
func NewPgNpcRepository(db DBTX, logger *zap.Logger) NpcRepository {
	return &pgNpcRepository{
		db:     db,
		logger: logger.Named("PgNpcRepo"),
	}
}

func (r *pgNpcRepository) ListByScenarioID(ctx context.Context, querier DBTX, scenarioID uuid.UUID) ([]*models.NPC, error) {
	return r.list(ctx, querier, listNpcsByScenarioQuery, scenarioID)
}

func (r *pgNpcRepository) ListActiveBySessionID(ctx context.Context, querier DBTX, sessionID uuid.UUID) ([]*models.NPC, error) {
	return r.list(ctx, querier, listActiveNpcsBySessionQuery, sessionID)
}

func (r *pgNpcRepository) list(ctx context.Context, querier DBTX, query string, parentID uuid.UUID) ([]*models.NPC, error) {
	rows, err := querier.Query(ctx, query, parentID)
	if err != nil {
		r.logger.Error("Failed to query NPCs", zap.String("parentID", parentID.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения списка NPC для %s: %w", parentID, err)
	}
	defer rows.Close()

	npcs := make([]*models.NPC, 0)
	for rows.Next() {
		npc, err := scanNpc(rows)
		if err != nil {
			r.logger.Error("Failed to scan NPC row", zap.Error(err))
			return nil, err
		}
		npcs = append(npcs, npc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации по NPC: %w", err)
	}
	return npcs, nil
}

func (r *pgNpcRepository) GetBySessionAndName(ctx context.Context, querier DBTX, sessionID uuid.UUID, name string) (*models.NPC, error) {
	logFields := []zap.Field{zap.String("sessionID", sessionID.String()), zap.String("name", name)}

	npc, err := scanNpc(querier.QueryRow(ctx, getNpcBySessionAndNameQuery, sessionID, name))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			r.logger.Debug("NPC not found by session and name", logFields...)
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get NPC by session and name", append(logFields, zap.Error(err))...)
		return nil, err
	}
	return npc, nil
}

func (r *pgNpcRepository) Create(ctx context.Context, querier DBTX, npc *models.NPC) error {
	now := time.Now().UTC()
	if npc.ID == uuid.Nil {
		npc.ID = uuid.New()
	}
	npc.CreatedAt = now
	npc.UpdatedAt = now

	_, err := querier.Exec(ctx, insertNpcQuery,
		npc.ID,
		npc.ScenarioID,
		npc.SessionID,
		npc.Name,
		npc.Profile,
		npc.Goals,
		npc.State,
		npc.LocationX,
		npc.LocationY,
		npc.ImagePath,
		npc.EmotionImages,
		npc.IsActive,
		npc.CreatedAt,
		npc.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to insert NPC", zap.String("name", npc.Name), zap.Error(err))
		return fmt.Errorf("ошибка создания NPC %s: %w", npc.Name, err)
	}
	return nil
}

func (r *pgNpcRepository) UpdateState(ctx context.Context, querier DBTX, id uuid.UUID, state map[string]any) error {
	cmdTag, err := querier.Exec(ctx, updateNpcStateQuery, id, state)
	if err != nil {
		r.logger.Error("Failed to update NPC state", zap.String("npcID", id.String()), zap.Error(err))
		return fmt.Errorf("ошибка обновления состояния NPC %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *pgNpcRepository) UpdateLocation(ctx context.Context, querier DBTX, id uuid.UUID, x, y int) error {
	cmdTag, err := querier.Exec(ctx, updateNpcLocationQuery, id, x, y)
	if err != nil {
		r.logger.Error("Failed to update NPC location", zap.String("npcID", id.String()), zap.Error(err))
		return fmt.Errorf("ошибка обновления позиции NPC %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *pgNpcRepository) UpdateImagePath(ctx context.Context, querier DBTX, id uuid.UUID, path string) error {
	cmdTag, err := querier.Exec(ctx, updateNpcImagePathQuery, id, path)
	if err != nil {
		r.logger.Error("Failed to update NPC image path", zap.String("npcID", id.String()), zap.Error(err))
		return fmt.Errorf("ошибка обновления портрета NPC %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *pgNpcRepository) UpdateEmotionImage(ctx context.Context, querier DBTX, id uuid.UUID, emotion, path string) error {
	cmdTag, err := querier.Exec(ctx, updateNpcEmotionImageQuery, id, emotion, path)
	if err != nil {
		r.logger.Error("Failed to update NPC emotion image",
			zap.String("npcID", id.String()), zap.String("emotion", emotion), zap.Error(err))
		return fmt.Errorf("ошибка обновления эмоции %s NPC %s: %w", emotion, id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// scanNpc сканирует одну строку в NPC. Для QueryRow преобразует
// pgx.ErrNoRows в models.ErrNotFound.
func scanNpc(row pgx.Row) (*models.NPC, error) {
	npc := &models.NPC{}
	err := row.Scan(
		&npc.ID,
		&npc.ScenarioID,
		&npc.SessionID,
		&npc.Name,
		&npc.Profile,
		&npc.Goals,
		&npc.State,
		&npc.LocationX,
		&npc.LocationY,
		&npc.ImagePath,
		&npc.EmotionImages,
		&npc.IsActive,
		&npc.CreatedAt,
		&npc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка сканирования строки NPC: %w", err)
	}
	return npc, nil
}
