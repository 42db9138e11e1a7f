package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
)

const (
	playerCharacterFields = `id, session_id, name, stats, status_effects, location_x, location_y, created_at, updated_at`

	getPlayerCharacterBySessionQuery = `
        SELECT ` + playerCharacterFields + `
        FROM player_characters
        WHERE session_id = $1
    `
	updatePlayerStatsQuery = `
        UPDATE player_characters
        SET stats = $2, updated_at = NOW()
        WHERE id = $1
    `
	updatePlayerStatusEffectsQuery = `
        UPDATE player_characters
        SET status_effects = $2, updated_at = NOW()
        WHERE id = $1
    `
	updatePlayerLocationQuery = `
        UPDATE player_characters
        SET location_x = $2, location_y = $3, updated_at = NOW()
        WHERE id = $1
    `
)

// Compile-time check to ensure pgPlayerCharacterRepository implements the interface
var _ PlayerCharacterRepository = (*pgPlayerCharacterRepository)(nil)

type pgPlayerCharacterRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgPlayerCharacterRepository создает новый репозиторий персонажей игрока.
func NewPgPlayerCharacterRepository(db DBTX, logger *zap.Logger) PlayerCharacterRepository {
	return &pgPlayerCharacterRepository{
		db:     db,
		logger: logger.Named("PgPlayerCharacterRepo"),
	}
}

func (r *pgPlayerCharacterRepository) GetBySessionID(ctx context.Context, querier DBTX, sessionID uuid.UUID) (*models.PlayerCharacter, error) {
	logFields := []zap.Field{zap.String("sessionID", sessionID.String())}
	r.logger.Debug("Getting player character by session", logFields...)

	pc := &models.PlayerCharacter{}
	err := querier.QueryRow(ctx, getPlayerCharacterBySessionQuery, sessionID).Scan(
		&pc.ID,
		&pc.SessionID,
		&pc.Name,
		&pc.Stats,
		&pc.StatusEffects,
		&pc.LocationX,
		&pc.LocationY,
		&pc.CreatedAt,
		&pc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn("Player character not found", logFields...)
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get player character", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("ошибка получения персонажа сессии %s: %w", sessionID, err)
	}
	if pc.Stats == nil {
		pc.Stats = map[string]float64{}
	}
	return pc, nil
}

func (r *pgPlayerCharacterRepository) UpdateStats(ctx context.Context, querier DBTX, id uuid.UUID, stats map[string]float64) error {
	cmdTag, err := querier.Exec(ctx, updatePlayerStatsQuery, id, stats)
	if err != nil {
		r.logger.Error("Failed to update player stats", zap.String("pcID", id.String()), zap.Error(err))
		return fmt.Errorf("ошибка обновления статов персонажа %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *pgPlayerCharacterRepository) UpdateStatusEffects(ctx context.Context, querier DBTX, id uuid.UUID, effects []string) error {
	if effects == nil {
		effects = []string{}
	}
	cmdTag, err := querier.Exec(ctx, updatePlayerStatusEffectsQuery, id, effects)
	if err != nil {
		r.logger.Error("Failed to update status effects", zap.String("pcID", id.String()), zap.Error(err))
		return fmt.Errorf("ошибка обновления статус-эффектов персонажа %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *pgPlayerCharacterRepository) UpdateLocation(ctx context.Context, querier DBTX, id uuid.UUID, x, y int) error {
	cmdTag, err := querier.Exec(ctx, updatePlayerLocationQuery, id, x, y)
	if err != nil {
		r.logger.Error("Failed to update player location", zap.String("pcID", id.String()), zap.Error(err))
		return fmt.Errorf("ошибка обновления позиции персонажа %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
