package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
)

const (
	objectiveFields = `id, session_id, title, description, status, sort_order, created_at, updated_at`

	listObjectivesBySessionQuery = `
        SELECT ` + objectiveFields + `
        FROM objectives
        WHERE session_id = $1
        ORDER BY sort_order, created_at
    `
	getObjectiveBySessionAndTitleQuery = `
        SELECT ` + objectiveFields + `
        FROM objectives
        WHERE session_id = $1 AND title = $2
    `
	insertObjectiveQuery = `
        INSERT INTO objectives
            (id, session_id, title, description, status, sort_order, created_at, updated_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	updateObjectiveStatusQuery = `
        UPDATE objectives
        SET status = $2,
            description = COALESCE($3, description),
            updated_at = NOW()
        WHERE id = $1
    `
)

// Compile-time check to ensure pgObjectiveRepository implements the interface
var _ ObjectiveRepository = (*pgObjectiveRepository)(nil)

type pgObjectiveRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgObjectiveRepository создает новый репозиторий целей.
func NewPgObjectiveRepository(db DBTX, logger *zap.Logger) ObjectiveRepository {
	return &pgObjectiveRepository{
		db:     db,
		logger: logger.Named("PgObjectiveRepo"),
	}
}

func (r *pgObjectiveRepository) ListBySessionID(ctx context.Context, querier DBTX, sessionID uuid.UUID) ([]*models.Objective, error) {
	var objectives []*models.Objective
	err := pgxscan.Select(ctx, querier, &objectives, listObjectivesBySessionQuery, sessionID)
	if err != nil {
		r.logger.Error("Failed to list objectives", zap.String("sessionID", sessionID.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения целей сессии %s: %w", sessionID, err)
	}
	if objectives == nil {
		objectives = []*models.Objective{}
	}
	return objectives, nil
}

func (r *pgObjectiveRepository) GetBySessionAndTitle(ctx context.Context, querier DBTX, sessionID uuid.UUID, title string) (*models.Objective, error) {
	var objective models.Objective
	err := pgxscan.Get(ctx, querier, &objective, getObjectiveBySessionAndTitleQuery, sessionID, title)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get objective by title",
			zap.String("sessionID", sessionID.String()), zap.String("title", title), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения цели %q сессии %s: %w", title, sessionID, err)
	}
	return &objective, nil
}

func (r *pgObjectiveRepository) Create(ctx context.Context, querier DBTX, objective *models.Objective) error {
	now := time.Now().UTC()
	if objective.ID == uuid.Nil {
		objective.ID = uuid.New()
	}
	objective.CreatedAt = now
	objective.UpdatedAt = now

	_, err := querier.Exec(ctx, insertObjectiveQuery,
		objective.ID,
		objective.SessionID,
		objective.Title,
		objective.Description,
		objective.Status,
		objective.SortOrder,
		objective.CreatedAt,
		objective.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			r.logger.Warn("Objective title already exists for session",
				zap.String("sessionID", objective.SessionID.String()), zap.String("title", objective.Title))
			return models.ErrObjectiveConflict
		}
		r.logger.Error("Failed to insert objective", zap.String("title", objective.Title), zap.Error(err))
		return fmt.Errorf("ошибка создания цели %q: %w", objective.Title, err)
	}
	return nil
}

func (r *pgObjectiveRepository) UpdateStatus(ctx context.Context, querier DBTX, id uuid.UUID, status models.ObjectiveStatus, description *string) error {
	cmdTag, err := querier.Exec(ctx, updateObjectiveStatusQuery, id, status, description)
	if err != nil {
		r.logger.Error("Failed to update objective status", zap.String("objectiveID", id.String()), zap.Error(err))
		return fmt.Errorf("ошибка обновления статуса цели %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
