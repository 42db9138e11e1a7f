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
	scenarioFields = `id, user_id, title, description, system_prompt, initial_state, win_conditions, fail_conditions, max_turns, is_public, created_at, updated_at`

	getScenarioByIDQuery = `
        SELECT ` + scenarioFields + `
        FROM scenarios
        WHERE id = $1
    `
)

// Compile-time check to ensure pgScenarioRepository implements the interface
var _ ScenarioRepository = (*pgScenarioRepository)(nil)

type pgScenarioRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgScenarioRepository создает новый репозиторий сценариев.
func NewPgScenarioRepository(db DBTX, logger *zap.Logger) ScenarioRepository {
	return &pgScenarioRepository{
		db:     db,
		logger: logger.Named("PgScenarioRepo"),
	}
}

func (r *pgScenarioRepository) GetByID(ctx context.Context, querier DBTX, id uuid.UUID) (*models.Scenario, error) {
	logFields := []zap.Field{zap.String("scenarioID", id.String())}
	r.logger.Debug("Getting scenario by ID", logFields...)

	s := &models.Scenario{}
	err := querier.QueryRow(ctx, getScenarioByIDQuery, id).Scan(
		&s.ID,
		&s.UserID,
		&s.Title,
		&s.Description,
		&s.SystemPrompt,
		&s.InitialState,
		&s.WinConditions,
		&s.FailConditions,
		&s.MaxTurns,
		&s.IsPublic,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn("Scenario not found", logFields...)
			return nil, models.ErrScenarioNotFound
		}
		r.logger.Error("Failed to get scenario", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("ошибка получения сценария %s: %w", id, err)
	}
	return s, nil
}
