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
	sessionFields = `id, scenario_id, user_id, status, current_state, current_turn_number, ending_type, ending_summary, created_at, updated_at`

	getSessionByIDQuery = `
        SELECT ` + sessionFields + `
        FROM sessions
        WHERE id = $1
    `
	// Атомарный инкремент счетчика ходов. Возвращает НОВОЕ значение.
	incrementTurnQuery = `
        UPDATE sessions
        SET current_turn_number = current_turn_number + 1,
            updated_at = NOW()
        WHERE id = $1
        RETURNING current_turn_number
    `
	updateSessionStateQuery = `
        UPDATE sessions
        SET current_state = $2,
            updated_at = NOW()
        WHERE id = $1
    `
	applySessionEndQuery = `
        UPDATE sessions
        SET status = 'completed',
            ending_type = $2,
            ending_summary = $3,
            updated_at = NOW()
        WHERE id = $1
    `
)

// Compile-time check to ensure pgSessionRepository implements the interface
var _ SessionRepository = (*pgSessionRepository)(nil)

type pgSessionRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgSessionRepository создает новый репозиторий сессий.
func NewPgSessionRepository(db DBTX, logger *zap.Logger) SessionRepository {
	return &pgSessionRepository{
		db:     db,
		logger: logger.Named("PgSessionRepo"),
	}
}

func (r *pgSessionRepository) GetByID(ctx context.Context, querier DBTX, id uuid.UUID) (*models.Session, error) {
	logFields := []zap.Field{zap.String("sessionID", id.String())}
	r.logger.Debug("Getting session by ID", logFields...)

	s := &models.Session{}
	err := querier.QueryRow(ctx, getSessionByIDQuery, id).Scan(
		&s.ID,
		&s.ScenarioID,
		&s.UserID,
		&s.Status,
		&s.CurrentState,
		&s.CurrentTurnNumber,
		&s.EndingType,
		&s.EndingSummary,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn("Session not found", logFields...)
			return nil, models.ErrSessionNotFound
		}
		r.logger.Error("Failed to get session", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("ошибка получения сессии %s: %w", id, err)
	}
	if s.CurrentState == nil {
		s.CurrentState = map[string]any{}
	}
	return s, nil
}

func (r *pgSessionRepository) IncrementTurn(ctx context.Context, querier DBTX, sessionID uuid.UUID) (int, error) {
	logFields := []zap.Field{zap.String("sessionID", sessionID.String())}

	var newTurn int
	err := querier.QueryRow(ctx, incrementTurnQuery, sessionID).Scan(&newTurn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn("Session not found for turn increment", logFields...)
			return 0, models.ErrSessionNotFound
		}
		r.logger.Error("Failed to increment turn", append(logFields, zap.Error(err))...)
		return 0, fmt.Errorf("ошибка инкремента хода сессии %s: %w", sessionID, err)
	}
	r.logger.Debug("Turn incremented", append(logFields, zap.Int("newTurn", newTurn))...)
	return newTurn, nil
}

func (r *pgSessionRepository) UpdateCurrentState(ctx context.Context, querier DBTX, sessionID uuid.UUID, state map[string]any) error {
	logFields := []zap.Field{zap.String("sessionID", sessionID.String())}

	cmdTag, err := querier.Exec(ctx, updateSessionStateQuery, sessionID, state)
	if err != nil {
		r.logger.Error("Failed to update session state", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка обновления состояния сессии %s: %w", sessionID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		r.logger.Warn("Session not found for state update", logFields...)
		return models.ErrSessionNotFound
	}
	return nil
}

func (r *pgSessionRepository) ApplySessionEnd(ctx context.Context, querier DBTX, sessionID uuid.UUID, end models.SessionEnd) error {
	logFields := []zap.Field{
		zap.String("sessionID", sessionID.String()),
		zap.String("endingType", end.EndingType),
	}
	r.logger.Info("Applying session end", logFields...)

	cmdTag, err := querier.Exec(ctx, applySessionEndQuery, sessionID, end.EndingType, end.EndingSummary)
	if err != nil {
		r.logger.Error("Failed to apply session end", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка завершения сессии %s: %w", sessionID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		r.logger.Warn("Session not found for ending", logFields...)
		return models.ErrSessionNotFound
	}
	return nil
}
