package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
)

const (
	turnFields = `id, session_id, turn_number, input_type, input_text, gm_decision_type, output, created_at`

	insertTurnQuery = `
        INSERT INTO turns
            (id, session_id, turn_number, input_type, input_text, gm_decision_type, output, created_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	listRecentTurnsQuery = `
        SELECT ` + turnFields + `
        FROM turns
        WHERE session_id = $1
        ORDER BY turn_number DESC
        LIMIT $2
    `
	getLatestTurnQuery = `
        SELECT ` + turnFields + `
        FROM turns
        WHERE session_id = $1
        ORDER BY turn_number DESC
        LIMIT 1
    `
)

// Код ошибки нарушения уникальности в PostgreSQL.
const pgUniqueViolationCode = "23505"

// Compile-time check to ensure pgTurnRepository implements the interface
var _ TurnRepository = (*pgTurnRepository)(nil)

type pgTurnRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgTurnRepository создает новый репозиторий ходов.
func NewPgTurnRepository(db DBTX, logger *zap.Logger) TurnRepository {
	return &pgTurnRepository{
		db:     db,
		logger: logger.Named("PgTurnRepo"),
	}
}

func (r *pgTurnRepository) Create(ctx context.Context, querier DBTX, turn *models.Turn) error {
	if turn.ID == uuid.Nil {
		turn.ID = uuid.New()
	}
	turn.CreatedAt = time.Now().UTC()

	logFields := []zap.Field{
		zap.String("sessionID", turn.SessionID.String()),
		zap.Int("turnNumber", turn.TurnNumber),
	}

	_, err := querier.Exec(ctx, insertTurnQuery,
		turn.ID,
		turn.SessionID,
		turn.TurnNumber,
		turn.InputType,
		turn.InputText,
		turn.GmDecisionType,
		turn.Output,
		turn.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		// UNIQUE(session_id, turn_number) - последний рубеж против
		// параллельных ходов одной сессии.
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			r.logger.Warn("Duplicate turn number for session", logFields...)
			return models.ErrDuplicateTurn
		}
		r.logger.Error("Failed to insert turn", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка сохранения хода %d сессии %s: %w", turn.TurnNumber, turn.SessionID, err)
	}
	r.logger.Debug("Turn persisted", logFields...)
	return nil
}

func (r *pgTurnRepository) ListRecent(ctx context.Context, querier DBTX, sessionID uuid.UUID, limit int) ([]*models.Turn, error) {
	rows, err := querier.Query(ctx, listRecentTurnsQuery, sessionID, limit)
	if err != nil {
		r.logger.Error("Failed to query recent turns", zap.String("sessionID", sessionID.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения последних ходов сессии %s: %w", sessionID, err)
	}
	defer rows.Close()

	turns := make([]*models.Turn, 0, limit)
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации по ходам: %w", err)
	}
	return turns, nil
}

func (r *pgTurnRepository) GetLatest(ctx context.Context, querier DBTX, sessionID uuid.UUID) (*models.Turn, error) {
	turn, err := scanTurn(querier.QueryRow(ctx, getLatestTurnQuery, sessionID))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get latest turn", zap.String("sessionID", sessionID.String()), zap.Error(err))
		return nil, err
	}
	return turn, nil
}

func scanTurn(row pgx.Row) (*models.Turn, error) {
	turn := &models.Turn{}
	err := row.Scan(
		&turn.ID,
		&turn.SessionID,
		&turn.TurnNumber,
		&turn.InputType,
		&turn.InputText,
		&turn.GmDecisionType,
		&turn.Output,
		&turn.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка сканирования строки хода: %w", err)
	}
	return turn, nil
}
