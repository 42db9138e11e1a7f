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
	contextSummaryFields = `id, session_id, plot_essentials, short_term_summary, confirmed_facts, last_updated_turn, updated_at`

	getContextSummaryBySessionQuery = `
        SELECT ` + contextSummaryFields + `
        FROM context_summaries
        WHERE session_id = $1
    `
	upsertContextSummaryQuery = `
        INSERT INTO context_summaries
            (id, session_id, plot_essentials, short_term_summary, confirmed_facts, last_updated_turn, updated_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, NOW())
        ON CONFLICT (session_id) DO UPDATE SET
            plot_essentials = EXCLUDED.plot_essentials,
            short_term_summary = EXCLUDED.short_term_summary,
            confirmed_facts = EXCLUDED.confirmed_facts,
            last_updated_turn = EXCLUDED.last_updated_turn,
            updated_at = NOW()
    `
)

// Compile-time check to ensure pgContextSummaryRepository implements the interface
var _ ContextSummaryRepository = (*pgContextSummaryRepository)(nil)

type pgContextSummaryRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgContextSummaryRepository создает новый репозиторий сводок контекста.
func NewPgContextSummaryRepository(db DBTX, logger *zap.Logger) ContextSummaryRepository {
	return &pgContextSummaryRepository{
		db:     db,
		logger: logger.Named("PgContextSummaryRepo"),
	}
}

func (r *pgContextSummaryRepository) GetBySessionID(ctx context.Context, querier DBTX, sessionID uuid.UUID) (*models.ContextSummary, error) {
	summary := &models.ContextSummary{}
	err := querier.QueryRow(ctx, getContextSummaryBySessionQuery, sessionID).Scan(
		&summary.ID,
		&summary.SessionID,
		&summary.PlotEssentials,
		&summary.ShortTermSummary,
		&summary.ConfirmedFacts,
		&summary.LastUpdatedTurn,
		&summary.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get context summary", zap.String("sessionID", sessionID.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения сводки контекста сессии %s: %w", sessionID, err)
	}
	return summary, nil
}

func (r *pgContextSummaryRepository) Upsert(ctx context.Context, querier DBTX, summary *models.ContextSummary) error {
	if summary.ID == uuid.Nil {
		summary.ID = uuid.New()
	}
	if summary.PlotEssentials == nil {
		summary.PlotEssentials = map[string]any{}
	}
	if summary.ConfirmedFacts == nil {
		summary.ConfirmedFacts = map[string]any{}
	}

	_, err := querier.Exec(ctx, upsertContextSummaryQuery,
		summary.ID,
		summary.SessionID,
		summary.PlotEssentials,
		summary.ShortTermSummary,
		summary.ConfirmedFacts,
		summary.LastUpdatedTurn,
	)
	if err != nil {
		r.logger.Error("Failed to upsert context summary", zap.String("sessionID", summary.SessionID.String()), zap.Error(err))
		return fmt.Errorf("ошибка сохранения сводки контекста сессии %s: %w", summary.SessionID, err)
	}
	r.logger.Debug("Context summary upserted",
		zap.String("sessionID", summary.SessionID.String()),
		zap.Int("lastUpdatedTurn", summary.LastUpdatedTurn))
	return nil
}
