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
	bgmTrackFields = `id, scenario_id, mood, audio_path, prompt_used, duration_seconds, created_at, updated_at`

	findBgmTrackQuery = `
        SELECT ` + bgmTrackFields + `
        FROM bgm_tracks
        WHERE scenario_id = $1 AND mood = $2
    `
	insertPendingBgmTrackQuery = `
        INSERT INTO bgm_tracks
            (id, scenario_id, mood, audio_path, prompt_used, duration_seconds, created_at, updated_at)
        VALUES
            ($1, $2, $3, $4, '', 0, $5, $5)
    `
	completePendingBgmTrackQuery = `
        UPDATE bgm_tracks
        SET audio_path = $3, prompt_used = $4, duration_seconds = $5, updated_at = NOW()
        WHERE scenario_id = $1 AND mood = $2
    `
	deletePendingBgmTrackQuery = `
        DELETE FROM bgm_tracks
        WHERE scenario_id = $1 AND mood = $2 AND audio_path = $3
    `
)

// Compile-time check to ensure pgBgmRepository implements the interface
var _ BgmRepository = (*pgBgmRepository)(nil)

type pgBgmRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgBgmRepository создает новый репозиторий BGM-треков.
func NewPgBgmRepository(db DBTX, logger *zap.Logger) BgmRepository {
	return &pgBgmRepository{
		db:     db,
		logger: logger.Named("PgBgmRepo"),
	}
}

func (r *pgBgmRepository) Find(ctx context.Context, querier DBTX, scenarioID uuid.UUID, mood string) (*models.BgmTrack, error) {
	var track models.BgmTrack
	err := pgxscan.Get(ctx, querier, &track, findBgmTrackQuery, scenarioID, mood)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to find bgm track",
			zap.String("scenarioID", scenarioID.String()), zap.String("mood", mood), zap.Error(err))
		return nil, fmt.Errorf("ошибка поиска BGM трека (%s, %s): %w", scenarioID, mood, err)
	}
	return &track, nil
}

// InsertPending вставляет строку-заглушку для (scenario_id, mood).
// Конфликт по UNIQUE(scenario_id, mood) означает, что генерация уже идет
// в другом процессе - возвращаем ErrBgmGenerationInFlight.
func (r *pgBgmRepository) InsertPending(ctx context.Context, querier DBTX, scenarioID uuid.UUID, mood string) error {
	now := time.Now().UTC()
	_, err := querier.Exec(ctx, insertPendingBgmTrackQuery,
		uuid.New(), scenarioID, mood, models.BgmPendingPath, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			return models.ErrBgmGenerationInFlight
		}
		r.logger.Error("Failed to insert pending bgm track",
			zap.String("scenarioID", scenarioID.String()), zap.String("mood", mood), zap.Error(err))
		return fmt.Errorf("ошибка резервирования BGM трека (%s, %s): %w", scenarioID, mood, err)
	}
	return nil
}

func (r *pgBgmRepository) CompletePending(ctx context.Context, querier DBTX, scenarioID uuid.UUID, mood, audioPath, promptUsed string, durationSeconds float64) error {
	cmdTag, err := querier.Exec(ctx, completePendingBgmTrackQuery,
		scenarioID, mood, audioPath, promptUsed, durationSeconds)
	if err != nil {
		r.logger.Error("Failed to complete pending bgm track",
			zap.String("scenarioID", scenarioID.String()), zap.String("mood", mood), zap.Error(err))
		return fmt.Errorf("ошибка завершения BGM трека (%s, %s): %w", scenarioID, mood, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *pgBgmRepository) DeletePending(ctx context.Context, querier DBTX, scenarioID uuid.UUID, mood string) error {
	_, err := querier.Exec(ctx, deletePendingBgmTrackQuery, scenarioID, mood, models.BgmPendingPath)
	if err != nil {
		r.logger.Error("Failed to delete pending bgm track",
			zap.String("scenarioID", scenarioID.String()), zap.String("mood", mood), zap.Error(err))
		return fmt.Errorf("ошибка удаления заглушки BGM трека (%s, %s): %w", scenarioID, mood, err)
	}
	return nil
}
