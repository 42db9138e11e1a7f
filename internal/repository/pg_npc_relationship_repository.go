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
	npcRelationshipFields = `id, npc_id, affinity, trust, fear, debt, flags, created_at, updated_at`

	getRelationshipByNpcQuery = `
        SELECT ` + npcRelationshipFields + `
        FROM npc_relationships
        WHERE npc_id = $1
    `
	insertRelationshipQuery = `
        INSERT INTO npc_relationships
            (id, npc_id, affinity, trust, fear, debt, flags, created_at, updated_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	applyRelationshipDeltasQuery = `
        UPDATE npc_relationships
        SET affinity = affinity + $2,
            trust = trust + $3,
            fear = fear + $4,
            debt = debt + $5,
            updated_at = NOW()
        WHERE npc_id = $1
    `
)

// Compile-time check to ensure pgNpcRelationshipRepository implements the interface
var _ NpcRelationshipRepository = (*pgNpcRelationshipRepository)(nil)

type pgNpcRelationshipRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgNpcRelationshipRepository создает новый репозиторий отношений NPC.
func NewPgNpcRelationshipRepository(db DBTX, logger *zap.Logger) NpcRelationshipRepository {
	return &pgNpcRelationshipRepository{
		db:     db,
		logger: logger.Named("PgNpcRelationshipRepo"),
	}
}

func (r *pgNpcRelationshipRepository) GetByNpcID(ctx context.Context, querier DBTX, npcID uuid.UUID) (*models.NpcRelationship, error) {
	rel := &models.NpcRelationship{}
	err := querier.QueryRow(ctx, getRelationshipByNpcQuery, npcID).Scan(
		&rel.ID,
		&rel.NpcID,
		&rel.Affinity,
		&rel.Trust,
		&rel.Fear,
		&rel.Debt,
		&rel.Flags,
		&rel.CreatedAt,
		&rel.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get NPC relationship", zap.String("npcID", npcID.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения отношения NPC %s: %w", npcID, err)
	}
	return rel, nil
}

func (r *pgNpcRelationshipRepository) Create(ctx context.Context, querier DBTX, rel *models.NpcRelationship) error {
	now := time.Now().UTC()
	if rel.ID == uuid.Nil {
		rel.ID = uuid.New()
	}
	rel.CreatedAt = now
	rel.UpdatedAt = now
	if rel.Flags == nil {
		rel.Flags = map[string]any{}
	}

	_, err := querier.Exec(ctx, insertRelationshipQuery,
		rel.ID,
		rel.NpcID,
		rel.Affinity,
		rel.Trust,
		rel.Fear,
		rel.Debt,
		rel.Flags,
		rel.CreatedAt,
		rel.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to insert NPC relationship", zap.String("npcID", rel.NpcID.String()), zap.Error(err))
		return fmt.Errorf("ошибка создания отношения NPC %s: %w", rel.NpcID, err)
	}
	return nil
}

func (r *pgNpcRelationshipRepository) ApplyDeltas(ctx context.Context, querier DBTX, npcID uuid.UUID, affinity, trust, fear, debt int) error {
	cmdTag, err := querier.Exec(ctx, applyRelationshipDeltasQuery, npcID, affinity, trust, fear, debt)
	if err != nil {
		r.logger.Error("Failed to apply relationship deltas", zap.String("npcID", npcID.String()), zap.Error(err))
		return fmt.Errorf("ошибка применения дельт отношения NPC %s: %w", npcID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
