package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
)

// DBTX abstracts over *pgxpool.Pool and pgx.Tx so repositories run both
// standalone and inside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ScenarioRepository reads immutable scenario templates.
type ScenarioRepository interface {
	GetByID(ctx context.Context, querier DBTX, id uuid.UUID) (*models.Scenario, error)
}

// SessionRepository manages playthrough rows.
type SessionRepository interface {
	GetByID(ctx context.Context, querier DBTX, id uuid.UUID) (*models.Session, error)

	// IncrementTurn atomically advances the turn counter and returns the
	// new value. This is the only legitimate way to advance it.
	IncrementTurn(ctx context.Context, querier DBTX, sessionID uuid.UUID) (int, error)

	UpdateCurrentState(ctx context.Context, querier DBTX, sessionID uuid.UUID, state map[string]any) error

	// ApplySessionEnd marks the session completed with ending details.
	ApplySessionEnd(ctx context.Context, querier DBTX, sessionID uuid.UUID, end models.SessionEnd) error
}

// PlayerCharacterRepository manages the single PC of a session.
type PlayerCharacterRepository interface {
	GetBySessionID(ctx context.Context, querier DBTX, sessionID uuid.UUID) (*models.PlayerCharacter, error)
	UpdateStats(ctx context.Context, querier DBTX, id uuid.UUID, stats map[string]float64) error
	UpdateStatusEffects(ctx context.Context, querier DBTX, id uuid.UUID, effects []string) error
	UpdateLocation(ctx context.Context, querier DBTX, id uuid.UUID, x, y int) error
}

// NpcRepository manages scenario-scope and session-scope NPCs.
type NpcRepository interface {
	ListByScenarioID(ctx context.Context, querier DBTX, scenarioID uuid.UUID) ([]*models.NPC, error)
	ListActiveBySessionID(ctx context.Context, querier DBTX, sessionID uuid.UUID) ([]*models.NPC, error)
	GetBySessionAndName(ctx context.Context, querier DBTX, sessionID uuid.UUID, name string) (*models.NPC, error)
	Create(ctx context.Context, querier DBTX, npc *models.NPC) error
	UpdateState(ctx context.Context, querier DBTX, id uuid.UUID, state map[string]any) error
	UpdateLocation(ctx context.Context, querier DBTX, id uuid.UUID, x, y int) error
	UpdateImagePath(ctx context.Context, querier DBTX, id uuid.UUID, path string) error

	// UpdateEmotionImage merges one emotion key into the portrait map.
	// The merge happens inside the UPDATE so concurrent writers to the
	// same NPC cannot lose each other's keys.
	UpdateEmotionImage(ctx context.Context, querier DBTX, id uuid.UUID, emotion, path string) error
}

// NpcRelationshipRepository manages the 1:1 relationship row per session NPC.
type NpcRelationshipRepository interface {
	GetByNpcID(ctx context.Context, querier DBTX, npcID uuid.UUID) (*models.NpcRelationship, error)
	Create(ctx context.Context, querier DBTX, rel *models.NpcRelationship) error
	ApplyDeltas(ctx context.Context, querier DBTX, npcID uuid.UUID, affinity, trust, fear, debt int) error
}

// TurnRepository manages the per-session turn log.
type TurnRepository interface {
	Create(ctx context.Context, querier DBTX, turn *models.Turn) error
	ListRecent(ctx context.Context, querier DBTX, sessionID uuid.UUID, limit int) ([]*models.Turn, error)
	GetLatest(ctx context.Context, querier DBTX, sessionID uuid.UUID) (*models.Turn, error)
}

// ContextSummaryRepository manages the compressed long-term memory row.
type ContextSummaryRepository interface {
	GetBySessionID(ctx context.Context, querier DBTX, sessionID uuid.UUID) (*models.ContextSummary, error)
	Upsert(ctx context.Context, querier DBTX, summary *models.ContextSummary) error
}

// ObjectiveRepository manages session objectives.
type ObjectiveRepository interface {
	ListBySessionID(ctx context.Context, querier DBTX, sessionID uuid.UUID) ([]*models.Objective, error)
	GetBySessionAndTitle(ctx context.Context, querier DBTX, sessionID uuid.UUID, title string) (*models.Objective, error)
	Create(ctx context.Context, querier DBTX, objective *models.Objective) error
	UpdateStatus(ctx context.Context, querier DBTX, id uuid.UUID, status models.ObjectiveStatus, description *string) error
}

// ItemRepository manages session inventory.
type ItemRepository interface {
	ListBySessionID(ctx context.Context, querier DBTX, sessionID uuid.UUID) ([]*models.Item, error)
	GetBySessionAndName(ctx context.Context, querier DBTX, sessionID uuid.UUID, name string) (*models.Item, error)
	Create(ctx context.Context, querier DBTX, item *models.Item) error
	Update(ctx context.Context, querier DBTX, id uuid.UUID, quantity int, isEquipped bool) error
	DeleteBySessionAndName(ctx context.Context, querier DBTX, sessionID uuid.UUID, name string) error
}

// SceneBackgroundRepository manages seed and generated background art.
type SceneBackgroundRepository interface {
	GetByID(ctx context.Context, querier DBTX, id uuid.UUID) (*models.SceneBackground, error)
	ListByScenarioID(ctx context.Context, querier DBTX, scenarioID uuid.UUID) ([]*models.SceneBackground, error)
	ListBySessionID(ctx context.Context, querier DBTX, sessionID uuid.UUID) ([]*models.SceneBackground, error)
	FindBySessionAndDescription(ctx context.Context, querier DBTX, sessionID uuid.UUID, description string) (*models.SceneBackground, error)
	FindByScenarioAndDescription(ctx context.Context, querier DBTX, scenarioID uuid.UUID, description string) (*models.SceneBackground, error)
	Create(ctx context.Context, querier DBTX, background *models.SceneBackground) error
}

// BgmRepository manages the mood-keyed BGM cache including the durable
// single-flight slot.
type BgmRepository interface {
	Find(ctx context.Context, querier DBTX, scenarioID uuid.UUID, mood string) (*models.BgmTrack, error)

	// InsertPending acquires the durable generation slot. Returns
	// models.ErrBgmGenerationInFlight when the UNIQUE(scenario_id, mood)
	// constraint reports the slot as taken.
	InsertPending(ctx context.Context, querier DBTX, scenarioID uuid.UUID, mood string) error

	CompletePending(ctx context.Context, querier DBTX, scenarioID uuid.UUID, mood, audioPath, promptUsed string, durationSeconds float64) error
	DeletePending(ctx context.Context, querier DBTX, scenarioID uuid.UUID, mood string) error
}

// TurnLockRepository serializes turns per session across processes.
// Best-effort: a lost lock falls back to the turns table's unique
// (session_id, turn_number) constraint.
type TurnLockRepository interface {
	// Acquire возвращает токен владельца либо пустую строку, если замок
	// уже удерживается. Release с чужим токеном замок не снимает.
	Acquire(ctx context.Context, sessionID uuid.UUID, ttl time.Duration) (string, error)
	Release(ctx context.Context, sessionID uuid.UUID, token string) error
}
