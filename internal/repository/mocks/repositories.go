package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
	"github.com/titabash/gemini-hackathon-game-sub000/internal/repository"
)

// Mock ScenarioRepository
type ScenarioRepository struct {
	mock.Mock
}

func (m *ScenarioRepository) GetByID(ctx context.Context, querier repository.DBTX, id uuid.UUID) (*models.Scenario, error) {
	args := m.Called(ctx, querier, id)
	s, _ := args.Get(0).(*models.Scenario)
	return s, args.Error(1)
}

// Mock SessionRepository
type SessionRepository struct {
	mock.Mock
}

func (m *SessionRepository) GetByID(ctx context.Context, querier repository.DBTX, id uuid.UUID) (*models.Session, error) {
	args := m.Called(ctx, querier, id)
	s, _ := args.Get(0).(*models.Session)
	return s, args.Error(1)
}
func (m *SessionRepository) IncrementTurn(ctx context.Context, querier repository.DBTX, sessionID uuid.UUID) (int, error) {
	args := m.Called(ctx, querier, sessionID)
	return args.Int(0), args.Error(1)
}
func (m *SessionRepository) UpdateCurrentState(ctx context.Context, querier repository.DBTX, sessionID uuid.UUID, state map[string]any) error {
	args := m.Called(ctx, querier, sessionID, state)
	return args.Error(0)
}
func (m *SessionRepository) ApplySessionEnd(ctx context.Context, querier repository.DBTX, sessionID uuid.UUID, end models.SessionEnd) error {
	args := m.Called(ctx, querier, sessionID, end)
	return args.Error(0)
}

// Mock PlayerCharacterRepository
type PlayerCharacterRepository struct {
	mock.Mock
}

func (m *PlayerCharacterRepository) GetBySessionID(ctx context.Context, querier repository.DBTX, sessionID uuid.UUID) (*models.PlayerCharacter, error) {
	args := m.Called(ctx, querier, sessionID)
	pc, _ := args.Get(0).(*models.PlayerCharacter)
	return pc, args.Error(1)
}
func (m *PlayerCharacterRepository) UpdateStats(ctx context.Context, querier repository.DBTX, id uuid.UUID, stats map[string]float64) error {
	args := m.Called(ctx, querier, id, stats)
	return args.Error(0)
}
func (m *PlayerCharacterRepository) UpdateStatusEffects(ctx context.Context, querier repository.DBTX, id uuid.UUID, effects []string) error {
	args := m.Called(ctx, querier, id, effects)
	return args.Error(0)
}
func (m *PlayerCharacterRepository) UpdateLocation(ctx context.Context, querier repository.DBTX, id uuid.UUID, x, y int) error {
	args := m.Called(ctx, querier, id, x, y)
	return args.Error(0)
}

// Mock NpcRepository
type NpcRepository struct {
	mock.Mock
}

func (m *NpcRepository) ListByScenarioID(ctx context.Context, querier repository.DBTX, scenarioID uuid.UUID) ([]*models.NPC, error) {
	args := m.Called(ctx, querier, scenarioID)
	npcs, _ := args.Get(0).([]*models.NPC)
	return npcs, args.Error(1)
}
func (m *NpcRepository) ListActiveBySessionID(ctx context.Context, querier repository.DBTX, sessionID uuid.UUID) ([]*models.NPC, error) {
	args := m.Called(ctx, querier, sessionID)
	npcs, _ := args.Get(0).([]*models.NPC)
	return npcs, args.Error(1)
}
func (m *NpcRepository) GetBySessionAndName(ctx context.Context, querier repository.DBTX, sessionID uuid.UUID, name string) (*models.NPC, error) {
	args := m.Called(ctx, querier, sessionID, name)
	npc, _ := args.Get(0).(*models.NPC)
	return npc, args.Error(1)
}
func (m *NpcRepository) Create(ctx context.Context, querier repository.DBTX, npc *models.NPC) error {
	args := m.Called(ctx, querier, npc)
	return args.Error(0)
}
func (m *NpcRepository) UpdateState(ctx context.Context, querier repository.DBTX, id uuid.UUID, state map[string]any) error {
	args := m.Called(ctx, querier, id, state)
	return args.Error(0)
}
func (m *NpcRepository) UpdateLocation(ctx context.Context, querier repository.DBTX, id uuid.UUID, x, y int) error {
	args := m.Called(ctx, querier, id, x, y)
	return args.Error(0)
}
func (m *NpcRepository) UpdateImagePath(ctx context.Context, querier repository.DBTX, id uuid.UUID, path string) error {
	args := m.Called(ctx, querier, id, path)
	return args.Error(0)
}
func (m *NpcRepository) UpdateEmotionImage(ctx context.Context, querier repository.DBTX, id uuid.UUID, emotion, path string) error {
	args := m.Called(ctx, querier, id, emotion, path)
	return args.Error(0)
}

// Mock NpcRelationshipRepository
type NpcRelationshipRepository struct {
	mock.Mock
}

func (m *NpcRelationshipRepository) GetByNpcID(ctx context.Context, querier repository.DBTX, npcID uuid.UUID) (*models.NpcRelationship, error) {
	args := m.Called(ctx, querier, npcID)
	rel, _ := args.Get(0).(*models.NpcRelationship)
	return rel, args.Error(1)
}
func (m *NpcRelationshipRepository) Create(ctx context.Context, querier repository.DBTX, rel *models.NpcRelationship) error {
	args := m.Called(ctx, querier, rel)
	return args.Error(0)
}
func (m *NpcRelationshipRepository) ApplyDeltas(ctx context.Context, querier repository.DBTX, npcID uuid.UUID, affinity, trust, fear, debt int) error {
	args := m.Called(ctx, querier, npcID, affinity, trust, fear, debt)
	return args.Error(0)
}

// Mock TurnRepository
type TurnRepository struct {
	mock.Mock
}

func (m *TurnRepository) Create(ctx context.Context, querier repository.DBTX, turn *models.Turn) error {
	args := m.Called(ctx, querier, turn)
	return args.Error(0)
}
func (m *TurnRepository) ListRecent(ctx context.Context, querier repository.DBTX, sessionID uuid.UUID, limit int) ([]*models.Turn, error) {
	args := m.Called(ctx, querier, sessionID, limit)
	turns, _ := args.Get(0).([]*models.Turn)
	return turns, args.Error(1)
}
func (m *TurnRepository) GetLatest(ctx context.Context, querier repository.DBTX, sessionID uuid.UUID) (*models.Turn, error) {
	args := m.Called(ctx, querier, sessionID)
	turn, _ := args.Get(0).(*models.Turn)
	return turn, args.Error(1)
}

// Mock ContextSummaryRepository
type ContextSummaryRepository struct {
	mock.Mock
}

func (m *ContextSummaryRepository) GetBySessionID(ctx context.Context, querier repository.DBTX, sessionID uuid.UUID) (*models.ContextSummary, error) {
	args := m.Called(ctx, querier, sessionID)
	summary, _ := args.Get(0).(*models.ContextSummary)
	return summary, args.Error(1)
}
func (m *ContextSummaryRepository) Upsert(ctx context.Context, querier repository.DBTX, summary *models.ContextSummary) error {
	args := m.Called(ctx, querier, summary)
	return args.Error(0)
}

// Mock ObjectiveRepository
type ObjectiveRepository struct {
	mock.Mock
}

func (m *ObjectiveRepository) ListBySessionID(ctx context.Context, querier repository.DBTX, sessionID uuid.UUID) ([]*models.Objective, error) {
	args := m.Called(ctx, querier, sessionID)
	objectives, _ := args.Get(0).([]*models.Objective)
	return objectives, args.Error(1)
}
func (m *ObjectiveRepository) GetBySessionAndTitle(ctx context.Context, querier repository.DBTX, sessionID uuid.UUID, title string) (*models.Objective, error) {
	args := m.Called(ctx, querier, sessionID, title)
	objective, _ := args.Get(0).(*models.Objective)
	return objective, args.Error(1)
}
func (m *ObjectiveRepository) Create(ctx context.Context, querier repository.DBTX, objective *models.Objective) error {
	args := m.Called(ctx, querier, objective)
	return args.Error(0)
}
func (m *ObjectiveRepository) UpdateStatus(ctx context.Context, querier repository.DBTX, id uuid.UUID, status models.ObjectiveStatus, description *string) error {
	args := m.Called(ctx, querier, id, status, description)
	return args.Error(0)
}

// Mock ItemRepository
type ItemRepository struct {
	mock.Mock
}

func (m *ItemRepository) ListBySessionID(ctx context.Context, querier repository.DBTX, sessionID uuid.UUID) ([]*models.Item, error) {
	args := m.Called(ctx, querier, sessionID)
	items, _ := args.Get(0).([]*models.Item)
	return items, args.Error(1)
}
func (m *ItemRepository) GetBySessionAndName(ctx context.Context, querier repository.DBTX, sessionID uuid.UUID, name string) (*models.Item, error) {
	args := m.Called(ctx, querier, sessionID, name)
	item, _ := args.Get(0).(*models.Item)
	return item, args.Error(1)
}
func (m *ItemRepository) Create(ctx context.Context, querier repository.DBTX, item *models.Item) error {
	args := m.Called(ctx, querier, item)
	return args.Error(0)
}
func (m *ItemRepository) Update(ctx context.Context, querier repository.DBTX, id uuid.UUID, quantity int, isEquipped bool) error {
	args := m.Called(ctx, querier, id, quantity, isEquipped)
	return args.Error(0)
}
func (m *ItemRepository) DeleteBySessionAndName(ctx context.Context, querier repository.DBTX, sessionID uuid.UUID, name string) error {
	args := m.Called(ctx, querier, sessionID, name)
	return args.Error(0)
}

// Mock SceneBackgroundRepository
type SceneBackgroundRepository struct {
	mock.Mock
}

func (m *SceneBackgroundRepository) GetByID(ctx context.Context, querier repository.DBTX, id uuid.UUID) (*models.SceneBackground, error) {
	args := m.Called(ctx, querier, id)
	bg, _ := args.Get(0).(*models.SceneBackground)
	return bg, args.Error(1)
}
func (m *SceneBackgroundRepository) ListByScenarioID(ctx context.Context, querier repository.DBTX, scenarioID uuid.UUID) ([]*models.SceneBackground, error) {
	args := m.Called(ctx, querier, scenarioID)
	bgs, _ := args.Get(0).([]*models.SceneBackground)
	return bgs, args.Error(1)
}
func (m *SceneBackgroundRepository) ListBySessionID(ctx context.Context, querier repository.DBTX, sessionID uuid.UUID) ([]*models.SceneBackground, error) {
	args := m.Called(ctx, querier, sessionID)
	bgs, _ := args.Get(0).([]*models.SceneBackground)
	return bgs, args.Error(1)
}
func (m *SceneBackgroundRepository) FindBySessionAndDescription(ctx context.Context, querier repository.DBTX, sessionID uuid.UUID, description string) (*models.SceneBackground, error) {
	args := m.Called(ctx, querier, sessionID, description)
	bg, _ := args.Get(0).(*models.SceneBackground)
	return bg, args.Error(1)
}
func (m *SceneBackgroundRepository) FindByScenarioAndDescription(ctx context.Context, querier repository.DBTX, scenarioID uuid.UUID, description string) (*models.SceneBackground, error) {
	args := m.Called(ctx, querier, scenarioID, description)
	bg, _ := args.Get(0).(*models.SceneBackground)
	return bg, args.Error(1)
}
func (m *SceneBackgroundRepository) Create(ctx context.Context, querier repository.DBTX, background *models.SceneBackground) error {
	args := m.Called(ctx, querier, background)
	return args.Error(0)
}

// Mock BgmRepository
type BgmRepository struct {
	mock.Mock
}

func (m *BgmRepository) Find(ctx context.Context, querier repository.DBTX, scenarioID uuid.UUID, mood string) (*models.BgmTrack, error) {
	args := m.Called(ctx, querier, scenarioID, mood)
	track, _ := args.Get(0).(*models.BgmTrack)
	return track, args.Error(1)
}
func (m *BgmRepository) InsertPending(ctx context.Context, querier repository.DBTX, scenarioID uuid.UUID, mood string) error {
	args := m.Called(ctx, querier, scenarioID, mood)
	return args.Error(0)
}
func (m *BgmRepository) CompletePending(ctx context.Context, querier repository.DBTX, scenarioID uuid.UUID, mood, audioPath, promptUsed string, durationSeconds float64) error {
	args := m.Called(ctx, querier, scenarioID, mood, audioPath, promptUsed, durationSeconds)
	return args.Error(0)
}
func (m *BgmRepository) DeletePending(ctx context.Context, querier repository.DBTX, scenarioID uuid.UUID, mood string) error {
	args := m.Called(ctx, querier, scenarioID, mood)
	return args.Error(0)
}

// Mock TurnLockRepository
type TurnLockRepository struct {
	mock.Mock
}

func (m *TurnLockRepository) Acquire(ctx context.Context, sessionID uuid.UUID, ttl time.Duration) (string, error) {
	args := m.Called(ctx, sessionID, ttl)
	return args.String(0), args.Error(1)
}
func (m *TurnLockRepository) Release(ctx context.Context, sessionID uuid.UUID, token string) error {
	args := m.Called(ctx, sessionID, token)
	return args.Error(0)
}
