package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
	"github.com/titabash/gemini-hackathon-game-sub000/internal/repository"
)

// NpcCloneService разворачивает шаблонных NPC сценария в экземпляры
// сессии на первом ходу. Повторный вызов - no-op.
type NpcCloneService struct {
	npcs      repository.NpcRepository
	relations repository.NpcRelationshipRepository
	logger    *zap.Logger
}

func NewNpcCloneService(npcs repository.NpcRepository, relations repository.NpcRelationshipRepository, logger *zap.Logger) *NpcCloneService {
	return &NpcCloneService{
		npcs:      npcs,
		relations: relations,
		logger:    logger.Named("NpcCloneService"),
	}
}

// CloneForSession копирует всех NPC сценария в область сессии со свежими
// идентификаторами и заводит каждому запись отношения. Начальные значения
// отношений берутся из initial_state.npcs[].relationship сценария.
func (s *NpcCloneService) CloneForSession(ctx context.Context, tx repository.DBTX, scenario *models.Scenario, sessionID uuid.UUID) error {
	existing, err := s.npcs.ListActiveBySessionID(ctx, tx, sessionID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		s.logger.Debug("Session NPCs already present, skipping clone",
			zap.String("sessionID", sessionID.String()),
			zap.Int("count", len(existing)),
		)
		return nil
	}

	templates, err := s.npcs.ListByScenarioID(ctx, tx, scenario.ID)
	if err != nil {
		return err
	}
	seeds := relationshipSeeds(scenario.InitialState)

	for _, tpl := range templates {
		clone := &models.NPC{
			ID:            uuid.New(),
			SessionID:     &sessionID,
			Name:          tpl.Name,
			Profile:       tpl.Profile,
			Goals:         tpl.Goals,
			State:         tpl.State,
			LocationX:     tpl.LocationX,
			LocationY:     tpl.LocationY,
			ImagePath:     tpl.ImagePath,
			EmotionImages: tpl.EmotionImages,
			IsActive:      true,
		}
		if err := s.npcs.Create(ctx, tx, clone); err != nil {
			return err
		}

		rel := &models.NpcRelationship{
			NpcID: clone.ID,
			Flags: map[string]any{},
		}
		if seed, ok := seeds[tpl.Name]; ok {
			rel.Affinity = intFromAny(seed["affinity"])
			rel.Trust = intFromAny(seed["trust"])
			rel.Fear = intFromAny(seed["fear"])
			rel.Debt = intFromAny(seed["debt"])
		}
		if err := s.relations.Create(ctx, tx, rel); err != nil {
			return err
		}
	}

	s.logger.Info("Scenario NPCs cloned into session",
		zap.String("sessionID", sessionID.String()),
		zap.Int("count", len(templates)),
	)
	return nil
}

// relationshipSeeds извлекает начальные отношения из initial_state:
// {"npcs": [{"name": ..., "relationship": {"affinity": ...}}]}.
func relationshipSeeds(initial map[string]any) map[string]map[string]any {
	seeds := map[string]map[string]any{}
	entries, ok := initial["npcs"].([]any)
	if !ok {
		return seeds
	}
	for _, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := entry["name"].(string)
		rel, ok := entry["relationship"].(map[string]any)
		if name == "" || !ok {
			continue
		}
		seeds[name] = rel
	}
	return seeds
}

func intFromAny(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
