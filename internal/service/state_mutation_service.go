package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
	"github.com/titabash/gemini-hackathon-game-sub000/internal/repository"
)

// StateMutationService применяет StateChanges решения ГМ к базе.
// Apply выполняется в рамках одной транзакции вызывающей стороны:
// частичный результат никогда не виден.
type StateMutationService struct {
	sessions   repository.SessionRepository
	players    repository.PlayerCharacterRepository
	items      repository.ItemRepository
	npcs       repository.NpcRepository
	relations  repository.NpcRelationshipRepository
	objectives repository.ObjectiveRepository
	logger     *zap.Logger
}

func NewStateMutationService(
	sessions repository.SessionRepository,
	players repository.PlayerCharacterRepository,
	items repository.ItemRepository,
	npcs repository.NpcRepository,
	relations repository.NpcRelationshipRepository,
	objectives repository.ObjectiveRepository,
	logger *zap.Logger,
) *StateMutationService {
	return &StateMutationService{
		sessions:   sessions,
		players:    players,
		items:      items,
		npcs:       npcs,
		relations:  relations,
		objectives: objectives,
		logger:     logger.Named("StateMutationService"),
	}
}

// Apply применяет все мутации в фиксированном порядке: статы, предметы,
// локация, отношения, состояния NPC, локации NPC, цели, статус-эффекты,
// флаги, завершение сессии. Ошибка любой подмутации откатывает транзакцию
// целиком на стороне вызывающего.
func (s *StateMutationService) Apply(ctx context.Context, tx repository.DBTX, sessionID uuid.UUID, changes *models.StateChanges) error {
	if changes.IsEmpty() {
		return nil
	}

	if err := s.applyStats(ctx, tx, sessionID, changes.StatsDelta); err != nil {
		return err
	}
	if err := s.applyItems(ctx, tx, sessionID, changes); err != nil {
		return err
	}
	if err := s.applyLocation(ctx, tx, sessionID, changes.LocationChange); err != nil {
		return err
	}
	if err := s.applyRelationships(ctx, tx, sessionID, changes.RelationshipChanges); err != nil {
		return err
	}
	if err := s.applyNpcStates(ctx, tx, sessionID, changes.NpcStateUpdates); err != nil {
		return err
	}
	if err := s.applyNpcLocations(ctx, tx, sessionID, changes.NpcLocationChanges); err != nil {
		return err
	}
	if err := s.applyObjectives(ctx, tx, sessionID, changes.ObjectiveUpdates); err != nil {
		return err
	}
	if err := s.applyStatusEffects(ctx, tx, sessionID, changes.StatusEffectAdds, changes.StatusEffectRemoves); err != nil {
		return err
	}
	if err := s.applyFlags(ctx, tx, sessionID, changes.FlagChanges); err != nil {
		return err
	}
	if changes.SessionEnd != nil {
		if err := s.sessions.ApplySessionEnd(ctx, tx, sessionID, *changes.SessionEnd); err != nil {
			return fmt.Errorf("ошибка завершения сессии %s: %w", sessionID, err)
		}
	}
	return nil
}

// ApplySessionEnd применяет только статус и поля концовки. Используется
// для концовок, вызванных срабатыванием условий.
func (s *StateMutationService) ApplySessionEnd(ctx context.Context, tx repository.DBTX, sessionID uuid.UUID, end models.SessionEnd) error {
	return s.sessions.ApplySessionEnd(ctx, tx, sessionID, end)
}

func (s *StateMutationService) applyStats(ctx context.Context, tx repository.DBTX, sessionID uuid.UUID, deltas map[string]float64) error {
	if len(deltas) == 0 {
		return nil
	}
	pc, err := s.players.GetBySessionID(ctx, tx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}
	stats := make(map[string]float64, len(pc.Stats))
	for k, v := range pc.Stats {
		stats[k] = v
	}
	// Отсутствующий стат считается нулевым до применения дельты.
	for k, d := range deltas {
		stats[k] += d
	}
	return s.players.UpdateStats(ctx, tx, pc.ID, stats)
}

func (s *StateMutationService) applyItems(ctx context.Context, tx repository.DBTX, sessionID uuid.UUID, changes *models.StateChanges) error {
	for _, item := range changes.NewItems {
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		if err := s.items.Create(ctx, tx, &models.Item{
			SessionID:   sessionID,
			Name:        item.Name,
			Description: item.Description,
			ItemType:    item.ItemType,
			Quantity:    quantity,
		}); err != nil {
			return err
		}
	}
	for _, name := range changes.RemovedItems {
		if err := s.items.DeleteBySessionAndName(ctx, tx, sessionID, name); err != nil {
			return err
		}
	}
	for _, upd := range changes.ItemUpdates {
		item, err := s.items.GetBySessionAndName(ctx, tx, sessionID, upd.Name)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				s.logger.Debug("Item update skipped, item not found", zap.String("name", upd.Name))
				continue
			}
			return err
		}
		quantity := item.Quantity
		if upd.QuantityDelta != nil {
			quantity += *upd.QuantityDelta
			if quantity < 0 {
				quantity = 0
			}
		}
		isEquipped := item.IsEquipped
		if upd.IsEquipped != nil {
			isEquipped = *upd.IsEquipped
		}
		if err := s.items.Update(ctx, tx, item.ID, quantity, isEquipped); err != nil {
			return err
		}
	}
	return nil
}

func (s *StateMutationService) applyLocation(ctx context.Context, tx repository.DBTX, sessionID uuid.UUID, change *models.LocationChange) error {
	if change == nil {
		return nil
	}
	pc, err := s.players.GetBySessionID(ctx, tx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := s.players.UpdateLocation(ctx, tx, pc.ID, change.X, change.Y); err != nil {
		return err
	}
	// Имя локации дублируется в current_state ради промпта и клиента.
	sess, err := s.sessions.GetByID(ctx, tx, sessionID)
	if err != nil {
		return err
	}
	state := cloneState(sess.CurrentState)
	state["location"] = change.LocationName
	return s.sessions.UpdateCurrentState(ctx, tx, sessionID, state)
}

func (s *StateMutationService) applyRelationships(ctx context.Context, tx repository.DBTX, sessionID uuid.UUID, changes []models.RelationshipChange) error {
	for _, rc := range changes {
		npc, err := s.npcs.GetBySessionAndName(ctx, tx, sessionID, rc.NpcName)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				// Выдуманный моделью NPC - no-op, не ошибка.
				s.logger.Debug("Relationship change skipped, NPC not found", zap.String("npc", rc.NpcName))
				continue
			}
			return err
		}
		if err := s.relations.ApplyDeltas(ctx, tx, npc.ID, rc.AffinityDelta, rc.TrustDelta, rc.FearDelta, rc.DebtDelta); err != nil {
			return err
		}
	}
	return nil
}

func (s *StateMutationService) applyNpcStates(ctx context.Context, tx repository.DBTX, sessionID uuid.UUID, updates []models.NpcStateUpdate) error {
	for _, upd := range updates {
		npc, err := s.npcs.GetBySessionAndName(ctx, tx, sessionID, upd.NpcName)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				s.logger.Debug("NPC state update skipped, NPC not found", zap.String("npc", upd.NpcName))
				continue
			}
			return err
		}
		state := cloneState(npc.State)
		for k, v := range upd.State {
			state[k] = v
		}
		if err := s.npcs.UpdateState(ctx, tx, npc.ID, state); err != nil {
			return err
		}
	}
	return nil
}

func (s *StateMutationService) applyNpcLocations(ctx context.Context, tx repository.DBTX, sessionID uuid.UUID, changes []models.NpcLocationChange) error {
	for _, lc := range changes {
		npc, err := s.npcs.GetBySessionAndName(ctx, tx, sessionID, lc.NpcName)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				s.logger.Debug("NPC location change skipped, NPC not found", zap.String("npc", lc.NpcName))
				continue
			}
			return err
		}
		if err := s.npcs.UpdateLocation(ctx, tx, npc.ID, lc.X, lc.Y); err != nil {
			return err
		}
	}
	return nil
}

func (s *StateMutationService) applyObjectives(ctx context.Context, tx repository.DBTX, sessionID uuid.UUID, updates []models.ObjectiveUpdate) error {
	for _, ou := range updates {
		existing, err := s.objectives.GetBySessionAndTitle(ctx, tx, sessionID, ou.Title)
		switch {
		case err == nil:
			if err := s.objectives.UpdateStatus(ctx, tx, existing.ID, ou.Status, ou.Description); err != nil {
				return err
			}
		case errors.Is(err, models.ErrNotFound):
			if ou.Status != models.ObjectiveStatusActive {
				continue
			}
			if err := s.objectives.Create(ctx, tx, &models.Objective{
				SessionID:   sessionID,
				Title:       ou.Title,
				Description: ou.Description,
				Status:      models.ObjectiveStatusActive,
			}); err != nil {
				return err
			}
		default:
			return err
		}
	}
	return nil
}

func (s *StateMutationService) applyStatusEffects(ctx context.Context, tx repository.DBTX, sessionID uuid.UUID, adds, removes []string) error {
	if len(adds) == 0 && len(removes) == 0 {
		return nil
	}
	pc, err := s.players.GetBySessionID(ctx, tx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}

	removed := make(map[string]bool, len(removes))
	for _, r := range removes {
		removed[r] = true
	}
	seen := make(map[string]bool)
	effects := make([]string, 0, len(pc.StatusEffects)+len(adds))
	// Порядок вставки сохраняется, дубликаты схлопываются.
	for _, e := range append(append([]string{}, pc.StatusEffects...), adds...) {
		if removed[e] || seen[e] {
			continue
		}
		seen[e] = true
		effects = append(effects, e)
	}
	return s.players.UpdateStatusEffects(ctx, tx, pc.ID, effects)
}

func (s *StateMutationService) applyFlags(ctx context.Context, tx repository.DBTX, sessionID uuid.UUID, changes []models.FlagChange) error {
	if len(changes) == 0 {
		return nil
	}
	sess, err := s.sessions.GetByID(ctx, tx, sessionID)
	if err != nil {
		return err
	}
	state := cloneState(sess.CurrentState)
	flags, _ := state["flags"].(map[string]any)
	if flags == nil {
		flags = map[string]any{}
	}
	for _, fc := range changes {
		if fc.Value {
			flags[fc.FlagID] = true
		} else {
			// value=false снимает флаг целиком, а не пишет false.
			delete(flags, fc.FlagID)
		}
	}
	state["flags"] = flags
	return s.sessions.UpdateCurrentState(ctx, tx, sessionID, state)
}

func cloneState(state map[string]any) map[string]any {
	clone := make(map[string]any, len(state)+1)
	for k, v := range state {
		clone[k] = v
	}
	return clone
}
