package service

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
)

// ActionResolutionService генерирует бросок удачи на каждый ход и строит
// обязательный блок правил разрешения действий для промпта GM. Механика
// описывается только LLM: бэкенд исход не форсирует, а игрок никогда не
// должен видеть числа или кости в повествовании.
type ActionResolutionService struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewActionResolutionService создает сервис с указанным источником
// случайности. Фиксированный seed используется в тестах.
func NewActionResolutionService(rng *rand.Rand) *ActionResolutionService {
	return &ActionResolutionService{rng: rng}
}

// GenerateLuckRoll возвращает равномерное целое в [1, 100].
func (s *ActionResolutionService) GenerateLuckRoll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(100) + 1
}

// BuildResolutionContext строит блок разрешения действий для промпта.
// Резервные статы пулов (hp, san и их максимумы) исключаются из кандидатов.
func (s *ActionResolutionService) BuildResolutionContext(playerStats map[string]float64, luckRoll int) string {
	candidates := make(map[string]float64, len(playerStats))
	for name, val := range playerStats {
		if models.ReservedPoolStats[name] {
			continue
		}
		candidates[name] = val
	}
	statsJSON, err := json.Marshal(candidates)
	if err != nil {
		statsJSON = []byte("{}")
	}

	return fmt.Sprintf(
		"# Action Resolution\n"+
			"Luck Roll this turn: %d (range 1-100)\n"+
			"Candidate Stats: %s\n"+
			"When the player attempts an action with uncertain outcome, resolve it with:\n"+
			"luck_roll <= stat * modifier -> SUCCESS, otherwise FAILURE.\n"+
			"Difficulty modifiers: easy=1.0, normal=0.8, hard=0.5, very_hard=0.25.\n"+
			"Pick the most relevant stat for the attempted action.\n"+
			"On FAILURE: narrate a meaningful setback and reflect a concrete penalty "+
			"in state_changes (HP loss, status effect, lost item, worsened relationship).\n"+
			"Actions that ALWAYS require a check: combat, persuasion, stealth, magic, "+
			"acrobatics, lockpicking, crafting, investigation, and any opposed or risky action.\n"+
			"Actions that NEVER require a check: walking, looking around, using normal "+
			"items, opening unlocked doors.\n"+
			"ABSOLUTE RULE: never mention dice, rolls, numbers, or mechanics in the narration.",
		luckRoll, statsJSON,
	)
}
