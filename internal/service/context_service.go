package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/clients"
	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
	"github.com/titabash/gemini-hackathon-game-sub000/internal/repository"
)

const (
	compressionInterval  = 5
	recentTurnsWindow    = 5
	compressionTurnLimit = 10
)

var defaultPlayer = models.PlayerSummary{
	Name:          "Adventurer",
	Stats:         map[string]float64{},
	StatusEffects: []string{},
}

// ContextService собирает трехслойный контекст игры: долгосрочная память
// (сжатые сводки), недавние ходы и текущее состояние. Он же строит промпт
// из неизменяемого зерна и дельты хода и сжимает накопленную историю.
type ContextService struct {
	sessions   repository.SessionRepository
	scenarios  repository.ScenarioRepository
	players    repository.PlayerCharacterRepository
	npcs       repository.NpcRepository
	relations  repository.NpcRelationshipRepository
	turns      repository.TurnRepository
	summaries  repository.ContextSummaryRepository
	objectives repository.ObjectiveRepository
	items      repository.ItemRepository
	bgs        repository.SceneBackgroundRepository
	llm        clients.LLMClient
	encoder    *tiktoken.Tiktoken
	logger     *zap.Logger
}

type ContextServiceDeps struct {
	Sessions   repository.SessionRepository
	Scenarios  repository.ScenarioRepository
	Players    repository.PlayerCharacterRepository
	Npcs       repository.NpcRepository
	Relations  repository.NpcRelationshipRepository
	Turns      repository.TurnRepository
	Summaries  repository.ContextSummaryRepository
	Objectives repository.ObjectiveRepository
	Items      repository.ItemRepository
	Backgrounds repository.SceneBackgroundRepository
	LLM        clients.LLMClient
}

func NewContextService(deps ContextServiceDeps, logger *zap.Logger) *ContextService {
	// Токенайзер нужен только для логирования размера промпта.
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warn("Tokenizer unavailable, prompt sizes will not be logged", zap.Error(err))
		encoder = nil
	}
	return &ContextService{
		sessions:   deps.Sessions,
		scenarios:  deps.Scenarios,
		players:    deps.Players,
		npcs:       deps.Npcs,
		relations:  deps.Relations,
		turns:      deps.Turns,
		summaries:  deps.Summaries,
		objectives: deps.Objectives,
		items:      deps.Items,
		bgs:        deps.Backgrounds,
		llm:        deps.LLM,
		encoder:    encoder,
		logger:     logger.Named("ContextService"),
	}
}

// BuildContext загружает все состояние игры и собирает GameContext.
func (s *ContextService) BuildContext(ctx context.Context, q repository.DBTX, sessionID uuid.UUID) (*models.GameContext, error) {
	sess, err := s.sessions.GetByID(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	scenario, err := s.scenarios.GetByID(ctx, q, sess.ScenarioID)
	if err != nil {
		return nil, err
	}

	gc := &models.GameContext{
		ScenarioTitle:     scenario.Title,
		ScenarioSetting:   scenario.Description,
		SystemPrompt:      scenario.SystemPrompt,
		WinConditions:     scenario.WinConditions,
		FailConditions:    scenario.FailConditions,
		PlotEssentials:    map[string]any{},
		ConfirmedFacts:    map[string]any{},
		Player:            defaultPlayer,
		CurrentTurnNumber: sess.CurrentTurnNumber,
		MaxTurns:          scenario.MaxTurns,
		CurrentState:      sess.CurrentState,
	}

	if summary, err := s.summaries.GetBySessionID(ctx, q, sessionID); err == nil {
		gc.PlotEssentials = summary.PlotEssentials
		gc.ShortTermSummary = summary.ShortTermSummary
		gc.ConfirmedFacts = summary.ConfirmedFacts
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	if pc, err := s.players.GetBySessionID(ctx, q, sessionID); err == nil {
		gc.Player = models.PlayerSummary{
			Name:          pc.Name,
			Stats:         pc.Stats,
			StatusEffects: pc.StatusEffects,
			LocationX:     pc.LocationX,
			LocationY:     pc.LocationY,
		}
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	if gc.ActiveNpcs, err = s.loadNpcs(ctx, q, sessionID); err != nil {
		return nil, err
	}
	if gc.RecentTurns, err = s.loadRecentTurns(ctx, q, sessionID); err != nil {
		return nil, err
	}
	if gc.ActiveObjectives, err = s.loadObjectives(ctx, q, sessionID); err != nil {
		return nil, err
	}
	if gc.PlayerItems, err = s.loadItems(ctx, q, sessionID); err != nil {
		return nil, err
	}
	if gc.AvailableBackgrounds, err = s.loadBackgrounds(ctx, q, scenario.ID, sessionID); err != nil {
		return nil, err
	}

	s.deriveContinuity(ctx, q, sessionID, gc)
	return gc, nil
}

// BuildPromptCacheSeed - неизменяемый блок промпта (сценарий, системный
// промпт, условия), пригодный для кэша префикса у провайдера.
func (s *ContextService) BuildPromptCacheSeed(gc *models.GameContext) string {
	return fmt.Sprintf(contextSeedTemplate,
		gc.ScenarioTitle,
		gc.ScenarioSetting,
		gc.SystemPrompt,
		mustJSON(gc.WinConditions),
		mustJSON(gc.FailConditions),
	)
}

// BuildPromptDelta - изменяемая часть промпта для текущего хода.
func (s *ContextService) BuildPromptDelta(gc *models.GameContext, inputType models.InputType, inputText string, extraSections []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, contextDeltaTemplate,
		mustJSON(gc.PlotEssentials),
		gc.ShortTermSummary,
		mustJSON(gc.ConfirmedFacts),
		formatRecentTurns(gc.RecentTurns),
		gc.Player.Name,
		mustJSON(gc.Player.Stats),
		strings.Join(gc.Player.StatusEffects, ", "),
		gc.Player.LocationX,
		gc.Player.LocationY,
		formatNpcs(gc.ActiveNpcs),
		formatObjectives(gc.ActiveObjectives),
		formatItems(gc.PlayerItems),
		gc.CurrentTurnNumber,
		mustJSON(gc.CurrentState),
	)

	if len(gc.AvailableBackgrounds) > 0 {
		b.WriteString("\n# Available Backgrounds\n")
		for _, bg := range gc.AvailableBackgrounds {
			fmt.Fprintf(&b, "- id=%s location=%q description=%q\n", bg.ID, bg.LocationName, bg.Description)
		}
	}
	if gc.PreviousBgmMood != nil {
		fmt.Fprintf(&b, "\n# Current BGM\nMood: %s (keep bgm_mood empty unless the tone changes)\n", *gc.PreviousBgmMood)
	}
	if gc.PreviousBackground != nil {
		fmt.Fprintf(&b, "\n# Current Scene Background\n%s\n", *gc.PreviousBackground)
	}
	for _, section := range extraSections {
		if section == "" {
			continue
		}
		b.WriteString("\n")
		b.WriteString(section)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\n# Player Input (%s)\n%s\n", inputType, inputText)
	return b.String()
}

// BuildPrompt - конкатенация зерна и дельты для провайдеров без кэша промпта.
func (s *ContextService) BuildPrompt(gc *models.GameContext, inputType models.InputType, inputText string, extraSections []string) string {
	prompt := s.BuildPromptCacheSeed(gc) + "\n" + s.BuildPromptDelta(gc, inputType, inputText, extraSections)
	if s.encoder != nil {
		s.logger.Debug("Prompt assembled",
			zap.Int("turn", gc.CurrentTurnNumber),
			zap.Int("tokens", len(s.encoder.Encode(prompt, nil, nil))),
		)
	}
	return prompt
}

// ShouldCompress сообщает, пора ли сжимать накопленную историю.
func (s *ContextService) ShouldCompress(currentTurn, lastUpdatedTurn int) bool {
	return currentTurn-lastUpdatedTurn >= compressionInterval
}

// CompressIfNeeded читает отметку последнего сжатия и запускает Compress,
// когда накопилось достаточно ходов.
func (s *ContextService) CompressIfNeeded(ctx context.Context, q repository.DBTX, sessionID uuid.UUID, currentTurn int) error {
	lastUpdated := 0
	if rec, err := s.summaries.GetBySessionID(ctx, q, sessionID); err == nil {
		lastUpdated = rec.LastUpdatedTurn
	} else if !errors.Is(err, models.ErrNotFound) {
		return err
	}
	if !s.ShouldCompress(currentTurn, lastUpdated) {
		return nil
	}
	return s.Compress(ctx, q, sessionID, currentTurn)
}

type compressionResult struct {
	PlotEssentials   map[string]any `json:"plot_essentials"`
	ShortTermSummary string         `json:"short_term_summary"`
	ConfirmedFacts   map[string]any `json:"confirmed_facts"`
}

// Compress сжимает последние ходы в долгосрочную сводку через LLM и
// обновляет запись ContextSummary.
func (s *ContextService) Compress(ctx context.Context, q repository.DBTX, sessionID uuid.UUID, currentTurn int) error {
	prevPlot, prevFacts := map[string]any{}, map[string]any{}
	if rec, err := s.summaries.GetBySessionID(ctx, q, sessionID); err == nil {
		prevPlot = rec.PlotEssentials
		prevFacts = rec.ConfirmedFacts
	} else if !errors.Is(err, models.ErrNotFound) {
		return err
	}

	turns, err := s.turns.ListRecent(ctx, q, sessionID, compressionTurnLimit)
	if err != nil {
		return err
	}
	lines := make([]string, 0, len(turns))
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		lines = append(lines, fmt.Sprintf("T%d: [%s] %s -> %s", t.TurnNumber, t.InputType, t.InputText, t.GmDecisionType))
	}

	prompt := fmt.Sprintf(compressionContextTemplate,
		mustJSON(prevPlot),
		mustJSON(prevFacts),
		strings.Join(lines, "\n"),
	)

	raw, err := s.llm.Complete(ctx, compressionSystemPrompt, prompt)
	if err != nil {
		return fmt.Errorf("ошибка сжатия контекста сессии %s: %w", sessionID, err)
	}
	var result compressionResult
	if err := json.Unmarshal([]byte(extractJSON(raw)), &result); err != nil {
		return fmt.Errorf("ответ сжатия контекста не является валидным JSON: %w", err)
	}

	if err := s.summaries.Upsert(ctx, q, &models.ContextSummary{
		SessionID:        sessionID,
		PlotEssentials:   result.PlotEssentials,
		ShortTermSummary: result.ShortTermSummary,
		ConfirmedFacts:   result.ConfirmedFacts,
		LastUpdatedTurn:  currentTurn,
	}); err != nil {
		return err
	}

	s.logger.Info("Context compressed",
		zap.String("sessionID", sessionID.String()),
		zap.Int("turn", currentTurn),
	)
	return nil
}

func (s *ContextService) loadNpcs(ctx context.Context, q repository.DBTX, sessionID uuid.UUID) ([]models.NpcSummary, error) {
	npcs, err := s.npcs.ListActiveBySessionID(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	result := make([]models.NpcSummary, 0, len(npcs))
	for _, npc := range npcs {
		rel := map[string]any{}
		if r, err := s.relations.GetByNpcID(ctx, q, npc.ID); err == nil {
			rel = map[string]any{
				"affinity": r.Affinity,
				"trust":    r.Trust,
				"fear":     r.Fear,
				"debt":     r.Debt,
			}
		} else if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		result = append(result, models.NpcSummary{
			Name:         npc.Name,
			Profile:      npc.Profile,
			Goals:        npc.Goals,
			State:        npc.State,
			Relationship: rel,
			LocationX:    npc.LocationX,
			LocationY:    npc.LocationY,
		})
	}
	return result, nil
}

func (s *ContextService) loadRecentTurns(ctx context.Context, q repository.DBTX, sessionID uuid.UUID) ([]models.TurnSummary, error) {
	rows, err := s.turns.ListRecent(ctx, q, sessionID, recentTurnsWindow)
	if err != nil {
		return nil, err
	}
	// ListRecent отдает по убыванию, промпту нужен хронологический порядок.
	result := make([]models.TurnSummary, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		t := rows[i]
		summary := models.TurnSummary{
			TurnNumber:   t.TurnNumber,
			InputType:    string(t.InputType),
			InputText:    t.InputText,
			DecisionType: string(t.GmDecisionType),
		}
		var decision models.GmDecisionResponse
		if err := json.Unmarshal(t.Output, &decision); err == nil {
			summary.NarrationSummary = decision.NarrationText
			summary.Nodes = decision.Nodes
		}
		result = append(result, summary)
	}
	return result, nil
}

func (s *ContextService) loadObjectives(ctx context.Context, q repository.DBTX, sessionID uuid.UUID) ([]models.ObjectiveSummary, error) {
	rows, err := s.objectives.ListBySessionID(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	result := make([]models.ObjectiveSummary, 0, len(rows))
	for _, o := range rows {
		if o.Status != models.ObjectiveStatusActive {
			continue
		}
		result = append(result, models.ObjectiveSummary{
			Title:       o.Title,
			Status:      string(o.Status),
			Description: o.Description,
		})
	}
	return result, nil
}

func (s *ContextService) loadItems(ctx context.Context, q repository.DBTX, sessionID uuid.UUID) ([]models.ItemSummary, error) {
	rows, err := s.items.ListBySessionID(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	result := make([]models.ItemSummary, 0, len(rows))
	for _, i := range rows {
		result = append(result, models.ItemSummary{
			Name:     i.Name,
			ItemType: i.ItemType,
			Quantity: i.Quantity,
		})
	}
	return result, nil
}

// loadBackgrounds объединяет фоны сценария и сессии с дедупликацией по id.
func (s *ContextService) loadBackgrounds(ctx context.Context, q repository.DBTX, scenarioID, sessionID uuid.UUID) ([]models.BackgroundResourceSummary, error) {
	scenarioBgs, err := s.bgs.ListByScenarioID(ctx, q, scenarioID)
	if err != nil {
		return nil, err
	}
	sessionBgs, err := s.bgs.ListBySessionID(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{}, len(scenarioBgs)+len(sessionBgs))
	result := make([]models.BackgroundResourceSummary, 0, len(scenarioBgs)+len(sessionBgs))
	for _, bg := range append(scenarioBgs, sessionBgs...) {
		if _, ok := seen[bg.ID]; ok {
			continue
		}
		seen[bg.ID] = struct{}{}
		result = append(result, models.BackgroundResourceSummary{
			ID:           bg.ID.String(),
			LocationName: bg.LocationName,
			Description:  bg.Description,
		})
	}
	return result, nil
}

// deriveContinuity восстанавливает предыдущее настроение BGM и фон сцены
// из вывода последнего хода. Отдельные колонки непрерывности не ведутся:
// единственный источник истины - журнал ходов.
func (s *ContextService) deriveContinuity(ctx context.Context, q repository.DBTX, sessionID uuid.UUID, gc *models.GameContext) {
	latest, err := s.turns.GetLatest(ctx, q, sessionID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("Failed to load latest turn for continuity", zap.Error(err))
		}
		return
	}
	var decision models.GmDecisionResponse
	if err := json.Unmarshal(latest.Output, &decision); err != nil {
		s.logger.Warn("Failed to decode latest turn output", zap.Error(err))
		return
	}

	if decision.BgmMood != nil {
		mood := strings.ToLower(strings.TrimSpace(*decision.BgmMood))
		if mood != "" {
			gc.PreviousBgmMood = &mood
		}
	}

	for i := len(decision.Nodes) - 1; i >= 0; i-- {
		if bg := decision.Nodes[i].Background; bg != nil && *bg != "" {
			gc.PreviousBackground = bg
			break
		}
	}
	if gc.PreviousBackground == nil && decision.SelectedBackgroundID != nil && *decision.SelectedBackgroundID != "" {
		gc.PreviousBackground = decision.SelectedBackgroundID
	}
}

// --- formatting helpers ---

func formatRecentTurns(turns []models.TurnSummary) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, fmt.Sprintf("T%d [%s] %s -> %s:", t.TurnNumber, t.InputType, t.InputText, t.DecisionType))
		if len(t.Nodes) == 0 {
			if t.NarrationSummary != "" {
				lines = append(lines, "  "+t.NarrationSummary)
			}
			continue
		}
		for _, n := range t.Nodes {
			if n.Text == "" {
				continue
			}
			switch n.Type {
			case models.SceneNodeNarration:
				lines = append(lines, fmt.Sprintf("  (narration) %s", n.Text))
			case models.SceneNodeDialogue:
				if n.Speaker == nil || *n.Speaker == "" {
					continue
				}
				lines = append(lines, fmt.Sprintf("  [%s] %q", *n.Speaker, n.Text))
			case models.SceneNodeChoice:
				lines = append(lines, fmt.Sprintf("  (choice prompt) %s", n.Text))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func formatNpcs(npcs []models.NpcSummary) string {
	lines := make([]string, 0, len(npcs))
	for _, n := range npcs {
		lines = append(lines, fmt.Sprintf(
			"- %s: profile=%s goals=%s state=%s rel=%s",
			n.Name, mustJSON(n.Profile), mustJSON(n.Goals), mustJSON(n.State), mustJSON(n.Relationship),
		))
	}
	return strings.Join(lines, "\n")
}

func formatObjectives(objs []models.ObjectiveSummary) string {
	lines := make([]string, 0, len(objs))
	for _, o := range objs {
		desc := ""
		if o.Description != nil {
			desc = *o.Description
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s: %s", o.Status, o.Title, desc))
	}
	return strings.Join(lines, "\n")
}

func formatItems(items []models.ItemSummary) string {
	lines := make([]string, 0, len(items))
	for _, i := range items {
		lines = append(lines, fmt.Sprintf("- %s (%s) x%d", i.Name, i.ItemType, i.Quantity))
	}
	return strings.Join(lines, "\n")
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// extractJSON срезает обрамление ```json ... ``` из ответа модели.
func extractJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	}
	return strings.TrimSpace(trimmed)
}
