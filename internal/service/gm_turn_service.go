package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/clients"
	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
	"github.com/titabash/gemini-hackathon-game-sub000/internal/repository"
)

const (
	turnLockTTL = 2 * time.Minute

	// Нейтральный ответ, когда LLM окончательно недоступна: ход не
	// должен падать из-за провайдера.
	fallbackNarration = "The world seems to pause for a moment. What would you like to do?"
)

var turnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "gm_turn_duration_seconds",
	Help:    "Полное время обработки одного хода гейм-мастера.",
	Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
}, []string{"decision_type"})

// GmTurnService - оркестратор хода: загрузка сессии, сборка контекста,
// решение LLM, транзакционная мутация состояния, проверка условий и
// выдача потока SSE-событий.
type GmTurnService struct {
	pool       *pgxpool.Pool
	runTx      func(ctx context.Context, fn func(tx pgx.Tx) error) error
	locks      repository.TurnLockRepository
	sessions   repository.SessionRepository
	scenarios  repository.ScenarioRepository
	turns      repository.TurnRepository
	npcs       repository.NpcRepository
	llm        clients.LLMClient
	contextSvc *ContextService
	conditions *ConditionService
	turnLimits *TurnLimitService
	actions    *ActionResolutionService
	mutations  *StateMutationService
	cloner     *NpcCloneService
	bridge     *GenUIBridge
	assets     *AssetService
	bgm        *BgmService
	logger     *zap.Logger
}

type GmTurnServiceDeps struct {
	Pool       *pgxpool.Pool
	Locks      repository.TurnLockRepository
	Sessions   repository.SessionRepository
	Scenarios  repository.ScenarioRepository
	Turns      repository.TurnRepository
	Npcs       repository.NpcRepository
	LLM        clients.LLMClient
	Context    *ContextService
	Conditions *ConditionService
	TurnLimits *TurnLimitService
	Actions    *ActionResolutionService
	Mutations  *StateMutationService
	Cloner     *NpcCloneService
	Bridge     *GenUIBridge
	Assets     *AssetService
	Bgm        *BgmService
}

func NewGmTurnService(deps GmTurnServiceDeps, logger *zap.Logger) *GmTurnService {
	return &GmTurnService{
		pool: deps.Pool,
		runTx: func(ctx context.Context, fn func(tx pgx.Tx) error) error {
			return WithTx(ctx, deps.Pool, fn)
		},
		locks:      deps.Locks,
		sessions:   deps.Sessions,
		scenarios:  deps.Scenarios,
		turns:      deps.Turns,
		npcs:       deps.Npcs,
		llm:        deps.LLM,
		contextSvc: deps.Context,
		conditions: deps.Conditions,
		turnLimits: deps.TurnLimits,
		actions:    deps.Actions,
		mutations:  deps.Mutations,
		cloner:     deps.Cloner,
		bridge:     deps.Bridge,
		assets:     deps.Assets,
		bgm:        deps.Bgm,
		logger:     logger.Named("GmTurnService"),
	}
}

// Execute обрабатывает один ход и возвращает канал событий. Канал
// закрывается после терминального события: done при успехе, error при
// отказе. Никакое событие не следует за done.
func (s *GmTurnService) Execute(ctx context.Context, req models.GmTurnRequest) <-chan models.Event {
	out := make(chan models.Event)
	go func() {
		defer close(out)
		s.run(ctx, req, out)
	}()
	return out
}

func (s *GmTurnService) run(ctx context.Context, req models.GmTurnRequest, out chan<- models.Event) {
	started := time.Now()

	send := func(e models.Event) bool {
		select {
		case out <- e:
			return true
		case <-ctx.Done():
			return false
		}
	}

	// Два хода одной сессии не должны идти одновременно. Потерянный
	// замок страхует UNIQUE(session_id, turn_number) на ходах.
	lockToken, err := s.locks.Acquire(ctx, req.SessionID, turnLockTTL)
	if err != nil {
		s.logger.Warn("Turn lock acquisition failed, proceeding without lock",
			zap.String("sessionID", req.SessionID.String()), zap.Error(err))
	} else if lockToken == "" {
		send(models.NewErrorEvent(models.ErrTurnInProgress.Error()))
		return
	} else {
		defer func() {
			if err := s.locks.Release(context.WithoutCancel(ctx), req.SessionID, lockToken); err != nil {
				s.logger.Warn("Turn lock release failed", zap.Error(err))
			}
		}()
	}

	sess, err := s.sessions.GetByID(ctx, s.pool, req.SessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			send(models.NewErrorEvent(models.ErrSessionNotFound.Error()))
		} else {
			s.logger.Error("Session load failed", zap.Error(err))
			send(models.NewErrorEvent(models.ErrInternalServer.Error()))
		}
		return
	}
	if sess.Status != models.SessionStatusActive {
		send(models.NewErrorEvent(models.ErrSessionNotActive.Error()))
		return
	}

	scenario, err := s.scenarios.GetByID(ctx, s.pool, sess.ScenarioID)
	if err != nil {
		s.logger.Error("Scenario load failed", zap.Error(err))
		send(models.NewErrorEvent(models.ErrInternalServer.Error()))
		return
	}

	if req.InputType == models.InputTypeStart {
		err := s.runTx(ctx, func(tx pgx.Tx) error {
			return s.cloner.CloneForSession(ctx, tx, scenario, sess.ID)
		})
		if err != nil {
			s.logger.Error("NPC cloning failed", zap.Error(err))
			send(models.NewErrorEvent(models.ErrInternalServer.Error()))
			return
		}
	}

	gc, err := s.contextSvc.BuildContext(ctx, s.pool, sess.ID)
	if err != nil {
		s.logger.Error("Context build failed", zap.Error(err))
		send(models.NewErrorEvent(models.ErrInternalServer.Error()))
		return
	}

	decision, raw := s.resolveDecision(ctx, gc, req)
	defer func() {
		turnDuration.WithLabelValues(string(decision.DecisionType)).Observe(time.Since(started).Seconds())
	}()

	newTurn, err := s.persistTurn(ctx, sess.ID, req, decision, raw)
	if err != nil {
		s.logger.Error("Turn persistence failed",
			zap.String("sessionID", sess.ID.String()), zap.Error(err))
		send(models.NewErrorEvent(models.ErrInternalServer.Error()))
		return
	}

	isEnding := decision.StateChanges != nil && decision.StateChanges.SessionEnd != nil
	if !isEnding {
		isEnding = s.evaluateConditions(ctx, gc, decision, sess.ID, newTurn)
	}

	// Сжатие истории не должно задерживать ответ игроку; неудача
	// логируется и повторится на следующем ходу.
	go func() {
		bg := context.WithoutCancel(ctx)
		if err := s.contextSvc.CompressIfNeeded(bg, s.pool, sess.ID, newTurn); err != nil {
			s.logger.Warn("Context compression failed, will retry next turn",
				zap.String("sessionID", sess.ID.String()), zap.Error(err))
		}
	}()

	s.streamEvents(ctx, sess, scenario, decision, send)

	send(models.NewDoneEvent(newTurn, isEnding))
}

// resolveDecision выбирает решение хода: принудительный финал на жестком
// лимите (LLM не вызывается), иначе вызов LLM с дополнительными секциями
// промпта и нейтральный фолбэк при полном отказе провайдера.
func (s *GmTurnService) resolveDecision(ctx context.Context, gc *models.GameContext, req models.GmTurnRequest) (*models.GmDecisionResponse, []byte) {
	if s.turnLimits.IsHardLimitReached(gc.CurrentTurnNumber, gc.MaxTurns) {
		s.logger.Info("Hard turn limit reached, forcing ending",
			zap.Int("turn", gc.CurrentTurnNumber), zap.Int("maxTurns", gc.MaxTurns))
		return s.turnLimits.BuildHardLimitResponse(gc.MaxTurns), nil
	}

	extras := make([]string, 0, 3)
	if s.turnLimits.IsSoftLimitActive(gc.CurrentTurnNumber, gc.MaxTurns) {
		extras = append(extras, s.turnLimits.BuildSoftLimitPromptAddition(
			s.turnLimits.RemainingTurns(gc.CurrentTurnNumber, gc.MaxTurns)))
	}
	extras = append(extras, s.actions.BuildResolutionContext(gc.Player.Stats, s.actions.GenerateLuckRoll()))

	evaluation := s.conditions.Evaluate(gc.WinConditions, gc.FailConditions, gc.Flags(), gc.Player.Stats, gc.CurrentTurnNumber)
	if progress := s.conditions.BuildProgressPrompt(evaluation); progress != "" {
		extras = append(extras, progress)
	}

	prompt := s.contextSvc.BuildPrompt(gc, req.InputType, req.InputText, extras)
	decision, raw, err := s.llm.GenerateDecision(ctx, gmSystemPrompt, prompt)
	if err != nil {
		s.logger.Error("LLM decision failed, using neutral fallback", zap.Error(err))
		return &models.GmDecisionResponse{
			DecisionType:  models.GmDecisionNarrate,
			NarrationText: fallbackNarration,
		}, nil
	}
	return decision, raw
}

// persistTurn применяет state_changes и записывает ход одной транзакцией.
// Номер хода берется из IncrementTurn той же транзакции и потому никогда
// не устаревает.
func (s *GmTurnService) persistTurn(ctx context.Context, sessionID uuid.UUID, req models.GmTurnRequest, decision *models.GmDecisionResponse, raw []byte) (int, error) {
	if raw == nil {
		encoded, err := json.Marshal(decision)
		if err != nil {
			return 0, fmt.Errorf("ошибка сериализации решения: %w", err)
		}
		raw = encoded
	}

	var newTurn int
	err := s.runTx(ctx, func(tx pgx.Tx) error {
		if decision.StateChanges != nil {
			if err := s.mutations.Apply(ctx, tx, sessionID, decision.StateChanges); err != nil {
				return err
			}
		}
		n, err := s.sessions.IncrementTurn(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		newTurn = n
		return s.turns.Create(ctx, tx, &models.Turn{
			SessionID:      sessionID,
			TurnNumber:     n,
			InputType:      req.InputType,
			InputText:      req.InputText,
			GmDecisionType: decision.DecisionType,
			Output:         raw,
		})
	})
	if err != nil {
		return 0, err
	}
	return newTurn, nil
}

// evaluateConditions проверяет условия по состоянию ПОСЛЕ мутаций.
// Флаги и статы вычисляются в памяти поверх контекста, без повторного
// чтения базы. Поражение приоритетнее победы.
func (s *GmTurnService) evaluateConditions(ctx context.Context, gc *models.GameContext, decision *models.GmDecisionResponse, sessionID uuid.UUID, currentTurn int) bool {
	flags := computeLatestFlags(gc, decision.StateChanges)
	stats := computeLatestStats(gc, decision.StateChanges)

	result := s.conditions.Evaluate(gc.WinConditions, gc.FailConditions, flags, stats, currentTurn)

	var end *models.SessionEnd
	switch {
	case result.TriggeredFail != nil:
		end = &models.SessionEnd{
			EndingType:    "bad_end",
			EndingSummary: result.TriggeredFail.Description,
		}
	case result.TriggeredWin != nil:
		end = &models.SessionEnd{
			EndingType:    "victory",
			EndingSummary: result.TriggeredWin.Description,
		}
	default:
		return false
	}

	err := s.runTx(ctx, func(tx pgx.Tx) error {
		return s.mutations.ApplySessionEnd(ctx, tx, sessionID, *end)
	})
	if err != nil {
		s.logger.Error("Failed to apply condition-triggered ending",
			zap.String("sessionID", sessionID.String()),
			zap.String("endingType", end.EndingType),
			zap.Error(err))
		return false
	}
	s.logger.Info("Session ended by condition",
		zap.String("sessionID", sessionID.String()),
		zap.String("endingType", end.EndingType))
	return true
}

// streamEvents объединяет три источника событий: мост GenUI, резолвер
// ассетов и резолвер BGM. Их события могут чередоваться произвольно;
// терминальный done эмитит вызывающий после полного завершения.
func (s *GmTurnService) streamEvents(ctx context.Context, sess *models.Session, scenario *models.Scenario, decision *models.GmDecisionResponse, send func(models.Event) bool) {
	npcImages := s.loadNpcImages(ctx, sess.ID)

	var wg sync.WaitGroup

	if len(decision.Nodes) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range s.assets.Stream(ctx, s.pool, sess.ID, scenario.ID, decision.Nodes) {
				if !send(e) {
					return
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.resolveBgm(ctx, scenario.ID, decision, send)
	}()

	for e := range s.bridge.Stream(ctx, decision, npcImages) {
		if !send(e) {
			break
		}
	}

	// Легаси-путь одной картинки сцены работает только без nodes[].
	if len(decision.Nodes) == 0 {
		if e, ok := s.assets.ResolveLegacyImage(ctx, s.pool, sess.ID, decision); ok {
			send(e)
		}
	}

	wg.Wait()
}

// resolveBgm эмитит события жизненного цикла музыки: попадание в кеш дает
// bgmUpdate сразу, промах - bgmGenerating и затем bgmUpdate по готовности.
// Сбой генерации просто не дает событий.
func (s *GmTurnService) resolveBgm(ctx context.Context, scenarioID uuid.UUID, decision *models.GmDecisionResponse, send func(models.Event) bool) {
	if decision.BgmMood == nil {
		return
	}
	mood := NormalizeMood(*decision.BgmMood)
	if mood == "" {
		return
	}

	// Недоступность кеша не глушит музыку: идем в генерацию как при промахе.
	cached, err := s.bgm.GetCachedBgmPath(ctx, s.pool, scenarioID, mood)
	if err != nil {
		s.logger.Warn("BGM cache lookup failed, falling back to generation",
			zap.String("mood", mood), zap.Error(err))
	}
	if cached != "" {
		send(models.NewBgmUpdateEvent(mood, fmt.Sprintf("%s/%s", clients.BucketGeneratedBgm, cached)))
		return
	}

	// Промах кеша: клиент сразу показывает состояние загрузки.
	if !send(models.NewBgmGeneratingEvent(mood)) {
		return
	}

	prompt := ""
	if decision.BgmMusicPrompt != nil {
		prompt = *decision.BgmMusicPrompt
	}
	if prompt == "" {
		prompt = fallbackBgmPrompt(decision, mood)
		s.logger.Warn("BGM prompt missing from LLM, using fallback",
			zap.String("mood", mood), zap.String("prompt", prompt))
	}

	path, err := s.bgm.GenerateAndCache(ctx, s.pool, scenarioID, mood, prompt)
	if err != nil {
		if !errors.Is(err, models.ErrBgmGenerationInFlight) {
			s.logger.Warn("BGM generation failed, skipping BGM for this turn",
				zap.String("mood", mood), zap.Error(err))
		}
		return
	}
	send(models.NewBgmUpdateEvent(mood, fmt.Sprintf("%s/%s", clients.BucketGeneratedBgm, path)))
}

func (s *GmTurnService) loadNpcImages(ctx context.Context, sessionID uuid.UUID) map[string]string {
	images := map[string]string{}
	npcs, err := s.npcs.ListActiveBySessionID(ctx, s.pool, sessionID)
	if err != nil {
		s.logger.Warn("NPC image load failed", zap.Error(err))
		return images
	}
	for _, npc := range npcs {
		if npc.ImagePath != nil && *npc.ImagePath != "" {
			images[npc.Name] = *npc.ImagePath
		}
	}
	return images
}

func fallbackBgmPrompt(decision *models.GmDecisionResponse, mood string) string {
	scene := "TRPG scene"
	if decision.SceneDescription != nil && *decision.SceneDescription != "" {
		scene = *decision.SceneDescription
	}
	return fmt.Sprintf(
		"%s, background music mood=%s, instrumental only, no vocals, no lyrics, no singing, seamless loop, loopable",
		scene, mood,
	)
}

func computeLatestFlags(gc *models.GameContext, changes *models.StateChanges) map[string]bool {
	flags := gc.Flags()
	if changes == nil {
		return flags
	}
	for _, fc := range changes.FlagChanges {
		if fc.Value {
			flags[fc.FlagID] = true
		} else {
			delete(flags, fc.FlagID)
		}
	}
	return flags
}

func computeLatestStats(gc *models.GameContext, changes *models.StateChanges) map[string]float64 {
	stats := make(map[string]float64, len(gc.Player.Stats))
	for k, v := range gc.Player.Stats {
		stats[k] = v
	}
	if changes == nil {
		return stats
	}
	for k, d := range changes.StatsDelta {
		stats[k] += d
	}
	return stats
}
