package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/clients"
	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
)

const (
	defaultWordDelay = 30 * time.Millisecond
	maxDisplayNpcs   = 3
)

// GenUIBridge превращает решение ГМ в упорядоченную последовательность
// SSE-событий с эффектом печатной машинки. Завершающее done и события
// ассетов/BGM - зона ответственности оркестратора.
type GenUIBridge struct {
	wordDelay time.Duration
	logger    *zap.Logger
}

func NewGenUIBridge(logger *zap.Logger) *GenUIBridge {
	return &GenUIBridge{
		wordDelay: defaultWordDelay,
		logger:    logger.Named("GenUIBridge"),
	}
}

// SetWordDelay переопределяет задержку между словами (для тестов).
func (b *GenUIBridge) SetWordDelay(d time.Duration) {
	b.wordDelay = d
}

// Stream асинхронно эмитит события решения. npcImages - отображение имени
// NPC на сырой путь портрета в хранилище. Канал закрывается по завершении.
func (b *GenUIBridge) Stream(ctx context.Context, decision *models.GmDecisionResponse, npcImages map[string]string) <-chan models.Event {
	out := make(chan models.Event)
	go func() {
		defer close(out)
		b.emit(ctx, decision, npcImages, out)
	}()
	return out
}

func (b *GenUIBridge) emit(ctx context.Context, decision *models.GmDecisionResponse, npcImages map[string]string, out chan<- models.Event) {
	send := func(e models.Event) bool {
		select {
		case out <- e:
			return true
		case <-ctx.Done():
			return false
		}
	}

	// Поверхность game-npcs НИКОГДА не удаляется: клиент держит живую
	// ссылку на нее и обновляет галерею на месте. Удаление оставило бы
	// виджет навсегда пустым.
	if !send(models.NewDeleteSurfaceEvent(models.SurfaceNarration)) {
		return
	}
	if !send(models.NewDeleteSurfaceEvent(models.SurfaceMain)) {
		return
	}

	// Реплики NPC первыми, каждая закрывается переводом строки - это
	// дает разрывы страниц в клиенте.
	for _, d := range decision.NpcDialogues {
		if !b.drip(ctx, fmt.Sprintf("[%s] %s", d.NpcName, d.Dialogue), send) {
			return
		}
		if !send(models.NewTextEvent("\n")) {
			return
		}
	}
	if !b.drip(ctx, decision.NarrationText, send) {
		return
	}

	if data := buildStateData(decision, npcImages); len(data) > 0 {
		if !send(models.NewStateUpdateEvent(data)) {
			return
		}
	}

	// Галерея NPC эмитится всегда, даже пустая.
	gallery := collectNpcs(decision, npcImages, "imagePath", maxDisplayNpcs)
	speakers := make([]any, 0, len(decision.NpcDialogues))
	for _, d := range decision.NpcDialogues {
		speakers = append(speakers, d.NpcName)
	}
	if !b.sendSurface(send, models.SurfaceNpcs, "npcGallery", map[string]any{
		"npcs":     gallery,
		"speakers": speakers,
	}) {
		return
	}

	if kind, props := buildActionSurface(decision); kind != "" {
		if !b.sendSurface(send, models.SurfaceMain, kind, props) {
			return
		}
	}

	b.sendSurface(send, models.SurfaceNarration, "narrativePanel", map[string]any{
		"sections": buildNarrationSections(decision),
	})
}

// sendSurface эмитит surfaceUpdate и сразу за ним beginRendering.
func (b *GenUIBridge) sendSurface(send func(models.Event) bool, surfaceID, kind string, props map[string]any) bool {
	if !send(models.NewSurfaceUpdateEvent(surfaceID, kind, props)) {
		return false
	}
	return send(models.NewBeginRenderingEvent(surfaceID))
}

func (b *GenUIBridge) drip(ctx context.Context, text string, send func(models.Event) bool) bool {
	for _, word := range splitWords(text) {
		if !send(models.NewTextEvent(word)) {
			return false
		}
		select {
		case <-time.After(b.wordDelay):
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// splitWords режет текст по пробелам, сохраняя завершающий пробел у всех
// слов, кроме последнего.
func splitWords(text string) []string {
	if text == "" {
		return nil
	}
	words := strings.Split(text, " ")
	result := make([]string, len(words))
	for i, w := range words {
		if i < len(words)-1 {
			result[i] = w + " "
		} else {
			result[i] = w
		}
	}
	return result
}

func buildStateData(decision *models.GmDecisionResponse, npcImages map[string]string) map[string]any {
	data := map[string]any{}
	if decision.SceneDescription != nil && *decision.SceneDescription != "" {
		data["scene_description"] = *decision.SceneDescription
	}
	if sc := decision.StateChanges; sc != nil {
		if sc.LocationChange != nil {
			data["location"] = map[string]any{
				"location_name": sc.LocationChange.LocationName,
				"x":             sc.LocationChange.X,
				"y":             sc.LocationChange.Y,
			}
		}
		if delta, ok := sc.StatsDelta["hp"]; ok {
			data["hp_delta"] = delta
		}
	}
	if npcs := collectNpcs(decision, npcImages, "image_path", maxDisplayNpcs); len(npcs) > 0 {
		data["active_npcs"] = npcs
	}
	return data
}

func buildNarrationSections(decision *models.GmDecisionResponse) []any {
	sections := make([]any, 0, len(decision.NpcDialogues)+1)
	for _, d := range decision.NpcDialogues {
		sections = append(sections, map[string]any{
			"type":    "dialogue",
			"speaker": d.NpcName,
			"text":    d.Dialogue,
		})
	}
	if decision.NarrationText != "" {
		sections = append(sections, map[string]any{
			"type": "narration",
			"text": decision.NarrationText,
		})
	}
	return sections
}

func buildActionSurface(decision *models.GmDecisionResponse) (string, map[string]any) {
	switch decision.DecisionType {
	case models.GmDecisionChoice:
		if len(decision.Choices) == 0 {
			return "", nil
		}
		choices := make([]any, 0, len(decision.Choices))
		for _, c := range decision.Choices {
			choice := map[string]any{"id": c.ID, "text": c.Text}
			if c.Hint != nil {
				choice["hint"] = *c.Hint
			}
			choices = append(choices, choice)
		}
		return "choiceGroup", map[string]any{
			"choices":        choices,
			"allowFreeInput": true,
		}
	case models.GmDecisionClarify:
		if decision.ClarifyQuestion == nil {
			return "", nil
		}
		return "clarifyQuestion", map[string]any{"question": *decision.ClarifyQuestion}
	case models.GmDecisionRepair:
		if decision.Repair == nil {
			return "", nil
		}
		return "repairConfirm", map[string]any{
			"contradiction": decision.Repair.Contradiction,
			"proposed_fix":  decision.Repair.ProposedFix,
		}
	case models.GmDecisionNarrate:
		return "continueButton", map[string]any{}
	}
	return "", nil
}

// collectNpcs собирает NPC из intents и dialogues с сохранением порядка
// первого появления. При усечении приоритет у NPC с репликами.
func collectNpcs(decision *models.GmDecisionResponse, npcImages map[string]string, imageKey string, limit int) []any {
	type npcEntry struct {
		name    string
		emotion *string
	}
	order := make([]string, 0)
	entries := map[string]*npcEntry{}

	upsert := func(name string, emotion *string) {
		if e, ok := entries[name]; ok {
			e.emotion = emotion
			return
		}
		entries[name] = &npcEntry{name: name, emotion: emotion}
		order = append(order, name)
	}
	for _, intent := range decision.NpcIntents {
		upsert(intent.NpcName, nil)
	}
	for _, d := range decision.NpcDialogues {
		upsert(d.NpcName, d.Emotion)
	}

	if limit > 0 && len(order) > limit {
		dialogueNames := map[string]bool{}
		for _, d := range decision.NpcDialogues {
			dialogueNames[d.NpcName] = true
		}
		speakers := make([]string, 0, len(order))
		others := make([]string, 0, len(order))
		for _, name := range order {
			if dialogueNames[name] {
				speakers = append(speakers, name)
			} else {
				others = append(others, name)
			}
		}
		order = append(speakers, others...)[:limit]
	}

	result := make([]any, 0, len(order))
	for _, name := range order {
		e := entries[name]
		npc := map[string]any{"name": e.name, "emotion": nil, imageKey: nil}
		if e.emotion != nil {
			npc["emotion"] = *e.emotion
		}
		if raw, ok := npcImages[name]; ok && raw != "" {
			npc[imageKey] = fmt.Sprintf("%s/%s", clients.BucketScenarioAssets, raw)
		}
		result = append(result, npc)
	}
	return result
}
