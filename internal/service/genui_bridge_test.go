package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
)

func collectEvents(t *testing.T, bridge *GenUIBridge, decision *models.GmDecisionResponse, npcImages map[string]string) []models.Event {
	t.Helper()
	var events []models.Event
	for e := range bridge.Stream(context.Background(), decision, npcImages) {
		events = append(events, e)
	}
	return events
}

func newTestBridge() *GenUIBridge {
	b := NewGenUIBridge(zap.NewNop())
	b.SetWordDelay(0)
	return b
}

func TestSplitWords(t *testing.T) {
	assert.Nil(t, splitWords(""))
	assert.Equal(t, []string{"hello"}, splitWords("hello"))
	assert.Equal(t, []string{"hello ", "world"}, splitWords("hello world"))
	assert.Equal(t, []string{"a ", "b ", "c"}, splitWords("a b c"))
	// Текст собирается обратно без потерь.
	assert.Equal(t, "a  b", strings.Join(splitWords("a  b"), ""))
}

func TestStream_NarrateEventOrder(t *testing.T) {
	bridge := newTestBridge()
	decision := &models.GmDecisionResponse{
		DecisionType:  models.GmDecisionNarrate,
		NarrationText: "The door creaks open.",
	}

	events := collectEvents(t, bridge, decision, nil)
	require.NotEmpty(t, events)

	// Первые два события - сброс повествования и основной поверхности.
	assert.Equal(t, models.EventDeleteSurface, events[0].EventType())
	assert.Equal(t, models.SurfaceNarration, events[0]["surfaceId"])
	assert.Equal(t, models.EventDeleteSurface, events[1].EventType())
	assert.Equal(t, models.SurfaceMain, events[1]["surfaceId"])

	// Поверхность game-npcs никогда не удаляется.
	for _, e := range events {
		if e.EventType() == models.EventDeleteSurface {
			assert.NotEqual(t, models.SurfaceNpcs, e["surfaceId"])
		}
	}

	// done эмитит оркестратор, не мост.
	for _, e := range events {
		assert.NotEqual(t, models.EventDone, e.EventType())
	}

	// Текст доставляется по словам и собирается обратно.
	var text strings.Builder
	for _, e := range events {
		if e.EventType() == models.EventText {
			text.WriteString(e["content"].(string))
		}
	}
	assert.Equal(t, "The door creaks open.", text.String())
}

func TestStream_SurfaceUpdateFollowedByBeginRendering(t *testing.T) {
	bridge := newTestBridge()
	decision := &models.GmDecisionResponse{
		DecisionType:  models.GmDecisionNarrate,
		NarrationText: "Onward.",
	}

	events := collectEvents(t, bridge, decision, nil)

	for i, e := range events {
		if e.EventType() == models.EventSurfaceUpdate {
			require.Less(t, i+1, len(events))
			next := events[i+1]
			assert.Equal(t, models.EventBeginRendering, next.EventType())
			assert.Equal(t, e["surfaceId"], next["surfaceId"])
		}
	}
}

func TestStream_DialoguesPrecedeNarration(t *testing.T) {
	bridge := newTestBridge()
	decision := &models.GmDecisionResponse{
		DecisionType:  models.GmDecisionNarrate,
		NarrationText: "Silence falls.",
		NpcDialogues: []models.NpcDialogue{
			{NpcName: "Mira", Dialogue: "Stay close."},
		},
	}

	events := collectEvents(t, bridge, decision, nil)

	var text strings.Builder
	for _, e := range events {
		if e.EventType() == models.EventText {
			text.WriteString(e["content"].(string))
		}
	}
	full := text.String()
	assert.True(t, strings.HasPrefix(full, "[Mira] Stay close."))
	assert.Contains(t, full, "\n")
	assert.Less(t, strings.Index(full, "[Mira]"), strings.Index(full, "Silence falls."))
}

func TestStream_NpcGalleryAlwaysEmitted(t *testing.T) {
	bridge := newTestBridge()
	decision := &models.GmDecisionResponse{
		DecisionType:  models.GmDecisionNarrate,
		NarrationText: "Nothing happens.",
	}

	events := collectEvents(t, bridge, decision, nil)

	var gallery models.Event
	for _, e := range events {
		if e.EventType() == models.EventSurfaceUpdate && e["surfaceId"] == models.SurfaceNpcs {
			gallery = e
		}
	}
	require.NotNil(t, gallery)
}

func TestStream_ActionSurfaceByDecisionType(t *testing.T) {
	hint := "careful now"
	question := "Which door do you mean?"

	tests := []struct {
		name     string
		decision *models.GmDecisionResponse
		kind     string
	}{
		{
			name: "choice",
			decision: &models.GmDecisionResponse{
				DecisionType:  models.GmDecisionChoice,
				NarrationText: "Pick one.",
				Choices: []models.ChoiceOption{
					{ID: "a", Text: "Left", Hint: &hint},
					{ID: "b", Text: "Right"},
				},
			},
			kind: "choiceGroup",
		},
		{
			name: "clarify",
			decision: &models.GmDecisionResponse{
				DecisionType:    models.GmDecisionClarify,
				NarrationText:   "Hm.",
				ClarifyQuestion: &question,
			},
			kind: "clarifyQuestion",
		},
		{
			name: "repair",
			decision: &models.GmDecisionResponse{
				DecisionType:  models.GmDecisionRepair,
				NarrationText: "Wait.",
				Repair: &models.RepairData{
					Contradiction: "You already dropped the sword.",
					ProposedFix:   "Attack barehanded instead.",
				},
			},
			kind: "repairConfirm",
		},
		{
			name: "narrate",
			decision: &models.GmDecisionResponse{
				DecisionType:  models.GmDecisionNarrate,
				NarrationText: "Onward.",
			},
			kind: "continueButton",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bridge := newTestBridge()
			events := collectEvents(t, bridge, tt.decision, nil)

			found := false
			for _, e := range events {
				if e.EventType() != models.EventSurfaceUpdate || e["surfaceId"] != models.SurfaceMain {
					continue
				}
				components := e["components"].([]any)
				component := components[0].(map[string]any)["component"].(map[string]any)
				_, found = component[tt.kind]
			}
			assert.True(t, found, "expected %s surface", tt.kind)
		})
	}
}

func TestCollectNpcs_DialoguePriorityTruncation(t *testing.T) {
	emotion := "joy"
	decision := &models.GmDecisionResponse{
		NpcIntents: []models.NpcIntent{
			{NpcName: "Guard"},
			{NpcName: "Merchant"},
			{NpcName: "Beggar"},
		},
		NpcDialogues: []models.NpcDialogue{
			{NpcName: "Mira", Dialogue: "Hello.", Emotion: &emotion},
			{NpcName: "Guard", Dialogue: "Halt."},
		},
	}

	npcs := collectNpcs(decision, map[string]string{"Mira": "npcs/mira.png"}, "imagePath", 3)

	require.Len(t, npcs, 3)
	names := make([]string, 0, 3)
	for _, n := range npcs {
		names = append(names, n.(map[string]any)["name"].(string))
	}
	// Говорящие NPC вытесняют молчаливых при усечении.
	assert.Contains(t, names, "Mira")
	assert.Contains(t, names, "Guard")

	for _, n := range npcs {
		npc := n.(map[string]any)
		if npc["name"] == "Mira" {
			assert.Equal(t, "joy", npc["emotion"])
			assert.Equal(t, "scenario-assets/npcs/mira.png", npc["imagePath"])
		}
		if npc["name"] == "Merchant" {
			assert.Nil(t, npc["imagePath"])
		}
	}
}

func TestBuildStateData(t *testing.T) {
	scene := "A dim corridor"
	decision := &models.GmDecisionResponse{
		SceneDescription: &scene,
		StateChanges: &models.StateChanges{
			StatsDelta: map[string]float64{"hp": -5},
			LocationChange: &models.LocationChange{
				LocationName: "Corridor", X: 2, Y: 3,
			},
		},
	}

	data := buildStateData(decision, nil)

	assert.Equal(t, "A dim corridor", data["scene_description"])
	assert.Equal(t, float64(-5), data["hp_delta"])
	loc := data["location"].(map[string]any)
	assert.Equal(t, "Corridor", loc["location_name"])
	assert.Equal(t, 2, loc["x"])
	assert.Equal(t, 3, loc["y"])
}

func TestBuildStateData_ActiveNpcsCappedWithSpeakersFirst(t *testing.T) {
	decision := &models.GmDecisionResponse{
		NpcIntents: []models.NpcIntent{
			{NpcName: "Guard"},
			{NpcName: "Merchant"},
			{NpcName: "Beggar"},
			{NpcName: "Innkeeper"},
			{NpcName: "Stray Dog"},
		},
		NpcDialogues: []models.NpcDialogue{
			{NpcName: "Innkeeper", Dialogue: "We're closed."},
		},
	}

	data := buildStateData(decision, nil)

	npcs := data["active_npcs"].([]any)
	require.Len(t, npcs, maxDisplayNpcs)
	// Говорящие NPC вытесняют молчаливых при переполнении.
	first := npcs[0].(map[string]any)
	assert.Equal(t, "Innkeeper", first["name"])
}

func TestBuildStateData_EmptyDecision(t *testing.T) {
	data := buildStateData(&models.GmDecisionResponse{}, nil)
	assert.Empty(t, data)
}

func TestStream_ContextCancellationStopsStream(t *testing.T) {
	bridge := NewGenUIBridge(zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	decision := &models.GmDecisionResponse{
		DecisionType:  models.GmDecisionNarrate,
		NarrationText: strings.Repeat("word ", 1000),
	}

	count := 0
	for range bridge.Stream(ctx, decision, nil) {
		count++
	}
	// Отмененный контекст обрывает поток задолго до полного текста.
	assert.Less(t, count, 100)
}
