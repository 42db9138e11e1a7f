package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	clientMocks "github.com/titabash/gemini-hackathon-game-sub000/internal/clients/mocks"
	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
	repoMocks "github.com/titabash/gemini-hackathon-game-sub000/internal/repository/mocks"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain json", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  {\"a\":1}\n", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractJSON(tt.input))
		})
	}
}

func TestShouldCompress(t *testing.T) {
	svc := &ContextService{}

	assert.False(t, svc.ShouldCompress(4, 0))
	assert.True(t, svc.ShouldCompress(5, 0))
	assert.True(t, svc.ShouldCompress(12, 5))
	assert.False(t, svc.ShouldCompress(9, 5))
}

func TestFormatRecentTurns(t *testing.T) {
	speaker := "Mira"
	turns := []models.TurnSummary{
		{
			TurnNumber:   3,
			InputType:    "do",
			InputText:    "open the door",
			DecisionType: "narrate",
			Nodes: []models.SceneNode{
				{Type: models.SceneNodeNarration, Text: "The door opens."},
				{Type: models.SceneNodeDialogue, Speaker: &speaker, Text: "Careful."},
				{Type: models.SceneNodeChoice, Text: "What now?"},
			},
		},
		{
			TurnNumber:       4,
			InputType:        "say",
			InputText:        "hello",
			DecisionType:     "narrate",
			NarrationSummary: "A muffled reply.",
		},
	}

	out := formatRecentTurns(turns)

	assert.Contains(t, out, "T3 [do] open the door -> narrate:")
	assert.Contains(t, out, "(narration) The door opens.")
	assert.Contains(t, out, `[Mira] "Careful."`)
	assert.Contains(t, out, "(choice prompt) What now?")
	// Без nodes используется сводка повествования.
	assert.Contains(t, out, "  A muffled reply.")
}

func TestFormatObjectivesAndItems(t *testing.T) {
	desc := "Find it fast"
	objs := formatObjectives([]models.ObjectiveSummary{
		{Title: "Find the key", Status: "active", Description: &desc},
		{Title: "Survive", Status: "active"},
	})
	assert.Contains(t, objs, "- [active] Find the key: Find it fast")
	assert.Contains(t, objs, "- [active] Survive: ")

	items := formatItems([]models.ItemSummary{
		{Name: "Torch", ItemType: "tool", Quantity: 2},
	})
	assert.Equal(t, "- Torch (tool) x2", items)
}

func TestGameContextFlags(t *testing.T) {
	gc := &models.GameContext{
		CurrentState: map[string]any{
			"flags": map[string]any{
				"found_key": true,
				"rumor":     false,
				"junk":      "string",
			},
		},
	}
	flags := gc.Flags()
	assert.True(t, flags["found_key"])
	assert.False(t, flags["rumor"])
	assert.False(t, flags["junk"])

	empty := &models.GameContext{CurrentState: map[string]any{}}
	assert.Empty(t, empty.Flags())
}

func TestBuildPrompt_ContainsCoreSections(t *testing.T) {
	svc := NewContextService(ContextServiceDeps{}, zap.NewNop())

	gc := &models.GameContext{
		ScenarioTitle:     "The Silent Keep",
		SystemPrompt:      "Be a fair but merciless GM.",
		Player:            models.PlayerSummary{Name: "Rilla", Stats: map[string]float64{"hp": 12}},
		CurrentTurnNumber: 7,
		MaxTurns:          50,
		AvailableBackgrounds: []models.BackgroundResourceSummary{
			{ID: "bg-1", LocationName: "Gatehouse", Description: "A mossy gatehouse"},
		},
	}

	prompt := svc.BuildPrompt(gc, models.InputTypeDo, "look around", []string{"# Extra\ncustom section"})

	assert.Contains(t, prompt, "The Silent Keep")
	assert.Contains(t, prompt, "Be a fair but merciless GM.")
	assert.Contains(t, prompt, "Rilla")
	assert.Contains(t, prompt, "# Available Backgrounds")
	assert.Contains(t, prompt, "Gatehouse")
	assert.Contains(t, prompt, "# Extra")
	assert.Contains(t, prompt, "# Player Input (do)")
	assert.Contains(t, prompt, "look around")
}

func TestBuildPrompt_SeedIsStableAcrossTurns(t *testing.T) {
	svc := NewContextService(ContextServiceDeps{}, zap.NewNop())

	gc := &models.GameContext{
		ScenarioTitle: "The Silent Keep",
		SystemPrompt:  "system",
	}
	seed := svc.BuildPromptCacheSeed(gc)

	// Зерно не зависит от переменных частей хода.
	gc.CurrentTurnNumber = 42
	gc.Player.Stats = map[string]float64{"hp": 1}
	assert.Equal(t, seed, svc.BuildPromptCacheSeed(gc))
}

func TestCompressIfNeeded(t *testing.T) {
	ctx := context.Background()
	sessionID := uuid.New()

	t.Run("below interval does nothing", func(t *testing.T) {
		summaries := new(repoMocks.ContextSummaryRepository)
		turns := new(repoMocks.TurnRepository)
		llm := new(clientMocks.LLMClient)
		svc := NewContextService(ContextServiceDeps{
			Summaries: summaries,
			Turns:     turns,
			LLM:       llm,
		}, zap.NewNop())

		summaries.On("GetBySessionID", ctx, nil, sessionID).Return(&models.ContextSummary{
			LastUpdatedTurn: 8,
		}, nil).Once()

		err := svc.CompressIfNeeded(ctx, nil, sessionID, 10)

		assert.NoError(t, err)
		llm.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("due interval compresses and upserts", func(t *testing.T) {
		summaries := new(repoMocks.ContextSummaryRepository)
		turns := new(repoMocks.TurnRepository)
		llm := new(clientMocks.LLMClient)
		svc := NewContextService(ContextServiceDeps{
			Summaries: summaries,
			Turns:     turns,
			LLM:       llm,
		}, zap.NewNop())

		summaries.On("GetBySessionID", ctx, nil, sessionID).Return(nil, models.ErrNotFound).Twice()
		turns.On("ListRecent", ctx, nil, sessionID, compressionTurnLimit).Return([]*models.Turn{
			{TurnNumber: 5, InputType: models.InputTypeDo, InputText: "fight", GmDecisionType: models.GmDecisionNarrate},
		}, nil).Once()
		llm.On("Complete", ctx, mock.Anything, mock.MatchedBy(func(prompt string) bool {
			return assert.Contains(t, prompt, "T5: [do] fight -> narrate")
		})).Return("```json\n{\"plot_essentials\":{\"arc\":\"escape\"},\"short_term_summary\":\"You fought.\",\"confirmed_facts\":{}}\n```", nil).Once()
		summaries.On("Upsert", ctx, nil, mock.MatchedBy(func(s *models.ContextSummary) bool {
			return s.SessionID == sessionID && s.LastUpdatedTurn == 5 && s.ShortTermSummary == "You fought."
		})).Return(nil).Once()

		err := svc.CompressIfNeeded(ctx, nil, sessionID, 5)

		require.NoError(t, err)
		summaries.AssertExpectations(t)
		llm.AssertExpectations(t)
	})
}
