package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
)

func TestSafeEvalCondition(t *testing.T) {
	svc := NewConditionService(zap.NewNop())
	stats := map[string]float64{"hp": 0, "san": 42.5, "strength": 10}

	tests := []struct {
		name     string
		expr     string
		expected bool
	}{
		{"stat lte true", "pc.stats.hp <= 0", true},
		{"stat lte false", "pc.stats.strength <= 5", false},
		{"stat gte", "pc.stats.strength >= 10", true},
		{"stat lt", "pc.stats.san < 43", true},
		{"stat gt", "pc.stats.san > 42.5", false},
		{"stat eq", "pc.stats.strength == 10", true},
		{"stat neq", "pc.stats.strength != 10", false},
		{"float threshold", "pc.stats.san <= 42.5", true},
		{"negative threshold", "pc.stats.hp > -1", true},
		{"whitespace tolerated", "  pc.stats.hp<=0  ", true},
		{"missing stat", "pc.stats.luck <= 0", false},
		{"turn gte true", "session.currentTurnNumber >= 30", true},
		{"turn gte false", "session.currentTurnNumber >= 31", false},
		{"turn eq", "session.currentTurnNumber == 30", true},
		{"unknown syntax", "os.system('rm -rf /')", false},
		{"arbitrary expression rejected", "pc.stats.hp <= 0 or true", false},
		{"function call rejected", "len(pc.stats) > 0", false},
		{"empty expression", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, svc.SafeEvalCondition(tt.expr, stats, 30))
		})
	}
}

func TestEvaluate_FailBeatsWin(t *testing.T) {
	svc := NewConditionService(zap.NewNop())

	winConditions := []models.WinCondition{
		{ID: "win1", Description: "Escape", RequiredFlags: []string{"found_key", "opened_door"}},
	}
	failConditions := []models.FailCondition{
		{ID: "fail1", Description: "Death", Condition: "pc.stats.hp <= 0"},
	}
	flags := map[string]bool{"found_key": true, "opened_door": true}
	stats := map[string]float64{"hp": 0}

	result := svc.Evaluate(winConditions, failConditions, flags, stats, 5)

	assert.NotNil(t, result.TriggeredFail)
	assert.Equal(t, "fail1", result.TriggeredFail.ID)
	assert.Nil(t, result.TriggeredWin)
}

func TestEvaluate_WinAllFlagsSet(t *testing.T) {
	svc := NewConditionService(zap.NewNop())

	winConditions := []models.WinCondition{
		{ID: "win1", Description: "Escape", RequiredFlags: []string{"found_key", "opened_door"}},
	}
	flags := map[string]bool{"found_key": true, "opened_door": true}

	result := svc.Evaluate(winConditions, nil, flags, map[string]float64{"hp": 10}, 5)

	assert.NotNil(t, result.TriggeredWin)
	assert.Equal(t, "win1", result.TriggeredWin.ID)
	assert.Nil(t, result.TriggeredFail)
}

func TestEvaluate_PartialProgress(t *testing.T) {
	svc := NewConditionService(zap.NewNop())

	winConditions := []models.WinCondition{
		{ID: "win1", Description: "Escape", RequiredFlags: []string{"found_key", "opened_door"}},
	}
	flags := map[string]bool{"found_key": true}

	result := svc.Evaluate(winConditions, nil, flags, nil, 5)

	assert.Nil(t, result.TriggeredWin)
	assert.Len(t, result.WinProgress, 1)
	assert.Equal(t, []string{"found_key"}, result.WinProgress[0].AchievedFlags)
	assert.False(t, result.WinProgress[0].IsAchieved)
	assert.InDelta(t, 0.5, result.WinProgress[0].ProgressRatio, 1e-9)
}

func TestEvaluate_EmptyRequiredFlagsNeverTriggers(t *testing.T) {
	svc := NewConditionService(zap.NewNop())

	winConditions := []models.WinCondition{
		{ID: "win1", Description: "Impossible", RequiredFlags: nil},
	}

	result := svc.Evaluate(winConditions, nil, map[string]bool{}, nil, 5)

	assert.Nil(t, result.TriggeredWin)
	assert.Len(t, result.WinProgress, 1)
	assert.False(t, result.WinProgress[0].IsAchieved)
}

func TestEvaluate_FlagSetFalseDoesNotCount(t *testing.T) {
	svc := NewConditionService(zap.NewNop())

	winConditions := []models.WinCondition{
		{ID: "win1", Description: "Escape", RequiredFlags: []string{"found_key"}},
	}
	flags := map[string]bool{"found_key": false}

	result := svc.Evaluate(winConditions, nil, flags, nil, 5)

	assert.Nil(t, result.TriggeredWin)
	assert.Empty(t, result.WinProgress[0].AchievedFlags)
}

func TestEvaluate_EmptyFailConditionSkipped(t *testing.T) {
	svc := NewConditionService(zap.NewNop())

	failConditions := []models.FailCondition{
		{ID: "fail1", Description: "No expression", Condition: ""},
	}

	result := svc.Evaluate(nil, failConditions, nil, map[string]float64{"hp": 0}, 5)

	assert.Nil(t, result.TriggeredFail)
}

func TestBuildProgressPrompt(t *testing.T) {
	svc := NewConditionService(zap.NewNop())

	t.Run("empty when a condition triggered", func(t *testing.T) {
		result := ConditionEvaluationResult{
			TriggeredWin: &models.WinCondition{ID: "win1"},
		}
		assert.Empty(t, svc.BuildProgressPrompt(result))
	})

	t.Run("empty when no win conditions", func(t *testing.T) {
		assert.Empty(t, svc.BuildProgressPrompt(ConditionEvaluationResult{}))
	})

	t.Run("lists achieved and missing flags", func(t *testing.T) {
		result := ConditionEvaluationResult{
			WinProgress: []WinConditionProgress{
				{
					ConditionID:   "win1",
					Description:   "Escape the dungeon",
					RequiredFlags: []string{"found_key", "opened_door"},
					AchievedFlags: []string{"found_key"},
					ProgressRatio: 0.5,
				},
			},
		}
		prompt := svc.BuildProgressPrompt(result)
		assert.Contains(t, prompt, "# Condition Progress")
		assert.Contains(t, prompt, "Escape the dungeon: 1/2 flags")
		assert.Contains(t, prompt, "found_key")
		assert.Contains(t, prompt, "opened_door")
	})

	t.Run("empty when only flagless conditions", func(t *testing.T) {
		result := ConditionEvaluationResult{
			WinProgress: []WinConditionProgress{
				{ConditionID: "win1", RequiredFlags: []string{}},
			},
		}
		assert.Empty(t, svc.BuildProgressPrompt(result))
	})
}
