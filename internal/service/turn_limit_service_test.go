package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
)

func TestTurnLimits(t *testing.T) {
	svc := NewTurnLimitService()

	tests := []struct {
		name        string
		currentTurn int
		maxTurns    int
		hard        bool
		soft        bool
		remaining   int
	}{
		{"far from limit", 10, 50, false, false, 40},
		{"six before limit", 44, 50, false, false, 6},
		{"five before limit", 45, 50, false, true, 5},
		{"one before limit", 49, 50, false, true, 1},
		{"at limit", 50, 50, true, false, 0},
		{"past limit", 55, 50, true, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.hard, svc.IsHardLimitReached(tt.currentTurn, tt.maxTurns))
			assert.Equal(t, tt.soft, svc.IsSoftLimitActive(tt.currentTurn, tt.maxTurns))
			assert.Equal(t, tt.remaining, svc.RemainingTurns(tt.currentTurn, tt.maxTurns))
		})
	}
}

func TestBuildHardLimitResponse(t *testing.T) {
	svc := NewTurnLimitService()

	resp := svc.BuildHardLimitResponse(50)

	require.NotNil(t, resp)
	assert.Equal(t, models.GmDecisionNarrate, resp.DecisionType)
	assert.NotEmpty(t, resp.NarrationText)
	require.NotNil(t, resp.StateChanges)
	require.NotNil(t, resp.StateChanges.SessionEnd)
	assert.Equal(t, "bad_end", resp.StateChanges.SessionEnd.EndingType)
	assert.NoError(t, resp.Validate())
}

func TestBuildSoftLimitPromptAddition(t *testing.T) {
	svc := NewTurnLimitService()

	prompt := svc.BuildSoftLimitPromptAddition(3)

	assert.Contains(t, prompt, "Turn Limit Approaching")
	assert.Contains(t, prompt, "3 turn(s) remain")
}
