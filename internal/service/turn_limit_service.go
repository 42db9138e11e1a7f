package service

import (
	"fmt"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
)

const softLimitWindow = 5

// TurnLimitService управляет лимитами ходов: мягкий лимит подталкивает
// сюжет к развязке, жесткий принудительно завершает сессию без вызова LLM.
type TurnLimitService struct{}

func NewTurnLimitService() *TurnLimitService {
	return &TurnLimitService{}
}

// IsHardLimitReached - сессия достигла или превысила максимум ходов.
func (s *TurnLimitService) IsHardLimitReached(currentTurn, maxTurns int) bool {
	return currentTurn >= maxTurns
}

// IsSoftLimitActive - остались последние softLimitWindow ходов.
func (s *TurnLimitService) IsSoftLimitActive(currentTurn, maxTurns int) bool {
	remaining := maxTurns - currentTurn
	return remaining >= 1 && remaining <= softLimitWindow
}

// RemainingTurns возвращает оставшиеся ходы, не меньше нуля.
func (s *TurnLimitService) RemainingTurns(currentTurn, maxTurns int) int {
	if remaining := maxTurns - currentTurn; remaining > 0 {
		return remaining
	}
	return 0
}

// BuildHardLimitResponse синтезирует финальное решение bad_end.
// LLM при жестком лимите не вызывается вовсе.
func (s *TurnLimitService) BuildHardLimitResponse(maxTurns int) *models.GmDecisionResponse {
	summary := fmt.Sprintf("The adventure ended after reaching the maximum of %d turns.", maxTurns)
	return &models.GmDecisionResponse{
		DecisionType: models.GmDecisionNarrate,
		NarrationText: fmt.Sprintf(
			"Time has run its course. After %d turns, the threads of this story "+
				"slip beyond your grasp, and the world moves on without resolution. "+
				"The adventure is over.", maxTurns),
		StateChanges: &models.StateChanges{
			SessionEnd: &models.SessionEnd{
				EndingType:    "bad_end",
				EndingSummary: summary,
			},
		},
	}
}

// BuildSoftLimitPromptAddition строит блок промпта, требующий от GM
// сводить сюжет к развязке.
func (s *TurnLimitService) BuildSoftLimitPromptAddition(remaining int) string {
	return fmt.Sprintf(
		"\n\n## URGENT: Turn Limit Approaching\n"+
			"Only %d turn(s) remain before the session ends.\n"+
			"You MUST begin wrapping up the story:\n"+
			"- Guide the narrative toward a climax or resolution.\n"+
			"- Evaluate win_conditions and fail_conditions actively.\n"+
			"- If win_conditions can still be met, create opportunities.\n"+
			"- If win_conditions cannot be met, steer toward a dramatic conclusion.\n"+
			"- Avoid introducing new plot threads or characters.\n",
		remaining,
	)
}
