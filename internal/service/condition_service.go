package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
)

// Шаблоны выражений условий поражения. Никакого общего вычислителя
// выражений здесь быть не должно: сценарии - пользовательские данные,
// допустимы ровно два шаблона и шесть операторов сравнения.
var (
	statConditionPattern = regexp.MustCompile(`^pc\.stats\.(\w+)\s*(<=|>=|<|>|==|!=)\s*(-?\d+(?:\.\d+)?)$`)
	turnConditionPattern = regexp.MustCompile(`^session\.currentTurnNumber\s*(<=|>=|<|>|==|!=)\s*(-?\d+(?:\.\d+)?)$`)
)

func compareFloat(a float64, op string, b float64) bool {
	switch op {
	case "<=":
		return a <= b
	case ">=":
		return a >= b
	case "<":
		return a < b
	case ">":
		return a > b
	case "==":
		return a == b
	case "!=":
		return a != b
	}
	return false
}

// WinConditionProgress - прогресс по одному условию победы.
type WinConditionProgress struct {
	ConditionID   string
	Description   string
	RequiredFlags []string
	AchievedFlags []string
	IsAchieved    bool
	ProgressRatio float64
}

// ConditionEvaluationResult - результат проверки всех условий.
type ConditionEvaluationResult struct {
	TriggeredWin  *models.WinCondition
	TriggeredFail *models.FailCondition
	WinProgress   []WinConditionProgress
}

// ConditionService программно проверяет условия победы и поражения.
type ConditionService struct {
	logger *zap.Logger
}

func NewConditionService(logger *zap.Logger) *ConditionService {
	return &ConditionService{logger: logger.Named("ConditionService")}
}

// Evaluate проверяет все условия. Условия поражения проверяются первыми
// и имеют приоритет; внутри каждого списка срабатывает первое совпадение.
func (s *ConditionService) Evaluate(
	winConditions []models.WinCondition,
	failConditions []models.FailCondition,
	currentFlags map[string]bool,
	playerStats map[string]float64,
	currentTurn int,
) ConditionEvaluationResult {
	for i := range failConditions {
		fc := &failConditions[i]
		if fc.Condition == "" {
			continue
		}
		if s.SafeEvalCondition(fc.Condition, playerStats, currentTurn) {
			s.logger.Info("Fail condition triggered", zap.String("conditionID", fc.ID))
			return ConditionEvaluationResult{TriggeredFail: fc}
		}
	}

	progress := make([]WinConditionProgress, 0, len(winConditions))
	for i := range winConditions {
		wc := &winConditions[i]
		if len(wc.RequiredFlags) == 0 {
			// Условие без флагов никогда не срабатывает автоматически.
			progress = append(progress, WinConditionProgress{
				ConditionID:   wc.ID,
				Description:   wc.Description,
				RequiredFlags: []string{},
				AchievedFlags: []string{},
			})
			continue
		}

		achieved := make([]string, 0, len(wc.RequiredFlags))
		for _, f := range wc.RequiredFlags {
			if currentFlags[f] {
				achieved = append(achieved, f)
			}
		}
		isAchieved := len(achieved) == len(wc.RequiredFlags)

		progress = append(progress, WinConditionProgress{
			ConditionID:   wc.ID,
			Description:   wc.Description,
			RequiredFlags: wc.RequiredFlags,
			AchievedFlags: achieved,
			IsAchieved:    isAchieved,
			ProgressRatio: float64(len(achieved)) / float64(len(wc.RequiredFlags)),
		})

		if isAchieved {
			s.logger.Info("Win condition triggered", zap.String("conditionID", wc.ID))
			return ConditionEvaluationResult{TriggeredWin: wc, WinProgress: progress}
		}
	}

	return ConditionEvaluationResult{WinProgress: progress}
}

// SafeEvalCondition безопасно вычисляет выражение условия через сопоставление
// с шаблонами. Неизвестный синтаксис и отсутствующие статы дают false.
func (s *ConditionService) SafeEvalCondition(expr string, stats map[string]float64, currentTurn int) bool {
	expr = strings.TrimSpace(expr)

	if m := statConditionPattern.FindStringSubmatch(expr); m != nil {
		statName, op, thresholdStr := m[1], m[2], m[3]
		statVal, ok := stats[statName]
		if !ok {
			return false
		}
		threshold, err := strconv.ParseFloat(thresholdStr, 64)
		if err != nil {
			return false
		}
		return compareFloat(statVal, op, threshold)
	}

	if m := turnConditionPattern.FindStringSubmatch(expr); m != nil {
		op, thresholdStr := m[1], m[2]
		threshold, err := strconv.ParseFloat(thresholdStr, 64)
		if err != nil {
			return false
		}
		return compareFloat(float64(currentTurn), op, threshold)
	}

	s.logger.Warn("Unknown condition expression", zap.String("expr", expr))
	return false
}

// BuildProgressPrompt строит текст прогресса условий для вставки в промпт.
// Пустая строка, если какое-то условие уже сработало.
func (s *ConditionService) BuildProgressPrompt(result ConditionEvaluationResult) string {
	if result.TriggeredWin != nil || result.TriggeredFail != nil {
		return ""
	}
	if len(result.WinProgress) == 0 {
		return ""
	}

	lines := []string{"\n# Condition Progress"}
	for _, wp := range result.WinProgress {
		if len(wp.RequiredFlags) == 0 {
			continue
		}
		missing := make([]string, 0, len(wp.RequiredFlags))
		achievedSet := make(map[string]struct{}, len(wp.AchievedFlags))
		for _, f := range wp.AchievedFlags {
			achievedSet[f] = struct{}{}
		}
		for _, f := range wp.RequiredFlags {
			if _, ok := achievedSet[f]; !ok {
				missing = append(missing, f)
			}
		}
		lines = append(lines, fmt.Sprintf(
			"- %s: %d/%d flags (achieved: %v, missing: %v)",
			wp.Description, len(wp.AchievedFlags), len(wp.RequiredFlags),
			wp.AchievedFlags, missing,
		))
	}

	if len(lines) <= 1 {
		return ""
	}
	return strings.Join(lines, "\n")
}
