package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus - статус прохождения сессии.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusAbandoned SessionStatus = "abandoned"
)

// InputType - тип ввода игрока для одного хода.
type InputType string

const (
	InputTypeStart         InputType = "start"
	InputTypeDo            InputType = "do"
	InputTypeSay           InputType = "say"
	InputTypeChoice        InputType = "choice"
	InputTypeRollResult    InputType = "roll_result"
	InputTypeClarifyAnswer InputType = "clarify_answer"
	InputTypeSystem        InputType = "system"
)

// GmDecisionType - тип решения Гейм-Мастера.
type GmDecisionType string

const (
	GmDecisionNarrate GmDecisionType = "narrate"
	GmDecisionChoice  GmDecisionType = "choice"
	GmDecisionClarify GmDecisionType = "clarify"
	GmDecisionRepair  GmDecisionType = "repair"
)

// ObjectiveStatus - статус цели в рамках сессии.
type ObjectiveStatus string

const (
	ObjectiveStatusActive    ObjectiveStatus = "active"
	ObjectiveStatusCompleted ObjectiveStatus = "completed"
	ObjectiveStatusFailed    ObjectiveStatus = "failed"
)

// WinCondition - условие победы сценария. Срабатывает, когда установлены все
// флаги из RequiredFlags. Пустой список флагов никогда не срабатывает сам по себе.
type WinCondition struct {
	ID            string   `json:"id"`
	Description   string   `json:"description"`
	RequiredFlags []string `json:"requiredFlags"`
}

// FailCondition - условие поражения. Condition - строка ограниченного
// выражения (см. ConditionService), никогда не исполняется как код.
type FailCondition struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Condition   string `json:"condition"`
}

// Scenario - неизменяемый шаблон игры.
type Scenario struct {
	ID             uuid.UUID       `db:"id"`
	UserID         uuid.UUID       `db:"user_id"`
	Title          string          `db:"title"`
	Description    string          `db:"description"`
	SystemPrompt   string          `db:"system_prompt"`
	InitialState   map[string]any  `db:"initial_state"`
	WinConditions  []WinCondition  `db:"win_conditions"`
	FailConditions []FailCondition `db:"fail_conditions"`
	MaxTurns       int             `db:"max_turns"`
	IsPublic       bool            `db:"is_public"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// Session - одно прохождение сценария игроком.
type Session struct {
	ID                uuid.UUID      `db:"id"`
	ScenarioID        uuid.UUID      `db:"scenario_id"`
	UserID            uuid.UUID      `db:"user_id"`
	Status            SessionStatus  `db:"status"`
	CurrentState      map[string]any `db:"current_state"`
	CurrentTurnNumber int            `db:"current_turn_number"`
	EndingType        *string        `db:"ending_type"`
	EndingSummary     *string        `db:"ending_summary"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

// Flags возвращает подкарту флагов из current_state (может быть nil).
func (s *Session) Flags() map[string]bool {
	raw, ok := s.CurrentState["flags"].(map[string]any)
	if !ok {
		return map[string]bool{}
	}
	flags := make(map[string]bool, len(raw))
	for k, v := range raw {
		if b, ok := v.(bool); ok && b {
			flags[k] = true
		}
	}
	return flags
}

// PlayerCharacter - персонаж игрока, ровно один на сессию.
// Имена hp, san, maxHp, maxSan зарезервированы под пулы и исключаются
// из кандидатов проверок действий.
type PlayerCharacter struct {
	ID            uuid.UUID          `db:"id"`
	SessionID     uuid.UUID          `db:"session_id"`
	Name          string             `db:"name"`
	Stats         map[string]float64 `db:"stats"`
	StatusEffects []string           `db:"status_effects"`
	LocationX     int                `db:"location_x"`
	LocationY     int                `db:"location_y"`
	CreatedAt     time.Time          `db:"created_at"`
	UpdatedAt     time.Time          `db:"updated_at"`
}

// ReservedPoolStats - статы, исключенные из кандидатов проверок.
var ReservedPoolStats = map[string]bool{
	"hp": true, "san": true, "maxHp": true, "maxSan": true,
}

// NPC существует либо в области сценария (шаблон), либо в области сессии
// (экземпляр). Хотя бы один из родительских FK должен быть установлен.
type NPC struct {
	ID            uuid.UUID         `db:"id"`
	ScenarioID    *uuid.UUID        `db:"scenario_id"`
	SessionID     *uuid.UUID        `db:"session_id"`
	Name          string            `db:"name"`
	Profile       map[string]any    `db:"profile"`
	Goals         map[string]any    `db:"goals"`
	State         map[string]any    `db:"state"`
	LocationX     int               `db:"location_x"`
	LocationY     int               `db:"location_y"`
	ImagePath     *string           `db:"image_path"`
	EmotionImages map[string]string `db:"emotion_images"`
	IsActive      bool              `db:"is_active"`
	CreatedAt     time.Time         `db:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at"`
}

// NpcRelationship - отношение NPC к игроку, ровно одно на сессионного NPC.
type NpcRelationship struct {
	ID        uuid.UUID      `db:"id"`
	NpcID     uuid.UUID      `db:"npc_id"`
	Affinity  int            `db:"affinity"`
	Trust     int            `db:"trust"`
	Fear      int            `db:"fear"`
	Debt      int            `db:"debt"`
	Flags     map[string]any `db:"flags"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// Turn - один ход сессии. Номера уникальны в рамках сессии.
// Output хранит полное решение ГМ (GmDecisionResponse) как JSON.
type Turn struct {
	ID             uuid.UUID      `db:"id"`
	SessionID      uuid.UUID      `db:"session_id"`
	TurnNumber     int            `db:"turn_number"`
	InputType      InputType      `db:"input_type"`
	InputText      string         `db:"input_text"`
	GmDecisionType GmDecisionType `db:"gm_decision_type"`
	Output         []byte         `db:"output"`
	CreatedAt      time.Time      `db:"created_at"`
}

// ContextSummary - сжатая долгосрочная память сессии, одна запись на сессию.
type ContextSummary struct {
	ID               uuid.UUID      `db:"id"`
	SessionID        uuid.UUID      `db:"session_id"`
	PlotEssentials   map[string]any `db:"plot_essentials"`
	ShortTermSummary string         `db:"short_term_summary"`
	ConfirmedFacts   map[string]any `db:"confirmed_facts"`
	LastUpdatedTurn  int            `db:"last_updated_turn"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

// Objective - цель сессии. Title уникален в рамках сессии.
type Objective struct {
	ID          uuid.UUID       `db:"id"`
	SessionID   uuid.UUID       `db:"session_id"`
	Title       string          `db:"title"`
	Description *string         `db:"description"`
	Status      ObjectiveStatus `db:"status"`
	SortOrder   int             `db:"sort_order"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

// Item - предмет инвентаря сессии.
type Item struct {
	ID          uuid.UUID `db:"id"`
	SessionID   uuid.UUID `db:"session_id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	ItemType    string    `db:"item_type"`
	Quantity    int       `db:"quantity"`
	IsEquipped  bool      `db:"is_equipped"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// SceneBackground - фоновый арт. Записи области сценария - посевные ассеты,
// записи области сессии - сгенерированные. Используется как
// контентно-адресуемый кеш: поиск по строке description.
type SceneBackground struct {
	ID           uuid.UUID  `db:"id"`
	ScenarioID   *uuid.UUID `db:"scenario_id"`
	SessionID    *uuid.UUID `db:"session_id"`
	LocationName string     `db:"location_name"`
	Description  string     `db:"description"`
	ImagePath    string     `db:"image_path"`
	CreatedAt    time.Time  `db:"created_at"`
}

// BgmPendingPath - сентинел занятого слота генерации в кеше BGM.
const BgmPendingPath = "__pending__"

// BgmTrack - кешированный трек, одна запись на пару (scenario_id, mood).
type BgmTrack struct {
	ID              uuid.UUID `db:"id"`
	ScenarioID      uuid.UUID `db:"scenario_id"`
	Mood            string    `db:"mood"`
	AudioPath       string    `db:"audio_path"`
	PromptUsed      string    `db:"prompt_used"`
	DurationSeconds float64   `db:"duration_seconds"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// IsPending сообщает, что слот занят незавершенной генерацией.
func (t *BgmTrack) IsPending() bool {
	return t.AudioPath == BgmPendingPath
}
