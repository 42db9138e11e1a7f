package models

// TurnSummary is one recent turn as reconstructed for the prompt.
// Nodes carry the full visual-novel detail when the decision had them;
// NarrationSummary is the fallback rendering.
type TurnSummary struct {
	TurnNumber       int         `json:"turn_number"`
	InputType        string      `json:"input_type"`
	InputText        string      `json:"input_text"`
	DecisionType     string      `json:"decision_type"`
	NarrationSummary string      `json:"narration_summary"`
	Nodes            []SceneNode `json:"nodes,omitempty"`
}

// PlayerSummary is the player character as seen by the prompt.
type PlayerSummary struct {
	Name          string             `json:"name"`
	Stats         map[string]float64 `json:"stats"`
	StatusEffects []string           `json:"status_effects"`
	LocationX     int                `json:"location_x"`
	LocationY     int                `json:"location_y"`
}

// NpcSummary is one active NPC with its relationship values.
type NpcSummary struct {
	Name         string         `json:"name"`
	Profile      map[string]any `json:"profile"`
	Goals        map[string]any `json:"goals"`
	State        map[string]any `json:"state"`
	Relationship map[string]any `json:"relationship"`
	LocationX    int            `json:"location_x"`
	LocationY    int            `json:"location_y"`
}

// ObjectiveSummary is one objective as seen by the prompt.
type ObjectiveSummary struct {
	Title       string  `json:"title"`
	Status      string  `json:"status"`
	Description *string `json:"description,omitempty"`
}

// ItemSummary is one inventory item as seen by the prompt.
type ItemSummary struct {
	Name     string `json:"name"`
	ItemType string `json:"item_type"`
	Quantity int    `json:"quantity"`
}

// BackgroundResourceSummary is one scene background offered to the LLM.
type BackgroundResourceSummary struct {
	ID           string `json:"id"`
	LocationName string `json:"location_name"`
	Description  string `json:"description"`
}

// GameContext is the fully assembled per-turn context for prompt
// construction and condition evaluation.
type GameContext struct {
	ScenarioTitle   string          `json:"scenario_title"`
	ScenarioSetting string          `json:"scenario_setting"`
	SystemPrompt    string          `json:"system_prompt"`
	WinConditions   []WinCondition  `json:"win_conditions"`
	FailConditions  []FailCondition `json:"fail_conditions"`

	PlotEssentials   map[string]any `json:"plot_essentials"`
	ShortTermSummary string         `json:"short_term_summary"`
	ConfirmedFacts   map[string]any `json:"confirmed_facts"`
	RecentTurns      []TurnSummary  `json:"recent_turns"`

	Player               PlayerSummary               `json:"player"`
	ActiveNpcs           []NpcSummary                `json:"active_npcs"`
	ActiveObjectives     []ObjectiveSummary          `json:"active_objectives"`
	PlayerItems          []ItemSummary               `json:"player_items"`
	AvailableBackgrounds []BackgroundResourceSummary `json:"available_backgrounds"`

	CurrentTurnNumber int            `json:"current_turn_number"`
	MaxTurns          int            `json:"max_turns"`
	CurrentState      map[string]any `json:"current_state"`

	// Continuity, derived from the latest turn's output at read time.
	PreviousBgmMood    *string `json:"previous_bgm_mood,omitempty"`
	PreviousBackground *string `json:"previous_background,omitempty"`
}

// Flags extracts the flags sub-map from the current state.
func (c *GameContext) Flags() map[string]bool {
	raw, ok := c.CurrentState["flags"].(map[string]any)
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
