package models

import "github.com/google/uuid"

// GmTurnRequest is the player's input for one turn.
type GmTurnRequest struct {
	SessionID uuid.UUID `json:"session_id" binding:"required"`
	InputType InputType `json:"input_type" binding:"required"`
	InputText string    `json:"input_text"`
}

// ChoiceOption is a single choice presented to the player.
type ChoiceOption struct {
	ID   string  `json:"id"`
	Text string  `json:"text"`
	Hint *string `json:"hint,omitempty"`
}

// RepairData carries contradiction-repair info from the GM.
type RepairData struct {
	Contradiction string `json:"contradiction"`
	ProposedFix   string `json:"proposed_fix"`
}

// NpcDialogue is one NPC line for the current turn.
type NpcDialogue struct {
	NpcName  string  `json:"npc_name"`
	Dialogue string  `json:"dialogue"`
	Emotion  *string `json:"emotion,omitempty"`
}

// NpcIntent is an NPC's intended action for the current turn.
type NpcIntent struct {
	NpcName        string `json:"npc_name"`
	IntendedAction string `json:"intended_action"`
	Adopted        bool   `json:"adopted"`
}

// NewItem describes an item to add to the inventory.
// A zero Quantity is treated as 1 on apply.
type NewItem struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ItemType    string `json:"item_type"`
	Quantity    int    `json:"quantity"`
}

// ItemUpdate mutates an existing inventory item by name.
type ItemUpdate struct {
	Name          string `json:"name"`
	QuantityDelta *int   `json:"quantity_delta,omitempty"`
	IsEquipped    *bool  `json:"is_equipped,omitempty"`
}

// LocationChange moves the player character.
type LocationChange struct {
	LocationName string `json:"location_name"`
	X            int    `json:"x"`
	Y            int    `json:"y"`
}

// RelationshipChange applies signed deltas to an NPC relationship.
type RelationshipChange struct {
	NpcName       string `json:"npc_name"`
	AffinityDelta int    `json:"affinity_delta"`
	TrustDelta    int    `json:"trust_delta"`
	FearDelta     int    `json:"fear_delta"`
	DebtDelta     int    `json:"debt_delta"`
}

// NpcStateUpdate merges keys into an NPC's internal state map.
type NpcStateUpdate struct {
	NpcName string         `json:"npc_name"`
	State   map[string]any `json:"state"`
}

// NpcLocationChange moves a session NPC.
type NpcLocationChange struct {
	NpcName string `json:"npc_name"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
}

// ObjectiveUpdate changes an objective's status, creating it when the GM
// introduces a new active objective.
type ObjectiveUpdate struct {
	Title       string          `json:"title"`
	Status      ObjectiveStatus `json:"status"`
	Description *string         `json:"description,omitempty"`
}

// SessionEnd carries ending info for a finished session.
type SessionEnd struct {
	EndingType    string `json:"ending_type"`
	EndingSummary string `json:"ending_summary"`
}

// FlagChange sets or clears a story flag. Value=false removes the key.
type FlagChange struct {
	FlagID string `json:"flag_id"`
	Value  bool   `json:"value"`
}

// StateChanges aggregates every mutation a GM decision may request.
// All fields are optional; nil means "no change of this kind".
type StateChanges struct {
	StatsDelta          map[string]float64   `json:"stats_delta,omitempty"`
	NewItems            []NewItem            `json:"new_items,omitempty"`
	RemovedItems        []string             `json:"removed_items,omitempty"`
	ItemUpdates         []ItemUpdate         `json:"item_updates,omitempty"`
	LocationChange      *LocationChange      `json:"location_change,omitempty"`
	RelationshipChanges []RelationshipChange `json:"relationship_changes,omitempty"`
	NpcStateUpdates     []NpcStateUpdate     `json:"npc_state_updates,omitempty"`
	NpcLocationChanges  []NpcLocationChange  `json:"npc_location_changes,omitempty"`
	ObjectiveUpdates    []ObjectiveUpdate    `json:"objective_updates,omitempty"`
	StatusEffectAdds    []string             `json:"status_effect_adds,omitempty"`
	StatusEffectRemoves []string             `json:"status_effect_removes,omitempty"`
	FlagChanges         []FlagChange         `json:"flag_changes,omitempty"`
	SessionEnd          *SessionEnd          `json:"session_end,omitempty"`
}

// IsEmpty reports whether no mutation is requested at all.
func (c *StateChanges) IsEmpty() bool {
	if c == nil {
		return true
	}
	return len(c.StatsDelta) == 0 && len(c.NewItems) == 0 && len(c.RemovedItems) == 0 &&
		len(c.ItemUpdates) == 0 && c.LocationChange == nil && len(c.RelationshipChanges) == 0 &&
		len(c.NpcStateUpdates) == 0 && len(c.NpcLocationChanges) == 0 && len(c.ObjectiveUpdates) == 0 &&
		len(c.StatusEffectAdds) == 0 && len(c.StatusEffectRemoves) == 0 && len(c.FlagChanges) == 0 &&
		c.SessionEnd == nil
}

// SceneNodeType classifies a visual-novel page.
type SceneNodeType string

const (
	SceneNodeNarration SceneNodeType = "narration"
	SceneNodeDialogue  SceneNodeType = "dialogue"
	SceneNodeChoice    SceneNodeType = "choice"
)

// CharacterDisplay positions one NPC portrait on a scene node.
type CharacterDisplay struct {
	NpcName    string  `json:"npc_name"`
	Expression *string `json:"expression,omitempty"` // joy, anger, sadness, pleasure, surprise
	Position   string  `json:"position"`             // left, center, right
}

// SceneNode is one visual-novel page with its complete visual state.
// Background is either a SceneBackground UUID or a free-text description;
// the two meanings diverge at asset resolution time.
type SceneNode struct {
	Type       SceneNodeType      `json:"type"`
	Text       string             `json:"text"`
	Speaker    *string            `json:"speaker,omitempty"`
	Background *string            `json:"background,omitempty"`
	Characters []CharacterDisplay `json:"characters,omitempty"`
	Choices    []ChoiceOption     `json:"choices,omitempty"`

	// Extension fields, carried through but not yet processed.
	CG      *string `json:"cg,omitempty"`
	CGClear bool    `json:"cg_clear,omitempty"`
	BGM     *string `json:"bgm,omitempty"`
	BGMStop bool    `json:"bgm_stop,omitempty"`
	SE      *string `json:"se,omitempty"`
	VoiceID *string `json:"voice_id,omitempty"`
}

// GmDecisionResponse is the single structured LLM response for one turn.
type GmDecisionResponse struct {
	DecisionType  GmDecisionType `json:"decision_type"`
	NarrationText string         `json:"narration_text"`

	Nodes []SceneNode `json:"nodes,omitempty"`

	SceneDescription     *string `json:"scene_description,omitempty"`
	SelectedBackgroundID *string `json:"selected_background_id,omitempty"`

	Choices         []ChoiceOption `json:"choices,omitempty"`
	ClarifyQuestion *string        `json:"clarify_question,omitempty"`
	Repair          *RepairData    `json:"repair,omitempty"`

	NpcDialogues []NpcDialogue `json:"npc_dialogues,omitempty"`
	NpcIntents   []NpcIntent   `json:"npc_intents,omitempty"`

	StateChanges *StateChanges `json:"state_changes,omitempty"`

	BgmMood        *string `json:"bgm_mood,omitempty"`
	BgmMusicPrompt *string `json:"bgm_music_prompt,omitempty"`
}

// Validate checks the structural invariants of a decoded decision.
func (d *GmDecisionResponse) Validate() error {
	switch d.DecisionType {
	case GmDecisionNarrate, GmDecisionChoice, GmDecisionClarify, GmDecisionRepair:
	default:
		return ErrInvalidInput
	}
	if d.DecisionType == GmDecisionChoice {
		// The last node of a choice decision must itself be a choice node.
		if len(d.Nodes) > 0 && d.Nodes[len(d.Nodes)-1].Type != SceneNodeChoice {
			return ErrInvalidInput
		}
		if len(d.Nodes) == 0 && len(d.Choices) == 0 {
			return ErrInvalidInput
		}
	}
	for _, n := range d.Nodes {
		if n.Type == SceneNodeDialogue && (n.Speaker == nil || *n.Speaker == "") {
			return ErrInvalidInput
		}
	}
	return nil
}
