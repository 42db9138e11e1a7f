package models

// Event is one SSE payload: a flat JSON object with a "type" discriminator.
type Event map[string]any

// EventType returns the "type" discriminator, or "" when absent.
func (e Event) EventType() string {
	t, _ := e["type"].(string)
	return t
}

// Event type discriminators.
const (
	EventText           = "text"
	EventStateUpdate    = "stateUpdate"
	EventSurfaceUpdate  = "surfaceUpdate"
	EventBeginRendering = "beginRendering"
	EventDeleteSurface  = "deleteSurface"
	EventAssetReady     = "assetReady"
	EventImageUpdate    = "imageUpdate"
	EventBgmGenerating  = "bgmGenerating"
	EventBgmUpdate      = "bgmUpdate"
	EventError          = "error"
	EventDone           = "done"
)

// Well-known UI surface ids.
const (
	SurfaceNarration = "game-narration"
	SurfaceMain      = "game-surface"
	SurfaceNpcs      = "game-npcs"
)

func NewTextEvent(content string) Event {
	return Event{"type": EventText, "content": content}
}

func NewStateUpdateEvent(data map[string]any) Event {
	return Event{"type": EventStateUpdate, "data": data}
}

// NewSurfaceUpdateEvent wraps one root component for a surface.
func NewSurfaceUpdateEvent(surfaceID, kind string, props map[string]any) Event {
	return Event{
		"type":      EventSurfaceUpdate,
		"surfaceId": surfaceID,
		"components": []any{
			map[string]any{
				"id":        "root",
				"component": map[string]any{kind: props},
			},
		},
	}
}

func NewBeginRenderingEvent(surfaceID string) Event {
	return Event{"type": EventBeginRendering, "surfaceId": surfaceID, "root": "root"}
}

func NewDeleteSurfaceEvent(surfaceID string) Event {
	return Event{"type": EventDeleteSurface, "surfaceId": surfaceID}
}

func NewAssetReadyEvent(key, path string) Event {
	return Event{"type": EventAssetReady, "key": key, "path": path}
}

func NewImageUpdateEvent(path string) Event {
	return Event{"type": EventImageUpdate, "path": path}
}

func NewBgmGeneratingEvent(mood string) Event {
	return Event{"type": EventBgmGenerating, "mood": mood}
}

func NewBgmUpdateEvent(mood, path string) Event {
	return Event{"type": EventBgmUpdate, "mood": mood, "path": path}
}

func NewErrorEvent(message string) Event {
	return Event{"type": EventError, "content": message}
}

func NewDoneEvent(turnNumber int, isEnding bool) Event {
	return Event{"type": EventDone, "turn_number": turnNumber, "is_ending": isEnding}
}
