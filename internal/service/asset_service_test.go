package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/clients"
	clientMocks "github.com/titabash/gemini-hackathon-game-sub000/internal/clients/mocks"
	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
	repoMocks "github.com/titabash/gemini-hackathon-game-sub000/internal/repository/mocks"
)

func newAssetService() (*AssetService, *repoMocks.SceneBackgroundRepository, *repoMocks.NpcRepository, *clientMocks.ImageClient, *clientMocks.StorageClient) {
	backgrounds := new(repoMocks.SceneBackgroundRepository)
	npcs := new(repoMocks.NpcRepository)
	image := new(clientMocks.ImageClient)
	storage := new(clientMocks.StorageClient)
	svc := NewAssetService(backgrounds, npcs, image, storage, zap.NewNop())
	return svc, backgrounds, npcs, image, storage
}

func strPtr(s string) *string { return &s }

func TestNpcBucketAndPath(t *testing.T) {
	tests := []struct {
		input  string
		bucket string
		path   string
	}{
		{"scenario-assets/npcs/mira.png", clients.BucketScenarioAssets, "npcs/mira.png"},
		{"generated-images/sessions/s1/x.png", clients.BucketGeneratedImages, "sessions/s1/x.png"},
		{"sessions/s1/x.png", clients.BucketGeneratedImages, "sessions/s1/x.png"},
		{"npcs/mira.png", clients.BucketScenarioAssets, "npcs/mira.png"},
	}
	for _, tt := range tests {
		bucket, path := npcBucketAndPath(tt.input)
		assert.Equal(t, tt.bucket, bucket, tt.input)
		assert.Equal(t, tt.path, path, tt.input)
	}
}

func TestCollectBackgroundKeys_DedupAndOrder(t *testing.T) {
	nodes := []models.SceneNode{
		{Background: strPtr("forest")},
		{Background: strPtr("cave")},
		{Background: strPtr("forest")},
		{Background: strPtr("")},
		{},
	}
	assert.Equal(t, []string{"forest", "cave"}, collectBackgroundKeys(nodes))
}

func TestCollectCharacterKeys(t *testing.T) {
	joy := "joy"
	nodes := []models.SceneNode{
		{Characters: []models.CharacterDisplay{
			{NpcName: "Mira"},
			{NpcName: "Mira", Expression: &joy},
		}},
		{Characters: []models.CharacterDisplay{
			// Повтор той же пары (имя, выражение) схлопывается.
			{NpcName: "Mira", Expression: &joy},
			{NpcName: ""},
			{NpcName: "Guard"},
		}},
	}

	keys := collectCharacterKeys(nodes)

	require.Len(t, keys, 3)
	assert.Equal(t, "Mira", keys[0].name)
	assert.Nil(t, keys[0].expression)
	assert.Equal(t, "Mira", keys[1].name)
	assert.Equal(t, "joy", *keys[1].expression)
	assert.Equal(t, "Guard", keys[2].name)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 100))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}

func TestStream_BackgroundByUUID(t *testing.T) {
	svc, backgrounds, npcs, _, _ := newAssetService()
	ctx := context.Background()
	sessionID := uuid.New()
	scenarioID := uuid.New()
	bgID := uuid.New()

	backgrounds.On("GetByID", ctx, nil, bgID).Return(&models.SceneBackground{
		ID:         bgID,
		ScenarioID: &scenarioID,
		ImagePath:  "backgrounds/tavern.png",
	}, nil).Once()
	npcs.On("GetBySessionAndName", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, models.ErrNotFound).Maybe()

	nodes := []models.SceneNode{{Background: strPtr(bgID.String())}}

	var events []models.Event
	for e := range svc.Stream(ctx, nil, sessionID, scenarioID, nodes) {
		events = append(events, e)
	}

	require.Len(t, events, 1)
	assert.Equal(t, models.EventAssetReady, events[0].EventType())
	assert.Equal(t, bgID.String(), events[0]["key"])
	// Фон из области сценария живет в scenario-assets.
	assert.Equal(t, "scenario-assets/backgrounds/tavern.png", events[0]["path"])
}

func TestStream_BackgroundGeneratedOnCacheMiss(t *testing.T) {
	svc, backgrounds, _, image, storage := newAssetService()
	ctx := context.Background()
	sessionID := uuid.New()
	scenarioID := uuid.New()

	backgrounds.On("FindBySessionAndDescription", ctx, nil, sessionID, "misty forest").Return(nil, models.ErrNotFound).Once()
	backgrounds.On("FindByScenarioAndDescription", ctx, nil, scenarioID, "misty forest").Return(nil, models.ErrNotFound).Once()
	image.On("GenerateImage", ctx, "Fantasy RPG scene: misty forest").Return([]byte{1}, "png", nil).Once()
	storage.On("Upload", ctx, clients.BucketGeneratedImages, mock.AnythingOfType("string"), []byte{1}, "image/png").Return(nil).Once()
	backgrounds.On("Create", ctx, nil, mock.MatchedBy(func(bg *models.SceneBackground) bool {
		return bg.SessionID != nil && *bg.SessionID == sessionID &&
			bg.Description == "misty forest" && bg.LocationName == "misty forest"
	})).Return(nil).Once()

	nodes := []models.SceneNode{{Background: strPtr("misty forest")}}

	var events []models.Event
	for e := range svc.Stream(ctx, nil, sessionID, scenarioID, nodes) {
		events = append(events, e)
	}

	require.Len(t, events, 1)
	assert.Equal(t, "misty forest", events[0]["key"])
	assert.Contains(t, events[0]["path"], "generated-images/sessions/")
	backgrounds.AssertExpectations(t)
}

func TestStream_NpcEmotionCacheHit(t *testing.T) {
	svc, _, npcs, _, _ := newAssetService()
	ctx := context.Background()
	sessionID := uuid.New()
	imagePath := "npcs/mira.png"

	npcs.On("GetBySessionAndName", ctx, nil, sessionID, "Mira").Return(&models.NPC{
		ID:            uuid.New(),
		Name:          "Mira",
		ImagePath:     &imagePath,
		EmotionImages: map[string]string{"joy": "sessions/s1/mira-joy.png"},
	}, nil).Once()

	joy := "joy"
	nodes := []models.SceneNode{
		{Characters: []models.CharacterDisplay{{NpcName: "Mira", Expression: &joy}}},
	}

	var events []models.Event
	for e := range svc.Stream(ctx, nil, sessionID, uuid.New(), nodes) {
		events = append(events, e)
	}

	require.Len(t, events, 2)
	// Дефолтный портрет эмитится в дополнение к эмоции.
	assert.Equal(t, "npc:Mira:default", events[0]["key"])
	assert.Equal(t, "scenario-assets/npcs/mira.png", events[0]["path"])
	assert.Equal(t, "npc:Mira:joy", events[1]["key"])
	assert.Equal(t, "generated-images/sessions/s1/mira-joy.png", events[1]["path"])
}

func TestStream_NpcEmotionGeneratedFromReference(t *testing.T) {
	svc, _, npcs, image, storage := newAssetService()
	ctx := context.Background()
	sessionID := uuid.New()
	npcID := uuid.New()
	imagePath := "npcs/mira.png"

	npcs.On("GetBySessionAndName", ctx, nil, sessionID, "Mira").Return(&models.NPC{
		ID:        npcID,
		Name:      "Mira",
		ImagePath: &imagePath,
		Profile:   map[string]any{"description": "a silver-haired ranger"},
	}, nil).Once()
	storage.On("Download", ctx, clients.BucketScenarioAssets, "npcs/mira.png").Return([]byte{7}, nil).Once()
	image.On("GenerateImageWithReference", ctx, mock.MatchedBy(func(prompt string) bool {
		return assert.Contains(t, prompt, "Character: Mira") &&
			assert.Contains(t, prompt, "Expression: anger") &&
			assert.Contains(t, prompt, "a silver-haired ranger")
	}), []byte{7}).Return([]byte{8}, "png", nil).Once()
	storage.On("Upload", ctx, clients.BucketGeneratedImages, mock.AnythingOfType("string"), []byte{8}, "image/png").Return(nil).Once()
	npcs.On("UpdateEmotionImage", ctx, nil, npcID, "anger", mock.AnythingOfType("string")).Return(nil).Once()

	anger := "anger"
	nodes := []models.SceneNode{
		{Characters: []models.CharacterDisplay{{NpcName: "Mira", Expression: &anger}}},
	}

	var events []models.Event
	for e := range svc.Stream(ctx, nil, sessionID, uuid.New(), nodes) {
		events = append(events, e)
	}

	require.Len(t, events, 2)
	assert.Equal(t, "npc:Mira:anger", events[1]["key"])
	// Дефолтный портрет уже существовал, UpdateImagePath не вызывается.
	npcs.AssertNotCalled(t, "UpdateImagePath", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	npcs.AssertExpectations(t)
}

func TestResolveLegacyImage(t *testing.T) {
	ctx := context.Background()
	sessionID := uuid.New()

	t.Run("skipped when nodes present", func(t *testing.T) {
		svc, _, _, _, _ := newAssetService()
		decision := &models.GmDecisionResponse{
			Nodes:            []models.SceneNode{{Type: models.SceneNodeNarration, Text: "..."}},
			SceneDescription: strPtr("a tavern"),
		}
		_, ok := svc.ResolveLegacyImage(ctx, nil, sessionID, decision)
		assert.False(t, ok)
	})

	t.Run("selected background id wins", func(t *testing.T) {
		svc, backgrounds, _, _, _ := newAssetService()
		bgID := uuid.New()
		backgrounds.On("GetByID", ctx, nil, bgID).Return(&models.SceneBackground{
			ID:        bgID,
			ImagePath: "sessions/s1/x.png",
		}, nil).Once()

		decision := &models.GmDecisionResponse{SelectedBackgroundID: strPtr(bgID.String())}

		event, ok := svc.ResolveLegacyImage(ctx, nil, sessionID, decision)
		require.True(t, ok)
		assert.Equal(t, models.EventImageUpdate, event.EventType())
		assert.Equal(t, "generated-images/sessions/s1/x.png", event["path"])
	})

	t.Run("scene description cache hit", func(t *testing.T) {
		svc, backgrounds, _, _, _ := newAssetService()
		backgrounds.On("FindBySessionAndDescription", ctx, nil, sessionID, "a tavern").Return(&models.SceneBackground{
			ImagePath: "sessions/s1/tavern.png",
		}, nil).Once()

		decision := &models.GmDecisionResponse{SceneDescription: strPtr("a tavern")}

		event, ok := svc.ResolveLegacyImage(ctx, nil, sessionID, decision)
		require.True(t, ok)
		assert.Equal(t, "generated-images/sessions/s1/tavern.png", event["path"])
	})

	t.Run("nothing to resolve", func(t *testing.T) {
		svc, _, _, _, _ := newAssetService()
		_, ok := svc.ResolveLegacyImage(ctx, nil, sessionID, &models.GmDecisionResponse{})
		assert.False(t, ok)
	})
}
