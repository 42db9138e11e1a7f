package service

import (
	"context"
	"errors"
	"fmt"
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

func TestNormalizeMood(t *testing.T) {
	assert.Equal(t, "battle", NormalizeMood("  Battle "))
	assert.Equal(t, "calm", NormalizeMood("CALM"))
	assert.Equal(t, "", NormalizeMood("   "))
}

func TestEnforceInstrumental(t *testing.T) {
	t.Run("appends suffix when tokens missing", func(t *testing.T) {
		out := EnforceInstrumental("epic battle drums")
		assert.Contains(t, out, "epic battle drums")
		assert.Contains(t, out, "instrumental only")
		assert.Contains(t, out, "no vocals")
		assert.Contains(t, out, "no lyrics")
	})

	t.Run("keeps prompt that already satisfies tokens", func(t *testing.T) {
		prompt := "Calm Instrumental piano, no vocals, no lyrics"
		assert.Equal(t, prompt, EnforceInstrumental(prompt))
	})

	t.Run("partial tokens still get suffix", func(t *testing.T) {
		out := EnforceInstrumental("instrumental flute melody")
		assert.Contains(t, out, instrumentalSuffix)
	})
}

func newBgmService() (*BgmService, *repoMocks.BgmRepository, *clientMocks.MusicClient, *clientMocks.StorageClient) {
	bgmRepo := new(repoMocks.BgmRepository)
	music := new(clientMocks.MusicClient)
	storage := new(clientMocks.StorageClient)
	svc := NewBgmService(nil, bgmRepo, music, storage, zap.NewNop())
	return svc, bgmRepo, music, storage
}

func TestGetCachedBgmPath(t *testing.T) {
	ctx := context.Background()
	scenarioID := uuid.New()

	t.Run("absent track yields empty path", func(t *testing.T) {
		svc, bgmRepo, _, _ := newBgmService()
		bgmRepo.On("Find", ctx, nil, scenarioID, "battle").Return(nil, models.ErrNotFound).Once()

		path, err := svc.GetCachedBgmPath(ctx, nil, scenarioID, " Battle ")

		assert.NoError(t, err)
		assert.Empty(t, path)
	})

	t.Run("pending track yields empty path", func(t *testing.T) {
		svc, bgmRepo, _, _ := newBgmService()
		bgmRepo.On("Find", ctx, nil, scenarioID, "battle").Return(&models.BgmTrack{
			AudioPath: models.BgmPendingPath,
		}, nil).Once()

		path, err := svc.GetCachedBgmPath(ctx, nil, scenarioID, "battle")

		assert.NoError(t, err)
		assert.Empty(t, path)
	})

	t.Run("ready track yields its path", func(t *testing.T) {
		svc, bgmRepo, _, _ := newBgmService()
		bgmRepo.On("Find", ctx, nil, scenarioID, "battle").Return(&models.BgmTrack{
			AudioPath: "scenarios/abc/battle.mp3",
		}, nil).Once()

		path, err := svc.GetCachedBgmPath(ctx, nil, scenarioID, "battle")

		assert.NoError(t, err)
		assert.Equal(t, "scenarios/abc/battle.mp3", path)
	})
}

func TestGenerateAndCache(t *testing.T) {
	ctx := context.Background()
	scenarioID := uuid.New()
	expectedPath := fmt.Sprintf("scenarios/%s/battle.mp3", scenarioID)

	t.Run("cache hit skips generation", func(t *testing.T) {
		svc, bgmRepo, music, _ := newBgmService()
		bgmRepo.On("Find", ctx, nil, scenarioID, "battle").Return(&models.BgmTrack{
			AudioPath: "scenarios/abc/battle.mp3",
		}, nil).Once()

		path, err := svc.GenerateAndCache(ctx, nil, scenarioID, "battle", "drums")

		assert.NoError(t, err)
		assert.Equal(t, "scenarios/abc/battle.mp3", path)
		music.AssertNotCalled(t, "GenerateMusic", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("pending slot reports in-flight", func(t *testing.T) {
		svc, bgmRepo, _, _ := newBgmService()
		bgmRepo.On("Find", ctx, nil, scenarioID, "battle").Return(&models.BgmTrack{
			AudioPath: models.BgmPendingPath,
		}, nil).Once()

		_, err := svc.GenerateAndCache(ctx, nil, scenarioID, "battle", "drums")

		assert.ErrorIs(t, err, models.ErrBgmGenerationInFlight)
	})

	t.Run("miss generates uploads and caches", func(t *testing.T) {
		svc, bgmRepo, music, storage := newBgmService()
		bgmRepo.On("Find", ctx, nil, scenarioID, "battle").Return(nil, models.ErrNotFound).Once()
		bgmRepo.On("InsertPending", ctx, nil, scenarioID, "battle").Return(nil).Once()
		music.On("GenerateMusic", ctx, mock.MatchedBy(func(prompt string) bool {
			return assert.Contains(t, prompt, "drums") && assert.Contains(t, prompt, "no vocals")
		}), defaultBgmDurationSeconds).Return(&clients.MusicResult{
			Audio:           []byte{1, 2, 3},
			DurationSeconds: 61.5,
		}, nil).Once()
		storage.On("Upload", ctx, clients.BucketGeneratedBgm, expectedPath, []byte{1, 2, 3}, "audio/mpeg").Return(nil).Once()
		bgmRepo.On("CompletePending", ctx, nil, scenarioID, "battle", expectedPath, mock.AnythingOfType("string"), 61.5).Return(nil).Once()

		path, err := svc.GenerateAndCache(ctx, nil, scenarioID, "Battle", "drums")

		require.NoError(t, err)
		assert.Equal(t, expectedPath, path)
		bgmRepo.AssertExpectations(t)
		music.AssertExpectations(t)
		storage.AssertExpectations(t)
	})

	t.Run("durable slot conflict reports in-flight", func(t *testing.T) {
		svc, bgmRepo, music, _ := newBgmService()
		bgmRepo.On("Find", ctx, nil, scenarioID, "battle").Return(nil, models.ErrNotFound).Once()
		bgmRepo.On("InsertPending", ctx, nil, scenarioID, "battle").Return(models.ErrBgmGenerationInFlight).Once()

		_, err := svc.GenerateAndCache(ctx, nil, scenarioID, "battle", "drums")

		assert.ErrorIs(t, err, models.ErrBgmGenerationInFlight)
		music.AssertNotCalled(t, "GenerateMusic", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("in-process duplicate reports in-flight", func(t *testing.T) {
		svc, bgmRepo, music, _ := newBgmService()
		bgmRepo.On("Find", ctx, nil, scenarioID, "battle").Return(nil, models.ErrNotFound).Once()

		svc.mu.Lock()
		svc.generating[fmt.Sprintf("%s:battle", scenarioID)] = true
		svc.mu.Unlock()

		_, err := svc.GenerateAndCache(ctx, nil, scenarioID, "battle", "drums")

		assert.ErrorIs(t, err, models.ErrBgmGenerationInFlight)
		music.AssertNotCalled(t, "GenerateMusic", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("generation failure releases durable slot", func(t *testing.T) {
		svc, bgmRepo, music, _ := newBgmService()
		bgmRepo.On("Find", ctx, nil, scenarioID, "battle").Return(nil, models.ErrNotFound).Once()
		bgmRepo.On("InsertPending", ctx, nil, scenarioID, "battle").Return(nil).Once()
		music.On("GenerateMusic", ctx, mock.Anything, defaultBgmDurationSeconds).Return(nil, errors.New("provider down")).Once()
		bgmRepo.On("DeletePending", ctx, mock.Anything, scenarioID, "battle").Return(nil).Once()

		_, err := svc.GenerateAndCache(ctx, nil, scenarioID, "battle", "drums")

		assert.Error(t, err)
		bgmRepo.AssertExpectations(t)
	})

	t.Run("cache unavailable still generates without caching", func(t *testing.T) {
		svc, bgmRepo, music, storage := newBgmService()
		bgmRepo.On("Find", ctx, nil, scenarioID, "battle").Return(nil, errors.New("db down")).Once()
		music.On("GenerateMusic", ctx, mock.Anything, defaultBgmDurationSeconds).Return(&clients.MusicResult{
			Audio:           []byte{9},
			DurationSeconds: 60,
		}, nil).Once()
		storage.On("Upload", ctx, clients.BucketGeneratedBgm, expectedPath, []byte{9}, "audio/mpeg").Return(nil).Once()

		path, err := svc.GenerateAndCache(ctx, nil, scenarioID, "battle", "drums")

		require.NoError(t, err)
		assert.Equal(t, expectedPath, path)
		bgmRepo.AssertNotCalled(t, "InsertPending", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		bgmRepo.AssertNotCalled(t, "CompletePending", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestStreamAndCache(t *testing.T) {
	ctx := context.Background()
	scenarioID := uuid.New()
	expectedPath := fmt.Sprintf("scenarios/%s/battle.mp3", scenarioID)

	t.Run("chunks delivered in order before completion", func(t *testing.T) {
		svc, bgmRepo, music, storage := newBgmService()
		bgmRepo.On("Find", ctx, nil, scenarioID, "battle").Return(nil, models.ErrNotFound).Once()
		bgmRepo.On("InsertPending", ctx, nil, scenarioID, "battle").Return(nil).Once()
		music.On("StreamMusic", ctx, mock.Anything, defaultBgmDurationSeconds, mock.Anything).
			Run(func(args mock.Arguments) {
				onChunk := args.Get(3).(func([]byte) error)
				require.NoError(t, onChunk([]byte("chunk-one")))
				require.NoError(t, onChunk([]byte("chunk-two")))
			}).
			Return(&clients.MusicResult{Audio: []byte{7}, DurationSeconds: 61.5}, nil).Once()
		storage.On("Upload", ctx, clients.BucketGeneratedBgm, expectedPath, []byte{7}, "audio/mpeg").Return(nil).Once()
		bgmRepo.On("CompletePending", ctx, nil, scenarioID, "battle", expectedPath, mock.AnythingOfType("string"), 61.5).Return(nil).Once()

		var chunks []string
		path, err := svc.StreamAndCache(ctx, nil, scenarioID, "battle", "war drums", func(pcm []byte) error {
			chunks = append(chunks, string(pcm))
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, expectedPath, path)
		assert.Equal(t, []string{"chunk-one", "chunk-two"}, chunks)
		bgmRepo.AssertExpectations(t)
		storage.AssertExpectations(t)
	})

	t.Run("cache hit returns path without chunks", func(t *testing.T) {
		svc, bgmRepo, music, _ := newBgmService()
		bgmRepo.On("Find", ctx, nil, scenarioID, "battle").Return(&models.BgmTrack{
			AudioPath: expectedPath,
		}, nil).Once()

		chunkCount := 0
		path, err := svc.StreamAndCache(ctx, nil, scenarioID, "battle", "war drums", func(pcm []byte) error {
			chunkCount++
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, expectedPath, path)
		assert.Zero(t, chunkCount)
		music.AssertNotCalled(t, "StreamMusic", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("chunk delivery failure releases slot", func(t *testing.T) {
		svc, bgmRepo, music, _ := newBgmService()
		bgmRepo.On("Find", ctx, nil, scenarioID, "battle").Return(nil, models.ErrNotFound).Once()
		bgmRepo.On("InsertPending", ctx, nil, scenarioID, "battle").Return(nil).Once()
		music.On("StreamMusic", ctx, mock.Anything, defaultBgmDurationSeconds, mock.Anything).
			Return(nil, errors.New("chunk sink closed")).Once()
		bgmRepo.On("DeletePending", ctx, mock.Anything, scenarioID, "battle").Return(nil).Once()

		_, err := svc.StreamAndCache(ctx, nil, scenarioID, "battle", "war drums", func(pcm []byte) error {
			return errors.New("chunk sink closed")
		})

		require.Error(t, err)
		bgmRepo.AssertExpectations(t)
	})
}
