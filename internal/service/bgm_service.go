package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/clients"
	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
	"github.com/titabash/gemini-hackathon-game-sub000/internal/repository"
)

const (
	instrumentalSuffix = "instrumental only, no vocals, no lyrics, no singing, no spoken voice"

	defaultBgmDurationSeconds = 60
)

// Подстроки, обязанные присутствовать в каждом уходящем музыкальном промпте.
var requiredInstrumentalTokens = []string{"instrumental", "no vocals", "no lyrics"}

// BgmService кеширует фоновую музыку по паре (scenario_id, mood) и
// гарантирует единственную генерацию на ключ: внутрипроцессный набор
// отсекает дубликаты в рамках узла, durable-слот __pending__ с UNIQUE
// ограничением - между узлами.
type BgmService struct {
	pool    *pgxpool.Pool
	bgm     repository.BgmRepository
	music   clients.MusicClient
	storage clients.StorageClient
	logger  *zap.Logger

	mu         sync.Mutex
	generating map[string]bool
}

func NewBgmService(pool *pgxpool.Pool, bgm repository.BgmRepository, music clients.MusicClient, storage clients.StorageClient, logger *zap.Logger) *BgmService {
	return &BgmService{
		pool:       pool,
		bgm:        bgm,
		music:      music,
		storage:    storage,
		logger:     logger.Named("BgmService"),
		generating: map[string]bool{},
	}
}

// NormalizeMood приводит настроение к канонической форме ключа кеша.
func NormalizeMood(mood string) string {
	return strings.ToLower(strings.TrimSpace(mood))
}

// EnforceInstrumental дополняет промпт инструментальным суффиксом, если
// хотя бы один обязательный токен отсутствует. Вокал в фоновой музыке
// недопустим вне зависимости от того, что сочинила модель.
func EnforceInstrumental(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, token := range requiredInstrumentalTokens {
		if !strings.Contains(lower, token) {
			return prompt + ", " + instrumentalSuffix
		}
	}
	return prompt
}

// GetCachedBgmPath возвращает путь готового трека в хранилище или пустую
// строку, если трека нет либо генерация еще идет.
func (s *BgmService) GetCachedBgmPath(ctx context.Context, q repository.DBTX, scenarioID uuid.UUID, mood string) (string, error) {
	track, err := s.bgm.Find(ctx, q, scenarioID, NormalizeMood(mood))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	if track.IsPending() {
		return "", nil
	}
	return track.AudioPath, nil
}

// IsPending сообщает, занят ли слот генерации для пары (scenario_id, mood).
func (s *BgmService) IsPending(ctx context.Context, q repository.DBTX, scenarioID uuid.UUID, mood string) (bool, error) {
	track, err := s.bgm.Find(ctx, q, scenarioID, NormalizeMood(mood))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return track.IsPending(), nil
}

// PublicBgmURL строит публичный URL трека по пути в хранилище.
func (s *BgmService) PublicBgmURL(path string) string {
	return s.storage.PublicURL(clients.BucketGeneratedBgm, path)
}

// GenerateAndCache выполняет полный цикл: проверка кеша, захват слота,
// генерация, загрузка, сохранение. Возвращает путь трека в хранилище.
// ErrBgmGenerationInFlight означает, что генерацию уже ведет кто-то другой.
func (s *BgmService) GenerateAndCache(ctx context.Context, q repository.DBTX, scenarioID uuid.UUID, mood, musicPrompt string) (string, error) {
	return s.generateWithSlot(ctx, q, scenarioID, mood, musicPrompt, nil)
}

// StreamAndCache - то же, что GenerateAndCache, но PCM-чанки уходят в
// onChunk по мере генерации. Попадание в кеш возвращает путь сразу, без
// единого чанка: клиент забирает готовый трек по URL.
func (s *BgmService) StreamAndCache(ctx context.Context, q repository.DBTX, scenarioID uuid.UUID, mood, musicPrompt string, onChunk func(pcm []byte) error) (string, error) {
	return s.generateWithSlot(ctx, q, scenarioID, mood, musicPrompt, onChunk)
}

func (s *BgmService) generateWithSlot(ctx context.Context, q repository.DBTX, scenarioID uuid.UUID, mood, musicPrompt string, onChunk func(pcm []byte) error) (string, error) {
	mood = NormalizeMood(mood)
	key := fmt.Sprintf("%s:%s", scenarioID, mood)

	cacheEnabled := true
	if track, err := s.bgm.Find(ctx, q, scenarioID, mood); err == nil {
		if track.IsPending() {
			return "", models.ErrBgmGenerationInFlight
		}
		return track.AudioPath, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		// Недоступный кеш не должен срывать ход: играем без кеширования.
		s.logger.Warn("BGM cache unavailable, generating without caching",
			zap.String("key", key), zap.Error(err))
		cacheEnabled = false
	}

	// Внутрипроцессный быстрый путь.
	s.mu.Lock()
	if s.generating[key] {
		s.mu.Unlock()
		return "", models.ErrBgmGenerationInFlight
	}
	s.generating[key] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.generating, key)
		s.mu.Unlock()
	}()

	slotAcquired := false
	if cacheEnabled {
		if err := s.bgm.InsertPending(ctx, q, scenarioID, mood); err != nil {
			if errors.Is(err, models.ErrBgmGenerationInFlight) {
				return "", models.ErrBgmGenerationInFlight
			}
			s.logger.Warn("BGM pending slot insert failed, generating without caching",
				zap.String("key", key), zap.Error(err))
			cacheEnabled = false
		} else {
			slotAcquired = true
		}
	}

	path, err := s.generateAndUpload(ctx, scenarioID, mood, musicPrompt, q, cacheEnabled, slotAcquired, onChunk)
	if err != nil {
		return "", err
	}
	return path, nil
}

// GenerateAndCacheDetached - вариант для WebSocket-эндпоинтов: короткие
// обращения к базе берут соединение из пула только вокруг операций кеша,
// многосекундный сетевой вызов генерации идет без занятого слота пула.
func (s *BgmService) GenerateAndCacheDetached(ctx context.Context, scenarioID uuid.UUID, mood, musicPrompt string) (string, error) {
	return s.generateWithSlot(ctx, s.pool, scenarioID, mood, musicPrompt, nil)
}

// StreamAndCacheDetached - потоковый вариант GenerateAndCacheDetached.
func (s *BgmService) StreamAndCacheDetached(ctx context.Context, scenarioID uuid.UUID, mood, musicPrompt string, onChunk func(pcm []byte) error) (string, error) {
	return s.generateWithSlot(ctx, s.pool, scenarioID, mood, musicPrompt, onChunk)
}

// GetCachedBgmPathDetached - вариант GetCachedBgmPath без внешнего хендла.
func (s *BgmService) GetCachedBgmPathDetached(ctx context.Context, scenarioID uuid.UUID, mood string) (string, error) {
	return s.GetCachedBgmPath(ctx, s.pool, scenarioID, mood)
}

// IsPendingDetached - вариант IsPending без внешнего хендла.
func (s *BgmService) IsPendingDetached(ctx context.Context, scenarioID uuid.UUID, mood string) (bool, error) {
	return s.IsPending(ctx, s.pool, scenarioID, mood)
}

func (s *BgmService) generateAndUpload(ctx context.Context, scenarioID uuid.UUID, mood, musicPrompt string, q repository.DBTX, cacheEnabled, slotAcquired bool, onChunk func(pcm []byte) error) (string, error) {
	releaseSlot := func() {
		if !slotAcquired {
			return
		}
		if err := s.bgm.DeletePending(ctx, s.pool, scenarioID, mood); err != nil {
			s.logger.Warn("Failed to release BGM pending slot",
				zap.String("scenarioID", scenarioID.String()), zap.String("mood", mood), zap.Error(err))
		}
	}

	prompt := EnforceInstrumental(musicPrompt)
	var result *clients.MusicResult
	var err error
	if onChunk != nil {
		result, err = s.music.StreamMusic(ctx, prompt, defaultBgmDurationSeconds, onChunk)
	} else {
		result, err = s.music.GenerateMusic(ctx, prompt, defaultBgmDurationSeconds)
	}
	if err != nil {
		releaseSlot()
		return "", fmt.Errorf("ошибка генерации музыки для %s/%s: %w", scenarioID, mood, err)
	}

	storagePath := fmt.Sprintf("scenarios/%s/%s.mp3", scenarioID, mood)
	if err := s.storage.Upload(ctx, clients.BucketGeneratedBgm, storagePath, result.Audio, "audio/mpeg"); err != nil {
		releaseSlot()
		return "", fmt.Errorf("ошибка загрузки трека %s/%s: %w", scenarioID, mood, err)
	}

	if cacheEnabled {
		if err := s.bgm.CompletePending(ctx, q, scenarioID, mood, storagePath, prompt, result.DurationSeconds); err != nil {
			releaseSlot()
			return "", fmt.Errorf("ошибка сохранения трека %s/%s в кеш: %w", scenarioID, mood, err)
		}
	}

	s.logger.Info("BGM track generated",
		zap.String("scenarioID", scenarioID.String()),
		zap.String("mood", mood),
		zap.Float64("durationSeconds", result.DurationSeconds),
		zap.Bool("cached", cacheEnabled),
	)
	return storagePath, nil
}
