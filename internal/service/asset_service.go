package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/clients"
	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
	"github.com/titabash/gemini-hackathon-game-sub000/internal/repository"
)

const sceneImagePromptPrefix = "Fantasy RPG scene: "

// AssetService находит или генерирует визуальные ассеты хода: фоны сцен
// и портреты NPC с вариантами эмоций. Каждый найденный ассет эмитится
// событием assetReady; сбой генерации события не дает.
type AssetService struct {
	backgrounds repository.SceneBackgroundRepository
	npcs        repository.NpcRepository
	image       clients.ImageClient
	storage     clients.StorageClient
	logger      *zap.Logger
}

func NewAssetService(
	backgrounds repository.SceneBackgroundRepository,
	npcs repository.NpcRepository,
	image clients.ImageClient,
	storage clients.StorageClient,
	logger *zap.Logger,
) *AssetService {
	return &AssetService{
		backgrounds: backgrounds,
		npcs:        npcs,
		image:       image,
		storage:     storage,
		logger:      logger.Named("AssetService"),
	}
}

// Stream асинхронно резолвит все ассеты узлов сцены и закрывает канал
// по завершении. Каждый ключ резолвится не более одного раза за ход.
func (s *AssetService) Stream(ctx context.Context, q repository.DBTX, sessionID, scenarioID uuid.UUID, nodes []models.SceneNode) <-chan models.Event {
	out := make(chan models.Event)
	go func() {
		defer close(out)
		send := func(e models.Event) bool {
			select {
			case out <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}
		s.resolveBackgrounds(ctx, q, sessionID, scenarioID, nodes, send)
		s.resolveNpcAssets(ctx, q, sessionID, nodes, send)
	}()
	return out
}

func (s *AssetService) resolveBackgrounds(ctx context.Context, q repository.DBTX, sessionID, scenarioID uuid.UUID, nodes []models.SceneNode, send func(models.Event) bool) {
	for _, key := range collectBackgroundKeys(nodes) {
		path, ok := s.resolveBackground(ctx, q, sessionID, scenarioID, key)
		if !ok {
			continue
		}
		if !send(models.NewAssetReadyEvent(key, path)) {
			return
		}
	}
}

// resolveBackground: UUID - прямая выборка, текст - кеш по description
// в области сессии, затем сценария, иначе генерация и сохранение.
func (s *AssetService) resolveBackground(ctx context.Context, q repository.DBTX, sessionID, scenarioID uuid.UUID, key string) (string, bool) {
	if id, err := uuid.Parse(key); err == nil {
		bg, err := s.backgrounds.GetByID(ctx, q, id)
		if err != nil {
			if !errors.Is(err, models.ErrNotFound) {
				s.logger.Warn("Background lookup failed", zap.String("key", key), zap.Error(err))
			}
			return "", false
		}
		if bg.ImagePath == "" {
			return "", false
		}
		bucket := clients.BucketGeneratedImages
		if bg.ScenarioID != nil {
			bucket = clients.BucketScenarioAssets
		}
		return fmt.Sprintf("%s/%s", bucket, bg.ImagePath), true
	}

	if cached, err := s.backgrounds.FindBySessionAndDescription(ctx, q, sessionID, key); err == nil && cached.ImagePath != "" {
		return fmt.Sprintf("%s/%s", clients.BucketGeneratedImages, cached.ImagePath), true
	} else if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Warn("Background cache lookup failed", zap.String("key", key), zap.Error(err))
		return "", false
	}

	if cached, err := s.backgrounds.FindByScenarioAndDescription(ctx, q, scenarioID, key); err == nil && cached.ImagePath != "" {
		return fmt.Sprintf("%s/%s", clients.BucketGeneratedImages, cached.ImagePath), true
	} else if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Warn("Background scenario cache lookup failed", zap.String("key", key), zap.Error(err))
		return "", false
	}

	path, err := s.generateBackground(ctx, q, sessionID, key)
	if err != nil {
		s.logger.Warn("Background generation failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return fmt.Sprintf("%s/%s", clients.BucketGeneratedImages, path), true
}

// GenerateBackground генерирует фон по текстовому описанию, загружает его
// в хранилище и кеширует как SceneBackground области сессии. Возвращает
// путь в хранилище без префикса бакета.
func (s *AssetService) generateBackground(ctx context.Context, q repository.DBTX, sessionID uuid.UUID, description string) (string, error) {
	data, ext, err := s.image.GenerateImage(ctx, sceneImagePromptPrefix+description)
	if err != nil {
		return "", err
	}
	storagePath := fmt.Sprintf("sessions/%s/%s.%s", sessionID, uuid.New(), ext)
	if err := s.storage.Upload(ctx, clients.BucketGeneratedImages, storagePath, data, "image/"+ext); err != nil {
		return "", err
	}

	if err := s.backgrounds.Create(ctx, q, &models.SceneBackground{
		SessionID:    &sessionID,
		LocationName: truncate(description, 100),
		Description:  description,
		ImagePath:    storagePath,
	}); err != nil {
		return "", err
	}
	return storagePath, nil
}

func (s *AssetService) resolveNpcAssets(ctx context.Context, q repository.DBTX, sessionID uuid.UUID, nodes []models.SceneNode, send func(models.Event) bool) {
	sent := map[string]bool{}
	for _, req := range collectCharacterKeys(nodes) {
		npc, err := s.npcs.GetBySessionAndName(ctx, q, sessionID, req.name)
		if err != nil {
			if !errors.Is(err, models.ErrNotFound) {
				s.logger.Warn("NPC lookup failed", zap.String("npc", req.name), zap.Error(err))
			}
			continue
		}

		// Дефолтный портрет эмитится один раз на NPC в дополнение к
		// эмоциональному варианту - клиент прогревает слоты заранее.
		defaultKey := fmt.Sprintf("npc:%s:default", req.name)
		if npc.ImagePath != nil && *npc.ImagePath != "" && !sent[defaultKey] {
			sent[defaultKey] = true
			if !send(models.NewAssetReadyEvent(defaultKey, bucketedNpcPath(*npc.ImagePath))) {
				return
			}
		}

		expression := "default"
		if req.expression != nil {
			expression = *req.expression
		}
		assetKey := fmt.Sprintf("npc:%s:%s", req.name, expression)
		if sent[assetKey] {
			continue
		}
		sent[assetKey] = true

		if req.expression != nil {
			if path, ok := npc.EmotionImages[*req.expression]; ok && path != "" {
				if !send(models.NewAssetReadyEvent(assetKey, bucketedNpcPath(path))) {
					return
				}
				continue
			}
		} else {
			// Дефолт уже эмитнут выше (или отсутствует вовсе).
			continue
		}

		path, err := s.generateNpcEmotion(ctx, q, sessionID, npc, *req.expression)
		if err != nil {
			s.logger.Warn("NPC emotion image generation failed",
				zap.String("npc", req.name), zap.String("expression", *req.expression), zap.Error(err))
			continue
		}
		if !send(models.NewAssetReadyEvent(assetKey, fmt.Sprintf("%s/%s", clients.BucketGeneratedImages, path))) {
			return
		}
	}
}

// generateNpcEmotion генерирует эмоциональный вариант портрета. При наличии
// дефолтного портрета он подается как референс, чтобы сохранить наряд,
// прическу и лицо персонажа.
func (s *AssetService) generateNpcEmotion(ctx context.Context, q repository.DBTX, sessionID uuid.UUID, npc *models.NPC, expression string) (string, error) {
	profileDesc, _ := npc.Profile["description"].(string)

	var reference []byte
	if npc.ImagePath != nil && *npc.ImagePath != "" {
		bucket, objectPath := npcBucketAndPath(*npc.ImagePath)
		data, err := s.storage.Download(ctx, bucket, objectPath)
		if err != nil {
			s.logger.Warn("Reference portrait download failed",
				zap.String("npc", npc.Name), zap.Error(err))
		} else {
			reference = data
		}
	}

	prompt := fmt.Sprintf(
		"Full-body standing fantasy RPG character portrait, single character, "+
			"portrait orientation, 2:3 vertical composition, transparent background, "+
			"no text, no frame, no watermark. "+
			"Character: %s. Expression: %s. "+
			"Preserve the same outfit, hairstyle, face, and colors as the "+
			"reference image when provided. "+
			"%s",
		npc.Name, expression, profileDesc,
	)

	data, ext, err := s.image.GenerateImageWithReference(ctx, prompt, reference)
	if err != nil {
		return "", err
	}
	storagePath := fmt.Sprintf("sessions/%s/%s.%s", sessionID, uuid.New(), ext)
	if err := s.storage.Upload(ctx, clients.BucketGeneratedImages, storagePath, data, "image/"+ext); err != nil {
		return "", err
	}

	if npc.ImagePath == nil || *npc.ImagePath == "" {
		if err := s.npcs.UpdateImagePath(ctx, q, npc.ID, storagePath); err != nil {
			return "", err
		}
	}
	if err := s.npcs.UpdateEmotionImage(ctx, q, npc.ID, expression, storagePath); err != nil {
		return "", err
	}
	return storagePath, nil
}

// ResolveLegacyImage обслуживает решения без nodes[]: единственное событие
// imageUpdate по selected_background_id либо по scene_description.
func (s *AssetService) ResolveLegacyImage(ctx context.Context, q repository.DBTX, sessionID uuid.UUID, decision *models.GmDecisionResponse) (models.Event, bool) {
	if len(decision.Nodes) > 0 {
		return nil, false
	}

	if decision.SelectedBackgroundID != nil && *decision.SelectedBackgroundID != "" {
		if id, err := uuid.Parse(*decision.SelectedBackgroundID); err == nil {
			bg, err := s.backgrounds.GetByID(ctx, q, id)
			if err == nil && bg.ImagePath != "" {
				bucket := clients.BucketGeneratedImages
				if bg.ScenarioID != nil {
					bucket = clients.BucketScenarioAssets
				}
				return models.NewImageUpdateEvent(fmt.Sprintf("%s/%s", bucket, bg.ImagePath)), true
			}
		}
	}

	if decision.SceneDescription != nil && *decision.SceneDescription != "" {
		desc := *decision.SceneDescription
		if cached, err := s.backgrounds.FindBySessionAndDescription(ctx, q, sessionID, desc); err == nil && cached.ImagePath != "" {
			return models.NewImageUpdateEvent(fmt.Sprintf("%s/%s", clients.BucketGeneratedImages, cached.ImagePath)), true
		}
		path, err := s.generateBackground(ctx, q, sessionID, desc)
		if err != nil {
			s.logger.Warn("Scene image generation failed", zap.String("description", desc), zap.Error(err))
			return nil, false
		}
		return models.NewImageUpdateEvent(fmt.Sprintf("%s/%s", clients.BucketGeneratedImages, path)), true
	}
	return nil, false
}

type characterKey struct {
	name       string
	expression *string
}

func collectBackgroundKeys(nodes []models.SceneNode) []string {
	seen := map[string]bool{}
	keys := make([]string, 0)
	for _, node := range nodes {
		if node.Background == nil || *node.Background == "" || seen[*node.Background] {
			continue
		}
		seen[*node.Background] = true
		keys = append(keys, *node.Background)
	}
	return keys
}

func collectCharacterKeys(nodes []models.SceneNode) []characterKey {
	type pair struct{ name, expr string }
	seen := map[pair]bool{}
	keys := make([]characterKey, 0)
	for _, node := range nodes {
		for _, ch := range node.Characters {
			if ch.NpcName == "" {
				continue
			}
			p := pair{name: ch.NpcName}
			if ch.Expression != nil {
				p.expr = *ch.Expression
			}
			if seen[p] {
				continue
			}
			seen[p] = true
			keys = append(keys, characterKey{name: ch.NpcName, expression: ch.Expression})
		}
	}
	return keys
}

// npcBucketAndPath определяет бакет для пути портрета из базы. Явный
// префикс бакета срезается; пути sessions/ живут в generated-images,
// остальные - в scenario-assets.
func npcBucketAndPath(path string) (string, string) {
	if rest, ok := strings.CutPrefix(path, clients.BucketScenarioAssets+"/"); ok {
		return clients.BucketScenarioAssets, rest
	}
	if rest, ok := strings.CutPrefix(path, clients.BucketGeneratedImages+"/"); ok {
		return clients.BucketGeneratedImages, rest
	}
	if strings.HasPrefix(path, "sessions/") {
		return clients.BucketGeneratedImages, path
	}
	return clients.BucketScenarioAssets, path
}

func bucketedNpcPath(path string) string {
	bucket, objectPath := npcBucketAndPath(path)
	return fmt.Sprintf("%s/%s", bucket, objectPath)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
