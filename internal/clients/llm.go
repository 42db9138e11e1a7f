package clients

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
)

// LLMClient - интерфейс к языковой модели, принимающей решения гейм-мастера.
type LLMClient interface {
	// GenerateDecision отправляет собранный контекст хода и возвращает
	// распарсенное структурированное решение вместе с сырым JSON ответа.
	GenerateDecision(ctx context.Context, systemPrompt, userPrompt string) (*models.GmDecisionResponse, []byte, error)
	// Complete выполняет обычный текстовый запрос (сжатие истории и т.п.).
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ImageClient - интерфейс к модели генерации изображений.
type ImageClient interface {
	// GenerateImage возвращает байты изображения и расширение файла.
	GenerateImage(ctx context.Context, prompt string) ([]byte, string, error)
	// GenerateImageWithReference редактирует референсное изображение по
	// промпту. Пустой reference эквивалентен GenerateImage.
	GenerateImageWithReference(ctx context.Context, prompt string, reference []byte) ([]byte, string, error)
}

// Compile-time checks
var (
	_ LLMClient   = (*openAIClient)(nil)
	_ ImageClient = (*openAIClient)(nil)
)

// OpenAIConfig содержит конфигурацию для клиента нейросети.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	ModelName  string
	ImageModel string
	Timeout    time.Duration
	MaxRetries int
}

type openAIClient struct {
	client     *openai.Client
	modelName  string
	imageModel string
	timeout    time.Duration
	maxRetries int
	logger     *zap.Logger
}

// NewOpenAIClient создает новый клиент нейросети.
func NewOpenAIClient(cfg OpenAIConfig, logger *zap.Logger) (*openAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("не указан API ключ для LLM")
	}
	if cfg.ModelName == "" {
		cfg.ModelName = "gpt-4o-mini"
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = "dall-e-3"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &openAIClient{
		client:     openai.NewClientWithConfig(config),
		modelName:  cfg.ModelName,
		imageModel: cfg.ImageModel,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		logger:     logger.Named("OpenAIClient"),
	}, nil
}

// decisionTemperature: первая попытка творческая (0.8), все повторные -
// детерминированные (0.0), чтобы повысить шанс валидного JSON.
func (c *openAIClient) decisionTemperature(attempt int) float32 {
	if attempt <= 1 {
		return 0.8
	}
	return 0
}

func (c *openAIClient) GenerateDecision(ctx context.Context, systemPrompt, userPrompt string) (*models.GmDecisionResponse, []byte, error) {
	attempts := 0
	for attempts < c.maxRetries {
		attempts++

		req := openai.ChatCompletionRequest{
			Model: c.modelName,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: systemPrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: userPrompt,
				},
			},
			Temperature: c.decisionTemperature(attempts),
			MaxTokens:   8000,
			TopP:        0.95,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		}

		// Таймаут на каждую попытку отдельно: паузы между ретраями не
		// должны съедать бюджет последнего вызова.
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.client.CreateChatCompletion(attemptCtx, req)
		cancel()
		if err != nil {
			c.logger.Error("Ошибка при вызове CreateChatCompletion", zap.Int("attempt", attempts), zap.Error(err))
			if attempts >= c.maxRetries {
				return nil, nil, fmt.Errorf("ошибка LLM после %d попыток: %w", attempts, err)
			}
			time.Sleep(time.Duration(attempts) * time.Second)
			continue
		}

		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			c.logger.Warn("Пустой ответ от LLM", zap.Int("attempt", attempts))
			if attempts >= c.maxRetries {
				return nil, nil, errors.New("пустой ответ от API после нескольких попыток")
			}
			time.Sleep(time.Duration(attempts) * time.Second)
			continue
		}

		raw := []byte(resp.Choices[0].Message.Content)

		var decision models.GmDecisionResponse
		if err := json.Unmarshal(raw, &decision); err != nil {
			c.logger.Warn("Ответ LLM не является валидным JSON, пробуем снова",
				zap.Int("attempt", attempts), zap.Error(err))
			if attempts >= c.maxRetries {
				return nil, nil, fmt.Errorf("ответ LLM не является валидным JSON после %d попыток: %w", attempts, err)
			}
			time.Sleep(time.Duration(attempts) * time.Second)
			continue
		}

		if err := decision.Validate(); err != nil {
			c.logger.Warn("Решение LLM не прошло валидацию, пробуем снова",
				zap.Int("attempt", attempts), zap.Error(err))
			if attempts >= c.maxRetries {
				return nil, nil, fmt.Errorf("решение LLM не прошло валидацию после %d попыток: %w", attempts, err)
			}
			time.Sleep(time.Duration(attempts) * time.Second)
			continue
		}

		c.logger.Info("Получено решение от LLM",
			zap.String("model", c.modelName),
			zap.Int("attempt", attempts),
			zap.String("decisionType", string(decision.DecisionType)),
		)
		return &decision, raw, nil
	}

	return nil, nil, errors.New("не удалось получить валидное решение от API после нескольких попыток")
}

func (c *openAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	attempts := 0
	for attempts < c.maxRetries {
		attempts++

		req := openai.ChatCompletionRequest{
			Model: c.modelName,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: systemPrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: userPrompt,
				},
			},
			Temperature: 0.3,
			MaxTokens:   4000,
			TopP:        0.95,
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			if attempts >= c.maxRetries {
				return "", fmt.Errorf("ошибка LLM после %d попыток: %w", attempts, err)
			}
			time.Sleep(time.Duration(attempts) * time.Second)
			continue
		}

		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			if attempts >= c.maxRetries {
				return "", errors.New("пустой ответ от API после нескольких попыток")
			}
			time.Sleep(time.Duration(attempts) * time.Second)
			continue
		}

		return resp.Choices[0].Message.Content, nil
	}

	return "", errors.New("не удалось получить ответ от API после нескольких попыток")
}

// GenerateImage генерирует изображение и возвращает его байты в формате PNG.
func (c *openAIClient) GenerateImage(ctx context.Context, prompt string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ImageRequest{
		Model:          c.imageModel,
		Prompt:         prompt,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	}

	resp, err := c.client.CreateImage(ctx, req)
	if err != nil {
		c.logger.Error("Ошибка при генерации изображения", zap.Error(err))
		return nil, "", fmt.Errorf("ошибка генерации изображения: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, "", errors.New("пустой ответ от API генерации изображений")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, "", fmt.Errorf("ошибка декодирования изображения: %w", err)
	}
	return data, "png", nil
}

// GenerateImageWithReference редактирует референсное изображение по промпту,
// сохраняя исходный стиль персонажа. Без референса делегирует GenerateImage.
func (c *openAIClient) GenerateImageWithReference(ctx context.Context, prompt string, reference []byte) ([]byte, string, error) {
	if len(reference) == 0 {
		return c.GenerateImage(ctx, prompt)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// API редактирования принимает только файл, поэтому референс
	// сбрасывается во временный PNG.
	tmp, err := os.CreateTemp("", "npc-ref-*.png")
	if err != nil {
		return nil, "", fmt.Errorf("ошибка создания временного файла референса: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(reference); err != nil {
		return nil, "", fmt.Errorf("ошибка записи референса: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, "", fmt.Errorf("ошибка перемотки референса: %w", err)
	}

	req := openai.ImageEditRequest{
		Image:          tmp,
		Prompt:         prompt,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	}

	resp, err := c.client.CreateEditImage(ctx, req)
	if err != nil {
		c.logger.Error("Ошибка при редактировании изображения", zap.Error(err))
		return nil, "", fmt.Errorf("ошибка редактирования изображения: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, "", errors.New("пустой ответ от API редактирования изображений")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, "", fmt.Errorf("ошибка декодирования изображения: %w", err)
	}
	return data, "png", nil
}
