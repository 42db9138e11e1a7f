package clients

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Имена бакетов объектного хранилища.
const (
	BucketScenarioAssets  = "scenario-assets"
	BucketGeneratedImages = "generated-images"
	BucketGeneratedBgm    = "generated-bgm"
)

// StorageClient - интерфейс к объектному хранилищу.
type StorageClient interface {
	// Available сообщает, сконфигурировано ли хранилище.
	Available() bool
	// Upload загружает объект в бакет по указанному пути.
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error
	// Download скачивает объект целиком.
	Download(ctx context.Context, bucket, path string) ([]byte, error)
	// PublicURL возвращает публичный URL объекта. Если базовый URL
	// хранилища не задан, возвращает относительный путь "{bucket}/{path}".
	PublicURL(bucket, path string) string
}

var _ StorageClient = (*supabaseStorageClient)(nil)

type supabaseStorageClient struct {
	httpClient *http.Client
	baseURL    string
	serviceKey string
	logger     *zap.Logger
}

// NewSupabaseStorageClient создает клиент Supabase Storage.
// Пустой baseURL или serviceKey дает "отключенный" клиент: Available()
// возвращает false, вызывающий код должен деградировать без кэширования.
func NewSupabaseStorageClient(baseURL, serviceKey string, logger *zap.Logger) StorageClient {
	return &supabaseStorageClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		logger:     logger.Named("SupabaseStorage"),
	}
}

func (c *supabaseStorageClient) Available() bool {
	return c.baseURL != "" && c.serviceKey != ""
}

func (c *supabaseStorageClient) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	if !c.Available() {
		return fmt.Errorf("хранилище не сконфигурировано")
	}

	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, bucket, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("ошибка создания запроса загрузки: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Failed to upload object",
			zap.String("bucket", bucket), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("ошибка загрузки объекта %s/%s: %w", bucket, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("Storage rejected upload",
			zap.String("bucket", bucket), zap.String("path", path),
			zap.Int("status", resp.StatusCode), zap.String("body", string(respBody)))
		return fmt.Errorf("хранилище вернуло статус %d для %s/%s", resp.StatusCode, bucket, path)
	}

	c.logger.Debug("Object uploaded",
		zap.String("bucket", bucket), zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

func (c *supabaseStorageClient) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	if !c.Available() {
		return nil, fmt.Errorf("хранилище не сконфигурировано")
	}

	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, bucket, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса скачивания: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка скачивания объекта %s/%s: %w", bucket, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("хранилище вернуло статус %d для %s/%s", resp.StatusCode, bucket, path)
	}
	return io.ReadAll(resp.Body)
}

func (c *supabaseStorageClient) PublicURL(bucket, path string) string {
	if c.baseURL == "" {
		return fmt.Sprintf("%s/%s", bucket, path)
	}
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, bucket, path)
}
