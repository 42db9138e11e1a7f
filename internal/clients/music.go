package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// pcmSampleRate и pcmChannels - формат сырого потока от музыкального API:
// int16 little-endian, 48 кГц, стерео.
const (
	pcmSampleRate     = 48000
	pcmChannels       = 2
	pcmBytesPerSample = 2
)

// MusicResult - результат генерации фоновой музыки.
type MusicResult struct {
	// Audio - закодированный MP3 (128 kbps).
	Audio           []byte
	DurationSeconds float64
}

// MusicClient - интерфейс к API генерации музыки.
type MusicClient interface {
	GenerateMusic(ctx context.Context, prompt string, durationSeconds int) (*MusicResult, error)
	// StreamMusic отдает сырые PCM-чанки через onChunk по мере прихода,
	// затем возвращает закодированный результат целиком. Буфер чанка
	// валиден только внутри вызова onChunk; ошибка onChunk обрывает
	// генерацию.
	StreamMusic(ctx context.Context, prompt string, durationSeconds int, onChunk func(pcm []byte) error) (*MusicResult, error)
}

var _ MusicClient = (*httpMusicClient)(nil)

// MusicConfig содержит конфигурацию музыкального клиента.
type MusicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type httpMusicClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	logger     *zap.Logger
}

// NewHTTPMusicClient создает клиент музыкального API.
func NewHTTPMusicClient(cfg MusicConfig, logger *zap.Logger) (*httpMusicClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("не указан API ключ для музыкального API")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("не указан базовый URL музыкального API")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	return &httpMusicClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		logger:     logger.Named("MusicClient"),
	}, nil
}

type musicGenerateRequest struct {
	Model           string `json:"model,omitempty"`
	Prompt          string `json:"prompt"`
	DurationSeconds int    `json:"duration_seconds"`
	SampleRate      int    `json:"sample_rate"`
	Channels        int    `json:"channels"`
	Format          string `json:"format"`
}

// GenerateMusic запрашивает PCM-поток у API и кодирует его в MP3.
func (c *httpMusicClient) GenerateMusic(ctx context.Context, prompt string, durationSeconds int) (*MusicResult, error) {
	return c.StreamMusic(ctx, prompt, durationSeconds, nil)
}

// StreamMusic читает PCM-поток инкрементально, передавая каждый чанк в
// onChunk, и по завершении кодирует накопленный поток в MP3.
func (c *httpMusicClient) StreamMusic(ctx context.Context, prompt string, durationSeconds int, onChunk func(pcm []byte) error) (*MusicResult, error) {
	body, err := json.Marshal(musicGenerateRequest{
		Model:           c.model,
		Prompt:          prompt,
		DurationSeconds: durationSeconds,
		SampleRate:      pcmSampleRate,
		Channels:        pcmChannels,
		Format:          "pcm_s16le",
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации запроса генерации музыки: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/music/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса генерации музыки: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Info("Запрос генерации музыки",
		zap.String("model", c.model),
		zap.Int("durationSeconds", durationSeconds),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка вызова музыкального API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("музыкальный API вернул статус %d: %s", resp.StatusCode, string(respBody))
	}

	var pcmBuf bytes.Buffer
	chunk := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			pcmBuf.Write(chunk[:n])
			if onChunk != nil {
				if err := onChunk(chunk[:n]); err != nil {
					return nil, fmt.Errorf("ошибка доставки PCM чанка: %w", err)
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("ошибка чтения PCM потока: %w", readErr)
		}
	}
	pcm := pcmBuf.Bytes()
	if len(pcm) == 0 {
		return nil, errors.New("музыкальный API вернул пустой поток")
	}

	duration := float64(len(pcm)) / float64(pcmSampleRate*pcmChannels*pcmBytesPerSample)

	mp3, err := encodePCMToMP3(ctx, pcm)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Музыка сгенерирована",
		zap.Float64("durationSeconds", duration),
		zap.Int("mp3Bytes", len(mp3)),
	)

	return &MusicResult{Audio: mp3, DurationSeconds: duration}, nil
}

// encodePCMToMP3 кодирует сырой PCM (s16le, 48 кГц, стерео) в MP3 128 kbps
// через ffmpeg. Бинарник ffmpeg должен быть доступен в PATH контейнера.
func encodePCMToMP3(ctx context.Context, pcm []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", pcmSampleRate),
		"-ac", fmt.Sprintf("%d", pcmChannels),
		"-i", "pipe:0",
		"-b:a", "128k",
		"-f", "mp3",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(pcm)

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ошибка кодирования MP3: %w: %s", err, stderr.String())
	}
	if out.Len() == 0 {
		return nil, errors.New("ffmpeg вернул пустой MP3")
	}
	return out.Bytes(), nil
}
