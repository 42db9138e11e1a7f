package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/clients"
	"github.com/titabash/gemini-hackathon-game-sub000/internal/models"
)

// Mock LLMClient
type LLMClient struct {
	mock.Mock
}

func (m *LLMClient) GenerateDecision(ctx context.Context, systemPrompt, userPrompt string) (*models.GmDecisionResponse, []byte, error) {
	args := m.Called(ctx, systemPrompt, userPrompt)
	decision, _ := args.Get(0).(*models.GmDecisionResponse)
	raw, _ := args.Get(1).([]byte)
	return decision, raw, args.Error(2)
}
func (m *LLMClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	args := m.Called(ctx, systemPrompt, userPrompt)
	return args.String(0), args.Error(1)
}

// Mock ImageClient
type ImageClient struct {
	mock.Mock
}

func (m *ImageClient) GenerateImage(ctx context.Context, prompt string) ([]byte, string, error) {
	args := m.Called(ctx, prompt)
	data, _ := args.Get(0).([]byte)
	return data, args.String(1), args.Error(2)
}
func (m *ImageClient) GenerateImageWithReference(ctx context.Context, prompt string, reference []byte) ([]byte, string, error) {
	args := m.Called(ctx, prompt, reference)
	data, _ := args.Get(0).([]byte)
	return data, args.String(1), args.Error(2)
}

// Mock MusicClient
type MusicClient struct {
	mock.Mock
}

func (m *MusicClient) GenerateMusic(ctx context.Context, prompt string, durationSeconds int) (*clients.MusicResult, error) {
	args := m.Called(ctx, prompt, durationSeconds)
	result, _ := args.Get(0).(*clients.MusicResult)
	return result, args.Error(1)
}
func (m *MusicClient) StreamMusic(ctx context.Context, prompt string, durationSeconds int, onChunk func(pcm []byte) error) (*clients.MusicResult, error) {
	args := m.Called(ctx, prompt, durationSeconds, onChunk)
	result, _ := args.Get(0).(*clients.MusicResult)
	return result, args.Error(1)
}

// Mock StorageClient
type StorageClient struct {
	mock.Mock
}

func (m *StorageClient) Available() bool {
	args := m.Called()
	return args.Bool(0)
}
func (m *StorageClient) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	args := m.Called(ctx, bucket, path, data, contentType)
	return args.Error(0)
}
func (m *StorageClient) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	args := m.Called(ctx, bucket, path)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}
func (m *StorageClient) PublicURL(bucket, path string) string {
	args := m.Called(bucket, path)
	return args.String(0)
}
