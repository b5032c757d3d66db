package transcribe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/keepsakehq/keepsake/config"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// WhisperProvider transcribes audio through the OpenAI speech API. It
// requests the configured high-accuracy model first and falls back to the
// secondary model once if the provider rejects the primary. Language is
// auto-detected; no hint is sent.
type WhisperProvider struct {
	client        *openai.Client
	httpClient    *http.Client
	model         string
	fallbackModel string
	tempDir       string
	logger        *logrus.Logger
}

func NewWhisperProvider(cfg *config.Config, logger *logrus.Logger) *WhisperProvider {
	clientConfig := openai.DefaultConfig(cfg.OpenAI.APIKey)
	if cfg.OpenAI.BaseURL != "" {
		clientConfig.BaseURL = cfg.OpenAI.BaseURL
	}

	return &WhisperProvider{
		client:        openai.NewClientWithConfig(clientConfig),
		httpClient:    http.DefaultClient,
		model:         cfg.OpenAI.Model,
		fallbackModel: cfg.OpenAI.FallbackModel,
		tempDir:       cfg.Capture.TempDir,
		logger:        logger,
	}
}

func (p *WhisperProvider) Transcribe(ctx context.Context, audioURL string) (string, error) {
	audioPath, err := p.download(ctx, audioURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch audio: %w", err)
	}
	defer os.Remove(audioPath)

	text, err := p.transcribeFile(ctx, audioPath, p.model)
	if err != nil && p.fallbackModel != "" && p.fallbackModel != p.model {
		p.logger.WithError(err).WithField("model", p.model).Warn("primary transcription model failed, trying fallback")
		text, err = p.transcribeFile(ctx, audioPath, p.fallbackModel)
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

func (p *WhisperProvider) transcribeFile(ctx context.Context, audioPath, model string) (string, error) {
	req := openai.AudioRequest{
		Model:    model,
		FilePath: audioPath,
	}

	resp, err := p.client.CreateTranscription(ctx, req)
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return resp.Text, nil
}

func (p *WhisperProvider) download(ctx context.Context, audioURL string) (string, error) {
	if err := os.MkdirAll(p.tempDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("audio fetch returned status %d", resp.StatusCode)
	}

	audioPath := filepath.Join(p.tempDir, uuid.New().String()+extensionFor(resp.Header.Get("Content-Type")))
	file, err := os.Create(audioPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err := io.Copy(file, resp.Body); err != nil {
		os.Remove(audioPath)
		return "", err
	}
	return audioPath, nil
}

// The speech API infers the container from the uploaded file name.
func extensionFor(contentType string) string {
	switch contentType {
	case "audio/mp4":
		return ".m4a"
	case "audio/webm", "audio/webm;codecs=opus":
		return ".webm"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav":
		return ".wav"
	default:
		return ".m4a"
	}
}
