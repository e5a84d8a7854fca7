package asr

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"tgisper/internal/audio"
	"tgisper/pkg/logger"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIClient uses the OpenAI transcription API or any server compatible with it.
type OpenAIClient struct {
	client *openai.Client
	opts   Options
}

// NewOpenAIClient points the client at baseURL, which must not include the /v1 suffix.
func NewOpenAIClient(baseURL, apiKey string, opts Options, timeout time.Duration) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"
	}
	config.HTTPClient = &http.Client{Timeout: timeout}

	if opts.VADFilter || opts.BeamSize > 1 {
		logger.Warn("OpenAI transcription API ignores vad_filter and beam_size",
			zap.Bool("vad_filter", opts.VADFilter),
			zap.Int("beam_size", opts.BeamSize))
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		opts:   opts,
	}
}

func (c *OpenAIClient) Transcribe(ctx context.Context, waveform []float32) (*Result, error) {
	wavData, err := audio.EncodeWAV(waveform, c.opts.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode waveform: %w", err)
	}

	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.opts.Model,
		FilePath: "voice.wav",
		Reader:   bytes.NewReader(wavData),
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: c.opts.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}

	result := &Result{
		Duration: resp.Duration,
		Language: resp.Language,
		Segments: make([]Segment, 0, len(resp.Segments)),
	}
	for _, s := range resp.Segments {
		result.Segments = append(result.Segments, Segment{Start: s.Start, End: s.End, Text: s.Text})
	}

	result.fallbackToText(resp.Text)

	return result, nil
}

// Check lists the models visible to the API key.
func (c *OpenAIClient) Check(ctx context.Context) error {
	models, err := c.client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	ids := make([]string, 0, len(models.Models))
	for _, m := range models.Models {
		ids = append(ids, m.ID)
	}
	warnUnlistedModel(c.opts.Model, ids)

	return nil
}
