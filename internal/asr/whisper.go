package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"tgisper/internal/audio"
	"tgisper/pkg/logger"
	"time"

	"go.uber.org/zap"
)

const (
	transcriptionsPath = "/v1/audio/transcriptions"
	modelsPath         = "/v1/models"
)

// WhisperClient talks to a faster-whisper server exposing the
// OpenAI-compatible transcription route with its vad_filter and beam_size
// extensions.
type WhisperClient struct {
	baseURL string
	apiKey  string
	opts    Options
	client  *http.Client
}

// NewWhisperClient creates a client. A zero timeout leaves inference unbounded.
func NewWhisperClient(baseURL, apiKey string, opts Options, timeout time.Duration) *WhisperClient {
	return &WhisperClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		opts:    opts,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// verboseResponse is the verbose_json body returned by whisper servers.
type verboseResponse struct {
	Task     string  `json:"task"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
	Segments []struct {
		ID    int     `json:"id"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe uploads the waveform as WAV and parses the segment list.
func (c *WhisperClient) Transcribe(ctx context.Context, waveform []float32) (*Result, error) {
	wavData, err := audio.EncodeWAV(waveform, c.opts.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode waveform: %w", err)
	}

	body, contentType, err := c.buildForm(wavData)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+transcriptionsPath, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	logger.Debug("Sending transcription request",
		zap.String("model", c.opts.Model),
		zap.Int("samples", len(waveform)))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transcription request failed: status=%d, body=%s", resp.StatusCode, string(respBody))
	}

	var vr verboseResponse
	if err := json.Unmarshal(respBody, &vr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	result := &Result{
		Duration: vr.Duration,
		Language: vr.Language,
		Segments: make([]Segment, 0, len(vr.Segments)),
	}
	for _, s := range vr.Segments {
		result.Segments = append(result.Segments, Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	result.fallbackToText(vr.Text)

	return result, nil
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Check lists the server's models. An unreachable server is an error; a
// configured model the server does not list is only logged, since servers
// resolve aliases such as "small" themselves.
func (c *WhisperClient) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+modelsPath, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status=%d, body=%s", ErrEngineUnavailable, resp.StatusCode, string(body))
	}

	var list modelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return fmt.Errorf("failed to decode model list: %w", err)
	}

	ids := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		ids = append(ids, m.ID)
	}
	warnUnlistedModel(c.opts.Model, ids)

	return nil
}

func (c *WhisperClient) buildForm(wavData []byte) (io.Reader, string, error) {
	var requestBody bytes.Buffer
	w := multipart.NewWriter(&requestBody)

	fw, err := w.CreateFormFile("file", "voice.wav")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fw.Write(wavData); err != nil {
		return nil, "", fmt.Errorf("failed to write form file: %w", err)
	}

	fields := [][2]string{
		{"model", c.opts.Model},
		{"response_format", "verbose_json"},
		{"vad_filter", strconv.FormatBool(c.opts.VADFilter)},
		{"beam_size", strconv.Itoa(c.opts.BeamSize)},
	}
	if c.opts.Language != "" {
		fields = append(fields, [2]string{"language", c.opts.Language})
	}

	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write %s field: %w", f[0], err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &requestBody, w.FormDataContentType(), nil
}
