// Package asr wraps speech recognition engines behind a single Transcriber
// interface.
package asr

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"tgisper/pkg/logger"
	"time"

	"go.uber.org/zap"
)

// Backend names accepted by New.
const (
	BackendWhisper = "whisper"
	BackendOpenAI  = "openai"
)

// ErrEngineUnavailable is returned by a startup check that cannot reach the engine.
var ErrEngineUnavailable = errors.New("asr engine unavailable")

// Transcriber turns a mono waveform into ordered text segments.
// Implementations block for the duration of inference and never retry.
type Transcriber interface {
	Transcribe(ctx context.Context, waveform []float32) (*Result, error)
}

// Options configures an engine.
type Options struct {
	Model      string
	Language   string
	VADFilter  bool
	BeamSize   int
	SampleRate int
}

// DefaultOptions favors latency: VAD filtering on, greedy beam.
func DefaultOptions() Options {
	return Options{
		Model:      "small",
		VADFilter:  true,
		BeamSize:   1,
		SampleRate: 16000,
	}
}

// Segment is one recognized span. Start and End are seconds from the start of the audio.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// Result is the engine output for one waveform.
type Result struct {
	Segments []Segment
	// Duration is the audio length in seconds as reported by the engine.
	Duration float64
	Language string
}

// Text joins segment texts with sep and trims the surrounding whitespace.
// Whisper segments usually carry their own leading space, so "" is the
// natural separator for them.
func (r *Result) Text(sep string) string {
	if r == nil || len(r.Segments) == 0 {
		return ""
	}

	parts := make([]string, len(r.Segments))
	for i, s := range r.Segments {
		parts[i] = s.Text
	}

	return strings.TrimSpace(strings.Join(parts, sep))
}

// fallbackToText covers servers that omit segments and only return the full text.
func (r *Result) fallbackToText(text string) {
	if len(r.Segments) == 0 && strings.TrimSpace(text) != "" {
		r.Segments = append(r.Segments, Segment{End: r.Duration, Text: text})
	}
}

// Checker is implemented by engines that can verify they are reachable.
type Checker interface {
	Check(ctx context.Context) error
}

// Check runs t's startup check when it has one.
func Check(ctx context.Context, t Transcriber) error {
	if c, ok := t.(Checker); ok {
		return c.Check(ctx)
	}
	return nil
}

func warnUnlistedModel(model string, ids []string) {
	if len(ids) == 0 || slices.Contains(ids, model) {
		return
	}
	logger.Warn("Configured ASR model is not listed by the engine",
		zap.String("model", model),
		zap.Strings("available", ids))
}

// New builds the engine selected by backend.
func New(backend, baseURL, apiKey string, opts Options, timeout time.Duration) (Transcriber, error) {
	switch backend {
	case BackendWhisper, "":
		return NewWhisperClient(baseURL, apiKey, opts, timeout), nil
	case BackendOpenAI:
		return NewOpenAIClient(baseURL, apiKey, opts, timeout), nil
	default:
		return nil, fmt.Errorf("unknown asr backend %q", backend)
	}
}
