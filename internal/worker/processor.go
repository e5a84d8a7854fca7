package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"tgisper/internal/asr"
	"tgisper/internal/metrics"
	"tgisper/internal/queue"
	"tgisper/pkg/cache"
	"tgisper/pkg/logger"
	"tgisper/pkg/model"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transport fetches voice files and sends replies.
type Transport interface {
	Download(ctx context.Context, fileID string) ([]byte, error)
	Reply(ctx context.Context, chatID int64, messageID int, text string) error
}

// AudioLoader decodes compressed audio into a mono waveform.
type AudioLoader interface {
	Load(ctx context.Context, blob []byte) ([]float32, error)
}

// Journal persists transcripts.
type Journal interface {
	CreateTranscript(ctx context.Context, t *model.Transcript) error
}

// Archive stores raw voice files.
type Archive interface {
	UploadFile(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	GenerateKey(id, extension string) string
}

// Publisher announces finished transcripts.
type Publisher interface {
	PublishTranscript(ctx context.Context, event *queue.TranscriptEvent) error
}

// Processor runs the voice pipeline: count, fetch, decode, transcribe, reply.
type Processor struct {
	transport   Transport
	loader      AudioLoader
	transcriber asr.Transcriber
	metrics     *metrics.Metrics
	separator   string

	cache    cache.Cache
	cacheTTL time.Duration
	journal  Journal
	archive  Archive
	events   Publisher

	now func() time.Time
}

type Option func(*Processor)

// WithSeparator sets the string placed between transcript segments.
func WithSeparator(sep string) Option {
	return func(p *Processor) { p.separator = sep }
}

// WithCache reuses transcripts of voice files seen before.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(p *Processor) {
		p.cache = c
		p.cacheTTL = ttl
	}
}

func WithJournal(j Journal) Option {
	return func(p *Processor) { p.journal = j }
}

func WithArchive(a Archive) Option {
	return func(p *Processor) { p.archive = a }
}

func WithPublisher(pub Publisher) Option {
	return func(p *Processor) { p.events = pub }
}

// NewProcessor creates a new voice pipeline
func NewProcessor(
	transport Transport,
	loader AudioLoader,
	transcriber asr.Transcriber,
	m *metrics.Metrics,
	opts ...Option,
) *Processor {
	p := &Processor{
		transport:   transport,
		loader:      loader,
		transcriber: transcriber,
		metrics:     m,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ErrPanic marks an outcome produced by a recovered panic.
var ErrPanic = errors.New("voice pipeline panicked")

// Process handles one voice message. It never returns an error and never
// panics: every failure is logged and reported in the Outcome, and the user
// gets no reply. ProcessingTime covers fetch through reply; the optional
// sinks run after it has been observed.
func (p *Processor) Process(ctx context.Context, msg InboundMessage) Outcome {
	p.metrics.RecordMessage(msg.ChatType, msg.ContentType)

	start := p.now()
	blob, result, outcome := p.run(ctx, msg)
	elapsed := p.now().Sub(start)

	p.metrics.ObserveProcessing(msg.ChatType, msg.ContentType, elapsed.Seconds())
	logOutcome(msg, outcome, elapsed)

	if outcome.Succeeded() {
		p.record(ctx, msg, blob, result, outcome, elapsed)
	}
	return outcome
}

// run executes the timed part of the pipeline. blob is nil on a cache hit.
func (p *Processor) run(ctx context.Context, msg InboundMessage) (blob []byte, result *asr.Result, outcome Outcome) {
	stage := StageFetch
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic in voice pipeline",
				zap.String("stage", string(stage)),
				zap.Any("panic", r),
				zap.Stack("stack"))
			blob, result = nil, nil
			outcome = failed(stage, fmt.Errorf("%w: %v", ErrPanic, r))
		}
	}()

	result, cached := p.cached(ctx, msg)
	if !cached {
		var err error
		blob, err = p.transport.Download(ctx, msg.FileID)
		if err != nil {
			return nil, nil, failed(stage, fmt.Errorf("failed to download voice: %w", err))
		}

		logger.Debug("Voice downloaded",
			zap.Int64("chat_id", msg.ChatID),
			zap.Int("message_id", msg.MessageID),
			zap.Int("size", len(blob)))

		stage = StageDecode
		waveform, err := p.loader.Load(ctx, blob)
		if err != nil {
			return nil, nil, failed(stage, err)
		}

		stage = StageTranscribe
		result, err = p.transcriber.Transcribe(ctx, waveform)
		if err != nil {
			return nil, nil, failed(stage, fmt.Errorf("failed to transcribe: %w", err))
		}
		if result == nil {
			result = &asr.Result{}
		}
	}

	text := result.Text(p.separator)
	outcome = Outcome{
		Kind:     OutcomeReplied,
		Stage:    StageDone,
		Text:     text,
		Duration: result.Duration,
		Cached:   cached,
	}

	if text == "" {
		outcome.Kind = OutcomeEmpty
	} else {
		stage = StageReply
		if err := p.transport.Reply(ctx, msg.ChatID, msg.MessageID, text); err != nil {
			return nil, nil, failed(stage, fmt.Errorf("failed to send reply: %w", err))
		}
	}

	p.metrics.ObserveDuration(msg.ChatType, msg.ContentType, result.Duration)
	return blob, result, outcome
}

func (p *Processor) cached(ctx context.Context, msg InboundMessage) (*asr.Result, bool) {
	if p.cache == nil || msg.FileUniqueID == "" {
		return nil, false
	}

	var entry model.CachedTranscript
	err := p.cache.Get(ctx, cache.TranscriptCacheKey(msg.FileUniqueID), &entry)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			logger.Warn("Failed to read transcript cache", zap.Error(err))
		}
		return nil, false
	}

	result := &asr.Result{Duration: entry.Duration, Language: entry.Language}
	if entry.Text != "" {
		result.Segments = []asr.Segment{{End: entry.Duration, Text: entry.Text}}
	}
	return result, true
}

// record feeds the optional sinks. Their failures, panics included, never
// affect the outcome.
func (p *Processor) record(ctx context.Context, msg InboundMessage, blob []byte, result *asr.Result, outcome Outcome, elapsed time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic in transcript sinks", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	if p.cache != nil && !outcome.Cached && msg.FileUniqueID != "" {
		entry := model.CachedTranscript{Text: outcome.Text, Duration: result.Duration, Language: result.Language}
		if err := p.cache.SetWithTTL(ctx, cache.TranscriptCacheKey(msg.FileUniqueID), entry, p.cacheTTL); err != nil {
			logger.Warn("Failed to cache transcript", zap.Error(err))
		}
	}

	if p.journal == nil && p.archive == nil && p.events == nil {
		return
	}

	transcript := &model.Transcript{
		ID:             uuid.New().String(),
		ChatID:         msg.ChatID,
		ChatType:       msg.ChatType,
		MessageID:      int64(msg.MessageID),
		FileUniqueID:   msg.FileUniqueID,
		Text:           outcome.Text,
		AudioDuration:  result.Duration,
		ProcessingTime: elapsed.Seconds(),
		Meta: model.JSONB{
			"voice_duration": msg.Duration,
			"file_size":      msg.FileSize,
			"mime_type":      msg.MIME,
			"language":       result.Language,
			"segments":       len(result.Segments),
			"cached":         outcome.Cached,
		},
		CreatedAt: p.now(),
	}

	if p.archive != nil && blob != nil {
		key := p.archive.GenerateKey(transcript.ID, ".ogg")
		if _, err := p.archive.UploadFile(ctx, key, bytes.NewReader(blob), mimeOrDefault(msg.MIME)); err != nil {
			logger.Warn("Failed to archive voice", zap.Error(err), zap.String("transcript_id", transcript.ID))
		} else {
			transcript.SetArchiveKey(key)
		}
	}

	if p.journal != nil {
		if err := p.journal.CreateTranscript(ctx, transcript); err != nil {
			logger.Warn("Failed to save transcript", zap.Error(err), zap.String("transcript_id", transcript.ID))
		}
	}

	if p.events != nil {
		event := &queue.TranscriptEvent{
			TranscriptID:   transcript.ID,
			ChatID:         transcript.ChatID,
			ChatType:       transcript.ChatType,
			MessageID:      transcript.MessageID,
			FileUniqueID:   transcript.FileUniqueID,
			Text:           transcript.Text,
			AudioDuration:  transcript.AudioDuration,
			ProcessingTime: transcript.ProcessingTime,
			Cached:         outcome.Cached,
			CreatedAt:      transcript.CreatedAt,
		}
		if err := p.events.PublishTranscript(ctx, event); err != nil {
			logger.Warn("Failed to publish transcript event", zap.Error(err), zap.String("transcript_id", transcript.ID))
		}
	}
}

func mimeOrDefault(mime string) string {
	if mime == "" {
		return "audio/ogg"
	}
	return mime
}

func logOutcome(msg InboundMessage, o Outcome, elapsed time.Duration) {
	fields := []zap.Field{
		zap.Int64("chat_id", msg.ChatID),
		zap.String("chat_type", msg.ChatType),
		zap.Int("message_id", msg.MessageID),
		zap.String("outcome", o.Kind.String()),
		zap.Duration("elapsed", elapsed),
	}

	if o.Kind == OutcomeFailed {
		logger.Error("Voice message processing failed",
			append(fields, zap.String("stage", string(o.Stage)), zap.Error(o.Err))...)
		return
	}

	logger.Info("Voice message processed",
		append(fields,
			zap.Float64("audio_duration", o.Duration),
			zap.Int("text_length", len(o.Text)),
			zap.Bool("cached", o.Cached))...)
}
