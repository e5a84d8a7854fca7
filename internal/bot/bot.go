package bot

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"tgisper/internal/config"
	"tgisper/internal/worker"
	"tgisper/pkg/logger"

	tele "gopkg.in/telebot.v4"
	"gopkg.in/telebot.v4/middleware"

	"go.uber.org/zap"
)

// VoiceProcessor runs the voice pipeline for one message.
type VoiceProcessor interface {
	Process(ctx context.Context, msg worker.InboundMessage) worker.Outcome
}

// Route binds an endpoint to a handler and the chat types it accepts.
// A nil or empty ChatTypes accepts every chat type.
type Route struct {
	Endpoint  string
	ChatTypes []string
	Handler   tele.HandlerFunc
}

// Allows reports whether messages from chatType reach the handler.
func (r Route) Allows(chatType string) bool {
	return len(r.ChatTypes) == 0 || slices.Contains(r.ChatTypes, chatType)
}

func (r Route) handle(c tele.Context) error {
	chatType := ""
	if chat := c.Chat(); chat != nil {
		chatType = string(chat.Type)
	}

	if !r.Allows(chatType) {
		logger.Debug("Message dropped by chat filter",
			zap.String("endpoint", r.Endpoint),
			zap.String("chat_type", chatType))
		return nil
	}

	return r.Handler(c)
}

// poller is the update loop of *tele.Bot.
type poller interface {
	Start()
	Stop()
}

type Bot struct {
	poller    poller
	transport *telegramTransport
	processor VoiceProcessor
	routes    []Route

	ctx    context.Context
	cancel context.CancelFunc
}

// NewBot connects to the Bot API and registers the routing table. Voice
// messages are ignored until a processor is attached with SetProcessor.
func NewBot(cfg *config.Config) (*Bot, error) {
	logger.Info("Starting bot initialization")

	if cfg.Telegram.Token == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN environment variable is required")
	}

	pref := tele.Settings{
		Token: cfg.Telegram.Token,
		Poller: &tele.LongPoller{
			Timeout: cfg.Telegram.PollTimeout,
		},
		Client:      &http.Client{Timeout: cfg.Telegram.RequestTimeout},
		Synchronous: true,
		OnError: func(err error, c tele.Context) {
			fields := []zap.Field{zap.Error(err)}
			if c != nil && c.Chat() != nil {
				fields = append(fields, zap.Int64("chat_id", c.Chat().ID))
			}
			logger.Error("Telegram error", fields...)
		},
	}

	tb, err := tele.NewBot(pref)
	if err != nil {
		return nil, err
	}

	logger.Info("Bot created successfully", zap.String("username", tb.Me.Username))

	b := newBot(nil, cfg.VoiceChatTypes())
	b.poller = tb
	b.transport = newTelegramTransport(tb, cfg.Telegram.DownloadAttempts, cfg.Telegram.SendRate)
	// Handlers run on the poller goroutine; a panic must not end the poll loop.
	tb.Use(middleware.Recover())
	for _, r := range b.routes {
		tb.Handle(r.Endpoint, r.handle)
	}

	return b, nil
}

func newBot(processor VoiceProcessor, voiceChatTypes []string) *Bot {
	ctx, cancel := context.WithCancel(context.Background())

	b := &Bot{
		processor: processor,
		ctx:       ctx,
		cancel:    cancel,
	}
	b.routes = []Route{
		{Endpoint: "/start", Handler: b.handleGreeting},
		{Endpoint: "/help", Handler: b.handleGreeting},
		{Endpoint: tele.OnVoice, ChatTypes: voiceChatTypes, Handler: b.handleVoice},
	}
	return b
}

// Transport exposes the Bot API client to the voice pipeline.
func (b *Bot) Transport() worker.Transport {
	return b.transport
}

// SetProcessor attaches the voice pipeline. The pipeline needs the bot's
// transport, so it is built after the bot.
func (b *Bot) SetProcessor(p VoiceProcessor) {
	b.processor = p
}

// Routes returns the routing table.
func (b *Bot) Routes() []Route {
	return b.routes
}

// Start blocks while polling for updates.
func (b *Bot) Start() {
	logger.Info("Bot started")
	b.poller.Start()
}

// Stop stops polling. Messages being processed are not awaited.
func (b *Bot) Stop() {
	b.cancel()
	b.poller.Stop()
	logger.Info("Bot stopped")
}
