package bot

import (
	"tgisper/internal/worker"
	"tgisper/pkg/logger"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"
)

const greeting = "Hello! I'm a voice recognition bot 🎤 \nRecord the voice or send it to me ↪️"

func (b *Bot) handleGreeting(c tele.Context) error {
	return c.Reply(greeting)
}

// handleVoice never returns an error: pipeline failures end in silence.
func (b *Bot) handleVoice(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.Voice == nil {
		return nil
	}

	if b.processor == nil {
		logger.Warn("Voice message ignored, no processor attached", zap.Int("message_id", msg.ID))
		return nil
	}

	b.processor.Process(b.ctx, inboundFromMessage(msg))
	return nil
}

func inboundFromMessage(msg *tele.Message) worker.InboundMessage {
	in := worker.InboundMessage{
		MessageID:   msg.ID,
		ContentType: worker.ContentTypeText,
	}

	if msg.Chat != nil {
		in.ChatID = msg.Chat.ID
		in.ChatType = string(msg.Chat.Type)
	}

	if v := msg.Voice; v != nil {
		in.ContentType = worker.ContentTypeVoice
		in.FileID = v.FileID
		in.FileUniqueID = v.UniqueID
		in.FileSize = int64(v.FileSize)
		in.MIME = v.MIME
		in.Duration = v.Duration
	}

	return in
}
