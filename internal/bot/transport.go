package bot

import (
	"context"
	"fmt"
	"io"
	"tgisper/pkg/logger"
	"tgisper/pkg/resilience"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"
)

// telegramAPI is the part of *tele.Bot the transport needs.
type telegramAPI interface {
	FileByID(fileID string) (tele.File, error)
	File(file *tele.File) (io.ReadCloser, error)
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// telegramTransport downloads voice files and sends replies through the Bot API.
type telegramTransport struct {
	api     telegramAPI
	retry   *resilience.RetryConfig
	limiter *resilience.RateLimiter
}

func newTelegramTransport(api telegramAPI, downloadAttempts, sendRate int) *telegramTransport {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = downloadAttempts
	retry.InitialInterval = 500 * time.Millisecond
	retry.MaxInterval = 5 * time.Second
	retry.OnRetry = func(attempt int, err error) {
		logger.Warn("Voice download failed, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	return &telegramTransport{
		api:     api,
		retry:   retry,
		limiter: resilience.NewRateLimiter(sendRate, time.Second/time.Duration(sendRate)),
	}
}

// Download resolves the file path and fetches the raw bytes.
func (t *telegramTransport) Download(ctx context.Context, fileID string) ([]byte, error) {
	var data []byte

	err := resilience.RetryWithExponentialBackoff(ctx, t.retry, func() error {
		file, err := t.api.FileByID(fileID)
		if err != nil {
			return fmt.Errorf("failed to get file info: %w", err)
		}

		body, err := t.api.File(&file)
		if err != nil {
			return fmt.Errorf("failed to download file: %w", err)
		}
		defer body.Close()

		data, err = io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return data, nil
}

// Reply sends text as a reply to the given message.
func (t *telegramTransport) Reply(ctx context.Context, chatID int64, messageID int, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	chat := &tele.Chat{ID: chatID}
	_, err := t.api.Send(chat, text, &tele.SendOptions{
		ReplyTo: &tele.Message{ID: messageID},
	})
	return err
}
