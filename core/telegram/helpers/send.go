package helpers

import (
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/evabot/core/logger"
	"github.com/m3rciful/evabot/core/telegram/sender"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

func sendAsync(c tele.Context, action, endpoint string, run func() error) error {
	disp := globalDispatcher.Load()
	if disp == nil {
		return run()
	}

	ctx := BuildContext(c)
	err := disp.Enqueue(ctx, action, endpoint, run)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, logger.CompSender, "queue.fallback",
			slog.String("action", action),
			slog.String("err", err.Error()),
		)
		return run()
	}
	return err
}

// SendText sends raw text (no parse mode) to the current recipient.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	var sendOpts *tele.SendOptions
	if len(opts) > 0 && opts[0] != nil {
		sendOpts = opts[0]
	}
	return sendAsync(c, "send.text", "sendMessage", func() error {
		if sendOpts == nil {
			return c.Send(text)
		}
		return c.Send(text, sendOpts)
	})
}

func mdv2Options(markup []*tele.ReplyMarkup) *tele.SendOptions {
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdownV2}
	if len(markup) > 0 {
		opts.ReplyMarkup = markup[0]
	}
	return opts
}

// SendMDV2 sends a MarkdownV2 message with optional reply markup.
func SendMDV2(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	opts := mdv2Options(markup)
	return sendAsync(c, "send.mdv2", "sendMessage", func() error {
		return withPlainFallback(c, text, opts, func(o *tele.SendOptions) error {
			return c.Send(text, o)
		})
	})
}

// EditOrSendMDV2 edits the callback's message (MarkdownV2) or sends a new
// one when there is nothing to edit. Re-rendering an unchanged screen is
// not an error.
func EditOrSendMDV2(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	if c.Callback() == nil {
		return SendMDV2(c, text, markup...)
	}
	opts := mdv2Options(markup)
	return sendAsync(c, "edit.mdv2", "editMessageText", func() error {
		err := withPlainFallback(c, text, opts, func(o *tele.SendOptions) error {
			return c.EditOrSend(text, o)
		})
		if apiDescribes(err, "message is not modified") {
			return nil
		}
		return err
	})
}

// withPlainFallback retries once without a parse mode when Telegram rejects
// the markup, so a formatting slip still delivers the text.
func withPlainFallback(c tele.Context, text string, opts *tele.SendOptions, send func(*tele.SendOptions) error) error {
	err := send(opts)
	if !apiDescribes(err, "can't parse entities") {
		return err
	}
	logger.Warn(BuildContext(c), logger.CompSender, "mdv2.fallback",
		slog.Int("text_len", len(text)),
	)
	plain := *opts
	plain.ParseMode = tele.ModeDefault
	return send(&plain)
}

func apiDescribes(err error, fragment string) bool {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return strings.Contains(apiErr.Description, fragment)
	}
	return err != nil && strings.Contains(err.Error(), fragment)
}
