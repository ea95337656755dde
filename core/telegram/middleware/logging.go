package middleware

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/evabot/core/logger"
	"github.com/m3rciful/evabot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/evabot/core/telegram/helpers"
)

// seenUpdates remembers recently logged update ids; LoggerMiddleware may wrap
// several branches of the same update.
type seenUpdates struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[int]time.Time
	last time.Time
}

var receipts = &seenUpdates{ttl: 10 * time.Second, seen: make(map[int]time.Time)}

func (s *seenUpdates) firstTime(updateID int, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.last) > s.ttl {
		for id, ts := range s.seen {
			if now.Sub(ts) > s.ttl {
				delete(s.seen, id)
			}
		}
		s.last = now
	}
	if _, ok := s.seen[updateID]; ok {
		return false
	}
	s.seen[updateID] = now
	return true
}

// LoggerMiddleware logs a single receipt line per update and mints the
// update's rid and trace id. Free text is logged by length only: users type
// company details and legal questions into it.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if cached, ok := tghelpers.ContextFrom(c); ok && logger.TraceIDFrom(cached) != "" {
			return next(c)
		}

		upd := c.Update()
		userID, _ := tghelpers.SenderID(c)
		var chatID int64
		if chat := c.Chat(); chat != nil {
			chatID = chat.ID
		}
		rid := logger.BuildRID(upd.ID, chatID, userID)
		c.Set("rid", rid)

		ctx := logger.WithRID(context.Background(), rid)
		ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
		ctx = logger.WithTrace(ctx, uuid.NewString())
		ctx = logger.WithLogger(ctx, logger.Component(logger.CompTG))
		tghelpers.StoreContext(c, ctx)

		if logger.ShouldSampleDebug() && receipts.firstTime(upd.ID, time.Now()) {
			attrs := []slog.Attr{
				slog.String("status", "ok"),
				slog.Int("update_id", upd.ID),
			}
			if userID != 0 {
				attrs = append(attrs, slog.Int64("user_id", userID))
				if lang := c.Sender().LanguageCode; lang != "" {
					attrs = append(attrs, slog.String("lang", lang))
				}
			}
			attrs = append(attrs, updateAttrs(c, upd)...)
			logger.Debug(ctx, logger.CompTG, "update.received", attrs...)
		}

		return next(c)
	}
}

func updateAttrs(c tele.Context, upd tele.Update) []slog.Attr {
	switch {
	case upd.Callback != nil:
		key, _ := callbacks.ParseCallbackData(upd.Callback)
		return []slog.Attr{
			slog.String("input_kind", "callback"),
			slog.String("cb_key", logger.SanitizeLimit(key, 128)),
		}
	case upd.Message != nil && upd.Message.Document != nil:
		doc := upd.Message.Document
		return []slog.Attr{
			slog.String("input_kind", "document"),
			slog.String("mime", doc.MIME),
			slog.Int64("size", int64(doc.FileSize)),
		}
	case upd.Message != nil:
		text := c.Text()
		attrs := []slog.Attr{
			slog.String("input_kind", "text"),
			slog.Int("text_len", utf8.RuneCountInString(text)),
		}
		if strings.HasPrefix(text, "/") {
			cmd, _, _ := strings.Cut(text, " ")
			attrs = append(attrs, slog.String("command", logger.SanitizeLimit(cmd, 64)))
		}
		return attrs
	}
	return nil
}
