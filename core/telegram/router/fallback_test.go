package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/evabot/core/telegram/ui"
)

func TestFallbackOptions(t *testing.T) {
	var hits []string
	mark := func(name string) tele.HandlerFunc {
		return func(tele.Context) error {
			hits = append(hits, name)
			return nil
		}
	}

	text, cb := FallbackOptions(ui.Fallbacks{Text: mark("text"), Callback: mark("callback")})
	assert.NoError(t, text.UnknownText(nil))
	assert.NoError(t, text.UnknownDocument(nil))
	assert.NoError(t, cb.NotFound(nil))
	assert.Equal(t, []string{"text", "text", "callback"}, hits)

	text, cb = FallbackOptions(nil)
	assert.Nil(t, text.UnknownText)
	assert.Nil(t, cb.NotFound)
}
