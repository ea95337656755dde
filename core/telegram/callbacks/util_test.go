package callbacks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

func TestParseCallbackData(t *testing.T) {
	cases := []struct {
		name    string
		cb      *tele.Callback
		unique  string
		payload string
	}{
		{"nil", nil, "", ""},
		{"raw", &tele.Callback{Data: "\fhome|3"}, "home", "3"},
		{"no payload", &tele.Callback{Data: "\fback"}, "back", ""},
		{"escaped prefix", &tele.Callback{Data: `\fredline|x|y`}, "redline", "x|y"},
		{"matched", &tele.Callback{Unique: "inn_check", Data: "7"}, "inn_check", "7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			unique, payload := ParseCallbackData(tc.cb)
			assert.Equal(t, tc.unique, unique)
			assert.Equal(t, tc.payload, payload)
		})
	}
}

type ackContext struct {
	tele.Context
	cb        *tele.Callback
	store     map[string]any
	responses []*tele.CallbackResponse
}

func (c *ackContext) Callback() *tele.Callback { return c.cb }
func (c *ackContext) Get(key string) any       { return c.store[key] }
func (c *ackContext) Set(key string, v any)    { c.store[key] = v }

func (c *ackContext) Respond(resp ...*tele.CallbackResponse) error {
	var r *tele.CallbackResponse
	if len(resp) > 0 {
		r = resp[0]
	}
	c.responses = append(c.responses, r)
	return nil
}

func TestAnswerRespondsOnce(t *testing.T) {
	c := &ackContext{cb: &tele.Callback{Unique: "home"}, store: map[string]any{}}
	assert.False(t, Answered(c))

	assert.NoError(t, Answer(c, "Действие недоступно"))
	assert.NoError(t, Answer(c, ""))
	assert.True(t, Answered(c))
	if assert.Len(t, c.responses, 1) {
		assert.Equal(t, "Действие недоступно", c.responses[0].Text)
	}

	msg := &ackContext{store: map[string]any{}}
	assert.NoError(t, Answer(msg, "x"))
	assert.Empty(t, msg.responses)
}
