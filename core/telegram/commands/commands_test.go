package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

func noop(tele.Context) error { return nil }

func TestValidate(t *testing.T) {
	ok := Command{Handler: noop, Description: "Главное меню", Aliases: []string{"Home"}}
	assert.NoError(t, ok.Validate("/start"))

	assert.ErrorContains(t, Command{Description: "x"}.Validate("/start"), "nil handler")
	assert.ErrorContains(t, Command{Handler: noop, Description: " "}.Validate("/start"), "empty description")
	assert.ErrorContains(t, Command{Handler: noop, Description: "x"}.Validate("start"), "slash")
	assert.ErrorContains(t, Command{Handler: noop, Description: "x"}.Validate("/Start"), "invalid character")
	assert.Error(t, Command{Handler: noop, Description: "x", Aliases: []string{"bad-alias"}}.Validate("/ok"))
}

func TestEndpoints(t *testing.T) {
	cmd := Command{Handler: noop, Description: "x", Aliases: []string{"cancel", "/reset", " Stop "}}
	assert.Equal(t, []string{"/reset", "/cancel", "/stop"}, cmd.Endpoints("/reset"))
	assert.Equal(t, "", Normalize("  "))
}
