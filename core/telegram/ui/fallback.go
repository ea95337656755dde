// Package ui holds presentation contracts shared by routers and bot handlers.
package ui

import tele "gopkg.in/telebot.v4"

// FallbackProvider answers updates that match no command, callback or
// expected input.
type FallbackProvider interface {
	UnknownText() tele.HandlerFunc
	UnknownDocument() tele.HandlerFunc
	UnknownCallback() tele.HandlerFunc
}

// Fallbacks adapts plain handler funcs to FallbackProvider. A nil Document
// falls back to Text.
type Fallbacks struct {
	Text     tele.HandlerFunc
	Document tele.HandlerFunc
	Callback tele.HandlerFunc
}

var _ FallbackProvider = Fallbacks{}

func (f Fallbacks) UnknownText() tele.HandlerFunc { return f.Text }

func (f Fallbacks) UnknownDocument() tele.HandlerFunc {
	if f.Document == nil {
		return f.Text
	}
	return f.Document
}

func (f Fallbacks) UnknownCallback() tele.HandlerFunc { return f.Callback }
