package middleware

import (
	"sync/atomic"

	tele "gopkg.in/telebot.v4"
)

const countersKey = "out_counters"

// Counters tallies what a handler sent back. Sends may complete on the
// dispatcher's goroutines, so fields are atomic.
type Counters struct {
	sent     atomic.Int32
	edited   atomic.Int32
	keyboard atomic.Bool
}

// Snapshot is a point-in-time copy of Counters.
type Snapshot struct {
	Sent     int
	Edited   int
	Keyboard bool
}

func (c *Counters) snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	return Snapshot{
		Sent:     int(c.sent.Load()),
		Edited:   int(c.edited.Load()),
		Keyboard: c.keyboard.Load(),
	}
}

type metricsContext struct {
	tele.Context
	counters *Counters
}

func hasKeyboard(opts []any) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		}
	}
	return false
}

func (m metricsContext) track(err error, edit bool, opts []any) error {
	if err != nil {
		return err
	}
	if edit {
		m.counters.edited.Add(1)
	} else {
		m.counters.sent.Add(1)
	}
	if hasKeyboard(opts) {
		m.counters.keyboard.Store(true)
	}
	return nil
}

func (m metricsContext) Send(what any, opts ...any) error {
	return m.track(m.Context.Send(what, opts...), false, opts)
}

func (m metricsContext) Reply(what any, opts ...any) error {
	return m.track(m.Context.Reply(what, opts...), false, opts)
}

func (m metricsContext) Edit(what any, opts ...any) error {
	return m.track(m.Context.Edit(what, opts...), true, opts)
}

// EditOrSend counts as an edit whenever there is a callback message to edit.
func (m metricsContext) EditOrSend(what any, opts ...any) error {
	edit := m.Context.Callback() != nil
	return m.track(m.Context.EditOrSend(what, opts...), edit, opts)
}

func (m metricsContext) EditOrReply(what any, opts ...any) error {
	edit := m.Context.Callback() != nil
	return m.track(m.Context.EditOrReply(what, opts...), edit, opts)
}

// MessageMetricsMiddleware counts outgoing messages and edits per update.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		counters := &Counters{}
		c.Set(countersKey, counters)
		return next(metricsContext{Context: c, counters: counters})
	}
}

// GetCounters reads the counters installed by MessageMetricsMiddleware.
func GetCounters(c tele.Context) Snapshot {
	counters, _ := c.Get(countersKey).(*Counters)
	return counters.snapshot()
}
