// Package sqlstore keeps conversation sessions and cross-link entries in a
// SQL database (postgres or sqlite3) opened by core/database.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/evabot/core/logger"
	"github.com/m3rciful/evabot/core/telegram/state"
)

type sessionRow struct {
	UserID       int64  `db:"user_id"`
	State        string `db:"state"`
	Data         string `db:"data"`
	History      string `db:"history"`
	Token        int64  `db:"token"`
	LastActivity int64  `db:"last_activity"`
}

// Sessions implements state.Store on the sessions table.
type Sessions struct {
	db *sqlx.DB
}

var _ state.Store = (*Sessions)(nil)

// NewSessions wraps an open connection; migrations must already be applied.
func NewSessions(db *sqlx.DB) *Sessions {
	return &Sessions{db: db}
}

func (s *Sessions) Load(ctx context.Context, userID int64) (*state.Session, error) {
	var row sessionRow
	q := s.db.Rebind(`SELECT user_id, state, data, history, token, last_activity
		FROM sessions WHERE user_id = ?`)
	if err := s.db.GetContext(ctx, &row, q, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, state.ErrSessionNotFound
		}
		return nil, s.fail(ctx, "session.load", userID, err)
	}
	return decodeSession(row)
}

func (s *Sessions) Save(ctx context.Context, sess *state.Session) error {
	if sess == nil {
		return errors.New("sqlstore: nil session")
	}
	row, err := encodeSession(sess)
	if err != nil {
		return err
	}
	q := s.db.Rebind(`INSERT INTO sessions (user_id, state, data, history, token, last_activity)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			state = excluded.state,
			data = excluded.data,
			history = excluded.history,
			token = excluded.token,
			last_activity = excluded.last_activity`)
	if _, err := s.db.ExecContext(ctx, q,
		row.UserID, row.State, row.Data, row.History, row.Token, row.LastActivity,
	); err != nil {
		return s.fail(ctx, "session.save", sess.UserID, err)
	}
	return nil
}

func (s *Sessions) Delete(ctx context.Context, userID int64) error {
	q := s.db.Rebind(`DELETE FROM sessions WHERE user_id = ?`)
	if _, err := s.db.ExecContext(ctx, q, userID); err != nil {
		return s.fail(ctx, "session.delete", userID, err)
	}
	return nil
}

// Sweep deletes sessions idle since before cutoff.
func (s *Sessions) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	q := s.db.Rebind(`DELETE FROM sessions WHERE last_activity < ?`)
	res, err := s.db.ExecContext(ctx, q, cutoff.UnixNano())
	if err != nil {
		return 0, s.fail(ctx, "session.sweep", 0, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Range reads all sessions before calling fn, so fn may use the store.
func (s *Sessions) Range(ctx context.Context, fn func(*state.Session) bool) error {
	var rows []sessionRow
	q := `SELECT user_id, state, data, history, token, last_activity FROM sessions ORDER BY user_id`
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return s.fail(ctx, "session.range", 0, err)
	}
	for _, row := range rows {
		sess, err := decodeSession(row)
		if err != nil {
			logger.Warn(ctx, logger.CompSQL, "session.decode",
				slog.String("status", "skip"),
				slog.Int64("user_id", row.UserID),
				slog.String("err", err.Error()),
			)
			continue
		}
		if !fn(sess) {
			return nil
		}
	}
	return nil
}

func (s *Sessions) fail(ctx context.Context, event string, userID int64, err error) error {
	attrs := []slog.Attr{
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
	}
	if userID != 0 {
		attrs = append(attrs, slog.Int64("user_id", userID))
	}
	logger.Error(ctx, logger.CompSQL, event, attrs...)
	return fmt.Errorf("sqlstore: %s: %w", event, err)
}

func encodeSession(sess *state.Session) (sessionRow, error) {
	data := sess.Data
	if data == nil {
		data = state.Data{}
	}
	rawData, err := sonic.MarshalString(data)
	if err != nil {
		return sessionRow{}, fmt.Errorf("sqlstore: encode data: %w", err)
	}
	history := sess.History
	if history == nil {
		history = []state.HistoryEntry{}
	}
	rawHistory, err := sonic.MarshalString(history)
	if err != nil {
		return sessionRow{}, fmt.Errorf("sqlstore: encode history: %w", err)
	}
	return sessionRow{
		UserID:       sess.UserID,
		State:        string(sess.State),
		Data:         rawData,
		History:      rawHistory,
		Token:        int64(sess.Token),
		LastActivity: sess.LastActivity.UnixNano(),
	}, nil
}

func decodeSession(row sessionRow) (*state.Session, error) {
	sess := &state.Session{
		UserID:       row.UserID,
		State:        state.State(row.State),
		Token:        uint64(row.Token),
		LastActivity: time.Unix(0, row.LastActivity),
	}
	if err := sonic.UnmarshalString(row.Data, &sess.Data); err != nil {
		return nil, fmt.Errorf("sqlstore: decode data: %w", err)
	}
	if err := sonic.UnmarshalString(row.History, &sess.History); err != nil {
		return nil, fmt.Errorf("sqlstore: decode history: %w", err)
	}
	if len(sess.History) == 0 {
		sess.History = nil
	}
	return sess, nil
}
