package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/evabot/core/crosslink"
	"github.com/m3rciful/evabot/core/logger"
)

// Tables sharing the cross-link layout.
const (
	TableCrossLinks     = "crosslinks"
	TableCompanyLookups = "company_lookups"
)

type entryRow struct {
	UserID     int64  `db:"user_id"`
	FeatureKey string `db:"feature_key"`
	Payload    string `db:"payload"`
	WrittenAt  int64  `db:"written_at"`
}

func (r entryRow) entry() crosslink.Entry {
	return crosslink.Entry{
		UserID:    r.UserID,
		Key:       crosslink.Key(r.FeatureKey),
		Payload:   []byte(r.Payload),
		WrittenAt: time.Unix(0, r.WrittenAt),
	}
}

// Entries implements crosslink.Backend on one table.
type Entries struct {
	db    *sqlx.DB
	table string
}

var _ crosslink.Backend = (*Entries)(nil)

// NewCrossLinks stores feature outputs in the crosslinks table.
func NewCrossLinks(db *sqlx.DB) *Entries {
	return &Entries{db: db, table: TableCrossLinks}
}

// NewCompanyLookups stores cached registry lookups in company_lookups.
func NewCompanyLookups(db *sqlx.DB) *Entries {
	return &Entries{db: db, table: TableCompanyLookups}
}

func (s *Entries) Put(ctx context.Context, e crosslink.Entry) error {
	q := s.db.Rebind(fmt.Sprintf(`INSERT INTO %s (user_id, feature_key, payload, written_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, feature_key) DO UPDATE SET
			payload = excluded.payload,
			written_at = excluded.written_at`, s.table))
	if _, err := s.db.ExecContext(ctx, q,
		e.UserID, string(e.Key), string(e.Payload), e.WrittenAt.UnixNano(),
	); err != nil {
		return s.fail(ctx, "entry.put", err)
	}
	return nil
}

func (s *Entries) Get(ctx context.Context, userID int64, key crosslink.Key) (crosslink.Entry, bool, error) {
	var row entryRow
	q := s.db.Rebind(fmt.Sprintf(`SELECT user_id, feature_key, payload, written_at
		FROM %s WHERE user_id = ? AND feature_key = ?`, s.table))
	if err := s.db.GetContext(ctx, &row, q, userID, string(key)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return crosslink.Entry{}, false, nil
		}
		return crosslink.Entry{}, false, s.fail(ctx, "entry.get", err)
	}
	return row.entry(), true, nil
}

func (s *Entries) DeleteIfWrittenAt(ctx context.Context, userID int64, key crosslink.Key, writtenAt time.Time) (bool, error) {
	q := s.db.Rebind(fmt.Sprintf(`DELETE FROM %s
		WHERE user_id = ? AND feature_key = ? AND written_at = ?`, s.table))
	res, err := s.db.ExecContext(ctx, q, userID, string(key), writtenAt.UnixNano())
	if err != nil {
		return false, s.fail(ctx, "entry.delete", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Entries) List(ctx context.Context, userID int64) ([]crosslink.Entry, error) {
	var rows []entryRow
	q := s.db.Rebind(fmt.Sprintf(`SELECT user_id, feature_key, payload, written_at
		FROM %s WHERE user_id = ? ORDER BY feature_key`, s.table))
	if err := s.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, s.fail(ctx, "entry.list", err)
	}
	out := make([]crosslink.Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.entry())
	}
	return out, nil
}

// Sweep deletes entries written at or before cutoff.
func (s *Entries) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	q := s.db.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE written_at <= ?`, s.table))
	res, err := s.db.ExecContext(ctx, q, cutoff.UnixNano())
	if err != nil {
		return 0, s.fail(ctx, "entry.sweep", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Entries) fail(ctx context.Context, event string, err error) error {
	logger.Error(ctx, logger.CompSQL, event,
		slog.String("status", "fail"),
		slog.String("table", s.table),
		slog.String("err", err.Error()),
	)
	return fmt.Errorf("sqlstore: %s %s: %w", s.table, event, err)
}
