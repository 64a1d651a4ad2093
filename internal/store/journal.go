package store

import (
	"context"
	"fmt"
	"time"
)

// Direction of a journaled line.
type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)

// Entry is one journaled protocol line.
type Entry struct {
	ID        int64
	Network   string
	Attempt   string
	Direction Direction
	Line      string
	At        time.Time
}

// AppendEntry adds e to the journal and returns its id.
func (s *Store) AppendEntry(ctx context.Context, e Entry) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO journal (network, attempt, direction, line, logged_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		e.Network,
		e.Attempt,
		string(e.Direction),
		e.Line,
		e.At.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("append journal entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append journal entry: %w", err)
	}
	return id, nil
}

// AppendEntries adds es to the journal in one transaction. Either every
// entry is stored or none is.
func (s *Store) AppendEntries(ctx context.Context, es []Entry) error {
	if len(es) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append journal entries: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO journal (network, attempt, direction, line, logged_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("append journal entries: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range es {
		if _, err := stmt.ExecContext(ctx, e.Network, e.Attempt, string(e.Direction), e.Line, e.At.UnixNano()); err != nil {
			return fmt.Errorf("append journal entries: insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append journal entries: commit: %w", err)
	}
	return nil
}

// RecentEntries returns up to limit of network's most recent entries,
// oldest first.
func (s *Store) RecentEntries(ctx context.Context, network string, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, network, attempt, direction, line, logged_at
		FROM (
			SELECT * FROM journal
			WHERE network = ?
			ORDER BY id DESC
			LIMIT ?
		)
		ORDER BY id ASC
	`, network, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e   Entry
			dir string
			at  int64
		)
		if err := rows.Scan(&e.ID, &e.Network, &e.Attempt, &dir, &e.Line, &at); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Direction = Direction(dir)
		e.At = time.Unix(0, at).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return entries, nil
}

// PruneEntries deletes entries logged before cutoff and returns how many
// were removed.
func (s *Store) PruneEntries(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM journal WHERE logged_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	return n, nil
}
