package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Sighting is the last message a nickname sent on a network.
type Sighting struct {
	Network string
	// Key is the case-folded nickname used for lookup.
	Key     string
	Nick    string
	Channel string
	Message string
	At      time.Time
}

// RecordSighting stores s, replacing the previous sighting of the same
// nickname on the same network.
func (s *Store) RecordSighting(ctx context.Context, sg Sighting) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO seen (network, nick_key, nick, channel, message, seen_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(network, nick_key) DO UPDATE SET
			nick = excluded.nick,
			channel = excluded.channel,
			message = excluded.message,
			seen_at = excluded.seen_at
	`,
		sg.Network,
		sg.Key,
		sg.Nick,
		sg.Channel,
		sg.Message,
		sg.At.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record sighting: %w", err)
	}
	return nil
}

// LastSighting returns the sighting stored under key. The bool is false if
// the nickname has never been seen.
func (s *Store) LastSighting(ctx context.Context, network, key string) (Sighting, bool, error) {
	var (
		sg Sighting
		at int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT network, nick_key, nick, channel, message, seen_at
		FROM seen
		WHERE network = ? AND nick_key = ?
	`, network, key).Scan(&sg.Network, &sg.Key, &sg.Nick, &sg.Channel, &sg.Message, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return Sighting{}, false, nil
	}
	if err != nil {
		return Sighting{}, false, fmt.Errorf("last sighting: %w", err)
	}
	sg.At = time.Unix(0, at).UTC()
	return sg, true, nil
}

// CountSightings returns how many nicknames have been seen on network.
func (s *Store) CountSightings(ctx context.Context, network string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM seen WHERE network = ?`, network).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sightings: %w", err)
	}
	return n, nil
}
