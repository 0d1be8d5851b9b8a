package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rkallos/timeloom/internal/event"
	"github.com/rkallos/timeloom/internal/history"
	"github.com/rkallos/timeloom/internal/universe"
	"github.com/rkallos/timeloom/internal/wire"
)

// SnapshotInfo describes one saved snapshot.
type SnapshotInfo struct {
	Name      string
	Horizon   event.Time
	Objects   int
	CreatedAt time.Time
}

// SaveUniverse captures every history of u under the snapshot name. Each
// history is stored in JSON wire form together with its canonical content
// hash. Saving under an existing name replaces the previous snapshot.
//
// The universe should be quiescent while saving: histories appended to
// concurrently are captured at whatever frontier the append race leaves them.
func SaveUniverse[S comparable](ctx context.Context, s *Store, name string, horizon event.Time, u *universe.Universe[S]) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save snapshot %q: %w", name, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (name, horizon)
		VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET horizon = excluded.horizon
	`, name, int64(horizon))
	if err != nil {
		return fmt.Errorf("save snapshot %q: %w", name, err)
	}

	// Replace rather than merge: objects destroyed since the last save must
	// not linger with stale histories.
	if _, err := tx.ExecContext(ctx, `DELETE FROM histories WHERE snapshot = ?`, name); err != nil {
		return fmt.Errorf("save snapshot %q: %w", name, err)
	}

	for _, id := range u.Objects() {
		h, ok := u.History(id)
		if !ok {
			continue
		}
		w, err := wire.EncodeHistory(h)
		if err != nil {
			return fmt.Errorf("save snapshot %q: %w", name, err)
		}
		doc, err := json.Marshal(w)
		if err != nil {
			return fmt.Errorf("save snapshot %q: object %s: %w", name, id, err)
		}
		hash, err := wire.HistoryHash(w)
		if err != nil {
			return fmt.Errorf("save snapshot %q: object %s: %w", name, id, err)
		}
		last := h.LastEvent()
		destroyed := 0
		if last.Destroyed() {
			destroyed = 1
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO histories (snapshot, object_id, start, frontier, destroyed, doc, hash)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, name, string(id), int64(h.Start()), int64(last.When()), destroyed, string(doc), hash)
		if err != nil {
			return fmt.Errorf("save snapshot %q: object %s: %w", name, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save snapshot %q: %w", name, err)
	}
	return nil
}

// LoadUniverse rebuilds a universe from a snapshot. Each stored history is
// verified against its content hash before it is decoded; advance rules are
// reattached through resolve, since rules are behavior and never persisted.
func LoadUniverse[S comparable](ctx context.Context, s *Store, name string, resolve wire.RuleResolver[S]) (*universe.Universe[S], error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots WHERE name = ?`, name).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %q: %w", name, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("load snapshot %q: not found", name)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT object_id, doc, hash
		FROM histories
		WHERE snapshot = ?
		ORDER BY object_id COLLATE BINARY ASC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %q: %w", name, err)
	}
	defer rows.Close()

	u := universe.New[S]()
	for rows.Next() {
		var objectID, doc, storedHash string
		if err := rows.Scan(&objectID, &doc, &storedHash); err != nil {
			return nil, fmt.Errorf("load snapshot %q: %w", name, err)
		}
		h, err := decodeStoredHistory(doc, storedHash, resolve)
		if err != nil {
			return nil, fmt.Errorf("load snapshot %q: object %s: %w", name, objectID, err)
		}
		if got := string(h.Object()); got != objectID {
			return nil, fmt.Errorf("load snapshot %q: row %s holds history of %s", name, objectID, got)
		}
		if err := u.Attach(h); err != nil {
			return nil, fmt.Errorf("load snapshot %q: object %s: %w", name, objectID, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load snapshot %q: %w", name, err)
	}
	return u, nil
}

// Horizon returns the horizon a snapshot was saved with.
func (s *Store) Horizon(ctx context.Context, name string) (event.Time, error) {
	var horizon int64
	err := s.db.QueryRowContext(ctx, `SELECT horizon FROM snapshots WHERE name = ?`, name).Scan(&horizon)
	if err != nil {
		return 0, fmt.Errorf("snapshot %q: %w", name, err)
	}
	return event.Time(horizon), nil
}

// ListSnapshots returns every snapshot in the store, newest first.
func (s *Store) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.name, s.horizon, s.created_at, COUNT(h.object_id)
		FROM snapshots s
		LEFT JOIN histories h ON h.snapshot = s.name
		GROUP BY s.name
		ORDER BY s.created_at DESC, s.name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var horizon int64
		var created string
		if err := rows.Scan(&info.Name, &horizon, &created, &info.Objects); err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		info.Horizon = event.Time(horizon)
		// created_at is written by SQLite's strftime; a parse failure leaves
		// the zero time rather than failing the listing.
		info.CreatedAt, _ = time.Parse("2006-01-02T15:04:05.999Z", created)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return infos, nil
}

// HistoryHashes returns the stored content hash of every history in a
// snapshot, keyed by object id.
func (s *Store) HistoryHashes(ctx context.Context, name string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT object_id, hash FROM histories WHERE snapshot = ?
	`, name)
	if err != nil {
		return nil, fmt.Errorf("snapshot %q hashes: %w", name, err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var objectID, hash string
		if err := rows.Scan(&objectID, &hash); err != nil {
			return nil, fmt.Errorf("snapshot %q hashes: %w", name, err)
		}
		hashes[objectID] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot %q hashes: %w", name, err)
	}
	return hashes, nil
}

// DeleteSnapshot removes a snapshot and its histories.
func (s *Store) DeleteSnapshot(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete snapshot %q: %w", name, err)
	}
	return nil
}

// decodeStoredHistory verifies the stored hash, then decodes the wire form.
func decodeStoredHistory[S comparable](doc, storedHash string, resolve wire.RuleResolver[S]) (*history.History[S], error) {
	var w wire.History
	if err := json.Unmarshal([]byte(doc), &w); err != nil {
		return nil, err
	}
	hash, err := wire.HistoryHash(w)
	if err != nil {
		return nil, err
	}
	if hash != storedHash {
		return nil, fmt.Errorf("stored hash %s does not match document hash %s", storedHash, hash)
	}
	return wire.DecodeHistory(w, resolve)
}
