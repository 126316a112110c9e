package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/mover/internal/ir"
)

// Entry is one stored (path, value) pair.
type Entry struct {
	Path  ir.AccessPath
	Value []byte
}

// Get returns the value stored at path. ok is false when nothing is stored.
func (s *Store) Get(ctx context.Context, path ir.AccessPath) (value []byte, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE path = ?`, string(path)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", path, err)
	}
	return value, true, nil
}

// Put stores value at path, replacing any previous value.
func (s *Store) Put(ctx context.Context, path ir.AccessPath, value []byte) error {
	return put(ctx, s.db, path, value)
}

// Delete removes path. Deleting an absent path is not an error.
func (s *Store) Delete(ctx context.Context, path ir.AccessPath) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM state WHERE path = ?`, string(path)); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// AddModule publishes module bytecode under its module access path.
func (s *Store) AddModule(ctx context.Context, id ir.ModuleID, bytecode []byte) error {
	if err := s.Put(ctx, ir.ModulePath(id), bytecode); err != nil {
		return fmt.Errorf("publish module %s: %w", id, err)
	}
	return nil
}

// ApplyWriteSet applies every op of ws in one transaction. Either all ops
// land or none do.
func (s *Store) ApplyWriteSet(ctx context.Context, ws ir.WriteSet) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apply write set: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, op := range ws {
		switch op.Kind {
		case ir.WriteKindSet:
			if err := put(ctx, tx, op.Path, op.Value); err != nil {
				return fmt.Errorf("apply write set: %w", err)
			}
		case ir.WriteKindDelete:
			if _, err := tx.ExecContext(ctx, `DELETE FROM state WHERE path = ?`, string(op.Path)); err != nil {
				return fmt.Errorf("apply write set: delete %s: %w", op.Path, err)
			}
		default:
			return fmt.Errorf("apply write set: %s: unknown op %q", op.Path, op.Kind)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("apply write set: commit: %w", err)
	}
	return nil
}

// Entries returns every stored pair ordered by path.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	return s.query(ctx, `SELECT path, value FROM state ORDER BY path COLLATE BINARY ASC`)
}

// Modules returns the published modules ordered by path.
func (s *Store) Modules(ctx context.Context) ([]Entry, error) {
	return s.query(ctx, `SELECT path, value FROM state WHERE kind = 'module' ORDER BY path COLLATE BINARY ASC`)
}

// Snapshot returns the whole state as a write set of sets, suitable for
// seeding another store.
func (s *Store) Snapshot(ctx context.Context) (ir.WriteSet, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return nil, err
	}
	ws := make(ir.WriteSet, 0, len(entries))
	for _, e := range entries {
		ws = append(ws, ir.WriteOp{Path: e.Path, Kind: ir.WriteKindSet, Value: e.Value})
	}
	return ws, nil
}

func (s *Store) query(ctx context.Context, q string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list state: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var path string
		if err := rows.Scan(&path, &e.Value); err != nil {
			return nil, fmt.Errorf("list state: %w", err)
		}
		e.Path = ir.AccessPath(path)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list state: %w", err)
	}
	return entries, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func put(ctx context.Context, db execer, path ir.AccessPath, value []byte) error {
	_, kind, _, err := path.Parse()
	if err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO state (path, kind, value) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET kind = excluded.kind, value = excluded.value
	`, string(path), kind, value)
	if err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}
	return nil
}
