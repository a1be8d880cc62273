package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kuitang/shared-notes/internal/notes"
)

// shareBatchSize keeps IN lists under SQLite's default variable limit.
const shareBatchSize = 500

const noteColumns = `n.id, n.title, n.description, n.owner_id, n.created_at, n.updated_at`

// NoteStore implements notes.Repository on SQLite.
type NoteStore struct {
	db *sql.DB
}

var _ notes.Repository = (*NoteStore)(nil)

// filterClause renders f as a WHERE clause over the alias n.
func filterClause(f notes.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.ID != "" {
		conds = append(conds, "n.id = ?")
		args = append(args, f.ID)
	}
	if f.OwnerID != "" {
		conds = append(conds, "n.owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.SharedWith != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM note_shares s WHERE s.note_id = n.id AND s.user_id = ?)")
		args = append(args, f.SharedWith)
	}
	if f.VisibleTo != "" {
		conds = append(conds, "(n.owner_id = ? OR EXISTS (SELECT 1 FROM note_shares s WHERE s.note_id = n.id AND s.user_id = ?))")
		args = append(args, f.VisibleTo, f.VisibleTo)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Insert stores a new note together with its shared-with set.
func (s *NoteStore) Insert(ctx context.Context, note *notes.Note) error {
	return withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO notes (id, title, description, owner_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			note.ID, note.Title, note.Description, note.OwnerID, toMillis(note.CreatedAt), toMillis(note.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert note: %w", err)
		}
		for _, userID := range note.SharedWith {
			if err := insertShare(ctx, tx, note.ID, userID, toMillis(note.CreatedAt)); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindOne returns the first note matching filter in creation order.
func (s *NoteStore) FindOne(ctx context.Context, filter notes.Filter) (*notes.Note, error) {
	return findOne(ctx, s.db, filter)
}

// Find returns every note matching filter in creation order.
func (s *NoteStore) Find(ctx context.Context, filter notes.Filter) ([]notes.Note, error) {
	where, args := filterClause(filter)
	return queryNotes(ctx, s.db, `SELECT `+noteColumns+` FROM notes n`+where+` ORDER BY n.created_at, n.rowid`, args...)
}

// UpdateByID applies update and drops the new owner from the shared-with set
// in the same transaction.
func (s *NoteStore) UpdateByID(ctx context.Context, id string, update notes.NoteUpdate) (*notes.Note, error) {
	var out *notes.Note
	err := withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE notes
			SET title = COALESCE(?, title),
			    description = COALESCE(?, description),
			    owner_id = ?,
			    updated_at = ?
			WHERE id = ?`,
			nullableString(update.Title), nullableString(update.Description), update.OwnerID, toMillis(update.UpdatedAt), id,
		)
		if err != nil {
			return fmt.Errorf("update note: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("update note: %w", err)
		} else if n == 0 {
			return notes.ErrNotFound
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM note_shares WHERE note_id = ? AND user_id = ?`, id, update.OwnerID); err != nil {
			return fmt.Errorf("drop owner share: %w", err)
		}

		out, err = findOne(ctx, tx, notes.Filter{ID: id})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteByID removes a note and its shares and returns the removed note.
func (s *NoteStore) DeleteByID(ctx context.Context, id string) (*notes.Note, error) {
	var out *notes.Note
	err := withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		note, err := findOne(ctx, tx, notes.Filter{ID: id})
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete note: %w", err)
		}
		out = note
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddShare appends userID to the note's shared-with set. The composite primary
// key turns a duplicate into notes.ErrAlreadyShared even under concurrency.
func (s *NoteStore) AddShare(ctx context.Context, id, userID string) (*notes.Note, error) {
	var out *notes.Note
	err := withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM notes WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return notes.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check note: %w", err)
		}
		if err := insertShare(ctx, tx, id, userID, toMillis(time.Now())); err != nil {
			return err
		}

		out, err = findOne(ctx, tx, notes.Filter{ID: id})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TextSearch runs an FTS5 query over title and description, restricted to
// notes matching filter, best match first.
func (s *NoteStore) TextSearch(ctx context.Context, filter notes.Filter, query string) ([]notes.Note, error) {
	escaped := EscapeFTS5Query(query)
	if escaped == "" {
		return []notes.Note{}, nil
	}

	where, args := filterClause(filter)
	if where == "" {
		where = " WHERE fts_notes MATCH ?"
	} else {
		where += " AND fts_notes MATCH ?"
	}
	args = append(args, escaped)

	return queryNotes(ctx, s.db, `
		SELECT `+noteColumns+`
		FROM fts_notes f
		JOIN notes n ON n.rowid = f.rowid`+where+`
		ORDER BY rank, n.created_at, n.rowid`, args...)
}

func insertShare(ctx context.Context, q DBTX, noteID, userID string, at int64) error {
	_, err := q.ExecContext(ctx, `INSERT INTO note_shares (note_id, user_id, created_at) VALUES (?, ?, ?)`, noteID, userID, at)
	if isUniqueViolation(err) {
		return notes.ErrAlreadyShared
	}
	if err != nil {
		return fmt.Errorf("insert share: %w", err)
	}
	return nil
}

func findOne(ctx context.Context, q DBTX, filter notes.Filter) (*notes.Note, error) {
	where, args := filterClause(filter)
	found, err := queryNotes(ctx, q, `SELECT `+noteColumns+` FROM notes n`+where+` ORDER BY n.created_at, n.rowid LIMIT 1`, args...)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, notes.ErrNotFound
	}
	return &found[0], nil
}

// queryNotes scans notes and then loads their shares. The note rows are
// closed before the share query so this works on a single connection.
func queryNotes(ctx context.Context, q DBTX, query string, args ...any) ([]notes.Note, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}

	result := []notes.Note{}
	for rows.Next() {
		var (
			n                    notes.Note
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&n.ID, &n.Title, &n.Description, &n.OwnerID, &createdAt, &updatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan note: %w", err)
		}
		n.CreatedAt = fromMillis(createdAt)
		n.UpdatedAt = fromMillis(updatedAt)
		n.SharedWith = []string{}
		result = append(result, n)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}

	if err := loadShares(ctx, q, result); err != nil {
		return nil, err
	}
	return result, nil
}

// loadShares fills SharedWith for each note in share insertion order.
func loadShares(ctx context.Context, q DBTX, list []notes.Note) error {
	index := make(map[string]int, len(list))
	for i := range list {
		index[list[i].ID] = i
	}

	for start := 0; start < len(list); start += shareBatchSize {
		end := min(start+shareBatchSize, len(list))
		placeholders := make([]string, 0, end-start)
		args := make([]any, 0, end-start)
		for _, n := range list[start:end] {
			placeholders = append(placeholders, "?")
			args = append(args, n.ID)
		}

		rows, err := q.QueryContext(ctx,
			`SELECT note_id, user_id FROM note_shares WHERE note_id IN (`+strings.Join(placeholders, ",")+`) ORDER BY rowid`,
			args...,
		)
		if err != nil {
			return fmt.Errorf("query shares: %w", err)
		}
		for rows.Next() {
			var noteID, userID string
			if err := rows.Scan(&noteID, &userID); err != nil {
				rows.Close()
				return fmt.Errorf("scan share: %w", err)
			}
			if i, ok := index[noteID]; ok {
				list[i].SharedWith = append(list[i].SharedWith, userID)
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("iterate shares: %w", err)
		}
	}
	return nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
