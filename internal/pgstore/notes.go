package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kuitang/shared-notes/internal/notes"
)

// shareBatchSize bounds the IN list of a single shares query.
const shareBatchSize = 500

const noteColumns = `n.id, n.title, n.description, n.owner_id, n.created_at, n.updated_at`

// searchVector must match the expression of idx_notes_fts.
const searchVector = `to_tsvector('simple', n.title || ' ' || n.description)`

// NoteStore implements notes.Repository on PostgreSQL.
type NoteStore struct {
	db *sql.DB
}

var _ notes.Repository = (*NoteStore)(nil)

// NewNoteStore returns a note repository bound to db.
func NewNoteStore(db *sql.DB) *NoteStore {
	return &NoteStore{db: db}
}

func filterClause(f notes.Filter, a *args) string {
	var conds []string
	if f.ID != "" {
		conds = append(conds, "n.id = "+a.add(f.ID))
	}
	if f.OwnerID != "" {
		conds = append(conds, "n.owner_id = "+a.add(f.OwnerID))
	}
	if f.SharedWith != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM note_shares s WHERE s.note_id = n.id AND s.user_id = "+a.add(f.SharedWith)+")")
	}
	if f.VisibleTo != "" {
		p := a.add(f.VisibleTo)
		conds = append(conds, "(n.owner_id = "+p+" OR EXISTS (SELECT 1 FROM note_shares s WHERE s.note_id = n.id AND s.user_id = "+p+"))")
	}
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// Insert stores a new note together with its shared-with set.
func (s *NoteStore) Insert(ctx context.Context, note *notes.Note) error {
	return withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO notes (id, title, description, owner_id, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			note.ID, note.Title, note.Description, note.OwnerID, note.CreatedAt.UTC(), note.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert note: %w", err)
		}
		for _, userID := range note.SharedWith {
			if err := insertShare(ctx, tx, note.ID, userID, note.CreatedAt); err != nil {
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
	var a args
	where := filterClause(filter, &a)
	return queryNotes(ctx, s.db, `SELECT `+noteColumns+` FROM notes n`+where+` ORDER BY n.created_at, n.seq`, a...)
}

// UpdateByID applies update and drops the new owner from the shared-with set
// in the same transaction.
func (s *NoteStore) UpdateByID(ctx context.Context, id string, update notes.NoteUpdate) (*notes.Note, error) {
	var out *notes.Note
	err := withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE notes
			 SET title = COALESCE($1, title),
			     description = COALESCE($2, description),
			     owner_id = $3,
			     updated_at = $4
			 WHERE id = $5`,
			nullableString(update.Title), nullableString(update.Description), update.OwnerID, update.UpdatedAt.UTC(), id,
		)
		if err != nil {
			return fmt.Errorf("update note: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("update note: %w", err)
		} else if n == 0 {
			return notes.ErrNotFound
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM note_shares WHERE note_id = $1 AND user_id = $2`, id, update.OwnerID); err != nil {
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
		if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = $1`, id); err != nil {
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
// key turns a duplicate into notes.ErrAlreadyShared.
func (s *NoteStore) AddShare(ctx context.Context, id, userID string) (*notes.Note, error) {
	var out *notes.Note
	err := withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM notes WHERE id = $1 FOR UPDATE`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return notes.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check note: %w", err)
		}
		if err := insertShare(ctx, tx, id, userID, time.Now()); err != nil {
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

// TextSearch matches every word of query against title and description,
// restricted to notes matching filter, best match first.
func (s *NoteStore) TextSearch(ctx context.Context, filter notes.Filter, query string) ([]notes.Note, error) {
	if strings.TrimSpace(query) == "" {
		return []notes.Note{}, nil
	}

	var a args
	where := filterClause(filter, &a)
	q := a.add(query)
	match := searchVector + " @@ plainto_tsquery('simple', " + q + ")"
	if where == "" {
		where = " WHERE " + match
	} else {
		where += " AND " + match
	}

	return queryNotes(ctx, s.db, `
		SELECT `+noteColumns+`
		FROM notes n`+where+`
		ORDER BY ts_rank(`+searchVector+`, plainto_tsquery('simple', `+q+`)) DESC, n.created_at, n.seq`, a...)
}

func insertShare(ctx context.Context, q DBTX, noteID, userID string, at time.Time) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO note_shares (note_id, user_id, created_at) VALUES ($1, $2, $3)`,
		noteID, userID, at.UTC(),
	)
	if isUniqueViolation(err) {
		return notes.ErrAlreadyShared
	}
	if err != nil {
		return fmt.Errorf("insert share: %w", err)
	}
	return nil
}

func findOne(ctx context.Context, q DBTX, filter notes.Filter) (*notes.Note, error) {
	var a args
	where := filterClause(filter, &a)
	found, err := queryNotes(ctx, q, `SELECT `+noteColumns+` FROM notes n`+where+` ORDER BY n.created_at, n.seq LIMIT 1`, a...)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, notes.ErrNotFound
	}
	return &found[0], nil
}

func queryNotes(ctx context.Context, q DBTX, query string, queryArgs ...any) ([]notes.Note, error) {
	rows, err := q.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}

	result := []notes.Note{}
	for rows.Next() {
		var n notes.Note
		if err := rows.Scan(&n.ID, &n.Title, &n.Description, &n.OwnerID, &n.CreatedAt, &n.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan note: %w", err)
		}
		n.CreatedAt = n.CreatedAt.UTC()
		n.UpdatedAt = n.UpdatedAt.UTC()
		n.SharedWith = []string{}
		result = append(result, n)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}

	if len(result) == 0 {
		return result, nil
	}
	if err := loadShares(ctx, q, result); err != nil {
		return nil, err
	}
	return result, nil
}

// loadShares fills SharedWith for each note in share insertion order, one
// query per batch of shareBatchSize notes.
func loadShares(ctx context.Context, q DBTX, list []notes.Note) error {
	index := make(map[string]int, len(list))
	for i := range list {
		index[list[i].ID] = i
	}

	for start := 0; start < len(list); start += shareBatchSize {
		end := min(start+shareBatchSize, len(list))
		var (
			a            args
			placeholders = make([]string, 0, end-start)
		)
		for _, n := range list[start:end] {
			placeholders = append(placeholders, a.add(n.ID))
		}
		if err := loadShareBatch(ctx, q, strings.Join(placeholders, ", "), a, list, index); err != nil {
			return err
		}
	}
	return nil
}

func loadShareBatch(ctx context.Context, q DBTX, placeholders string, a args, list []notes.Note, index map[string]int) error {
	rows, err := q.QueryContext(ctx,
		`SELECT note_id, user_id FROM note_shares WHERE note_id IN (`+placeholders+`) ORDER BY seq`,
		a...,
	)
	if err != nil {
		return fmt.Errorf("query shares: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var noteID, userID string
		if err := rows.Scan(&noteID, &userID); err != nil {
			return fmt.Errorf("scan share: %w", err)
		}
		if i, ok := index[noteID]; ok {
			list[i].SharedWith = append(list[i].SharedWith, userID)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate shares: %w", err)
	}
	return nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
