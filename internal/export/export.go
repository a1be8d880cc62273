// Package export writes a snapshot of a user's notes to object storage.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kuitang/shared-notes/internal/errs"
	"github.com/kuitang/shared-notes/internal/notes"
	"github.com/kuitang/shared-notes/internal/obs"
)

// MsgUnavailable is returned when no object store is configured.
const MsgUnavailable = "Export is not configured"

// Lister is the part of notes.Service an export needs.
type Lister interface {
	List(ctx context.Context, userID string) (*notes.NoteLists, error)
}

// ObjectStore is the part of s3client.Client an export needs.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, content []byte, contentType string) error
	PresignGetURL(ctx context.Context, key string) (string, error)
}

// Document is the exported JSON file.
type Document struct {
	ExportedAt time.Time    `json:"exportedAt"`
	UserID     string       `json:"userId"`
	Owned      []notes.Note `json:"ownedNotes"`
	Shared     []notes.Note `json:"NotesSharedWithYou"`
}

// Result describes a finished export.
type Result struct {
	Key   string `json:"key"`
	URL   string `json:"url"`
	Count int    `json:"count"`
}

// Exporter serializes a user's listing and uploads it.
type Exporter struct {
	notes Lister
	store ObjectStore
	now   func() time.Time
}

// NewExporter creates an exporter. A nil store makes every export fail with
// errs.Unavailable.
func NewExporter(lister Lister, store ObjectStore) *Exporter {
	return &Exporter{notes: lister, store: store, now: time.Now}
}

// Key returns the object key for an export taken at t.
func Key(userID string, t time.Time) string {
	return fmt.Sprintf("exports/%s/%d.json", userID, t.UnixNano())
}

// Export uploads every note owned by or shared with userID.
func (e *Exporter) Export(ctx context.Context, userID string) (*Result, error) {
	if e.store == nil {
		return nil, errs.New(errs.Unavailable, MsgUnavailable)
	}

	lists, err := e.notes.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	body, err := json.Marshal(Document{
		ExportedAt: now,
		UserID:     userID,
		Owned:      lists.Owned,
		Shared:     lists.Shared,
	})
	if err != nil {
		return nil, e.internal(ctx, "marshal", err)
	}

	key := Key(userID, now)
	if err := e.store.PutObject(ctx, key, body, "application/json"); err != nil {
		return nil, e.internal(ctx, "put object", err)
	}
	url, err := e.store.PresignGetURL(ctx, key)
	if err != nil {
		return nil, e.internal(ctx, "presign", err)
	}

	count := len(lists.Owned) + len(lists.Shared)
	obs.From(ctx).With("pkg", "export").Info("notes exported", "key", key, "count", count, "bytes", len(body))
	return &Result{Key: key, URL: url, Count: count}, nil
}

func (e *Exporter) internal(ctx context.Context, op string, err error) error {
	obs.From(ctx).With("pkg", "export").Error("export failed", "op", op, "error", err)
	return errs.Internalf(err)
}
