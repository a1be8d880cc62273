package notes

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/shared-notes/internal/access"
	"github.com/kuitang/shared-notes/internal/errs"
	"github.com/kuitang/shared-notes/internal/obs"
)

// Service handles note CRUD, sharing and search on top of a Repository.
// Every method expects an already authenticated user id.
type Service struct {
	repo     Repository
	users    UserLookup
	notifier Notifier
	clock    Clock
	log      *slog.Logger
}

// NewService creates a new notes service.
func NewService(repo Repository, users UserLookup) *Service {
	return &Service{
		repo:  repo,
		users: users,
		clock: realClock{},
		log:   obs.Pkg("notes"),
	}
}

// SetClock replaces the clock used by the service. Intended for testing.
func (s *Service) SetClock(c Clock) {
	s.clock = c
}

// SetNotifier installs a share notifier. A nil notifier disables notifications.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Millisecond)
}

// internal logs a collaborator failure and hides it behind errs.Internal.
func (s *Service) internal(ctx context.Context, op string, err error) error {
	obs.From(ctx).With("pkg", "notes").Error("repository call failed", "op", op, "error", err)
	return errs.Internalf(err)
}

// Create stores a new note owned by userID.
func (s *Service) Create(ctx context.Context, userID string, params CreateNoteParams) (*CreatedNote, error) {
	if params.Title == "" || params.Description == "" {
		return nil, errs.New(errs.InvalidArgument, MsgTitleDescriptionRequired)
	}

	now := s.now()
	note := &Note{
		ID:          uuid.NewString(),
		Title:       params.Title,
		Description: params.Description,
		OwnerID:     userID,
		SharedWith:  []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, note); err != nil {
		return nil, s.internal(ctx, "insert", err)
	}

	return &CreatedNote{
		ID:          note.ID,
		Title:       note.Title,
		Description: note.Description,
		UserID:      note.OwnerID,
	}, nil
}

// Delete removes a note by id and returns it.
//
// Ownership is not checked: any authenticated user may delete any note whose id
// they know. userID is only used to log deletions by non-owners.
func (s *Service) Delete(ctx context.Context, noteID, userID string) (*Note, error) {
	if noteID == "" {
		return nil, errs.New(errs.NotFound, MsgNoteNotFound)
	}

	note, err := s.repo.DeleteByID(ctx, noteID)
	if errors.Is(err, ErrNotFound) {
		return nil, errs.Wrap(errs.NotFound, MsgNoteNotFound, err)
	}
	if err != nil {
		return nil, s.internal(ctx, "delete", err)
	}

	if !access.CanEdit(note, userID) {
		obs.From(ctx).With("pkg", "notes").Warn("note deleted by non-owner", "note_id", note.ID, "owner_id", note.OwnerID)
	}
	return note, nil
}

// Update overwrites the provided text fields and re-stamps the owner to userID.
//
// Like Delete, Update does not check that userID owned the note beforehand.
// Whoever updates a note becomes its owner.
func (s *Service) Update(ctx context.Context, noteID, userID string, params UpdateNoteParams) (*UpdatedNote, error) {
	if (params.Title != nil && *params.Title == "") || (params.Description != nil && *params.Description == "") {
		return nil, errs.New(errs.InvalidArgument, MsgTitleDescriptionRequired)
	}
	if noteID == "" {
		return nil, errs.New(errs.NotFound, MsgNoteNotFound)
	}

	note, err := s.repo.UpdateByID(ctx, noteID, NoteUpdate{
		Title:       params.Title,
		Description: params.Description,
		OwnerID:     userID,
		UpdatedAt:   s.now(),
	})
	if errors.Is(err, ErrNotFound) {
		return nil, errs.Wrap(errs.NotFound, MsgNoteNotFound, err)
	}
	if err != nil {
		return nil, s.internal(ctx, "update", err)
	}

	return &UpdatedNote{
		Title:       note.Title,
		Description: note.Description,
		UserID:      note.OwnerID,
	}, nil
}

// List returns the notes userID owns and the notes shared with userID.
func (s *Service) List(ctx context.Context, userID string) (*NoteLists, error) {
	owned, err := s.repo.Find(ctx, Filter{OwnerID: userID})
	if err != nil {
		return nil, s.internal(ctx, "find owned", err)
	}
	shared, err := s.repo.Find(ctx, Filter{SharedWith: userID})
	if err != nil {
		return nil, s.internal(ctx, "find shared", err)
	}

	return &NoteLists{
		Owned:  nonNil(owned),
		Shared: nonNil(shared),
	}, nil
}

// Get returns a note visible to userID.
// A hidden note and a missing note produce the same NotFound error.
func (s *Service) Get(ctx context.Context, noteID, userID string) (*Note, error) {
	if noteID == "" || userID == "" {
		return nil, errs.New(errs.NotFound, MsgNoteNotFound)
	}

	note, err := s.repo.FindOne(ctx, Filter{ID: noteID, VisibleTo: userID})
	if errors.Is(err, ErrNotFound) {
		return nil, errs.Wrap(errs.NotFound, MsgNoteNotFound, err)
	}
	if err != nil {
		return nil, s.internal(ctx, "find one", err)
	}
	if !access.CanView(note, userID) {
		s.log.Error("repository returned a note outside the visibility filter", "note_id", note.ID)
		return nil, errs.New(errs.NotFound, MsgNoteNotFound)
	}
	return note, nil
}

// Share adds sharedUserID to the shared-with set of a note owned by requesterID.
//
// The membership check and the write are separate steps; two concurrent shares
// of the same user can both pass the check, and the storage layer's primary key
// on (note, user) turns the loser into ErrAlreadyShared.
func (s *Service) Share(ctx context.Context, noteID, requesterID, sharedUserID string) (*Note, error) {
	parsed, err := uuid.Parse(sharedUserID)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, MsgInvalidSharedUserID, err)
	}
	sharedUserID = parsed.String()

	exists, err := s.users.UserExists(ctx, sharedUserID)
	if err != nil {
		return nil, s.internal(ctx, "user exists", err)
	}
	if !exists {
		return nil, errs.New(errs.NotFound, MsgSharedUserNotFound)
	}

	note, err := s.repo.FindOne(ctx, Filter{ID: noteID, OwnerID: requesterID})
	if errors.Is(err, ErrNotFound) {
		return nil, errs.Wrap(errs.NotFound, MsgNoteNotOwned, err)
	}
	if err != nil {
		return nil, s.internal(ctx, "find owned note", err)
	}
	if !access.CanShare(note, requesterID) {
		return nil, errs.New(errs.NotFound, MsgNoteNotOwned)
	}
	if sharedUserID == note.OwnerID {
		return nil, errs.New(errs.InvalidArgument, MsgShareWithOwner)
	}
	if slices.Contains(note.SharedWith, sharedUserID) {
		return nil, errs.New(errs.Conflict, MsgAlreadyShared)
	}

	updated, err := s.repo.AddShare(ctx, note.ID, sharedUserID)
	switch {
	case errors.Is(err, ErrAlreadyShared):
		return nil, errs.Wrap(errs.Conflict, MsgAlreadyShared, err)
	case errors.Is(err, ErrNotFound):
		return nil, errs.Wrap(errs.NotFound, MsgNoteNotOwned, err)
	case err != nil:
		return nil, s.internal(ctx, "add share", err)
	}

	if s.notifier != nil {
		if err := s.notifier.NoteShared(ctx, updated, sharedUserID); err != nil {
			obs.From(ctx).With("pkg", "notes").Warn("share notification failed", "note_id", updated.ID, "error", err)
		}
	}
	return updated, nil
}

// Search runs a full-text query over the notes visible to userID.
// A query with no searchable terms returns an empty list.
func (s *Service) Search(ctx context.Context, userID, query string) ([]Note, error) {
	results, err := s.repo.TextSearch(ctx, Filter{VisibleTo: userID}, query)
	if err != nil {
		return nil, s.internal(ctx, "text search", err)
	}
	return nonNil(results), nil
}

func nonNil(in []Note) []Note {
	if in == nil {
		return []Note{}
	}
	return in
}
