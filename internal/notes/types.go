package notes

import (
	"errors"
	"time"
)

// Repository sentinels. Implementations return these (possibly wrapped) so the
// service can tell domain outcomes from storage failures.
var (
	// ErrNotFound is returned when no note matches the id or filter.
	ErrNotFound = errors.New("note not found")

	// ErrAlreadyShared is returned by AddShare when the user is already a member.
	ErrAlreadyShared = errors.New("note already shared with user")
)

// User-facing messages. Clients match on some of these strings.
const (
	MsgTitleDescriptionRequired = "Title and description are required"
	MsgNoteNotFound             = "Note not found"
	MsgInvalidSharedUserID      = "Invalid sharedUserId format"
	MsgSharedUserNotFound       = "Shared user not found"
	MsgNoteNotOwned             = "Note not found or does not belong to the user"
	MsgAlreadyShared            = "Note already shared with the user"
	MsgShareWithOwner           = "Cannot share a note with its owner"
	MsgShared                   = "Note shared successfully"
)

// Note is a short text note owned by one user and optionally shared with others.
type Note struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	OwnerID     string    `json:"userId"`
	SharedWith  []string  `json:"sharedWith"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Owner implements access.Resource. A nil note has no owner.
func (n *Note) Owner() string {
	if n == nil {
		return ""
	}
	return n.OwnerID
}

// SharedWithIDs implements access.Resource.
func (n *Note) SharedWithIDs() []string {
	if n == nil {
		return nil
	}
	return n.SharedWith
}

// CreateNoteParams contains parameters for creating a note
type CreateNoteParams struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UpdateNoteParams contains parameters for updating a note.
// A nil field keeps the stored value; a non-nil empty string is rejected.
type UpdateNoteParams struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// ShareNoteParams is the body of a share request.
type ShareNoteParams struct {
	SharedUserID string `json:"sharedUserId"`
}

// CreatedNote is the public projection returned by Create.
type CreatedNote struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	UserID      string `json:"userId"`
}

// UpdatedNote is the field set written by Update.
type UpdatedNote struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	UserID      string `json:"userId"`
}

// NoteLists holds the two disjoint listings for a user.
type NoteLists struct {
	Owned  []Note `json:"ownedNotes"`
	Shared []Note `json:"NotesSharedWithYou"`
}

// Filter is a conjunction of note predicates. Empty fields are ignored.
// A zero Filter matches every note, which no service operation ever issues.
type Filter struct {
	ID         string // id = ID
	OwnerID    string // owner_id = OwnerID
	SharedWith string // SharedWith ∈ shared-with set
	VisibleTo  string // owner_id = VisibleTo OR VisibleTo ∈ shared-with set
}

// NoteUpdate is written by Repository.UpdateByID. Nil text fields keep the
// stored value. OwnerID always replaces the owner and drops that user from the
// shared-with set in the same write.
type NoteUpdate struct {
	Title       *string
	Description *string
	OwnerID     string
	UpdatedAt   time.Time
}
