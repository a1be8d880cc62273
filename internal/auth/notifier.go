package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/kuitang/shared-notes/internal/email"
	"github.com/kuitang/shared-notes/internal/notes"
	"github.com/kuitang/shared-notes/internal/urlutil"
)

// ShareNotifier emails the recipient of a share. It implements notes.Notifier.
type ShareNotifier struct {
	users   UserStore
	email   email.EmailService
	baseURL string
}

// NewShareNotifier creates a notifier. baseURL is used to build a link to the
// rendered note and may be empty.
func NewShareNotifier(users UserStore, emailSvc email.EmailService, baseURL string) *ShareNotifier {
	return &ShareNotifier{
		users:   users,
		email:   emailSvc,
		baseURL: urlutil.Normalize(baseURL),
	}
}

func (n *ShareNotifier) NoteShared(ctx context.Context, note *notes.Note, sharedUserID string) error {
	recipient, err := n.users.FindByID(ctx, sharedUserID)
	if err != nil {
		return fmt.Errorf("find recipient: %w", err)
	}

	ownerName := note.OwnerID
	if owner, err := n.users.FindByID(ctx, note.OwnerID); err == nil {
		ownerName = displayName(owner)
	}

	data := email.NoteSharedData{
		OwnerName: ownerName,
		NoteTitle: note.Title,
		Link:      urlutil.NoteHTML(n.baseURL, note.ID),
	}
	return n.email.Send(recipient.Email, email.TemplateNoteShared, data)
}

func displayName(u *User) string {
	if name := strings.TrimSpace(u.Username); name != "" {
		return name
	}
	return u.Email
}
