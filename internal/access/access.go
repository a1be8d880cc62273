// Package access decides who may see or change a note.
//
// The owner may do anything; members of the shared-with set may only view.
// Nothing here performs I/O. Storage queries that enforce the same rules live
// with the repositories.
package access

import "slices"

// Resource is anything with an owner and a shared-with set. The nil checks
// below only catch a nil interface; a Resource backed by a pointer must make
// its methods safe on a nil receiver, returning an empty owner.
type Resource interface {
	Owner() string
	SharedWithIDs() []string
}

// CanView reports whether userID owns r or is in its shared-with set.
func CanView(r Resource, userID string) bool {
	if r == nil || userID == "" {
		return false
	}
	return r.Owner() == userID || slices.Contains(r.SharedWithIDs(), userID)
}

// CanEdit reports whether userID may change r's title or description.
// Update and delete act by id alone; Delete only uses this to log
// deletions by non-owners.
func CanEdit(r Resource, userID string) bool {
	return isOwner(r, userID)
}

// CanShare reports whether userID may add members to r's shared-with set.
func CanShare(r Resource, userID string) bool {
	return isOwner(r, userID)
}

func isOwner(r Resource, userID string) bool {
	if r == nil || userID == "" {
		return false
	}
	return r.Owner() == userID
}
