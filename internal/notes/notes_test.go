package notes_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/shared-notes/internal/access"
	"github.com/kuitang/shared-notes/internal/auth"
	"github.com/kuitang/shared-notes/internal/db/testutil"
	"github.com/kuitang/shared-notes/internal/errs"
	"github.com/kuitang/shared-notes/internal/notes"
	"github.com/kuitang/shared-notes/internal/testdb"
)

// knownUsers is a UserLookup over a fixed set of ids.
type knownUsers map[string]bool

func (k knownUsers) UserExists(_ context.Context, id string) (bool, error) {
	return k[id], nil
}

type shareEvent struct {
	noteID, userID string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []shareEvent
	err    error
}

func (r *recordingNotifier) NoteShared(_ context.Context, note *notes.Note, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, shareEvent{note.ID, userID})
	return r.err
}

type fixture struct {
	svc   *notes.Service
	users knownUsers
	clock *auth.FakeClock
}

func newFixture(t *testing.T, userCount int) *fixture {
	t.Helper()
	store := testdb.MustStore(t)
	return buildFixture(store.Notes(), userCount)
}

func buildFixture(repo notes.Repository, userCount int) *fixture {
	users := knownUsers{}
	for i := 0; i < userCount; i++ {
		users[uuid.NewString()] = true
	}
	clock := auth.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := notes.NewService(repo, users)
	svc.SetClock(clock)
	return &fixture{svc: svc, users: users, clock: clock}
}

func (f *fixture) userList() []string {
	out := make([]string, 0, len(f.users))
	for id := range f.users {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func requireCode(t require.TestingT, err error, code errs.Code, msg string) {
	require.Error(t, err)
	require.Equal(t, code, errs.CodeOf(err), "error: %v", err)
	require.Equal(t, msg, errs.MessageOf(err))
}

// =============================================================================
// Property: Create then Get returns the same content
// =============================================================================

func testCreate_Roundtrip_Properties(t *rapid.T) {
	store, err := testdb.NewStoreInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	f := buildFixture(store.Notes(), 1)
	ctx := context.Background()
	owner := f.userList()[0]

	title := testutil.NoteTitle().Draw(t, "title")
	desc := testutil.ArbitraryNonEmptyString().Draw(t, "description")

	created, err := f.svc.Create(ctx, owner, notes.CreateNoteParams{Title: title, Description: desc})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.UserID != owner || created.Title != title || created.Description != desc {
		t.Fatalf("create echoed %+v", created)
	}

	got, err := f.svc.Get(ctx, created.ID, owner)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != title || got.Description != desc || got.OwnerID != owner {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.SharedWith) != 0 || got.SharedWith == nil {
		t.Fatalf("new note must have an empty, non-nil shared-with set")
	}
	if !got.CreatedAt.Equal(f.clock.Now()) || !got.UpdatedAt.Equal(got.CreatedAt) {
		t.Fatalf("timestamps not taken from the clock: %v %v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestCreate_Roundtrip_Properties(t *testing.T) {
	rapid.Check(t, testCreate_Roundtrip_Properties)
}

func FuzzCreate_Roundtrip_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testCreate_Roundtrip_Properties))
}

// =============================================================================
// Property: Get succeeds iff the caller owns the note or it is shared with them
// =============================================================================

func testGet_VisibilityIff_Properties(t *rapid.T) {
	store, err := testdb.NewStoreInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	f := buildFixture(store.Notes(), 4)
	ctx := context.Background()
	users := f.userList()

	owner := rapid.SampledFrom(users).Draw(t, "owner")
	created, err := f.svc.Create(ctx, owner, notes.CreateNoteParams{Title: "t", Description: "d"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, u := range users {
		if u != owner && rapid.Bool().Draw(t, "share") {
			if _, err := f.svc.Share(ctx, created.ID, owner, u); err != nil {
				t.Fatalf("share: %v", err)
			}
		}
	}

	full, err := f.svc.Get(ctx, created.ID, owner)
	if err != nil {
		t.Fatalf("owner get: %v", err)
	}

	for _, u := range append(users, uuid.NewString()) {
		_, err := f.svc.Get(ctx, created.ID, u)
		visible := access.CanView(full, u)
		if visible && err != nil {
			t.Fatalf("user %s should see the note: %v", u, err)
		}
		if !visible && !errs.Is(err, errs.NotFound) {
			t.Fatalf("user %s should get NotFound, got %v", u, err)
		}
	}

	lists, err := f.svc.List(ctx, owner)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(lists.Owned) != 1 || len(lists.Shared) != 0 {
		t.Fatalf("owner listing wrong: %+v", lists)
	}
	for _, u := range full.SharedWith {
		lists, err := f.svc.List(ctx, u)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(lists.Owned) != 0 || len(lists.Shared) != 1 || lists.Shared[0].ID != created.ID {
			t.Fatalf("member listing wrong: %+v", lists)
		}
	}
}

func TestGet_VisibilityIff_Properties(t *testing.T) {
	rapid.Check(t, testGet_VisibilityIff_Properties)
}

func FuzzGet_VisibilityIff_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testGet_VisibilityIff_Properties))
}

// =============================================================================
// Property: sharing the same user twice changes nothing the second time
// =============================================================================

func testShare_Idempotent_Properties(t *rapid.T) {
	store, err := testdb.NewStoreInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	f := buildFixture(store.Notes(), 5)
	ctx := context.Background()
	users := f.userList()
	owner := users[0]

	created, err := f.svc.Create(ctx, owner, notes.CreateNoteParams{Title: "t", Description: "d"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	picks := rapid.SliceOfN(rapid.SampledFrom(users[1:]), 1, 10).Draw(t, "shares")
	var want []string
	for _, u := range picks {
		_, err := f.svc.Share(ctx, created.ID, owner, u)
		if slices.Contains(want, u) {
			if !errs.Is(err, errs.Conflict) {
				t.Fatalf("repeat share of %s: want Conflict, got %v", u, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("share %s: %v", u, err)
		}
		want = append(want, u)
	}

	got, err := f.svc.Get(ctx, created.ID, owner)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !slices.Equal(got.SharedWith, want) {
		t.Fatalf("shared-with = %v, want %v", got.SharedWith, want)
	}
}

func TestShare_Idempotent_Properties(t *testing.T) {
	rapid.Check(t, testShare_Idempotent_Properties)
}

func FuzzShare_Idempotent_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testShare_Idempotent_Properties))
}

// =============================================================================
// Property: Update overwrites provided fields and keeps the rest
// =============================================================================

func testUpdate_Roundtrip_Properties(t *rapid.T) {
	store, err := testdb.NewStoreInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	f := buildFixture(store.Notes(), 1)
	ctx := context.Background()
	owner := f.userList()[0]

	created, err := f.svc.Create(ctx, owner, notes.CreateNoteParams{
		Title:       testutil.NoteTitle().Draw(t, "title"),
		Description: testutil.NoteDescription().Draw(t, "description"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var params notes.UpdateNoteParams
	wantTitle, wantDesc := created.Title, created.Description
	if rapid.Bool().Draw(t, "set title") {
		v := testutil.NoteTitle().Draw(t, "new title")
		params.Title, wantTitle = &v, v
	}
	if rapid.Bool().Draw(t, "set description") {
		v := testutil.NoteDescription().Draw(t, "new description")
		params.Description, wantDesc = &v, v
	}

	f.clock.Advance(time.Minute)
	updated, err := f.svc.Update(ctx, created.ID, owner, params)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != wantTitle || updated.Description != wantDesc || updated.UserID != owner {
		t.Fatalf("update returned %+v", updated)
	}

	got, err := f.svc.Get(ctx, created.ID, owner)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != wantTitle || got.Description != wantDesc {
		t.Fatalf("stored %+v", got)
	}
	if !got.UpdatedAt.After(got.CreatedAt) {
		t.Fatalf("updatedAt not advanced")
	}
}

func TestUpdate_Roundtrip_Properties(t *testing.T) {
	rapid.Check(t, testUpdate_Roundtrip_Properties)
}

func FuzzUpdate_Roundtrip_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testUpdate_Roundtrip_Properties))
}

// =============================================================================
// Property: search only ever returns notes visible to the caller
// =============================================================================

func testSearch_ScopedToVisible_Properties(t *rapid.T) {
	store, err := testdb.NewStoreInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	f := buildFixture(store.Notes(), 3)
	ctx := context.Background()
	users := f.userList()
	word := testutil.SearchWord().Draw(t, "word")

	n := rapid.IntRange(1, 6).Draw(t, "notes")
	for i := 0; i < n; i++ {
		owner := rapid.SampledFrom(users).Draw(t, "owner")
		created, err := f.svc.Create(ctx, owner, notes.CreateNoteParams{Title: "note", Description: "about " + word})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		for _, u := range users {
			if u != owner && rapid.Bool().Draw(t, "share") {
				if _, err := f.svc.Share(ctx, created.ID, owner, u); err != nil {
					t.Fatalf("share: %v", err)
				}
			}
		}
	}

	caller := rapid.SampledFrom(users).Draw(t, "caller")
	lists, err := f.svc.List(ctx, caller)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var want []string
	for _, n := range append(lists.Owned, lists.Shared...) {
		want = append(want, n.ID)
	}

	found, err := f.svc.Search(ctx, caller, word)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	var got []string
	for _, n := range found {
		if !access.CanView(&n, caller) {
			t.Fatalf("search leaked note %s", n.ID)
		}
		got = append(got, n.ID)
	}
	slices.Sort(got)
	slices.Sort(want)
	if !slices.Equal(got, want) {
		t.Fatalf("search = %v, want %v", got, want)
	}
}

func TestSearch_ScopedToVisible_Properties(t *testing.T) {
	rapid.Check(t, testSearch_ScopedToVisible_Properties)
}

func FuzzSearch_ScopedToVisible_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testSearch_ScopedToVisible_Properties))
}

// =============================================================================
// Scenarios
// =============================================================================

func TestCreate_RequiresTitleAndDescription(t *testing.T) {
	f := newFixture(t, 1)
	owner := f.userList()[0]
	ctx := context.Background()

	for _, p := range []notes.CreateNoteParams{{}, {Title: "x"}, {Description: "y"}} {
		_, err := f.svc.Create(ctx, owner, p)
		requireCode(t, err, errs.InvalidArgument, notes.MsgTitleDescriptionRequired)
	}
}

func TestShare_ErrorOrder(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	users := f.userList()
	alice, bob, carol := users[0], users[1], users[2]

	created, err := f.svc.Create(ctx, alice, notes.CreateNoteParams{Title: "t", Description: "d"})
	require.NoError(t, err)

	_, err = f.svc.Share(ctx, created.ID, alice, "not-a-uuid")
	requireCode(t, err, errs.InvalidArgument, notes.MsgInvalidSharedUserID)

	_, err = f.svc.Share(ctx, created.ID, alice, uuid.NewString())
	requireCode(t, err, errs.NotFound, notes.MsgSharedUserNotFound)

	_, err = f.svc.Share(ctx, created.ID, bob, carol)
	requireCode(t, err, errs.NotFound, notes.MsgNoteNotOwned)

	_, err = f.svc.Share(ctx, uuid.NewString(), alice, bob)
	requireCode(t, err, errs.NotFound, notes.MsgNoteNotOwned)

	_, err = f.svc.Share(ctx, created.ID, alice, alice)
	requireCode(t, err, errs.InvalidArgument, notes.MsgShareWithOwner)

	shared, err := f.svc.Share(ctx, created.ID, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, []string{bob}, shared.SharedWith)

	_, err = f.svc.Share(ctx, created.ID, alice, bob)
	requireCode(t, err, errs.Conflict, notes.MsgAlreadyShared)

	// A member cannot reshare.
	_, err = f.svc.Share(ctx, created.ID, bob, carol)
	requireCode(t, err, errs.NotFound, notes.MsgNoteNotOwned)
}

func TestShare_NotifiesAndIgnoresNotifierFailure(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	users := f.userList()
	rec := &recordingNotifier{err: errors.New("smtp down")}
	f.svc.SetNotifier(rec)

	created, err := f.svc.Create(ctx, users[0], notes.CreateNoteParams{Title: "t", Description: "d"})
	require.NoError(t, err)

	_, err = f.svc.Share(ctx, created.ID, users[0], users[1])
	require.NoError(t, err)
	assert.Equal(t, []shareEvent{{created.ID, users[1]}}, rec.events)
}

func TestUpdate_ReassignsOwnerAndDropsSelfShare(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	users := f.userList()
	alice, bob, carol := users[0], users[1], users[2]

	created, err := f.svc.Create(ctx, alice, notes.CreateNoteParams{Title: "t", Description: "d"})
	require.NoError(t, err)
	_, err = f.svc.Share(ctx, created.ID, alice, bob)
	require.NoError(t, err)

	// Any authenticated caller may update by id and becomes the owner.
	title := "taken over"
	updated, err := f.svc.Update(ctx, created.ID, bob, notes.UpdateNoteParams{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, bob, updated.UserID)

	got, err := f.svc.Get(ctx, created.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, bob, got.OwnerID)
	assert.Empty(t, got.SharedWith)

	_, err = f.svc.Get(ctx, created.ID, alice)
	requireCode(t, err, errs.NotFound, notes.MsgNoteNotFound)

	_, err = f.svc.Update(ctx, created.ID, carol, notes.UpdateNoteParams{Title: new(string)})
	requireCode(t, err, errs.InvalidArgument, notes.MsgTitleDescriptionRequired)

	_, err = f.svc.Update(ctx, uuid.NewString(), carol, notes.UpdateNoteParams{Title: &title})
	requireCode(t, err, errs.NotFound, notes.MsgNoteNotFound)
}

func TestDelete_ByIDRegardlessOfOwner(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	users := f.userList()

	created, err := f.svc.Create(ctx, users[0], notes.CreateNoteParams{Title: "t", Description: "d"})
	require.NoError(t, err)

	deleted, err := f.svc.Delete(ctx, created.ID, users[1])
	require.NoError(t, err)
	assert.Equal(t, created.ID, deleted.ID)
	assert.Equal(t, users[0], deleted.OwnerID)

	_, err = f.svc.Delete(ctx, created.ID, users[0])
	requireCode(t, err, errs.NotFound, notes.MsgNoteNotFound)
	_, err = f.svc.Get(ctx, created.ID, users[0])
	requireCode(t, err, errs.NotFound, notes.MsgNoteNotFound)
}

func TestList_EmptyListsAreNotNil(t *testing.T) {
	f := newFixture(t, 1)
	lists, err := f.svc.List(context.Background(), f.userList()[0])
	require.NoError(t, err)
	assert.NotNil(t, lists.Owned)
	assert.NotNil(t, lists.Shared)

	found, err := f.svc.Search(context.Background(), f.userList()[0], "   ")
	require.NoError(t, err)
	assert.NotNil(t, found)
	assert.Empty(t, found)
}

func TestRenderHTML_FollowsVisibility(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	users := f.userList()

	created, err := f.svc.Create(ctx, users[0], notes.CreateNoteParams{
		Title:       "Plan",
		Description: "# Agenda\n\n<script>alert(1)</script>\n\n- ship",
	})
	require.NoError(t, err)

	page, err := f.svc.RenderHTML(ctx, created.ID, users[0])
	require.NoError(t, err)
	assert.Contains(t, string(page), "<li>ship</li>")
	assert.NotContains(t, string(page), "<script>")

	_, err = f.svc.RenderHTML(ctx, created.ID, users[1])
	requireCode(t, err, errs.NotFound, notes.MsgNoteNotFound)
}

// failingRepo fails every call with a storage-looking error.
type failingRepo struct{ notes.Repository }

var errDisk = errors.New("disk I/O error at /var/lib/notes.db")

func (failingRepo) Find(context.Context, notes.Filter) ([]notes.Note, error) { return nil, errDisk }
func (failingRepo) TextSearch(context.Context, notes.Filter, string) ([]notes.Note, error) {
	return nil, errDisk
}

func TestStorageFailuresAreInternal(t *testing.T) {
	svc := notes.NewService(failingRepo{}, knownUsers{})

	_, err := svc.List(context.Background(), "u")
	requireCode(t, err, errs.Internal, errs.InternalMessage)
	assert.ErrorIs(t, err, errDisk)

	_, err = svc.Search(context.Background(), "u", "x")
	requireCode(t, err, errs.Internal, errs.InternalMessage)
}

func TestNilNote_GrantsNothing(t *testing.T) {
	var n *notes.Note
	assert.False(t, access.CanView(n, "u1"))
	assert.False(t, access.CanEdit(n, "u1"))
	assert.False(t, access.CanShare(n, "u1"))
}
