package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kuitang/shared-notes/internal/auth"
	"github.com/kuitang/shared-notes/internal/errs"
	"github.com/kuitang/shared-notes/internal/export"
	"github.com/kuitang/shared-notes/internal/notes"
	"github.com/kuitang/shared-notes/internal/obs"
)

// maxBodyBytes bounds note request bodies.
const maxBodyBytes = 1 << 20

// MsgInvalidBody is returned for a body that is not valid JSON.
const MsgInvalidBody = "Invalid request body"

// Error body keys. Existing clients read "message" on most routes
// and "error" on get-by-id, share and search.
const (
	keyMessage = "message"
	keyError   = "error"
)

// Handler serves the notes routes.
type Handler struct {
	notes    *notes.Service
	exporter *export.Exporter
	authn    *auth.Authenticator
}

// NewHandler creates a notes API handler. exporter may be nil, in which case
// the export route answers 503.
func NewHandler(notesService *notes.Service, exporter *export.Exporter, authn *auth.Authenticator) *Handler {
	return &Handler{notes: notesService, exporter: exporter, authn: authn}
}

// RegisterRoutes mounts every notes route at /notes and at /api/notes behind
// RequireAuth, plus the unauthenticated root and health routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	for _, prefix := range []string{"", "/api"} {
		h.handle(mux, "GET "+prefix+"/notes", h.ListNotes)
		h.handle(mux, "POST "+prefix+"/notes", h.CreateNote)
		h.handle(mux, "GET "+prefix+"/notes/search", h.SearchNotes)
		h.handle(mux, "POST "+prefix+"/notes/export", h.ExportNotes)
		h.handle(mux, "GET "+prefix+"/notes/{id}", h.GetNote)
		h.handle(mux, "GET "+prefix+"/notes/{id}/html", h.GetNoteHTML)
		h.handle(mux, "PUT "+prefix+"/notes/{id}", h.UpdateNote)
		h.handle(mux, "DELETE "+prefix+"/notes/{id}", h.DeleteNote)
		h.handle(mux, "POST "+prefix+"/notes/{id}/share", h.ShareNote)
	}
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, "Hello, world!")
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, "ok")
	})
}

func (h *Handler) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.Handle(pattern, h.authn.RequireAuth(fn))
}

// CreateNote handles POST /notes.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var params notes.CreateNoteParams
	if !decodeBody(w, r, &params, keyMessage) {
		return
	}

	created, err := h.notes.Create(r.Context(), auth.UserIDFromContext(r.Context()), params)
	if err != nil {
		writeServiceError(w, err, keyMessage)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"newNote": created})
}

// ListNotes handles GET /notes.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	lists, err := h.notes.List(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err, keyMessage)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

// GetNote handles GET /notes/{id}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.notes.Get(r.Context(), r.PathValue("id"), auth.UserIDFromContext(r.Context()))
	if err != nil {
		key := keyError
		if errs.CodeOf(err) == errs.Internal {
			key = keyMessage
		}
		writeServiceError(w, err, key)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// GetNoteHTML handles GET /notes/{id}/html.
func (h *Handler) GetNoteHTML(w http.ResponseWriter, r *http.Request) {
	page, err := h.notes.RenderHTML(r.Context(), r.PathValue("id"), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err, keyMessage)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; img-src https: data:")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}

// UpdateNote handles PUT /notes/{id}.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var params notes.UpdateNoteParams
	if !decodeBody(w, r, &params, keyMessage) {
		return
	}

	updated, err := h.notes.Update(r.Context(), r.PathValue("id"), auth.UserIDFromContext(r.Context()), params)
	if err != nil {
		writeServiceError(w, err, keyMessage)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteNote handles DELETE /notes/{id}.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.notes.Delete(r.Context(), r.PathValue("id"), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err, keyMessage)
		return
	}
	writeJSON(w, http.StatusAccepted, deleted)
}

// ShareNote handles POST /notes/{id}/share.
func (h *Handler) ShareNote(w http.ResponseWriter, r *http.Request) {
	var params notes.ShareNoteParams
	if !decodeBody(w, r, &params, keyError) {
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	note, err := h.notes.Share(r.Context(), r.PathValue("id"), userID, params.SharedUserID)
	if err != nil {
		writeServiceError(w, err, keyError)
		return
	}
	obs.From(r.Context()).With("pkg", "api").Info("note shared", "note_id", note.ID, "shared_user_id", params.SharedUserID)
	writeJSON(w, http.StatusOK, map[string]any{
		"note":    note,
		"message": notes.MsgShared,
	})
}

// SearchNotes handles GET /notes/search?q=.
func (h *Handler) SearchNotes(w http.ResponseWriter, r *http.Request) {
	found, err := h.notes.Search(r.Context(), auth.UserIDFromContext(r.Context()), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, err, keyError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": found})
}

// ExportNotes handles POST /notes/export.
func (h *Handler) ExportNotes(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		writeServiceError(w, errs.New(errs.Unavailable, export.MsgUnavailable), keyMessage)
		return
	}
	res, err := h.exporter.Export(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err, keyMessage)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// decodeBody reads a JSON body into dst. An empty body leaves dst unchanged.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, key string) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{key: MsgInvalidBody})
		return false
	}
	return true
}

func writeServiceError(w http.ResponseWriter, err error, key string) {
	writeJSON(w, errs.HTTPStatus(errs.CodeOf(err)), map[string]string{key: errs.MessageOf(err)})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
