package auth

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kuitang/shared-notes/internal/errs"
	"github.com/kuitang/shared-notes/internal/obs"
)

// maxBodyBytes bounds signup/signin request bodies.
const maxBodyBytes = 64 << 10

// Handler serves the signup and signin routes.
type Handler struct {
	userService *UserService
	limit       func(http.Handler) http.Handler
}

// NewHandler creates an auth handler. limit wraps every route and may be nil.
func NewHandler(userService *UserService, limit func(http.Handler) http.Handler) *Handler {
	if limit == nil {
		limit = func(h http.Handler) http.Handler { return h }
	}
	return &Handler{userService: userService, limit: limit}
}

// RegisterRoutes mounts the routes at /auth and at /api/auth.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	for _, prefix := range []string{"", "/api"} {
		mux.Handle("POST "+prefix+"/auth/signup", h.limit(http.HandlerFunc(h.Signup)))
		mux.Handle("POST "+prefix+"/auth/signin", h.limit(http.HandlerFunc(h.Signin)))
	}
}

// SignupRequest is the body of POST /auth/signup.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SigninRequest is the body of POST /auth/signin.
type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is returned by signup.
type UserResponse struct {
	User *User `json:"user"`
}

// SigninResponse is returned by signin.
type SigninResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Signup handles POST /auth/signup.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := h.userService.Signup(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	obs.From(r.Context()).With("pkg", "auth").Info("user signed up", "new_user_id", user.ID)
	writeJSON(w, http.StatusCreated, UserResponse{User: user})
}

// Signin handles POST /auth/signin.
func (h *Handler) Signin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, token, err := h.userService.Signin(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SigninResponse{User: user, Token: token})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Invalid request body"})
		return false
	}
	return true
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeJSON(w, errs.HTTPStatus(errs.CodeOf(err)), messageResponse{Message: errs.MessageOf(err)})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
