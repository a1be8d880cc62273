package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kuitang/shared-notes/internal/email"
	"github.com/kuitang/shared-notes/internal/errs"
	"github.com/kuitang/shared-notes/internal/obs"
)

// Store sentinels.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

// User-facing messages.
const (
	MsgUserExists         = "User already exists"
	MsgInvalidEmail       = "Invalid email format"
	MsgWeakPassword       = "Password must be at least 8 characters long and contain a combination of letters and numbers"
	MsgPasswordTooLong    = "Password must be at most 72 bytes long"
	MsgUserNotFound       = "User not found!"
	MsgInvalidCredentials = "Invalid Credentials! "
	MsgUnauthorized       = "Unauthorized User"
)

// DefaultBcryptCost matches the cost used for every existing hash.
const DefaultBcryptCost = 10

const minPasswordLength = 8

// maxPasswordBytes is bcrypt's input limit.
const maxPasswordBytes = 72

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// User is a registered account. PasswordHash never leaves the process.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserStore persists user accounts. FindByEmail and FindByID return
// ErrUserNotFound on a miss; Create returns ErrEmailTaken when the email is
// already registered.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) error
}

// PasswordHasher abstracts password hashing so tests can avoid bcrypt.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	VerifyPassword(password, encodedHash string) bool
}

// BcryptHasher hashes with bcrypt at a fixed cost.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) HashPassword(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(hash), nil
}

func (BcryptHasher) VerifyPassword(password, encodedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password)) == nil
}

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// ValidPassword reports whether a password has at least 8 characters, fits in
// 72 bytes, and contains both an ASCII letter and a digit.
func ValidPassword(password string) bool {
	if len([]rune(password)) < minPasswordLength || len(password) > maxPasswordBytes {
		return false
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			hasLetter = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

// UserService implements signup and signin.
type UserService struct {
	store        UserStore
	hasher       PasswordHasher
	tokens       TokenCodec
	emailService email.EmailService
	clock        Clock
}

// NewUserService creates a user service. emailSvc may be nil.
func NewUserService(store UserStore, hasher PasswordHasher, tokens TokenCodec, emailSvc email.EmailService) *UserService {
	return &UserService{
		store:        store,
		hasher:       hasher,
		tokens:       tokens,
		emailService: emailSvc,
		clock:        realClock{},
	}
}

// SetClock replaces the clock used by the service. Intended for testing.
func (s *UserService) SetClock(c Clock) {
	s.clock = c
}

// Signup registers a new account. The duplicate-email check runs before
// format validation, so a taken address reports "User already exists" even if
// the rest of the request is invalid.
func (s *UserService) Signup(ctx context.Context, username, emailAddr, password string) (*User, error) {
	_, err := s.store.FindByEmail(ctx, emailAddr)
	switch {
	case err == nil:
		return nil, errs.New(errs.AlreadyExists, MsgUserExists)
	case !errors.Is(err, ErrUserNotFound):
		return nil, s.internal(ctx, "find by email", err)
	}

	if !ValidEmail(emailAddr) {
		return nil, errs.New(errs.InvalidArgument, MsgInvalidEmail)
	}
	if len(password) > maxPasswordBytes {
		return nil, errs.New(errs.InvalidArgument, MsgPasswordTooLong)
	}
	if !ValidPassword(password) {
		return nil, errs.New(errs.InvalidArgument, MsgWeakPassword)
	}

	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return nil, s.internal(ctx, "hash password", err)
	}

	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        emailAddr,
		PasswordHash: hash,
		CreatedAt:    s.clock.Now().UTC().Truncate(time.Millisecond),
	}
	if err := s.store.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, errs.Wrap(errs.AlreadyExists, MsgUserExists, err)
		}
		return nil, s.internal(ctx, "create user", err)
	}

	s.sendWelcome(ctx, user)
	return user, nil
}

// Signin verifies credentials and issues a bearer token.
func (s *UserService) Signin(ctx context.Context, emailAddr, password string) (*User, string, error) {
	user, err := s.store.FindByEmail(ctx, emailAddr)
	if errors.Is(err, ErrUserNotFound) {
		return nil, "", errs.Wrap(errs.NotFound, MsgUserNotFound, err)
	}
	if err != nil {
		return nil, "", s.internal(ctx, "find by email", err)
	}

	if !s.hasher.VerifyPassword(password, user.PasswordHash) {
		return nil, "", errs.New(errs.Unauthenticated, MsgInvalidCredentials)
	}

	token, err := s.tokens.Sign(Claims{UserID: user.ID, Email: user.Email})
	if err != nil {
		return nil, "", s.internal(ctx, "sign token", err)
	}
	return user, token, nil
}

// UserExists implements notes.UserLookup.
func (s *UserService) UserExists(ctx context.Context, userID string) (bool, error) {
	_, err := s.store.FindByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *UserService) sendWelcome(ctx context.Context, user *User) {
	if s.emailService == nil {
		return
	}
	err := s.emailService.Send(user.Email, email.TemplateWelcome, email.WelcomeData{Name: displayName(user)})
	if err != nil {
		obs.From(ctx).With("pkg", "auth").Warn("welcome email failed", "user_id", user.ID, "error", err)
	}
}

func (s *UserService) internal(ctx context.Context, op string, err error) error {
	obs.From(ctx).With("pkg", "auth").Error("user service call failed", "op", op, "error", err)
	return errs.Internalf(err)
}
