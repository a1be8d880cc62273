package email

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/kuitang/shared-notes/internal/obs"
)

// EmailService sends templated emails.
type EmailService interface {
	// Send delivers templateName rendered with data to the recipient.
	Send(to, templateName string, data any) error
}

// SentEmail is an email captured by MockEmailService.
type SentEmail struct {
	To       string
	Template string
	Data     any
}

// MockEmailService captures emails instead of sending them. When an outbox
// directory is configured each email is also written there as a JSON file.
type MockEmailService struct {
	mu        sync.Mutex
	Emails    []SentEmail
	outboxDir string
	seq       uint64
}

// NewMockEmailService creates a mock that only captures in memory.
func NewMockEmailService() *MockEmailService {
	return &MockEmailService{Emails: make([]SentEmail, 0)}
}

// NewMockEmailServiceWithOutbox creates a mock that also writes each email to
// dir. Used by the server's --no-email mode so a developer can read them.
func NewMockEmailServiceWithOutbox(dir string) (*MockEmailService, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create outbox dir: %w", err)
	}
	m := NewMockEmailService()
	m.outboxDir = dir
	return m, nil
}

// Send captures the email. The template is rendered so a bad template fails
// the same way it would against Resend.
func (m *MockEmailService) Send(to, templateName string, data any) error {
	subject, _, err := Render(templateName, data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Emails = append(m.Emails, SentEmail{To: to, Template: templateName, Data: data})

	obs.Pkg("email").Info("mock email captured", "to", to, "template", templateName, "subject", subject)
	return m.writeOutboxEvent(outboxEmailEvent{
		To:             to,
		Template:       templateName,
		Subject:        subject,
		Data:           data,
		SentAtUnixNano: time.Now().UnixNano(),
	})
}

// LastEmail returns the most recently captured email, or the zero value.
func (m *MockEmailService) LastEmail() SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Emails) == 0 {
		return SentEmail{}
	}
	return m.Emails[len(m.Emails)-1]
}

// Count returns the number of captured emails.
func (m *MockEmailService) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Emails)
}

// Clear removes all captured emails.
func (m *MockEmailService) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Emails = make([]SentEmail, 0)
}

type outboxEmailEvent struct {
	Sequence       uint64 `json:"sequence"`
	To             string `json:"to"`
	Template       string `json:"template"`
	Subject        string `json:"subject"`
	Data           any    `json:"data"`
	SentAtUnixNano int64  `json:"sent_at_unix_nano"`
}

// writeOutboxEvent must be called with m.mu held.
func (m *MockEmailService) writeOutboxEvent(event outboxEmailEvent) error {
	if m.outboxDir == "" {
		return nil
	}

	m.seq++
	event.Sequence = m.seq

	fileName := fmt.Sprintf("%020d-%s-%s.json",
		event.Sequence,
		sanitizeOutboxComponent(event.Template),
		sanitizeOutboxComponent(event.To),
	)
	finalPath := filepath.Join(m.outboxDir, fileName)
	tempPath := finalPath + ".tmp"

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal outbox event: %w", err)
	}
	if err := os.WriteFile(tempPath, payload, 0o644); err != nil {
		return fmt.Errorf("write outbox temp file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("rename outbox file: %w", err)
	}
	return nil
}

var outboxSanitizePattern = regexp.MustCompile(`[^a-zA-Z0-9._@-]+`)

func sanitizeOutboxComponent(input string) string {
	safe := strings.TrimSpace(input)
	if safe == "" {
		return "unknown"
	}
	return outboxSanitizePattern.ReplaceAllString(safe, "_")
}
