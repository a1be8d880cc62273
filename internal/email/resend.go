package email

import (
	"fmt"

	"github.com/resend/resend-go/v3"
)

// ResendEmailService implements EmailService using the Resend API.
type ResendEmailService struct {
	client      *resend.Client
	fromAddress string
}

// NewResendEmailService creates a Resend-backed service. fromAddress must be a
// sender verified in Resend.
func NewResendEmailService(apiKey, fromAddress string) *ResendEmailService {
	return &ResendEmailService{
		client:      resend.NewClient(apiKey),
		fromAddress: fromAddress,
	}
}

// Send renders the template and delivers it through Resend.
func (r *ResendEmailService) Send(to, templateName string, data any) error {
	subject, html, err := Render(templateName, data)
	if err != nil {
		return err
	}

	_, err = r.client.Emails.Send(&resend.SendEmailRequest{
		From:    r.fromAddress,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	})
	if err != nil {
		return fmt.Errorf("resend: failed to send email: %w", err)
	}
	return nil
}
