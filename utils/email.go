package utils

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridMailer sends transactional email through SendGrid.
type SendGridMailer struct {
	apiKey   string
	fromName string
	fromAddr string
}

// NewSendGridMailer returns nil when apiKey is empty, which disables sending.
func NewSendGridMailer(apiKey, fromName, fromAddr string) *SendGridMailer {
	if apiKey == "" {
		return nil
	}
	return &SendGridMailer{apiKey: apiKey, fromName: fromName, fromAddr: fromAddr}
}

// SendEmail sends an email using SendGrid
func (m *SendGridMailer) SendEmail(ctx context.Context, toName, toEmail, subject, textContent, htmlContent string) error {
	from := mail.NewEmail(m.fromName, m.fromAddr)
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, textContent, htmlContent)
	client := sendgrid.NewSendClient(m.apiKey)

	response, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid request failed: %w", err)
	}

	if response.StatusCode >= 400 {
		return fmt.Errorf("failed to send email, status code: %d, body: %s", response.StatusCode, response.Body)
	}

	return nil
}
