package auth

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/novaplayer/api/internal/shared"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Mailer delivers the account lifecycle emails.
type Mailer interface {
	SendVerificationCode(to, name, code string) error
	SendPasswordReset(to, name, link string) error
}

// SendGridMailer is the production [Mailer].
type SendGridMailer struct {
	client     *sendgrid.Client
	sender     string
	senderName string
	logger     *log.Logger
}

// NewSendGridMailer creates a [SendGridMailer].
func NewSendGridMailer(apiKey, sender, senderName string, logger *log.Logger) *SendGridMailer {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &SendGridMailer{
		client:     sendgrid.NewSendClient(apiKey),
		sender:     sender,
		senderName: senderName,
		logger:     logger,
	}
}

func (m *SendGridMailer) send(to, name, subject, plain, html string) error {
	from := mail.NewEmail(m.senderName, m.sender)
	message := mail.NewSingleEmail(from, subject, mail.NewEmail(name, to), plain, html)

	resp, err := m.client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("mail delivery rejected with status %d", resp.StatusCode)
	}

	m.logger.Debug("email sent", "to", to, "subject", subject)
	return nil
}

// SendVerificationCode implements [Mailer].
func (m *SendGridMailer) SendVerificationCode(to, name, code string) error {
	plain := fmt.Sprintf("Hi %s,\n\nYour Nova Player verification code is %s.\n", name, code)
	html := fmt.Sprintf("<p>Hi %s,</p><p>Your Nova Player verification code is <strong>%s</strong>.</p>", name, code)
	return m.send(to, name, "Verify your Nova Player account", plain, html)
}

// SendPasswordReset implements [Mailer].
func (m *SendGridMailer) SendPasswordReset(to, name, link string) error {
	plain := fmt.Sprintf("Hi %s,\n\nReset your Nova Player password here: %s\nThe link expires in one hour.\n", name, link)
	html := fmt.Sprintf("<p>Hi %s,</p><p><a href=%q>Reset your Nova Player password</a>. The link expires in one hour.</p>", name, link)
	return m.send(to, name, "Reset your Nova Player password", plain, html)
}
