package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/rxtech-lab/indicator-bot/pkg/errors"
)

// SMTPConfig configures the email notifier. Pointing To at a carrier
// email-to-SMS gateway delivers alerts as text messages.
type SMTPConfig struct {
	Host     string   `yaml:"host" json:"host" jsonschema:"title=Host,description=SMTP server host,default=smtp.gmail.com" validate:"required,hostname"`
	Port     int      `yaml:"port" json:"port" jsonschema:"title=Port,description=SMTP submission port,default=587" validate:"required,min=1,max=65535"`
	Username string   `yaml:"username" json:"username" jsonschema:"title=Username,description=Login and sender address" validate:"required"`
	Password string   `yaml:"password,omitempty" json:"password,omitempty" jsonschema:"title=Password,description=SMTP password (or SMTP_PASSWORD)"`
	To       []string `yaml:"to" json:"to" jsonschema:"title=Recipients,description=Recipient addresses" validate:"required,min=1,dive,email"`
	Subject  string   `yaml:"subject,omitempty" json:"subject,omitempty" jsonschema:"title=Subject,default=Crypto Bot Alert"`
}

// DefaultSubject is used when SMTPConfig.Subject is empty.
const DefaultSubject = "Crypto Bot Alert"

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTP sends each message as a short plain-text email.
// smtp.SendMail upgrades the connection with STARTTLS when the server offers it.
type SMTP struct {
	config   SMTPConfig
	sendMail sendMailFunc
}

// NewSMTP creates an SMTP notifier.
func NewSMTP(config SMTPConfig) *SMTP {
	return &SMTP{config: config, sendMail: smtp.SendMail}
}

func (s *SMTP) Notify(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeNotificationFailed, "email notification cancelled", err)
	}

	addr := net.JoinHostPort(s.config.Host, fmt.Sprintf("%d", s.config.Port))
	auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)

	if err := s.sendMail(addr, auth, s.config.Username, s.config.To, s.buildMessage(message)); err != nil {
		return errors.Wrap(errors.ErrCodeNotificationFailed, "failed to send email", err)
	}

	return nil
}

func (s *SMTP) buildMessage(message string) []byte {
	subject := s.config.Subject
	if subject == "" {
		subject = DefaultSubject
	}

	var b strings.Builder
	b.WriteString("From: " + s.config.Username + "\r\n")
	b.WriteString("To: " + strings.Join(s.config.To, ", ") + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(message)
	b.WriteString("\r\n")

	return []byte(b.String())
}

var _ Notifier = (*SMTP)(nil)
