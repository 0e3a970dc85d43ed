package mailer

import (
	"errors"
	"fmt"
	"net/smtp"
)

// Sender dispatches a rendered email.
type Sender interface {
	Send(to, subject, html string) error
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.Port == "" || cfg.From == "" {
		return nil, errors.New("incomplete smtp configuration")
	}
	return &SMTPSender{cfg: cfg}, nil
}

func (s *SMTPSender) Send(to, subject, html string) error {
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	msg := []byte(fmt.Sprintf(
		"To: %s\r\nFrom: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		to, s.cfg.From, subject, html,
	))
	return smtp.SendMail(s.cfg.Host+":"+s.cfg.Port, auth, s.cfg.From, []string{to}, msg)
}

// NopSender discards mail. Used when SMTP is not configured so local
// environments still work end to end.
type NopSender struct{}

func (NopSender) Send(string, string, string) error { return nil }
