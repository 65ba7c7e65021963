// Package email sends staff notifications over SMTP.
package email

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"
)

type Service interface {
	SendWelcome(ctx context.Context, to, name, role string) error
	SendCustom(ctx context.Context, to, subject, content string) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	LoginURL string
}

type smtpService struct {
	dialer   *gomail.Dialer
	from     string
	loginURL string
}

func NewSMTPService(cfg Config) Service {
	return &smtpService{
		dialer:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:     cfg.From,
		loginURL: cfg.LoginURL,
	}
}

func (s *smtpService) SendWelcome(ctx context.Context, to, name, role string) error {
	return s.send(ctx, welcomeMessage(s.from, to, name, role, s.loginURL))
}

func (s *smtpService) SendCustom(ctx context.Context, to, subject, content string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", content)
	return s.send(ctx, m)
}

func (s *smtpService) send(ctx context.Context, m *gomail.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func welcomeMessage(from, to, name, role, loginURL string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Welcome to PatientFlow")

	body := fmt.Sprintf("Hello %s,\n\nAn account has been created for you with the role %s.\n", name, role)
	if loginURL != "" {
		body += fmt.Sprintf("Sign in at %s with this email address.\n", loginURL)
	}
	m.SetBody("text/plain", body)
	return m
}

// noopService is used when mail is disabled.
type noopService struct{}

func NewNoopService() Service { return noopService{} }

func (noopService) SendWelcome(ctx context.Context, to, name, role string) error {
	log.Debug().Str("to", to).Msg("mail disabled, skipping welcome email")
	return nil
}

func (noopService) SendCustom(ctx context.Context, to, subject, content string) error {
	log.Debug().Str("to", to).Str("subject", subject).Msg("mail disabled, skipping email")
	return nil
}
