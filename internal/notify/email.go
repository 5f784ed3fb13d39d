package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"

	"github.com/JakeFAU/stockwatch/internal/stock"
)

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

type sendFunc func(mail *email.Email, addr string, auth smtp.Auth) error

// Email sends alerts over SMTP.
type Email struct {
	cfg  EmailConfig
	send sendFunc
}

// NewEmail builds an SMTP notifier.
func NewEmail(cfg EmailConfig) (*Email, error) {
	if cfg.Host == "" || cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("email host, from and to are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &Email{
		cfg: cfg,
		send: func(mail *email.Email, addr string, auth smtp.Auth) error {
			return mail.Send(addr, auth)
		},
	}, nil
}

// Notify sends one message per alert. Servers without AUTH are retried
// unauthenticated.
func (e *Email) Notify(ctx context.Context, alert stock.Alert) error {
	if err := ctx.Err(); err != nil {
		return deliveryError("email", err)
	}
	mail := e.compose(alert)
	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)

	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}
	err := e.send(mail, addr, auth)
	if err != nil && auth != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = e.send(mail, addr, nil)
	}
	if err != nil {
		return deliveryError("email", err)
	}
	return nil
}

func (e *Email) compose(alert stock.Alert) *email.Email {
	mail := email.NewEmail()
	mail.From = e.cfg.From
	mail.To = append([]string(nil), e.cfg.To...)
	mail.Subject = fmt.Sprintf("In stock: %s", alert.Name)
	mail.Text = []byte(fmt.Sprintf("%s\n\nObserved at %s\n", alert.Message, alert.ObservedAt.Format("2006-01-02 15:04:05 MST")))
	return mail
}
