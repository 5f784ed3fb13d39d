package notify

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/stockwatch/internal/stock"
)

func TestNewEmailValidation(t *testing.T) {
	t.Parallel()

	_, err := NewEmail(EmailConfig{Host: "smtp.test"})
	require.Error(t, err)

	e, err := NewEmail(EmailConfig{Host: "smtp.test", From: "a@test", To: []string{"b@test"}})
	require.NoError(t, err)
	require.Equal(t, 587, e.cfg.Port)
}

func TestEmailComposeAndSend(t *testing.T) {
	t.Parallel()

	e, err := NewEmail(EmailConfig{
		Host: "smtp.test", Port: 2525, Username: "bot", Password: "pw",
		From: "bot@test", To: []string{"me@test"},
	})
	require.NoError(t, err)

	var (
		gotAddr string
		gotAuth smtp.Auth
		gotMail *email.Email
	)
	e.send = func(mail *email.Email, addr string, auth smtp.Auth) error {
		gotMail, gotAddr, gotAuth = mail, addr, auth
		return nil
	}

	require.NoError(t, e.Notify(context.Background(), testAlert))
	require.Equal(t, "smtp.test:2525", gotAddr)
	require.NotNil(t, gotAuth)
	require.Equal(t, []string{"me@test"}, gotMail.To)
	require.Equal(t, "In stock: Rain Jacket", gotMail.Subject)
	require.Contains(t, string(gotMail.Text), testAlert.Message)
}

func TestEmailFallsBackWithoutAuth(t *testing.T) {
	t.Parallel()

	e, err := NewEmail(EmailConfig{Host: "smtp.test", Username: "bot", From: "bot@test", To: []string{"me@test"}})
	require.NoError(t, err)

	var auths []smtp.Auth
	e.send = func(_ *email.Email, _ string, auth smtp.Auth) error {
		auths = append(auths, auth)
		if auth != nil {
			return errors.New("smtp: server doesn't support AUTH")
		}
		return nil
	}

	require.NoError(t, e.Notify(context.Background(), testAlert))
	require.Len(t, auths, 2)
	require.Nil(t, auths[1])
}

func TestEmailDeliveryFailure(t *testing.T) {
	t.Parallel()

	e, err := NewEmail(EmailConfig{Host: "smtp.test", From: "bot@test", To: []string{"me@test"}})
	require.NoError(t, err)
	e.send = func(*email.Email, string, smtp.Auth) error { return errors.New("connection refused") }

	require.ErrorIs(t, e.Notify(context.Background(), testAlert), stock.ErrNotifyFailed)
}
