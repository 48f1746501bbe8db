package mailer

import (
	"bytes"
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
	"guardex/config"
	"testing"
)

func TestRenderVerification(t *testing.T) {
	body, err := RenderVerification("<Ada>", "https://app.example/verify/abc")
	require.NoError(t, err)

	assert.Contains(t, body, "Welcome &lt;Ada&gt;!")
	assert.Contains(t, body, `href="https://app.example/verify/abc"`)
}

func TestSender_SendVerification(t *testing.T) {
	s := New(config.MailConfig{Host: "smtp.example", Port: 587, Username: "noreply@guardex.example"})

	var sent *mail.Msg
	s.send = func(_ context.Context, msg *mail.Msg) error {
		sent = msg
		return nil
	}

	require.NoError(t, s.SendVerification(context.Background(), "ada@example.com", "Ada", "https://app.example/verify/abc"))
	require.NotNil(t, sent)
	assert.Len(t, sent.GetGenHeader(mail.HeaderSubject), 1)

	var buf bytes.Buffer
	_, err := sent.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "ada@example.com")
}

func TestSender_InvalidRecipient(t *testing.T) {
	s := New(config.MailConfig{Username: "noreply@guardex.example"})
	s.send = func(context.Context, *mail.Msg) error { return nil }

	assert.Error(t, s.SendVerification(context.Background(), "not an address", "Ada", "https://x"))
}

func TestSender_PropagatesSendError(t *testing.T) {
	s := New(config.MailConfig{Username: "noreply@guardex.example"})
	s.send = func(context.Context, *mail.Msg) error { return errors.New("smtp down") }

	assert.EqualError(t, s.SendVerification(context.Background(), "ada@example.com", "Ada", "https://x"), "smtp down")
}

func TestNew_OAuthTokenSource(t *testing.T) {
	assert.Nil(t, New(config.MailConfig{}).tokens)

	s := New(config.MailConfig{ClientID: "id", ClientSecret: "secret", RefreshToken: "refresh", TokenURL: "https://oauth.example/token"})
	assert.NotNil(t, s.tokens)
}
