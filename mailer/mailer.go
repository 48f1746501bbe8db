package mailer

import (
	"bytes"
	"context"
	"fmt"
	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"
	"golang.org/x/oauth2"
	"guardex/config"
	"html/template"
)

const verifySubject = "Verify your email – Guardex"

// Sender delivers the verification email over SMTP. Gmail accounts use
// XOAUTH2 with an access token refreshed from the configured refresh token.
type Sender struct {
	cfg    config.MailConfig
	tokens oauth2.TokenSource
	send   func(ctx context.Context, msg *mail.Msg) error
}

// New returns a Sender for cfg.
func New(cfg config.MailConfig) *Sender {
	s := &Sender{cfg: cfg}
	if cfg.ClientID != "" && cfg.RefreshToken != "" {
		oc := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
		}
		s.tokens = oc.TokenSource(context.Background(), &oauth2.Token{RefreshToken: cfg.RefreshToken})
	}
	s.send = s.dialAndSend
	return s
}

// SendVerification mails the verification link to a new user.
func (s *Sender) SendVerification(ctx context.Context, to, name, link string) error {
	body, err := RenderVerification(name, link)
	if err != nil {
		return err
	}

	msg := mail.NewMsg()
	if err := msg.From(s.cfg.Username); err != nil {
		return fmt.Errorf("invalid sender %q: %w", s.cfg.Username, err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	msg.Subject(verifySubject)
	msg.SetBodyString(mail.TypeTextHTML, body)

	if err := s.send(ctx, msg); err != nil {
		return err
	}
	logrus.WithField("to", to).Debug("verification email sent")
	return nil
}

func (s *Sender) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSMandatory),
		mail.WithUsername(s.cfg.Username),
	}

	if s.tokens != nil {
		token, err := s.tokens.Token()
		if err != nil {
			return fmt.Errorf("refresh oauth2 token: %w", err)
		}
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthXOAUTH2),
			mail.WithPassword(token.AccessToken),
		)
	} else {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

var verifyTemplate = template.Must(template.New("verify").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: auto; border: 1px solid #ddd; border-radius: 10px; overflow: hidden;">
  <div style="background-color: #22BC66; padding: 20px; text-align: center;">
    <h1 style="color: #fff; margin: 0;">Guardex Innovations</h1>
  </div>
  <div style="padding: 20px; color: #333;">
    <h2>Welcome {{.Name}}!</h2>
    <p>Your account has been created successfully. Please verify your email by clicking the button below:</p>
    <div style="text-align: center; margin: 20px 0;">
      <a href="{{.Link}}" style="background-color: #22BC66; color: white; padding: 15px 30px; text-decoration: none; border-radius: 5px; font-size: 16px;">Verify Email</a>
    </div>
    <p>If you have any questions, feel free to contact our support team.</p>
    <p>Cheers,<br>The Guardex Team</p>
  </div>
</div>`))

// RenderVerification renders the HTML body of the verification email.
func RenderVerification(name, link string) (string, error) {
	var buf bytes.Buffer
	err := verifyTemplate.Execute(&buf, struct {
		Name string
		Link template.URL
	}{Name: name, Link: template.URL(link)})
	if err != nil {
		return "", fmt.Errorf("render verification email: %w", err)
	}
	return buf.String(), nil
}
