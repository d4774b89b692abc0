package mail

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/zenGate-Global/schoolhub/domains/notifications/be/dispatcher"
	"github.com/zenGate-Global/schoolhub/domains/notifications/be/service"
)

const (
	defaultHost = "https://api.sendgrid.com"
	endpoint    = "/v3/mail/send"
)

// SendGridConfig configures the SendGrid v3 mailer.
type SendGridConfig struct {
	APIKey   string
	FromName string
	FromAddr string
	// Host overrides the API host; empty uses the public endpoint.
	Host string
}

// SendGridMailer delivers notifications through the SendGrid v3 mail API.
type SendGridMailer struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
}

// NewSendGridMailer constructs the mailer.
func NewSendGridMailer(cfg SendGridConfig) *SendGridMailer {
	if cfg.APIKey == "" {
		panic("sendgrid api key is required")
	}
	host := cfg.Host
	if host == "" {
		host = defaultHost
	}
	name := cfg.FromName
	if name == "" {
		name = "SchoolHub"
	}
	return &SendGridMailer{
		key:        cfg.APIKey,
		host:       host,
		from:       sgmail.NewEmail(name, cfg.FromAddr),
		subjPrefix: "[" + name + "] ",
	}
}

func (m *SendGridMailer) Send(ctx context.Context, email dispatcher.Email) error {
	req := sendgrid.GetRequest(m.key, endpoint, m.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m.prepare(email))

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid rejected message: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

func (m *SendGridMailer) prepare(email dispatcher.Email) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = m.subjPrefix + subject(email)
	p.AddTos(sgmail.NewEmail(email.To.Name, email.To.Email))

	msg := sgmail.NewV3Mail()
	msg.SetFrom(m.from)
	msg.AddPersonalizations(p)
	msg.AddContent(sgmail.NewContent("text/plain", email.Body))
	return msg
}

func subject(email dispatcher.Email) string {
	if email.Severity == service.SeverityCritical {
		return "URGENT: " + email.Subject
	}
	return email.Subject
}

var _ dispatcher.Mailer = (*SendGridMailer)(nil)
