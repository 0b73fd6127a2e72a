package mailer

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

type sendgridGateway struct {
	client     *sendgrid.Client
	from       *sgmail.Email
	subjPrefix string
}

var _ Gateway = (*sendgridGateway)(nil)

func NewSendgridGateway(apiKey, appName, fromEmail string) Gateway {
	return &sendgridGateway{
		client:     sendgrid.NewSendClient(apiKey),
		from:       sgmail.NewEmail(appName, fromEmail),
		subjPrefix: "[" + appName + "] ",
	}
}

func (g *sendgridGateway) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = g.subjPrefix + msg.Subject
	p.AddTos(g.getSGEmail(msg.To))

	m := sgmail.NewV3Mail()
	m.SetFrom(g.from)
	m.AddPersonalizations(p)

	m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	return m
}

func (g *sendgridGateway) getSGEmail(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}

func (g *sendgridGateway) Send(ctx context.Context, msg Message) error {
	res, err := g.client.SendWithContext(ctx, g.prepare(msg))
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
