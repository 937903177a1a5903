package delivery

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"

	"ms-eventhub/internal/config"
	"ms-eventhub/internal/models"

	"gopkg.in/gomail.v2"
)

type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

type Email struct {
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment
}

type Mailer interface {
	Send(ctx context.Context, e Email) error
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg config.EmailConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		from:   cfg.From,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, e Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.dialer.DialAndSend(m.message(e)); err != nil {
		return fmt.Errorf("send email to %s: %w", e.To, err)
	}
	return nil
}

func (m *SMTPMailer) message(e Email) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", e.To)
	msg.SetHeader("Subject", e.Subject)
	msg.SetBody("text/html", e.HTML)

	for _, a := range e.Attachments {
		data := a.Data
		msg.Attach(a.Name,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}),
		)
	}
	return msg
}

var ticketEmailTmpl = template.Must(template.New("ticket").Parse(`<h2>Your tickets for {{.Title}}</h2>
<p>Thank you for your purchase. Your {{.Quantity}} ticket(s) are attached as a PDF.</p>
<p><strong>Date:</strong> {{.Date}}<br><strong>Venue:</strong> {{.Venue}}</p>
<ul>{{range .Codes}}<li>{{.}}</li>{{end}}</ul>
<p>Amount paid: {{printf "%.2f" .Amount}}</p>`))

// TicketEmail composes the confirmation mail with the PDF and one QR per code.
func TicketEmail(b *models.TicketBundle, pdf []byte, qrs map[string][]byte) (Email, error) {
	data := struct {
		Title    string
		Date     string
		Venue    string
		Quantity int
		Codes    []string
		Amount   float64
	}{
		Quantity: b.Ticket.Quantity,
		Codes:    b.Ticket.Codes,
		Amount:   b.Ticket.AmountTotal,
	}
	if b.Event != nil {
		data.Title = b.Event.Title
		data.Date = b.Event.EventDate.Format("Mon, 02 Jan 2006 15:04")
	}
	if b.Venue != nil {
		data.Venue = b.Venue.Name
	}

	var body bytes.Buffer
	if err := ticketEmailTmpl.Execute(&body, data); err != nil {
		return Email{}, err
	}

	e := Email{
		To:      b.User.Email,
		Subject: "Your tickets for " + data.Title,
		HTML:    body.String(),
		Attachments: []Attachment{
			{Name: "ticket-" + b.Ticket.ID + ".pdf", ContentType: "application/pdf", Data: pdf},
		},
	}
	for _, code := range b.Ticket.Codes {
		if png, ok := qrs[code]; ok {
			e.Attachments = append(e.Attachments, Attachment{Name: code + ".png", ContentType: "image/png", Data: png})
		}
	}
	return e, nil
}
