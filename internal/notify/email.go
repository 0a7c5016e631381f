// Package notify delivers order and contact emails. Failures here are logged
// and never unwind a settled order.
package notify

import (
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/latronicstore/latronic1/internal/orders"
	"github.com/latronicstore/latronic1/pkg/logkey"
)

type Mailer interface {
	// SendReceipt mails the customer their order confirmation.
	SendReceipt(o *orders.Order) error
	// SendSaleAlert mails the operator about a new sale.
	SendSaleAlert(o *orders.Order) error
	// SendContactMessage relays a contact-form submission to the operator.
	SendContactMessage(name, email, message string) error
}

// SMTPMailer sends through a plain SMTP relay.
type SMTPMailer struct {
	host       string
	port       string
	username   string
	password   string
	from       string
	adminEmail string
}

func NewSMTPMailer(host, port, username, password, from, adminEmail string) (*SMTPMailer, error) {
	if host == "" || port == "" || adminEmail == "" {
		return nil, fmt.Errorf("smtp host, port and admin email are required")
	}
	return &SMTPMailer{
		host:       host,
		port:       port,
		username:   username,
		password:   password,
		from:       from,
		adminEmail: adminEmail,
	}, nil
}

func (m *SMTPMailer) SendReceipt(o *orders.Order) error {
	body := fmt.Sprintf(
		"Thank you for your order, %s!\n\nOrder ID: %s\nTracking ID: %s\nTotal: $%.2f\n\nOrdered products:\n%s\nShipping address: %s\n",
		o.FirstName, o.ID, o.TrackingID, float64(o.TotalCents)/100, itemsList(o), o.Address,
	)
	return m.send(o.Email, "Your LaTRONIC order confirmation", body)
}

func (m *SMTPMailer) SendSaleAlert(o *orders.Order) error {
	body := fmt.Sprintf(
		"Payment processed successfully\n\nTotal: $%.2f\nClient email: %s\nClient name: %s %s\nShipping address: %s\n\nOrdered products:\n%s",
		float64(o.TotalCents)/100, o.Email, o.FirstName, o.LastName, o.Address, itemsList(o),
	)
	return m.send(m.adminEmail, "New sale in LaTRONIC LLC", body)
}

func (m *SMTPMailer) SendContactMessage(name, email, message string) error {
	body := fmt.Sprintf("Name: %s\nEmail: %s\n\nMessage:\n%s\n", name, email, message)
	return m.send(m.adminEmail, "New message from Contact Form", body)
}

func (m *SMTPMailer) send(to, subject, body string) error {
	message := []byte("From: " + m.from + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" +
		body + "\r\n")

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}
	if err := smtp.SendMail(m.host+":"+m.port, auth, m.from, []string{to}, message); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}

func itemsList(o *orders.Order) string {
	var b strings.Builder
	for _, l := range o.Lines {
		fmt.Fprintf(&b, "- %s | Quantity: %d | Price: $%.2f\n", l.Title, l.Quantity, float64(l.UnitPriceCents)/100)
	}
	if b.Len() == 0 {
		return "No products found\n"
	}
	return b.String()
}

// LogMailer stands in when no SMTP relay is configured.
type LogMailer struct{}

func (LogMailer) SendReceipt(o *orders.Order) error {
	slog.Info("receipt email skipped, smtp not configured", slog.String(logkey.OrderID, o.ID))
	return nil
}

func (LogMailer) SendSaleAlert(o *orders.Order) error {
	slog.Info("sale alert email skipped, smtp not configured", slog.String(logkey.OrderID, o.ID))
	return nil
}

func (LogMailer) SendContactMessage(name, email, _ string) error {
	slog.Info("contact email skipped, smtp not configured",
		slog.String("name", name), slog.String("email", email))
	return nil
}
