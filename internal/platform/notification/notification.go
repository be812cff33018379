// Package notification delivers appointment confirmations and reminders by
// email and SMS. Delivery failures never affect the booking that caused them.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Channel is the transport a message goes out on.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Message is one rendered outbound notification.
type Message struct {
	ID         string     `json:"id"`
	Channel    Channel    `json:"channel"`
	Recipient  string     `json:"recipient"`
	Subject    string     `json:"subject,omitempty"`
	Body       string     `json:"body"`
	TemplateID string     `json:"template_id,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// LogSender writes messages to the log instead of a provider. It is the
// default outside production and the fallback when no gateway is configured.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.Logger.Info().Str("channel", string(ChannelEmail)).Str("to", to).Str("subject", subject).Str("body", body).Msg("notification")
	return nil
}

func (s LogSender) SendSMS(_ context.Context, to, body string) error {
	s.Logger.Info().Str("channel", string(ChannelSMS)).Str("to", to).Str("body", body).Msg("notification")
	return nil
}

// Template IDs.
const (
	TemplateConfirmation = "appointment-confirmation"
	TemplateReminder     = "appointment-reminder"
)

// Template is a subject/body pair with {{key}} placeholders.
type Template struct {
	ID      string
	Subject string
	Body    string
}

type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	for _, t := range []Template{
		{
			ID:      TemplateConfirmation,
			Subject: "Appointment confirmed with {{provider}}",
			Body:    "Dear {{patient_name}}, your appointment with {{provider}} is confirmed for {{date}} at {{time}}.",
		},
		{
			ID:      TemplateReminder,
			Subject: "Reminder: appointment with {{provider}} on {{date}}",
			Body:    "Dear {{patient_name}}, this is a reminder of your appointment on {{date}} at {{time}} with {{provider}}.",
		},
	} {
		e.templates[t.ID] = t
	}
	return e
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

// Render substitutes data into the template. Unknown placeholders are left
// in place.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject, body = t.Subject, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// AppointmentNotice carries what a confirmation or reminder needs to know
// about one booked appointment.
type AppointmentNotice struct {
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	PatientName   string
	PatientEmail  string
	PatientPhone  string
	ProviderName  string
	Start         time.Time
	End           time.Time
}

func (n AppointmentNotice) templateData(loc *time.Location) map[string]string {
	start := n.Start
	if loc != nil {
		start = start.In(loc)
	}
	return map[string]string{
		"patient_name": n.PatientName,
		"provider":     n.ProviderName,
		"date":         start.Format("Monday, January 2, 2006"),
		"time":         start.Format("3:04 PM MST"),
	}
}

// Notifier renders appointment templates and sends them on every channel the
// patient has a contact for.
type Notifier struct {
	email     EmailSender
	sms       SMSSender
	templates *TemplateEngine
	loc       *time.Location
	logger    zerolog.Logger
}

func NewNotifier(email EmailSender, sms SMSSender, templates *TemplateEngine, loc *time.Location, logger zerolog.Logger) *Notifier {
	if templates == nil {
		templates = NewTemplateEngine()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{email: email, sms: sms, templates: templates, loc: loc, logger: logger}
}

// ErrNoContact is returned when the patient has neither email nor phone.
var ErrNoContact = errors.New("patient has no email or phone on file")

// Confirm sends the booking confirmation.
func (n *Notifier) Confirm(ctx context.Context, notice AppointmentNotice) error {
	_, err := n.Notify(ctx, TemplateConfirmation, notice)
	return err
}

// Remind sends the day-ahead reminder.
func (n *Notifier) Remind(ctx context.Context, notice AppointmentNotice) error {
	_, err := n.Notify(ctx, TemplateReminder, notice)
	return err
}

// Notify renders templateID for the notice and delivers it. It reports a
// message per attempted channel; the error joins every channel failure.
func (n *Notifier) Notify(ctx context.Context, templateID string, notice AppointmentNotice) ([]Message, error) {
	subject, body, err := n.templates.Render(templateID, notice.templateData(n.loc))
	if err != nil {
		return nil, err
	}

	var (
		msgs []Message
		errs []error
	)
	if notice.PatientEmail != "" && n.email != nil {
		m := n.newMessage(ChannelEmail, notice.PatientEmail, subject, body, templateID)
		n.finish(&m, n.email.SendEmail(ctx, m.Recipient, m.Subject, m.Body))
		msgs = append(msgs, m)
	}
	if notice.PatientPhone != "" && n.sms != nil {
		m := n.newMessage(ChannelSMS, notice.PatientPhone, "", body, templateID)
		n.finish(&m, n.sms.SendSMS(ctx, m.Recipient, m.Body))
		msgs = append(msgs, m)
	}
	if len(msgs) == 0 {
		return nil, ErrNoContact
	}

	for _, m := range msgs {
		if m.Status == "failed" {
			errs = append(errs, fmt.Errorf("%s to %s: %s", m.Channel, m.Recipient, m.Error))
		}
	}
	n.logger.Debug().
		Str("template", templateID).
		Str("appointment_id", notice.AppointmentID.String()).
		Int("messages", len(msgs)).
		Int("failed", len(errs)).
		Msg("notification dispatched")
	return msgs, errors.Join(errs...)
}

func (n *Notifier) newMessage(ch Channel, to, subject, body, templateID string) Message {
	return Message{
		ID:         uuid.NewString(),
		Channel:    ch,
		Recipient:  to,
		Subject:    subject,
		Body:       body,
		TemplateID: templateID,
		Status:     "pending",
		CreatedAt:  time.Now().UTC(),
	}
}

func (n *Notifier) finish(m *Message, err error) {
	if err != nil {
		m.Status = "failed"
		m.Error = err.Error()
		return
	}
	now := time.Now().UTC()
	m.Status = "sent"
	m.SentAt = &now
}
