package notifier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"

	"github.com/traceqa/backend/pkg/credentials"
	"github.com/traceqa/backend/pkg/testcases"
)

const (
	EnvRecipient = "BA_EMAIL"
	EnvSender    = "ADMIN_EMAIL"

	MessageUnauthenticated = "Gmail API not authenticated. Please check credentials."
	sentMessage            = "Test cases sent to BA successfully"
	preparedNote           = "Email details logged, not sent"

	modeSend    = "send"
	modePrepare = "prepare"

	resultSuccess         = "success"
	resultUnauthenticated = "unauthenticated"
	resultRenderError     = "render_error"
	resultAPIError        = "api_error"
	resultError           = "error"
)

var dispatches = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "traceqa_email_dispatch_total",
		Help: "Report emails handled by the dispatcher, by mode and result.",
	},
	[]string{"mode", "result"},
)

func init() {
	prometheus.MustRegister(dispatches)
}

// Outcome is the result of a dispatch. Failures only carry a message. TestCount is
// only set by Prepare, where it is reported even for an empty record list.
type Outcome struct {
	Success            bool   `json:"success"`
	Message            string `json:"message"`
	MessageID          string `json:"message_id,omitempty"`
	Recipient          string `json:"recipient,omitempty"`
	AttachmentFilename string `json:"attachment_filename,omitempty"`
	Journey            string `json:"journey,omitempty"`
	TestCount          *int   `json:"test_count,omitempty"`
	AttachmentSize     int    `json:"attachment_size,omitempty"`
	Note               string `json:"note,omitempty"`

	// Unauthenticated is set when the dispatcher holds no credential.
	Unauthenticated bool `json:"-"`
}

// Recipients are the addresses reports are sent to and from.
type Recipients struct {
	To   string
	From string
}

func RecipientsFromEnv() Recipients {
	return Recipients{To: os.Getenv(EnvRecipient), From: os.Getenv(EnvSender)}
}

// Sender submits a composed message and returns its identifier.
type Sender interface {
	Send(ctx context.Context, raw []byte) (string, error)
}

// SenderFactory builds a Sender authorized by the credential.
type SenderFactory func(ctx context.Context, credential *credentials.Credential) (Sender, error)

// Renderer renders records into the attached document.
type Renderer interface {
	Build(records []testcases.Record) ([]byte, error)
}

// Archive keeps a copy of every rendered document.
type Archive interface {
	Store(ctx context.Context, name string, data []byte) error
}

// Announcement describes a report that was sent.
type Announcement struct {
	Journey   string
	Recipient string
	TestCount int
	Filename  string
	MessageID string
}

// Announcer publishes a notice after a report was sent.
type Announcer interface {
	Announce(announcement Announcement) error
}

type Option func(*Dispatcher)

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

func WithArchive(archive Archive) Option {
	return func(d *Dispatcher) {
		d.archive = archive
	}
}

func WithAnnouncer(announcer Announcer) Option {
	return func(d *Dispatcher) {
		d.announcer = announcer
	}
}

// Dispatcher renders test cases and mails them as a spreadsheet attachment.
// The credential is acquired once, when the Dispatcher is created; its state
// does not change afterwards, so a Dispatcher is safe for concurrent use.
type Dispatcher struct {
	renderer   Renderer
	recipients Recipients
	now        func() time.Time
	archive    Archive
	announcer  Announcer

	state  credentials.State
	sender Sender
}

// NewDispatcher acquires the credential through provider and builds the sender with
// factory. Failures are logged and leave the Dispatcher degraded: Send then reports
// the missing authentication while Prepare keeps working.
func NewDispatcher(ctx context.Context, provider credentials.Provider, factory SenderFactory, renderer Renderer, recipients Recipients, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		renderer:   renderer,
		recipients: recipients,
		now:        time.Now,
		state:      credentials.StateUnset,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.authenticate(ctx, provider, factory)
	return d
}

func (d *Dispatcher) authenticate(ctx context.Context, provider credentials.Provider, factory SenderFactory) {
	d.state = credentials.StateLoading
	if provider == nil || factory == nil {
		logrus.Warn("No Gmail credential provider configured, emails will not be sent")
		d.state = credentials.StateDegraded
		return
	}
	credential, err := provider.Acquire(ctx)
	if err != nil {
		logrus.WithError(err).Warn("Gmail API authentication failed, emails will not be sent")
		d.state = credentials.StateDegraded
		return
	}
	sender, err := factory(ctx, credential)
	if err != nil {
		logrus.WithError(err).Warn("Failed to create Gmail client, emails will not be sent")
		d.state = credentials.StateDegraded
		return
	}
	d.sender = sender
	d.state = credentials.StateReady
	logrus.Info("Gmail API authenticated successfully")
}

// State reports whether the Dispatcher is able to send.
func (d *Dispatcher) State() credentials.State {
	return d.state
}

// Send renders records and mails them to the configured recipient.
func (d *Dispatcher) Send(ctx context.Context, records []testcases.Record, journey string) Outcome {
	if d.sender == nil {
		dispatches.WithLabelValues(modeSend, resultUnauthenticated).Inc()
		return Outcome{Message: MessageUnauthenticated, Unauthenticated: true}
	}
	logger := logrus.WithFields(logrus.Fields{"journey": journey, "test_count": len(records), "recipient": d.recipients.To})

	now := d.now()
	filename := AttachmentName(journey, now)
	attachment, err := d.renderer.Build(records)
	if err != nil {
		logger.WithError(err).Error("Failed to send email")
		dispatches.WithLabelValues(modeSend, resultRenderError).Inc()
		return Outcome{Message: fmt.Sprintf("Failed to send email: %v", err)}
	}
	d.store(ctx, logger, filename, attachment)

	id, err := d.deliver(ctx, journey, len(records), now, filename, attachment)
	if err == nil {
		logger.WithField("message_id", id).Info("Email sent successfully")
		dispatches.WithLabelValues(modeSend, resultSuccess).Inc()
		d.announce(logger, Announcement{Journey: journey, Recipient: d.recipients.To, TestCount: len(records), Filename: filename, MessageID: id})
		return Outcome{
			Success:            true,
			Message:            sentMessage,
			MessageID:          id,
			Recipient:          d.recipients.To,
			AttachmentFilename: filename,
		}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		logger.WithError(err).Error("Gmail API error")
		dispatches.WithLabelValues(modeSend, resultAPIError).Inc()
		return Outcome{Message: fmt.Sprintf("Gmail API error: %v", err)}
	}
	logger.WithError(err).Error("Failed to send email")
	dispatches.WithLabelValues(modeSend, resultError).Inc()
	return Outcome{Message: fmt.Sprintf("Failed to send email: %v", err)}
}

// Prepare renders and composes the message like Send but only logs it.
// It does not depend on the credential.
func (d *Dispatcher) Prepare(ctx context.Context, records []testcases.Record, journey string) Outcome {
	subject := prepareSubject(journey)
	logger := logrus.WithFields(logrus.Fields{"journey": journey, "test_count": len(records), "recipient": d.recipients.To})

	now := d.now()
	filename := AttachmentName(journey, now)
	attachment, err := d.renderer.Build(records)
	if err == nil {
		d.store(ctx, logger, filename, attachment)
		var body string
		if body, err = renderBody(prepareTemplate, journey, len(records), now); err == nil {
			_, err = d.message(subject, body, filename, attachment).Bytes()
		}
	}
	if err != nil {
		logger.WithError(err).Error("Failed to prepare email")
		dispatches.WithLabelValues(modePrepare, resultError).Inc()
		return Outcome{Message: fmt.Sprintf("Failed to prepare email: %v", err)}
	}

	count := len(records)
	logger.WithFields(logrus.Fields{
		"sender":          d.recipients.From,
		"subject":         subject,
		"attachment_size": len(attachment),
	}).Info("Email prepared")
	dispatches.WithLabelValues(modePrepare, resultSuccess).Inc()
	return Outcome{
		Success:            true,
		Message:            fmt.Sprintf("Email prepared successfully for %s journey with %d test cases", journey, len(records)),
		Recipient:          d.recipients.To,
		AttachmentFilename: filename,
		Journey:            journey,
		TestCount:          &count,
		AttachmentSize:     len(attachment),
		Note:               preparedNote,
	}
}

func (d *Dispatcher) deliver(ctx context.Context, journey string, count int, now time.Time, filename string, attachment []byte) (string, error) {
	body, err := renderBody(sendTemplate, journey, count, now)
	if err != nil {
		return "", err
	}
	raw, err := d.message(sendSubject, body, filename, attachment).Bytes()
	if err != nil {
		return "", err
	}
	return d.sender.Send(ctx, raw)
}

func (d *Dispatcher) message(subject, body, filename string, attachment []byte) Message {
	return Message{
		To:      d.recipients.To,
		From:    d.recipients.From,
		Subject: subject,
		Body:    body,
		Attachments: []Attachment{{
			Filename:    filename,
			ContentType: SpreadsheetContentType,
			Data:        attachment,
		}},
	}
}

func (d *Dispatcher) store(ctx context.Context, logger *logrus.Entry, filename string, data []byte) {
	if d.archive == nil {
		return
	}
	if err := d.archive.Store(ctx, filename, data); err != nil {
		logger.WithError(err).WithField("filename", filename).Warn("Failed to archive report")
	}
}

func (d *Dispatcher) announce(logger *logrus.Entry, announcement Announcement) {
	if d.announcer == nil {
		return
	}
	if err := d.announcer.Announce(announcement); err != nil {
		logger.WithError(err).Warn("Failed to announce sent report")
	}
}
