package notifier

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/traceqa/backend/pkg/report"
)

const (
	// SpreadsheetContentType is the media type of the attached report.
	SpreadsheetContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	filenameLayout = "20060102_150405"
)

var journeySanitizer = strings.NewReplacer("/", "_", `\`, "_", "..", "_")

// AttachmentName is the file name the report is attached and archived under.
// Path separators and parent references in the journey are replaced.
func AttachmentName(journey string, at time.Time) string {
	return fmt.Sprintf("test_cases_%s_%s.xlsx", journeySanitizer.Replace(journey), at.Format(filenameLayout))
}

// Attachment is a file carried by a Message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is a plain-text mail with attachments.
type Message struct {
	To          string
	From        string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Bytes renders the message as an RFC 5322 multipart/mixed document.
func (m Message) Bytes() ([]byte, error) {
	var header mail.Header
	if m.To != "" {
		header.Set("To", m.To)
	}
	if m.From != "" {
		header.Set("From", m.From)
	}
	header.SetSubject(m.Subject)

	var out bytes.Buffer
	writer, err := mail.CreateWriter(&out, header)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	var textHeader mail.InlineHeader
	textHeader.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	text, err := writer.CreateSingleInline(textHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to create text part: %w", err)
	}
	if _, err := text.Write([]byte(m.Body)); err != nil {
		return nil, fmt.Errorf("failed to encode text part: %w", err)
	}
	if err := text.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode text part: %w", err)
	}

	for _, attachment := range m.Attachments {
		contentType := attachment.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		var partHeader mail.AttachmentHeader
		partHeader.SetContentType(contentType, nil)
		partHeader.SetFilename(attachment.Filename)
		part, err := writer.CreateAttachment(partHeader)
		if err != nil {
			return nil, fmt.Errorf("failed to create part for %s: %w", attachment.Filename, err)
		}
		if _, err := part.Write(attachment.Data); err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", attachment.Filename, err)
		}
		if err := part.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", attachment.Filename, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}
	return out.Bytes(), nil
}

const (
	sendSubject = "Please verify the Test Cases generated"

	sendBody = `Check the test cases generated attached along with this email.

Journey: {{.Journey}}
Total Test Cases: {{.Count}}
Generated Date: {{.Generated}}

Thank You.

Best regards,
TraceQA Admin
`

	prepareBody = `Dear BA Team,

Please find attached the test cases generated for the {{.Journey}} journey.

Journey: {{.Journey}}
Total Test Cases: {{.Count}}
Generated Date: {{.Generated}}

The test cases have been generated based on the uploaded requirements documents and are ready for review.

Best regards,
TraceQA System
`
)

var (
	sendTemplate    = template.Must(template.New("send").Parse(sendBody))
	prepareTemplate = template.Must(template.New("prepare").Parse(prepareBody))
)

func prepareSubject(journey string) string {
	return fmt.Sprintf("Test Cases Generated for %s Journey", journey)
}

type bodyData struct {
	Journey   string
	Count     int
	Generated string
}

func renderBody(tmpl *template.Template, journey string, count int, at time.Time) (string, error) {
	var out bytes.Buffer
	if err := tmpl.Execute(&out, bodyData{Journey: journey, Count: count, Generated: at.Format(report.TimestampLayout)}); err != nil {
		return "", fmt.Errorf("failed to render %s body: %w", tmpl.Name(), err)
	}
	return out.String(), nil
}
