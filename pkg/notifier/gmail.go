package notifier

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/traceqa/backend/pkg/credentials"
)

// GmailScope is the only scope the dispatcher requests.
const GmailScope = gmail.GmailSendScope

const authenticatedUser = "me"

// GmailSender submits messages through users.messages.send of the Gmail API.
type GmailSender struct {
	service *gmail.Service
}

var _ Sender = &GmailSender{}
var _ SenderFactory = NewGmailSender

// NewGmailSender is the SenderFactory for the Gmail API.
func NewGmailSender(ctx context.Context, credential *credentials.Credential) (Sender, error) {
	return newGmailSender(ctx, option.WithTokenSource(credential.TokenSource(ctx)))
}

func newGmailSender(ctx context.Context, opts ...option.ClientOption) (*GmailSender, error) {
	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return &GmailSender{service: service}, nil
}

func (s *GmailSender) Send(ctx context.Context, raw []byte) (string, error) {
	sent, err := s.service.Users.Messages.Send(authenticatedUser, &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return sent.Id, nil
}
