package notifier

import (
	"fmt"

	"github.com/slack-go/slack"
)

type slackClient interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackAnnouncer posts a notice to a channel for every report that was sent.
type SlackAnnouncer struct {
	client  slackClient
	channel string
}

func NewSlackAnnouncer(client slackClient, channel string) *SlackAnnouncer {
	return &SlackAnnouncer{client: client, channel: channel}
}

var _ Announcer = &SlackAnnouncer{}

func (a *SlackAnnouncer) Announce(announcement Announcement) error {
	_, _, err := a.client.PostMessage(a.channel,
		slack.MsgOptionText(announcementText(announcement), false),
		slack.MsgOptionBlocks(announcementBlocks(announcement)...))
	if err != nil {
		return fmt.Errorf("failed to post to channel %s: %w", a.channel, err)
	}
	return nil
}

func announcementText(announcement Announcement) string {
	return fmt.Sprintf("%d test cases for the %s journey were sent to %s", announcement.TestCount, announcement.Journey, announcement.Recipient)
}

func announcementBlocks(announcement Announcement) []slack.Block {
	return []slack.Block{
		&slack.HeaderBlock{
			Type: slack.MBTHeader,
			Text: &slack.TextBlockObject{Type: slack.PlainTextType, Text: fmt.Sprintf("Test cases sent for review: %s", announcement.Journey)},
		},
		&slack.SectionBlock{
			Type: slack.MBTSection,
			Text: &slack.TextBlockObject{Type: slack.MarkdownType, Text: announcementText(announcement)},
		},
		&slack.ContextBlock{
			Type: slack.MBTContext,
			ContextElements: slack.ContextElements{
				Elements: []slack.MixedElement{
					&slack.TextBlockObject{Type: slack.MarkdownType, Text: fmt.Sprintf("Attachment: `%s`", announcement.Filename)},
					&slack.TextBlockObject{Type: slack.MarkdownType, Text: fmt.Sprintf("Message ID: `%s`", announcement.MessageID)},
				},
			},
		},
	}
}
