package notifier

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/slack-go/slack"
)

type fakeSlackClient struct {
	channels []string
	options  int
	err      error
}

func (c *fakeSlackClient) PostMessage(channelID string, options ...slack.MsgOption) (string, string, error) {
	c.channels = append(c.channels, channelID)
	c.options = len(options)
	return channelID, "1700000000.000100", c.err
}

func TestSlackAnnouncer(t *testing.T) {
	announcement := Announcement{Journey: "Onboarding", Recipient: "ba@example.com", TestCount: 3, Filename: "test_cases_Onboarding_20250102_030405.xlsx", MessageID: "msg-1"}
	testCases := []struct {
		name        string
		err         error
		expectedErr string
	}{
		{
			name: "notice is posted to the channel",
		},
		{
			name:        "post failures are returned",
			err:         errors.New("channel_not_found"),
			expectedErr: "failed to post to channel #qa: channel_not_found",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := &fakeSlackClient{err: tc.err}
			err := NewSlackAnnouncer(client, "#qa").Announce(announcement)
			var actual string
			if err != nil {
				actual = err.Error()
			}
			if diff := cmp.Diff(tc.expectedErr, actual); diff != "" {
				t.Errorf("unexpected error (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{"#qa"}, client.channels); diff != "" {
				t.Errorf("unexpected channels (-want +got):\n%s", diff)
			}
			if client.options != 2 {
				t.Errorf("expected text and blocks options, got %d", client.options)
			}
		})
	}
}

func TestAnnouncementBlocks(t *testing.T) {
	blocks := announcementBlocks(Announcement{Journey: "Checkout", Recipient: "ba@example.com", TestCount: 2, Filename: "f.xlsx", MessageID: "id"})
	var types []slack.MessageBlockType
	for _, block := range blocks {
		types = append(types, block.BlockType())
	}
	if diff := cmp.Diff([]slack.MessageBlockType{slack.MBTHeader, slack.MBTSection, slack.MBTContext}, types); diff != "" {
		t.Errorf("unexpected blocks (-want +got):\n%s", diff)
	}
	section := blocks[1].(*slack.SectionBlock)
	if diff := cmp.Diff("2 test cases for the Checkout journey were sent to ba@example.com", section.Text.Text); diff != "" {
		t.Errorf("unexpected summary (-want +got):\n%s", diff)
	}
}
