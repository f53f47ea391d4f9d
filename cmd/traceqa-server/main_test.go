package main

import (
	"errors"
	"flag"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/traceqa/backend/pkg/notifier"
	"github.com/traceqa/backend/pkg/testhelper"
)

func TestGatherOptions(t *testing.T) {
	env := map[string]string{notifier.EnvRecipient: "ba@example.com", notifier.EnvSender: "admin@example.com"}
	getenv := func(key string) string { return env[key] }

	testCases := []struct {
		name               string
		args               []string
		expectedRecipients notifier.Recipients
		expectedOrigins    []string
	}{
		{
			name:               "environment provides defaults",
			expectedRecipients: notifier.Recipients{To: "ba@example.com", From: "admin@example.com"},
			expectedOrigins:    []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		},
		{
			name:               "flags override the environment",
			args:               []string{"--ba-email=other@example.com", "--allowed-origin=https://qa.example.com", "--allowed-origin=https://qa2.example.com"},
			expectedRecipients: notifier.Recipients{To: "other@example.com", From: "admin@example.com"},
			expectedOrigins:    []string{"https://qa.example.com", "https://qa2.example.com"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			o, err := gatherOptions(flag.NewFlagSet(tc.name, flag.ContinueOnError), tc.args, getenv)
			if err != nil {
				t.Fatalf("failed to parse options: %v", err)
			}
			if diff := cmp.Diff(tc.expectedRecipients, o.recipients()); diff != "" {
				t.Errorf("unexpected recipients (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tc.expectedOrigins, o.allowedOrigins.Strings()); diff != "" {
				t.Errorf("unexpected origins (-want +got):\n%s", diff)
			}
			if o.tokenFile != "token.json" || o.credentialsFile != "credentials.json" {
				t.Errorf("unexpected credential files: %s, %s", o.tokenFile, o.credentialsFile)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name        string
		args        []string
		expectedErr error
	}{
		{
			name: "defaults are valid",
		},
		{
			name: "local archive and slack",
			args: []string{"--archive-dir=/tmp/reports", "--slack-token-path=/etc/slack/token", "--slack-channel=#qa"},
		},
		{
			name:        "invalid log level",
			args:        []string{"--log-level=loud"},
			expectedErr: errors.New(`invalid --log-level: not a valid logrus Level: "loud"`),
		},
		{
			name:        "two archives",
			args:        []string{"--archive-dir=/tmp/reports", "--gcs-bucket=reports"},
			expectedErr: errors.New("--archive-dir and --gcs-bucket are mutually exclusive"),
		},
		{
			name: "incomplete slack and gcs configuration",
			args: []string{"--slack-channel=#qa", "--gcs-credentials-file=/etc/gcs.json"},
			expectedErr: errors.New("[--gcs-credentials-file requires --gcs-bucket, " +
				"--slack-token-path and --slack-channel must be set together]"),
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			o, err := gatherOptions(flag.NewFlagSet(tc.name, flag.ContinueOnError), tc.args, func(string) string { return "" })
			if err != nil {
				t.Fatalf("failed to parse options: %v", err)
			}
			if diff := cmp.Diff(tc.expectedErr, o.validate(), testhelper.EquateErrorMessage); diff != "" {
				t.Errorf("unexpected error (-want +got):\n%s", diff)
			}
		})
	}
}
