package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"sigs.k8s.io/prow/pkg/interrupts"
	"sigs.k8s.io/prow/pkg/logrusutil"

	"github.com/traceqa/backend/pkg/credentials"
	"github.com/traceqa/backend/pkg/notifier"
)

const (
	secretsFile = "credentials.json"
	tokenFile   = "token.json"
)

const instructions = `Before running this tool, make sure you have:
1. Created a project in Google Cloud Console
2. Enabled the Gmail API
3. Created OAuth 2.0 credentials
4. Set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET in your .env file

Required environment variables:
- GOOGLE_CLIENT_ID=your_actual_client_id
- GOOGLE_CLIENT_SECRET=your_actual_client_secret
- GOOGLE_PROJECT_ID=your_project_id (optional)
`

// setup writes the client secrets for identity and runs the acquisition chain
// against them, leaving a token file behind.
func setup(ctx context.Context, fs afero.Fs, identity credentials.ClientIdentity, flow credentials.ConsentFlow) error {
	if err := identity.Validate(); err != nil {
		return fmt.Errorf("please set the client in your .env file: %w", err)
	}
	secrets, err := identity.SecretsJSON()
	if err != nil {
		return fmt.Errorf("failed to render client secrets: %w", err)
	}
	if err := afero.WriteFile(fs, secretsFile, secrets, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", secretsFile, err)
	}
	logrus.WithField("file", secretsFile).Info("Credentials file created from environment variables")

	store := credentials.NewTokenStore(fs, tokenFile)
	authenticator := credentials.NewAuthenticator(fs, credentials.ClientIdentity{}, secretsFile, store, flow, notifier.GmailScope)
	if _, err := authenticator.Acquire(ctx); err != nil {
		return fmt.Errorf("gmail API authentication failed: %w", err)
	}
	logrus.WithField("file", store.Path()).Info("Gmail API authentication successful")
	return nil
}

func main() {
	logrusutil.ComponentInit()
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("Failed to load .env file")
	}
	fmt.Print(instructions)

	flow := &credentials.LocalServerFlow{Port: credentials.ConsentPort}
	if err := setup(interrupts.Context(), afero.NewOsFs(), credentials.IdentityFromEnv(), flow); err != nil {
		logrus.WithError(err).Error("Setup failed, please check your .env file configuration")
		os.Exit(1)
	}
	logrus.Info("Email setup completed successfully")
}
