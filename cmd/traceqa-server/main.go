package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
	"github.com/spf13/afero"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"sigs.k8s.io/prow/pkg/config/secret"
	prowflagutil "sigs.k8s.io/prow/pkg/flagutil"
	"sigs.k8s.io/prow/pkg/interrupts"
	"sigs.k8s.io/prow/pkg/logrusutil"

	"github.com/traceqa/backend/pkg/archive"
	"github.com/traceqa/backend/pkg/credentials"
	"github.com/traceqa/backend/pkg/notifier"
	"github.com/traceqa/backend/pkg/report"
	"github.com/traceqa/backend/pkg/server"
)

type options struct {
	address         string
	tokenFile       string
	credentialsFile string
	paletteConfig   string
	recipient       string
	sender          string
	allowedOrigins  prowflagutil.Strings

	archiveDir         string
	gcsBucket          string
	gcsPrefix          string
	gcsCredentialsFile string

	slackTokenPath string
	slackChannel   string

	logLevel string
}

func gatherOptions(fs *flag.FlagSet, args []string, getenv func(string) string) (options, error) {
	o := options{allowedOrigins: prowflagutil.NewStrings(server.DefaultAllowedOrigins...)}
	fs.StringVar(&o.address, "address", ":8000", "Address to serve the API on.")
	fs.StringVar(&o.tokenFile, "token-file", "token.json", "File holding the cached OAuth token.")
	fs.StringVar(&o.credentialsFile, "credentials-file", "credentials.json", "Google client secrets file, used when the client is not configured in the environment.")
	fs.StringVar(&o.paletteConfig, "palette-config", "", "Optional YAML file overriding the report cell colors.")
	fs.StringVar(&o.recipient, "ba-email", getenv(notifier.EnvRecipient), fmt.Sprintf("Address reports are sent to. Defaults to $%s.", notifier.EnvRecipient))
	fs.StringVar(&o.sender, "admin-email", getenv(notifier.EnvSender), fmt.Sprintf("Address reports are sent from. Defaults to $%s.", notifier.EnvSender))
	fs.Var(&o.allowedOrigins, "allowed-origin", fmt.Sprintf("Origin allowed to call the API. Can be specified multiple times. Defaults to %v", o.allowedOrigins.Strings()))
	fs.StringVar(&o.archiveDir, "archive-dir", "", "Local directory to keep a copy of every rendered report in.")
	fs.StringVar(&o.gcsBucket, "gcs-bucket", "", "GCS bucket to keep a copy of every rendered report in.")
	fs.StringVar(&o.gcsPrefix, "gcs-prefix", "reports", "Object prefix for reports stored in --gcs-bucket.")
	fs.StringVar(&o.gcsCredentialsFile, "gcs-credentials-file", "", "File where GCS credentials are stored. Defaults to the application default credentials.")
	fs.StringVar(&o.slackTokenPath, "slack-token-path", "", "Path to the file containing the Slack token used to announce sent reports.")
	fs.StringVar(&o.slackChannel, "slack-channel", "", "Slack channel sent reports are announced in.")
	fs.StringVar(&o.logLevel, "log-level", "info", "Level at which to log output.")
	return o, fs.Parse(args)
}

func (o *options) validate() error {
	var errs []error
	if _, err := logrus.ParseLevel(o.logLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid --log-level: %w", err))
	}
	if o.address == "" {
		errs = append(errs, errors.New("--address is required"))
	}
	if o.tokenFile == "" {
		errs = append(errs, errors.New("--token-file is required"))
	}
	if o.archiveDir != "" && o.gcsBucket != "" {
		errs = append(errs, errors.New("--archive-dir and --gcs-bucket are mutually exclusive"))
	}
	if o.gcsCredentialsFile != "" && o.gcsBucket == "" {
		errs = append(errs, errors.New("--gcs-credentials-file requires --gcs-bucket"))
	}
	if (o.slackTokenPath == "") != (o.slackChannel == "") {
		errs = append(errs, errors.New("--slack-token-path and --slack-channel must be set together"))
	}
	if len(o.allowedOrigins.Strings()) == 0 {
		errs = append(errs, errors.New("at least one --allowed-origin is required"))
	}
	return utilerrors.NewAggregate(errs)
}

func (o *options) recipients() notifier.Recipients {
	return notifier.Recipients{To: o.recipient, From: o.sender}
}

func main() {
	logrusutil.ComponentInit()
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("Failed to load .env file")
	}
	o, err := gatherOptions(flag.NewFlagSet(os.Args[0], flag.ExitOnError), os.Args[1:], os.Getenv)
	if err != nil {
		logrus.WithError(err).Fatal("failed to parse options")
	}
	if err := o.validate(); err != nil {
		logrus.WithError(err).Fatal("invalid options")
	}
	level, _ := logrus.ParseLevel(o.logLevel)
	logrus.SetLevel(level)
	if o.recipient == "" {
		logrus.Warnf("No recipient configured, set --ba-email or $%s", notifier.EnvRecipient)
	}

	palette, err := report.LoadPalette(o.paletteConfig)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load palette")
	}
	builder := report.NewBuilder(palette)

	var dispatcherOpts []notifier.Option
	var serverOpts []server.Option
	fs := afero.NewOsFs()
	switch {
	case o.archiveDir != "":
		local := archive.NewLocalArchive(fs, o.archiveDir)
		dispatcherOpts = append(dispatcherOpts, notifier.WithArchive(local))
		serverOpts = append(serverOpts, server.WithReports(local))
	case o.gcsBucket != "":
		bucket, err := archive.NewBucketArchiveFromCredentials(interrupts.Context(), o.gcsBucket, o.gcsPrefix, o.gcsCredentialsFile, notifier.SpreadsheetContentType)
		if err != nil {
			logrus.WithError(err).Fatal("failed to create report archive")
		}
		dispatcherOpts = append(dispatcherOpts, notifier.WithArchive(bucket))
	}
	if o.slackTokenPath != "" {
		if err := secret.Add(o.slackTokenPath); err != nil {
			logrus.WithError(err).Fatal("failed to start secrets agent")
		}
		slackClient := slack.New(string(secret.GetSecret(o.slackTokenPath)))
		dispatcherOpts = append(dispatcherOpts, notifier.WithAnnouncer(notifier.NewSlackAnnouncer(slackClient, o.slackChannel)))
	}

	authenticator := credentials.NewAuthenticator(
		fs,
		credentials.IdentityFromEnv(),
		o.credentialsFile,
		credentials.NewTokenStore(fs, o.tokenFile),
		&credentials.LocalServerFlow{Port: credentials.ConsentPort},
		notifier.GmailScope,
	)
	dispatcher := notifier.NewDispatcher(interrupts.Context(), authenticator, notifier.NewGmailSender, builder, o.recipients(), dispatcherOpts...)
	logrus.WithField("email", dispatcher.State()).Info("Email dispatcher initialized")

	srv := &http.Server{
		Addr:    o.address,
		Handler: server.New(dispatcher, builder, serverOpts...).Handler(o.allowedOrigins.Strings()),
	}
	logrus.WithField("address", o.address).Info("Serving API")
	interrupts.ListenAndServe(srv, 5*time.Second)
	interrupts.WaitForGracefulShutdown()
}
