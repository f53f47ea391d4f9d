package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrNoClientIdentity is returned when neither the environment nor the client
// secrets file provide an OAuth client.
var ErrNoClientIdentity = errors.New("gmail API credentials not found")

// State is the lifecycle of the credential held by a long-lived service.
type State string

const (
	StateUnset    State = "unset"
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateDegraded State = "degraded"
)

// Credential is an OAuth token together with the client able to refresh it.
type Credential struct {
	Token *oauth2.Token
	// Config is nil when the token was loaded without any client identity
	// available; such a credential cannot be refreshed.
	Config *oauth2.Config
}

// TokenSource returns a source that refreshes the token when the client is known.
func (c *Credential) TokenSource(ctx context.Context) oauth2.TokenSource {
	if c.Config == nil {
		return oauth2.StaticTokenSource(c.Token)
	}
	return c.Config.TokenSource(ctx, c.Token)
}

// Provider acquires a credential.
type Provider interface {
	Acquire(ctx context.Context) (*Credential, error)
}

// Authenticator acquires a credential from the token file, refreshing it or running
// the consent flow when needed, and persists any new token.
type Authenticator struct {
	fs          afero.Fs
	identity    ClientIdentity
	secretsFile string
	store       *TokenStore
	flow        ConsentFlow
	scopes      []string
}

func NewAuthenticator(fs afero.Fs, identity ClientIdentity, secretsFile string, store *TokenStore, flow ConsentFlow, scopes ...string) *Authenticator {
	return &Authenticator{
		fs:          fs,
		identity:    identity,
		secretsFile: secretsFile,
		store:       store,
		flow:        flow,
		scopes:      scopes,
	}
}

var _ Provider = &Authenticator{}

func (a *Authenticator) Acquire(ctx context.Context) (*Credential, error) {
	logger := logrus.WithField("token_file", a.store.Path())
	token, err := a.store.Load()
	if err != nil {
		logger.WithError(err).Warn("Ignoring unreadable token file")
		token = nil
	}

	config, configErr := a.clientConfig()
	if token != nil && token.Valid() {
		if configErr != nil {
			logger.WithError(configErr).Debug("No OAuth client available, the token will not be refreshed")
		}
		return &Credential{Token: token, Config: config}, nil
	}

	if token != nil && token.RefreshToken != "" && configErr == nil {
		refreshed, err := config.TokenSource(ctx, token).Token()
		if err == nil {
			return a.persist(&Credential{Token: refreshed, Config: config})
		}
		logger.WithError(err).Warn("Failed to refresh token, falling back to the consent flow")
	}

	if configErr != nil {
		return nil, configErr
	}
	token, err = a.flow.Run(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("consent flow failed: %w", err)
	}
	return a.persist(&Credential{Token: token, Config: config})
}

func (a *Authenticator) persist(credential *Credential) (*Credential, error) {
	if err := a.store.Save(credential.Token); err != nil {
		return nil, err
	}
	logrus.WithField("token_file", a.store.Path()).Info("Saved OAuth token")
	return credential, nil
}

// clientConfig prefers the identity from the environment over the secrets file.
func (a *Authenticator) clientConfig() (*oauth2.Config, error) {
	var raw []byte
	switch {
	case a.identity.Complete():
		secrets, err := a.identity.SecretsJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to render client secrets: %w", err)
		}
		raw = secrets
	case a.secretsFile != "":
		exists, err := afero.Exists(a.fs, a.secretsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", a.secretsFile, err)
		}
		if !exists {
			return nil, ErrNoClientIdentity
		}
		if raw, err = afero.ReadFile(a.fs, a.secretsFile); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", a.secretsFile, err)
		}
	default:
		return nil, ErrNoClientIdentity
	}
	config, err := google.ConfigFromJSON(raw, a.scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client secrets: %w", err)
	}
	return config, nil
}
