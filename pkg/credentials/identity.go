package credentials

import (
	"encoding/json"
	"fmt"
	"os"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

const (
	EnvClientID     = "GOOGLE_CLIENT_ID"
	EnvClientSecret = "GOOGLE_CLIENT_SECRET"
	EnvProjectID    = "GOOGLE_PROJECT_ID"

	authURI     = "https://accounts.google.com/o/oauth2/auth"
	tokenURI    = "https://oauth2.googleapis.com/token"
	certsURI    = "https://www.googleapis.com/oauth2/v1/certs"
	placeholder = "your_google_client_%s_here"
)

// ClientIdentity is the OAuth client registered for the mail account.
type ClientIdentity struct {
	ClientID     string
	ClientSecret string
	ProjectID    string
}

// IdentityFromEnv reads the client identity from the process environment.
func IdentityFromEnv() ClientIdentity {
	return identityFrom(os.Getenv)
}

func identityFrom(getenv func(string) string) ClientIdentity {
	return ClientIdentity{
		ClientID:     getenv(EnvClientID),
		ClientSecret: getenv(EnvClientSecret),
		ProjectID:    getenv(EnvProjectID),
	}
}

// Complete reports whether both the client id and secret are set.
func (i ClientIdentity) Complete() bool {
	return i.ClientID != "" && i.ClientSecret != ""
}

// Validate rejects missing values and the placeholders shipped in example env files.
func (i ClientIdentity) Validate() error {
	var errs []error
	if i.ClientID == "" || i.ClientID == fmt.Sprintf(placeholder, "id") {
		errs = append(errs, fmt.Errorf("%s is not set", EnvClientID))
	}
	if i.ClientSecret == "" || i.ClientSecret == fmt.Sprintf(placeholder, "secret") {
		errs = append(errs, fmt.Errorf("%s is not set", EnvClientSecret))
	}
	return utilerrors.NewAggregate(errs)
}

// RedirectURIs are the local callbacks registered for the client.
var RedirectURIs = []string{
	"http://localhost:8000/",
	"http://localhost:8080",
	"http://localhost:8080/",
	"http://localhost:8082/",
	"http://localhost:3000/",
}

// JavaScriptOrigins are the browser origins registered for the client.
var JavaScriptOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8000",
	"http://localhost:8001",
	"http://localhost:8002",
	"http://localhost:8003",
	"http://localhost:8004",
	"http://localhost:8005",
	"http://localhost:8080",
	"http://localhost:8082",
}

type clientSecrets struct {
	Web webClient `json:"web"`
}

type webClient struct {
	ClientID            string   `json:"client_id"`
	ProjectID           string   `json:"project_id,omitempty"`
	AuthURI             string   `json:"auth_uri"`
	TokenURI            string   `json:"token_uri"`
	AuthProviderCertURL string   `json:"auth_provider_x509_cert_url"`
	ClientSecret        string   `json:"client_secret"`
	RedirectURIs        []string `json:"redirect_uris"`
	JavaScriptOrigins   []string `json:"javascript_origins"`
}

// SecretsJSON renders the identity as a Google "web" client secrets document.
func (i ClientIdentity) SecretsJSON() ([]byte, error) {
	return json.MarshalIndent(clientSecrets{Web: webClient{
		ClientID:            i.ClientID,
		ProjectID:           i.ProjectID,
		AuthURI:             authURI,
		TokenURI:            tokenURI,
		AuthProviderCertURL: certsURI,
		ClientSecret:        i.ClientSecret,
		RedirectURIs:        RedirectURIs,
		JavaScriptOrigins:   JavaScriptOrigins,
	}}, "", "  ")
}
