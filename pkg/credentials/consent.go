package credentials

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// ConsentPort is the local port registered as redirect target for the consent flow.
const ConsentPort = 8082

const consentDone = "The authentication flow has completed. You may close this window."

// ConsentFlow obtains a fresh token through user interaction.
type ConsentFlow interface {
	Run(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error)
}

// LocalServerFlow runs the installed-app flow: the user opens the printed URL, and
// the provider redirects back to a listener on localhost carrying the code.
// Run blocks until the redirect arrives or ctx is done.
type LocalServerFlow struct {
	// Port to listen on; 0 picks a free port.
	Port int
	// Prompt is handed the URL the user has to visit. Defaults to printing it.
	Prompt func(authURL string)
}

type callbackResult struct {
	code string
	err  error
}

func (f *LocalServerFlow) Run(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", f.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen for the consent callback: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port

	redirected := *config
	redirected.RedirectURL = fmt.Sprintf("http://localhost:%d/", port)
	state := uuid.NewV4().String()
	verifier := oauth2.GenerateVerifier()
	authURL := redirected.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))

	results := make(chan callbackResult, 1)
	server := &http.Server{Handler: callbackHandler(state, results)}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			deliver(results, callbackResult{err: fmt.Errorf("consent callback server failed: %w", err)})
		}
	}()
	defer func() {
		if err := server.Close(); err != nil {
			logrus.WithError(err).Debug("Failed to close consent callback server")
		}
	}()

	prompt := f.Prompt
	if prompt == nil {
		prompt = printPrompt
	}
	prompt(authURL)

	var result callbackResult
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result = <-results:
	}
	if result.err != nil {
		return nil, result.err
	}

	token, err := redirected.Exchange(ctx, result.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return token, nil
}

func printPrompt(authURL string) {
	fmt.Printf("Please visit this URL to authorize this application: %v\n", authURL)
}

func callbackHandler(state string, results chan<- callbackResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		query := r.URL.Query()
		var result callbackResult
		switch {
		case query.Get("error") != "":
			result.err = fmt.Errorf("authorization was denied: %s", query.Get("error"))
		case query.Get("state") != state:
			result.err = errors.New("mismatching state in consent callback")
		case query.Get("code") == "":
			result.err = errors.New("consent callback carried no authorization code")
		default:
			result.code = query.Get("code")
		}
		if result.err != nil {
			http.Error(w, result.err.Error(), http.StatusBadRequest)
		} else {
			fmt.Fprint(w, consentDone)
		}
		deliver(results, result)
	})
}

// deliver keeps only the first callback; later requests must not block the handler.
func deliver(results chan<- callbackResult, result callbackResult) {
	select {
	case results <- result:
	default:
	}
}
