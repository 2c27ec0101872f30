// Command gdrive-auth obtains the GDRIVE_REFRESH_TOKEN the gdrive archive
// provider needs. It runs the OAuth consent flow against a loopback callback.
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"

	"renderworker/internal/config"
	"renderworker/internal/pkg/errors"
	"renderworker/internal/pkg/logger"
)

const authTimeout = 3 * time.Minute

func main() {
	ctx := context.Background()
	log := logger.NewDefault().WithComponent("gdrive-auth")

	// The refresh token is what we are here for, so the provider check is
	// skipped.
	cfg, err := config.Load(func(k string) string {
		if k == "STORAGE_PROVIDER" {
			return config.StorageNone
		}
		return os.Getenv(k)
	})
	if err != nil {
		log.LogFatal("invalid configuration", err)
	}
	creds := cfg.Storage.GDrive
	if creds.ClientID == "" || creds.ClientSecret == "" {
		log.LogFatal("missing credentials", errors.Validationf("GDRIVE_CLIENT_ID and GDRIVE_CLIENT_SECRET are required"))
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.LogFatal("cannot listen for the OAuth callback", err)
	}
	defer ln.Close()

	redirectURL := fmt.Sprintf("http://127.0.0.1:%d/callback", ln.Addr().(*net.TCPAddr).Port)
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
		RedirectURL:  redirectURL,
	}

	tok, err := authorize(ctx, conf, ln)
	if err != nil {
		log.LogFatal("authorization failed", err)
	}
	if strings.TrimSpace(tok.RefreshToken) == "" {
		fmt.Println("\nNo refresh token was returned.")
		fmt.Println("Revoke the app's access at https://myaccount.google.com/permissions and run this again.")
		return
	}

	fmt.Println("\nGDRIVE_REFRESH_TOKEN:")
	fmt.Println(tok.RefreshToken)
}

// authorize prints the consent URL, waits for the callback on ln and
// exchanges the code for tokens.
func authorize(ctx context.Context, conf *oauth2.Config, ln net.Listener) (*oauth2.Token, error) {
	state := randomState()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.Handle("/callback", callbackHandler(state, codeCh, errCh))
	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		_ = srv.Serve(ln)
	}()
	defer srv.Close()

	// Offline access with forced consent so a refresh token is issued.
	authURL := conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
	fmt.Println("\nOpen this URL in your browser:")
	fmt.Println(authURL)
	fmt.Println("\nWaiting for authorization on", conf.RedirectURL)

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return nil, err
	case <-time.After(authTimeout):
		return nil, errors.New(errors.CodeUnavailable, "timed out waiting for authorization")
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "gdrive-auth.exchange", "token exchange failed")
	}
	return tok, nil
}

// callbackHandler delivers the authorization code, or the reason there is
// none, exactly once.
func callbackHandler(state string, codeCh chan<- string, errCh chan<- error) http.HandlerFunc {
	fail := func(w http.ResponseWriter, err error) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		select {
		case errCh <- err:
		default:
		}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			fail(w, errors.Validationf("invalid state"))
			return
		}
		if e := q.Get("error"); e != "" {
			fail(w, errors.Validationf("auth error: %s", e))
			return
		}
		code := q.Get("code")
		if code == "" {
			fail(w, errors.Validationf("missing code"))
			return
		}

		fmt.Fprintln(w, "Authorized. You can close this window and return to the terminal.")
		select {
		case codeCh <- code:
		default:
		}
	}
}

func randomState() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
