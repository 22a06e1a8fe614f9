// Package auth turns on-disk OAuth credentials into an authorized Gmail HTTP
// client, caching the user token next to them.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
)

// NewGmailClient loads the OAuth client config from credentialsPath and
// returns an HTTP client that refreshes its token automatically. A cached
// token at tokenPath is reused; otherwise the paste-code flow runs on the
// terminal and the token is written back for next time. The modify scope
// covers reading plus the archive and trash actions.
func NewGmailClient(ctx context.Context, credentialsPath, tokenPath string, logger *log.Logger) (*http.Client, error) {
	raw, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading oauth credentials")
	}
	config, err := google.ConfigFromJSON(raw, gmailapi.GmailModifyScope)
	if err != nil {
		return nil, errors.Wrap(err, "parsing oauth credentials")
	}

	token, err := tokenFromFile(tokenPath)
	if err != nil {
		logger.Info("No cached token, starting authorization", "path", tokenPath)
		token, err = tokenFromWeb(ctx, config)
		if err != nil {
			return nil, err
		}
		if err := saveToken(tokenPath, token); err != nil {
			logger.Warn("Could not cache token", "path", tokenPath, "error", err)
		} else {
			logger.Info("Cached token", "path", tokenPath)
		}
	}

	return config.Client(ctx, token), nil
}

// tokenFromWeb walks the user through the out-of-band authorization flow:
// open the URL, approve, paste the code back.
func tokenFromWeb(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Printf("Open the following link in your browser, then paste the authorization code here:\n%v\n> ", authURL)

	var code string
	if _, err := fmt.Scan(&code); err != nil {
		return nil, errors.Wrap(err, "reading authorization code")
	}

	token, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "exchanging authorization code")
	}
	return token, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, errors.Wrap(err, "decoding cached token")
	}
	return token, nil
}

func saveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrap(err, "creating token file")
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return errors.Wrap(err, "encoding token")
	}
	return nil
}
