package auth

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testCredentials = `{
  "installed": {
    "client_id": "client-id",
    "client_secret": "client-secret",
    "auth_uri": "https://accounts.google.com/o/oauth2/auth",
    "token_uri": "https://oauth2.googleapis.com/token",
    "redirect_uris": ["http://localhost"]
  }
}`

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	token := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, saveToken(path, token))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := tokenFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, token.AccessToken, loaded.AccessToken)
	assert.Equal(t, token.RefreshToken, loaded.RefreshToken)
	assert.True(t, token.Expiry.Equal(loaded.Expiry))
}

func TestTokenFromFileMissing(t *testing.T) {
	_, err := tokenFromFile(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestNewGmailClientUsesCachedToken(t *testing.T) {
	dir := t.TempDir()
	credentialsPath := filepath.Join(dir, "credentials.json")
	tokenPath := filepath.Join(dir, "token.json")

	require.NoError(t, os.WriteFile(credentialsPath, []byte(testCredentials), 0600))
	require.NoError(t, saveToken(tokenPath, &oauth2.Token{
		AccessToken: "cached",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}))

	client, err := NewGmailClient(context.Background(), credentialsPath, tokenPath, log.New(io.Discard))
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestNewGmailClientMissingCredentials(t *testing.T) {
	dir := t.TempDir()

	_, err := NewGmailClient(context.Background(), filepath.Join(dir, "credentials.json"),
		filepath.Join(dir, "token.json"), log.New(io.Discard))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading oauth credentials")
}

func TestNewGmailClientRejectsGarbageCredentials(t *testing.T) {
	dir := t.TempDir()
	credentialsPath := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(credentialsPath, []byte("not json"), 0600))

	_, err := NewGmailClient(context.Background(), credentialsPath,
		filepath.Join(dir, "token.json"), log.New(io.Discard))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing oauth credentials")
}
