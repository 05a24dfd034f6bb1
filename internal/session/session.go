// Package session persists the bearer credential used to talk to the API.
// The token lives in a small JSON file so a login in one process is seen by
// every later invocation.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// ErrNoSession is returned when no token has been saved.
var ErrNoSession = errors.New("no saved session")

// Store reads and writes the session token file.
type Store struct {
	path string
}

// New creates a Store backed by the file at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the token file location.
func (s *Store) Path() string {
	return s.path
}

// Save writes a bearer token. It creates the parent directory if needed.
func (s *Store) Save(accessToken string) error {
	if accessToken == "" {
		return errors.New("empty token")
	}
	return saveToken(s.path, &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
}

// Load returns the saved token, or ErrNoSession if there is none.
func (s *Store) Load() (*oauth2.Token, error) {
	tok, err := loadToken(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, ErrNoSession
	}
	return tok, nil
}

// Clear removes the token file. Clearing an absent session is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

// Token implements oauth2.TokenSource. The file is re-read on every call.
func (s *Store) Token() (*oauth2.Token, error) {
	return s.Load()
}

// saveToken writes an OAuth2 token to a file as JSON.
func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create token file: %w", err)
	}
	return encodeAndClose(f, token)
}

// encodeAndClose writes a token as JSON and closes the writer,
// surfacing both encode and close errors.
func encodeAndClose(wc io.WriteCloser, token *oauth2.Token) error {
	err := json.NewEncoder(wc).Encode(token)
	if closeErr := wc.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("save token file: %w", err)
	}
	return nil
}

// loadToken reads an OAuth2 token from a JSON file.
func loadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()

	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}

	return &tok, nil
}
