package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/oauth2"
)

// TokenStore persists the OAuth token between process starts.
type TokenStore struct {
	fs   afero.Fs
	path string
}

func NewTokenStore(fs afero.Fs, path string) *TokenStore {
	return &TokenStore{fs: fs, path: path}
}

func (s *TokenStore) Path() string {
	return s.path
}

// Load returns the stored token, or nil if none has been stored yet.
func (s *TokenStore) Load() (*oauth2.Token, error) {
	raw, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file %s: %w", s.path, err)
	}
	token := &oauth2.Token{}
	if err := json.Unmarshal(raw, token); err != nil {
		return nil, fmt.Errorf("failed to decode token file %s: %w", s.path, err)
	}
	return token, nil
}

// Save writes the token readable only by the current user.
func (s *TokenStore) Save(token *oauth2.Token) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}
	if err := afero.WriteFile(s.fs, s.path, raw, 0600); err != nil {
		return fmt.Errorf("failed to cache oauth token in %s: %w", s.path, err)
	}
	return nil
}
