// Package auth stores the backend session credentials under ~/.tally.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const credFileName = "credentials.json"

// SessionInfo is the stored login state: where the backend lives and the
// session cookie value that authenticates us against it.
type SessionInfo struct {
	BaseURL   string     `json:"base_url"`
	Session   string     `json:"session"`
	Source    string     `json:"source"`     // "env" | "file"
	CreatedAt time.Time  `json:"created_at"` // when we saved to file
	ExpiresAt *time.Time `json:"expires_at"` // optional (server-provided)
}

func credsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home: %w", err)
	}
	return filepath.Join(home, ".tally"), nil
}

func credFilePath() (string, error) {
	dir, err := credsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, credFileName), nil
}

// GetSession resolves credentials: TALLY_SESSION/TALLY_BASE_URL env vars win
// over the credentials file; nil means not logged in.
func GetSession() (*SessionInfo, error) {
	env := strings.TrimSpace(os.Getenv("TALLY_SESSION"))
	if env != "" {
		return &SessionInfo{
			BaseURL: strings.TrimSpace(os.Getenv("TALLY_BASE_URL")),
			Session: env,
			Source:  "env",
		}, nil
	}

	p, err := credFilePath()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil // not logged in
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var si SessionInfo
	if err := json.Unmarshal(b, &si); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return &si, nil
}

// SetSession saves credentials to the file with owner-only permissions.
func SetSession(baseURL, session string, expires *time.Time) error {
	session = strings.TrimSpace(session)
	if session == "" {
		return fmt.Errorf("empty session")
	}
	dir, err := credsDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	si := SessionInfo{
		BaseURL:   strings.TrimSpace(baseURL),
		Session:   session,
		Source:    "file",
		CreatedAt: time.Now(),
		ExpiresAt: expires,
	}
	b, err := json.MarshalIndent(si, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	p, _ := credFilePath()
	if err := os.WriteFile(p, b, 0o600); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// DeleteSession removes the credentials file; already gone is fine.
func DeleteSession() error {
	p, err := credFilePath()
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}
