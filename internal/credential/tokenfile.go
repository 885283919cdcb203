package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// dirPerms is used when creating the token file's directory.
const dirPerms = 0o700

// tokenFile is the on-disk format: the OAuth token under a "token" key.
type tokenFile struct {
	Token *oauth2.Token `json:"token"`
}

// LoadToken reads a saved token file. Returns ErrNoToken if the file does
// not exist.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoToken, path)
	}

	if err != nil {
		return nil, fmt.Errorf("credential: reading %s: %w", path, err)
	}

	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("credential: decoding %s: %w", path, err)
	}

	if tf.Token == nil || tf.Token.AccessToken == "" {
		return nil, fmt.Errorf("credential: %s has no access token", path)
	}

	return tf.Token, nil
}

// SaveToken writes a token file atomically (write-to-temp + rename)
// with 0600 permissions. Never logs token values.
func SaveToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tokenFile{Token: tok}, "", "  ")
	if err != nil {
		return fmt.Errorf("credential: encoding token: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return fmt.Errorf("credential: creating directory %s: %w", dir, err)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("credential: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("credential: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("credential: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("credential: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credential: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("credential: renaming: %w", err)
	}

	success = true

	return nil
}
