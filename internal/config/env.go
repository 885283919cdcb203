package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variable names for overrides.
const (
	EnvConfig         = "DRIVEMIRROR_CONFIG"
	EnvDriveID        = "DRIVEMIRROR_DRIVE_ID"
	EnvFolderID       = "DRIVEMIRROR_FOLDER_ID"
	EnvSourceDir      = "DRIVEMIRROR_SOURCE_DIR"
	EnvRequestDelayMS = "DRIVEMIRROR_REQUEST_DELAY_MS"
	EnvMaxRetries     = "DRIVEMIRROR_MAX_RETRIES"
	EnvBaseBackoffMS  = "DRIVEMIRROR_BASE_BACKOFF_MS"
	EnvTokenFile      = "DRIVEMIRROR_TOKEN_FILE"
	EnvAccessToken    = "DRIVEMIRROR_ACCESS_TOKEN"
	EnvGitHubOutput   = "GITHUB_OUTPUT"
)

// EnvOverrides holds values derived from environment variables.
// Numeric fields are nil when the variable is unset.
type EnvOverrides struct {
	ConfigPath   string
	DriveID      string
	FolderID     string
	SourceDir    string
	RequestDelay *time.Duration
	MaxRetries   *int
	BaseBackoff  *time.Duration
	TokenFile    string
	AccessToken  string
	OutputsFile  string
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. Malformed numeric values are reported together.
func ReadEnvOverrides() (EnvOverrides, error) {
	env := EnvOverrides{
		ConfigPath:  os.Getenv(EnvConfig),
		DriveID:     os.Getenv(EnvDriveID),
		FolderID:    os.Getenv(EnvFolderID),
		SourceDir:   os.Getenv(EnvSourceDir),
		TokenFile:   os.Getenv(EnvTokenFile),
		AccessToken: os.Getenv(EnvAccessToken),
		OutputsFile: os.Getenv(EnvGitHubOutput),
	}

	var errs []error

	delay, err := envMillis(EnvRequestDelayMS)
	errs = append(errs, err)
	env.RequestDelay = delay

	backoff, err := envMillis(EnvBaseBackoffMS)
	errs = append(errs, err)
	env.BaseBackoff = backoff

	retries, err := envNonNegInt(EnvMaxRetries)
	errs = append(errs, err)
	env.MaxRetries = retries

	return env, errors.Join(errs...)
}

// envMillis parses a non-negative millisecond count.
func envMillis(name string) (*time.Duration, error) {
	n, err := envNonNegInt(name)
	if err != nil || n == nil {
		return nil, err
	}

	d := time.Duration(*n) * time.Millisecond

	return &d, nil
}

func envNonNegInt(name string) (*int, error) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return nil, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid integer %q", name, raw)
	}

	if n < 0 {
		return nil, fmt.Errorf("%s: must be >= 0, got %d", name, n)
	}

	return &n, nil
}
