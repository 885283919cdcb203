package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// Validation range constants.
const (
	maxRetriesLimit   = 10
	minConnectTimeout = 1 * time.Second
	minDataTimeout    = 5 * time.Second
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateRetry(&cfg.Retry)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	if cfg.Auth.Tenant == "" {
		errs = append(errs, errors.New("auth.tenant: must not be empty"))
	}

	errs = append(errs, validateNotify(&cfg.Notify)...)

	return errors.Join(errs...)
}

// ValidateResolved checks what a sync run needs on the fully resolved
// configuration: a destination and an absolute source directory. Commands
// that never touch the remote (history, config show) skip it.
func ValidateResolved(cfg *Config) error {
	var errs []error

	if cfg.Remote.DriveID == "" {
		errs = append(errs, fmt.Errorf("remote.drive_id: required (set it in the config file, %s, or --drive-id)", EnvDriveID))
	}

	if cfg.Remote.FolderID == "" {
		errs = append(errs, fmt.Errorf("remote.folder_id: required (set it in the config file, %s, or --folder-id)", EnvFolderID))
	}

	switch {
	case cfg.Sync.SourceDir == "":
		errs = append(errs, fmt.Errorf("sync.source_dir: required (set it in the config file, %s, or --source)", EnvSourceDir))
	case !filepath.IsAbs(cfg.Sync.SourceDir):
		errs = append(errs, fmt.Errorf("sync.source_dir: must be absolute after expansion, got %q", cfg.Sync.SourceDir))
	}

	return errors.Join(errs...)
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	errs = append(errs, validateDurationNonNeg("sync.request_delay", s.RequestDelay)...)
	errs = append(errs, validateDurationNonNeg("sync.watch_debounce", s.WatchDebounce)...)

	for _, p := range s.Exclude {
		if _, err := filepath.Match(p, ""); err != nil {
			errs = append(errs, fmt.Errorf("sync.exclude: invalid pattern %q: %w", p, err))
		}
	}

	return errs
}

func validateRetry(r *RetryConfig) []error {
	var errs []error

	if r.MaxRetries < 0 || r.MaxRetries > maxRetriesLimit {
		errs = append(errs, fmt.Errorf("retry.max_retries: must be between 0 and %d, got %d",
			maxRetriesLimit, r.MaxRetries))
	}

	errs = append(errs, validateDurationNonNeg("retry.base_backoff", r.BaseBackoff)...)
	errs = append(errs, validateDurationNonNeg("retry.max_backoff", r.MaxBackoff)...)

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("network.connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("network.data_timeout", n.DataTimeout, minDataTimeout)...)

	if err := validateHTTPURL("network.graph_base_url", n.GraphBaseURL); err != nil {
		errs = append(errs, err)
	}

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[strings.ToLower(l.LogLevel)] {
		errs = append(errs, fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateNotify(n *NotifyConfig) []error {
	if n.WebhookURL == "" {
		return nil
	}

	if err := validateHTTPURL("notify.webhook_url", n.WebhookURL); err != nil {
		return []error{err}
	}

	return nil
}

func validateHTTPURL(field, value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: invalid URL %q: %w", field, value, err)
	}

	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("%s: must be an http(s) URL, got %q", field, value)
	}

	return nil
}

// validateDurationMin checks that a duration string is valid and meets a minimum.
func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, value)}
	}

	return nil
}

// validateDurationNonNeg checks that a duration string is valid and not
// negative.
func validateDurationNonNeg(field, value string) []error {
	return validateDurationMin(field, value, 0)
}
