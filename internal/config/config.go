// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for drivemirror. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
// Duration values are kept as strings so the file round-trips exactly; the
// typed accessors parse them after Validate has accepted them.
type Config struct {
	Remote  RemoteConfig  `toml:"remote"`
	Sync    SyncConfig    `toml:"sync"`
	Retry   RetryConfig   `toml:"retry"`
	Network NetworkConfig `toml:"network"`
	Auth    AuthConfig    `toml:"auth"`
	Logging LoggingConfig `toml:"logging"`
	State   StateConfig   `toml:"state"`
	Notify  NotifyConfig  `toml:"notify"`
}

// RemoteConfig identifies the destination folder.
type RemoteConfig struct {
	DriveID  string `toml:"drive_id"`
	FolderID string `toml:"folder_id"`
}

// SyncConfig controls what is mirrored and how fast.
type SyncConfig struct {
	SourceDir     string   `toml:"source_dir"`
	RequestDelay  string   `toml:"request_delay"`
	SkipDotfiles  bool     `toml:"skip_dotfiles"`
	Exclude       []string `toml:"exclude"`
	VerifyUploads bool     `toml:"verify_uploads"`
	WatchDebounce string   `toml:"watch_debounce"`
}

// RetryConfig tunes the retry executor shared by all remote calls.
type RetryConfig struct {
	MaxRetries  int    `toml:"max_retries"`
	BaseBackoff string `toml:"base_backoff"`
	MaxBackoff  string `toml:"max_backoff"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
	GraphBaseURL   string `toml:"graph_base_url"`
}

// AuthConfig locates the bearer token. ClientID and Tenant are only needed
// to refresh an expired token from the file's refresh token.
type AuthConfig struct {
	TokenFile string `toml:"token_file"`
	ClientID  string `toml:"client_id"`
	Tenant    string `toml:"tenant"`
}

// LoggingConfig controls log output: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// StateConfig controls the run history database.
type StateConfig struct {
	HistoryDB string `toml:"history_db"`
}

// NotifyConfig controls where run reports are published.
type NotifyConfig struct {
	WebhookURL  string `toml:"webhook_url"`
	OutputsFile string `toml:"outputs_file"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath    string // --config flag (empty = use default)
	DriveID       *string
	FolderID      *string
	SourceDir     *string
	RequestDelay  *time.Duration
	MaxRetries    *int
	VerifyUploads *bool
	LogLevel      *string
}

// historyDisabled turns the history database off.
const historyDisabled = "off"

// RequestDelayDuration returns the parsed inter-request delay.
func (s *SyncConfig) RequestDelayDuration() time.Duration {
	return mustDuration(s.RequestDelay)
}

// WatchDebounceDuration returns the parsed watch debounce interval.
func (s *SyncConfig) WatchDebounceDuration() time.Duration {
	return mustDuration(s.WatchDebounce)
}

// BaseBackoffDuration returns the parsed base backoff.
func (r *RetryConfig) BaseBackoffDuration() time.Duration {
	return mustDuration(r.BaseBackoff)
}

// MaxBackoffDuration returns the parsed backoff cap; zero means uncapped.
func (r *RetryConfig) MaxBackoffDuration() time.Duration {
	return mustDuration(r.MaxBackoff)
}

// ConnectTimeoutDuration returns the parsed dial timeout.
func (n *NetworkConfig) ConnectTimeoutDuration() time.Duration {
	return mustDuration(n.ConnectTimeout)
}

// DataTimeoutDuration returns the parsed response header timeout.
func (n *NetworkConfig) DataTimeoutDuration() time.Duration {
	return mustDuration(n.DataTimeout)
}

// HistoryPath returns the history database path, or "" when disabled.
func (s *StateConfig) HistoryPath() string {
	if s.HistoryDB == historyDisabled {
		return ""
	}

	if s.HistoryDB == "" {
		return DefaultHistoryPath()
	}

	return expandTilde(s.HistoryDB)
}

// mustDuration parses a duration that Validate has already checked.
// Invalid or empty input yields zero.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}

	return d
}
