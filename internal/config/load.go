package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are treated as fatal errors with "did you
// mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values, so the tool runs from
// environment variables alone in CI.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
// An explicitly named config file must exist.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	// 1. Resolve config path: CLI > env > default
	cfgPath, explicit := ConfigPath(env, cli)

	// 2. Load config file
	var (
		cfg *Config
		err error
	)

	if explicit {
		cfg, err = Load(cfgPath)
	} else {
		cfg, err = LoadOrDefault(cfgPath)
	}

	if err != nil {
		return nil, err
	}

	// 3. Environment, then CLI
	applyEnv(cfg, env)
	applyCLI(cfg, cli)

	cfg.Sync.SourceDir = expandTilde(cfg.Sync.SourceDir)
	cfg.Auth.TokenFile = expandTilde(cfg.Auth.TokenFile)

	// 4. Re-validate: env and flags bypass the file checks.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// ConfigPath returns the config file Resolve reads and whether it was named
// explicitly by flag or environment.
func ConfigPath(env EnvOverrides, cli CLIOverrides) (string, bool) {
	switch {
	case cli.ConfigPath != "":
		return cli.ConfigPath, true
	case env.ConfigPath != "":
		return env.ConfigPath, true
	default:
		return DefaultConfigPath(), false
	}
}

func applyEnv(cfg *Config, env EnvOverrides) {
	setIfNonEmpty(&cfg.Remote.DriveID, env.DriveID)
	setIfNonEmpty(&cfg.Remote.FolderID, env.FolderID)
	setIfNonEmpty(&cfg.Sync.SourceDir, env.SourceDir)
	setIfNonEmpty(&cfg.Auth.TokenFile, env.TokenFile)

	if cfg.Notify.OutputsFile == "" {
		cfg.Notify.OutputsFile = env.OutputsFile
	}

	if env.RequestDelay != nil {
		cfg.Sync.RequestDelay = env.RequestDelay.String()
	}

	if env.BaseBackoff != nil {
		cfg.Retry.BaseBackoff = env.BaseBackoff.String()
	}

	if env.MaxRetries != nil {
		cfg.Retry.MaxRetries = *env.MaxRetries
	}
}

func applyCLI(cfg *Config, cli CLIOverrides) {
	if cli.DriveID != nil {
		cfg.Remote.DriveID = *cli.DriveID
	}

	if cli.FolderID != nil {
		cfg.Remote.FolderID = *cli.FolderID
	}

	if cli.SourceDir != nil {
		cfg.Sync.SourceDir = *cli.SourceDir
	}

	if cli.RequestDelay != nil {
		cfg.Sync.RequestDelay = cli.RequestDelay.String()
	}

	if cli.MaxRetries != nil {
		cfg.Retry.MaxRetries = *cli.MaxRetries
	}

	if cli.VerifyUploads != nil {
		cfg.Sync.VerifyUploads = *cli.VerifyUploads
	}

	if cli.LogLevel != nil {
		cfg.Logging.LogLevel = *cli.LogLevel
	}
}

func setIfNonEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
