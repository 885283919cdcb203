package config

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
)

// redacted replaces secrets in rendered output.
const redacted = "(set)"

// RenderEffective writes the resolved configuration as TOML to w. This powers
// the "config show" command, giving users visibility into the effective
// values after all four override layers have been applied.
func RenderEffective(cfg *Config, source string, w io.Writer) error {
	if _, err := fmt.Fprintf(w, "# Effective configuration (file: %s)\n\n", sourceLabel(source)); err != nil {
		return err
	}

	return toml.NewEncoder(w).Encode(cfg.Redacted())
}

// Redacted returns a copy of cfg safe to print.
func (c *Config) Redacted() Config {
	shown := *c
	if shown.Notify.WebhookURL != "" {
		// Webhook URLs usually embed a secret token.
		shown.Notify.WebhookURL = redacted
	}

	return shown
}

func sourceLabel(source string) string {
	if source == "" {
		return "none, defaults"
	}

	return source
}
