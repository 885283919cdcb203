package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivemirror/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc, err := cliContextFrom(cmd.Context())
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		enc := json.NewEncoder(cc.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(cc.Cfg.Redacted())
	}

	return config.RenderEffective(cc.Cfg, cc.CfgSource, cc.Stdout)
}
