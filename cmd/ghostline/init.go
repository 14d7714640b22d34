package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ghostline-ai/ghostline/internal/config"
	"github.com/ghostline-ai/ghostline/internal/home"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the ghostline home directory and default config",
	Long: `Create the ghostline home directory layout and write a default
config file. API keys are referenced from the environment via ${ENV_VAR}
syntax, so the file is safe to commit to dotfiles.

Examples:
  ghostline init
  ghostline init --home /srv/ghostline
  ghostline init --force            # overwrite an existing config`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homePath)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}
		if h.ConfigExists() && !initForce {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", h.ConfigPath())
		}
		if err := config.WriteDefault(h.ConfigPath()); err != nil {
			return err
		}

		fmt.Printf("Initialized ghostline home at %s\n", h.Path())
		fmt.Printf("Wrote default config to %s\n", h.ConfigPath())
		fmt.Println("Set ANTHROPIC_API_KEY (and optionally OPENAI_API_KEY) to enable live generation.")
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
