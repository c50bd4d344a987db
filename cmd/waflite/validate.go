package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/waflite/waflite/internal/config"
	"github.com/waflite/waflite/internal/ruleset"
)

func newValidateCmd() *cobra.Command {
	var configPath string
	var rulesPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a service config or a rule config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" && rulesPath == "" {
				return errors.New("--config or --rules is required")
			}
			if configPath != "" {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				if err := cfg.Validate(); err != nil {
					return err
				}
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), "config ok"); err != nil {
					return err
				}
			}
			if rulesPath != "" {
				n, err := validateRules(rulesPath)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "rules ok (%d rules)\n", n); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to service config file")
	cmd.Flags().StringVar(&rulesPath, "rules", "", "Path to rule config JSON")

	return cmd
}

// validateRules loads the rule config and matches every rule once, so
// unsupported rule types fail here rather than on the first scan.
func validateRules(path string) (int, error) {
	doc, err := ruleset.LoadConfig(path)
	if err != nil {
		return 0, err
	}
	set, err := ruleset.BuildRules(doc)
	if err != nil {
		return 0, err
	}
	if err := ruleset.Probe(set); err != nil {
		return 0, err
	}
	return len(set.Rules), nil
}
