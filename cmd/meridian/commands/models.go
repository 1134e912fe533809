// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/haowjy/meridian-channel/cmd/meridian/cli"
)

// ModelsCommand lists the model catalog with aliases and routing.
func ModelsCommand() *cli.Command {
	var (
		asJSON  bool
		verbose bool
	)
	return &cli.Command{
		Name:    "models",
		Summary: "List known models, aliases, and harness routing",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("models", pflag.ContinueOnError)
			flags.BoolVar(&asJSON, "json", false, "emit JSON")
			flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
			return flags
		},
		Run: func(args []string) error {
			inv, err := newInvocation("", verbose)
			if err != nil {
				return err
			}
			models := inv.runtime.Catalog.Models()
			if asJSON {
				return printJSON(models)
			}
			for _, model := range models {
				fmt.Printf("%-28s %-10s %-8s %-10s %s\n",
					model.ModelID, model.Harness, model.CostTier, model.Role,
					strings.Join(model.Aliases, ", "))
			}
			return nil
		},
	}
}
