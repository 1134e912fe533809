// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/haowjy/meridian-channel/cmd/meridian/cli"
)

// DoctorCommand reconciles state and reports problems. Exits non-zero
// when problems remain so scripts can gate on health.
func DoctorCommand() *cli.Command {
	var verbose bool
	return &cli.Command{
		Name:    "doctor",
		Summary: "Check and repair the state directory",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("doctor", pflag.ContinueOnError)
			flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
			return flags
		},
		Run: func(args []string) error {
			inv, err := newInvocation("", verbose)
			if err != nil {
				return err
			}
			report, err := inv.runtime.Doctor()
			if err != nil {
				return err
			}
			for _, fixed := range report.Fixed {
				fmt.Printf("fixed    %s\n", fixed)
			}
			for _, warning := range report.Warnings {
				fmt.Printf("warning  %s\n", warning)
			}
			for _, problem := range report.Problems {
				fmt.Printf("problem  %s\n", problem)
			}
			if len(report.Fixed) == 0 && len(report.Warnings) == 0 && len(report.Problems) == 0 {
				fmt.Println("ok")
			}
			if len(report.Problems) > 0 {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}
