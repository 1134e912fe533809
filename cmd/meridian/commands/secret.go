// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/haowjy/meridian-channel/cmd/meridian/cli"
	"github.com/haowjy/meridian-channel/lib/safety"
)

// SecretCommand builds the `meridian secret` subtree over the
// age-encrypted store.
func SecretCommand() *cli.Command {
	return &cli.Command{
		Name:    "secret",
		Summary: "Manage the encrypted secret store",
		Subcommands: []*cli.Command{
			secretSetCommand(),
			secretRemoveCommand(),
			secretListCommand(),
		},
	}
}

func secretStore(inv *invocation) *safety.SecretStore {
	return safety.NewSecretStore(inv.runtime.Root.StateDir)
}

func secretSetCommand() *cli.Command {
	var verbose bool
	return &cli.Command{
		Name:    "set",
		Summary: "Store a secret (value prompted when omitted)",
		Usage:   "meridian secret set <KEY>[=VALUE]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("set", pflag.ContinueOnError)
			flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("key required: meridian secret set <KEY>[=VALUE]")
			}
			inv, err := newInvocation("", verbose)
			if err != nil {
				return err
			}

			key, value, hasValue := strings.Cut(args[0], "=")
			if !hasValue {
				value, err = readSecretValue(key)
				if err != nil {
					return err
				}
			}
			if err := secretStore(inv).Set(key, value); err != nil {
				return err
			}
			fmt.Printf("stored %s\n", strings.ToUpper(key))
			return nil
		},
	}
}

func secretRemoveCommand() *cli.Command {
	var verbose bool
	return &cli.Command{
		Name:    "rm",
		Summary: "Remove a secret",
		Usage:   "meridian secret rm <KEY>",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("rm", pflag.ContinueOnError)
			flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("key required: meridian secret rm <KEY>")
			}
			inv, err := newInvocation("", verbose)
			if err != nil {
				return err
			}
			if err := secretStore(inv).Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("removed %s\n", strings.ToUpper(args[0]))
			return nil
		},
	}
}

func secretListCommand() *cli.Command {
	var verbose bool
	return &cli.Command{
		Name:    "list",
		Summary: "List stored secret keys (never values)",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
			return flags
		},
		Run: func(args []string) error {
			inv, err := newInvocation("", verbose)
			if err != nil {
				return err
			}
			keys, err := secretStore(inv).Keys()
			if err != nil {
				return err
			}
			for _, key := range keys {
				fmt.Println(key)
			}
			return nil
		},
	}
}

// readSecretValue prompts without echo on a terminal, and falls back
// to reading one stdin line when piped.
func readSecretValue(key string) (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		fmt.Fprintf(os.Stderr, "value for %s: ", strings.ToUpper(key))
		value, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading secret value: %w", err)
		}
		return string(value), nil
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading secret value from stdin: %w", err)
	}
	return strings.TrimRight(line, "\n"), nil
}
