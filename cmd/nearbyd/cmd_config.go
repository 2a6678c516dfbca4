package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/nearbymesh/nearby/internal/config"
)

func runConfig(args []string) {
	if err := doConfig(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doConfig(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: nearbyd config <backup|rollback> [--config path]")
	}

	sub, rest := args[0], args[1:]
	fs := flag.NewFlagSet("config "+sub, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	cfgFile, err := config.FindConfigFile(*configFlag)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	switch sub {
	case "backup":
		if err := config.Archive(cfgFile); err != nil {
			return fmt.Errorf("failed to back up config: %w", err)
		}
		fmt.Fprintf(stdout, "Backed up %s to %s\n", cfgFile, config.ArchivePath(cfgFile))
	case "rollback":
		if err := config.Rollback(cfgFile); err != nil {
			return fmt.Errorf("failed to roll back config: %w", err)
		}
		fmt.Fprintf(stdout, "Restored %s from %s\n", cfgFile, config.ArchivePath(cfgFile))
	default:
		return fmt.Errorf("unknown config subcommand: %s (want backup or rollback)", sub)
	}
	return nil
}
