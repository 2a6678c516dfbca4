package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nearbymesh/nearby/internal/config"
	"github.com/nearbymesh/nearby/internal/identityserv"
)

func runWhoami(args []string) {
	if err := doWhoami(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doWhoami(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("whoami", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfgFile, cfg, err := loadConfig(*configFlag)
	if err != nil {
		return err
	}
	configDir := filepath.Dir(cfgFile)

	ident, err := identityserv.Open(cfg.Identity.KeyFile, filepath.Join(configDir, "profile.yaml"))
	if err != nil {
		return fmt.Errorf("failed to load identity: %w", err)
	}

	fmt.Fprintln(stdout, ident.Author().String())
	return nil
}

// loadConfig resolves, loads, and path-resolves the node configuration,
// wrapping every failure as a "config error" so callers report a
// consistent message.
func loadConfig(explicitPath string) (string, *config.NodeConfig, error) {
	cfgFile, err := config.FindConfigFile(explicitPath)
	if err != nil {
		return "", nil, fmt.Errorf("config error: %w", err)
	}
	cfg, err := config.LoadNodeConfig(cfgFile)
	if err != nil {
		return "", nil, fmt.Errorf("config error: %w", err)
	}
	config.ResolveConfigPaths(cfg, filepath.Dir(cfgFile))
	return cfgFile, cfg, nil
}
