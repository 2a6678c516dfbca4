package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nearbymesh/nearby/internal/config"
	"github.com/nearbymesh/nearby/internal/identityserv"
	"github.com/nearbymesh/nearby/pkg/radio"
)

func runInit(args []string) {
	if err := doInit(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doInit(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	dirFlag := fs.String("dir", "", "config directory (default: ~/.config/nearbyd)")
	serviceFlag := fs.String("service-name", radio.ServiceName, "mDNS service name scoping this deployment")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintln(stdout, "Welcome to nearbyd!")
	fmt.Fprintln(stdout)

	configDir := *dirFlag
	if configDir == "" {
		d, err := config.DefaultConfigDir()
		if err != nil {
			return fmt.Errorf("cannot determine config directory: %w", err)
		}
		configDir = d
	}

	configFile := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config already exists: %s\nDelete it first if you want to reinitialize", configFile)
	}

	fmt.Fprintf(stdout, "Creating config directory: %s\n", configDir)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	fmt.Fprintln(stdout)

	keyFile := filepath.Join(configDir, "identity.key")
	profileFile := filepath.Join(configDir, "profile.yaml")
	fmt.Fprintln(stdout, "Generating identity...")
	ident, err := identityserv.Open(keyFile, profileFile)
	if err != nil {
		return fmt.Errorf("failed to generate identity: %w", err)
	}
	fmt.Fprintf(stdout, "Your author id: %s\n", ident.Author())
	fmt.Fprintln(stdout, "(Share this with peers so they recognize your posts)")
	fmt.Fprintln(stdout)

	stateFile := filepath.Join(configDir, "state.yaml")
	configContent := nodeConfigTemplate(*serviceFlag)
	if err := os.WriteFile(configFile, []byte(configContent), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(stdout, "Config written to:    %s\n", configFile)
	fmt.Fprintf(stdout, "Identity saved to:    %s\n", keyFile)
	fmt.Fprintf(stdout, "State will live at:   %s\n", stateFile)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Next steps:")
	fmt.Fprintln(stdout, "  1. Run the core:  nearbyd run")
	fmt.Fprintln(stdout, "  2. Check status:  nearbyd status")
	return nil
}

// nodeConfigTemplate renders a fresh config.yaml with sane defaults: key
// and state files relative to the config directory, the caller's chosen
// mDNS service name, and telemetry disabled.
func nodeConfigTemplate(serviceName string) string {
	return fmt.Sprintf(`version: %d
identity:
  key_file: "identity.key"
discovery:
  service_name: %q
  scan_interval: "5s"
  mdns_enabled: true
settings:
  state_file: "state.yaml"
telemetry:
  metrics:
    enabled: false
    listen_address: "127.0.0.1:9091"
  audit:
    enabled: false
`, config.CurrentConfigVersion, serviceName)
}
