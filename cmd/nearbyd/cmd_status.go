package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nearbymesh/nearby/internal/identityserv"
	"github.com/nearbymesh/nearby/internal/settings"
)

func runStatus(args []string) {
	if err := doStatus(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doStatus(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
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
	st, err := settings.Open(cfg.Settings.StateFile)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	fmt.Fprintf(stdout, "Config:        %s\n", cfgFile)
	fmt.Fprintf(stdout, "Author:        %s\n", ident.Author())
	fmt.Fprintf(stdout, "Service name:  %s\n", cfg.Discovery.ServiceName)
	fmt.Fprintf(stdout, "mDNS enabled:  %v\n", cfg.Discovery.IsMDNSEnabled())
	if ns, ok := st.CurrentNearbyNamespace(); ok {
		fmt.Fprintf(stdout, "Active doc:    %s\n", ns)
	} else {
		fmt.Fprintln(stdout, "Active doc:    (none remembered)")
	}
	fmt.Fprintf(stdout, "Share bio:     %v\n", st.ShareNearbyPublicBio())
	return nil
}
