package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
)

// Set via -ldflags at build time:
//
//	go build -ldflags "-X main.version=0.1.0 -X main.commit=$(git rev-parse --short HEAD) -X main.buildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)" -o nearbyd ./cmd/nearbyd
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if len(os.Args) < 2 {
		printUsage()
		osExit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "run":
		runRun(os.Args[2:])
	case "whoami":
		runWhoami(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "config":
		runConfig(os.Args[2:])
	case "version", "--version":
		printVersion()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		osExit(1)
	}
}

func printVersion() {
	fmt.Printf("nearbyd %s (%s) built %s\n", version, commit, buildDate)
	fmt.Printf("Go %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func printUsage() {
	fmt.Println("Usage: nearbyd <command> [options]")
	fmt.Println()
	fmt.Println("  init                      Set up nearbyd configuration and identity")
	fmt.Println("  run [--config path]       Run the nearby-gossip core in the foreground")
	fmt.Println("  whoami [--config path]    Show your derived author id")
	fmt.Println("  status [--config path]    Show local config and identity")
	fmt.Println("  config backup             Save a known-good copy of the config file")
	fmt.Println("  config rollback           Restore the config file from its last backup")
	fmt.Println("  version                   Show version information")
	fmt.Println()
	fmt.Println("run, whoami, status and config accept --config <path> to specify a config file.")
	fmt.Println("Without --config, nearbyd searches: ./nearbyd.yaml, ~/.config/nearbyd/config.yaml, /etc/nearbyd/config.yaml")
	fmt.Println()
	fmt.Println("Get started:  nearbyd init")
}
