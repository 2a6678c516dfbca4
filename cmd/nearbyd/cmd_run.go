package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/nearbymesh/nearby/internal/audit"
	"github.com/nearbymesh/nearby/internal/identityserv"
	"github.com/nearbymesh/nearby/internal/metrics"
	"github.com/nearbymesh/nearby/internal/nearby"
	"github.com/nearbymesh/nearby/internal/settings"
	"github.com/nearbymesh/nearby/pkg/blobdispatch"
	"github.com/nearbymesh/nearby/pkg/docstore"
	"github.com/nearbymesh/nearby/pkg/peerdesc"
	"github.com/nearbymesh/nearby/pkg/radio"
)

// maxInFlightBlobFetches caps concurrent Blob Dispatcher fetches for the
// standalone daemon.
const maxInFlightBlobFetches = 8

func runRun(args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	if err := doRun(ctx, args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doRun(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
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

	m := metrics.New(version, runtime.Version())
	if cfg.Telemetry.Metrics.Enabled {
		srv := &http.Server{Addr: cfg.Telemetry.Metrics.ListenAddress, Handler: m.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("nearbyd: metrics server failed", "err", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		fmt.Fprintf(stdout, "Metrics:       http://%s/metrics\n", cfg.Telemetry.Metrics.ListenAddress)
	}

	node := docstore.NewMemoryNode()
	dispatcher, err := blobdispatch.New(node.Blobs(), maxInFlightBlobFetches)
	if err != nil {
		return fmt.Errorf("failed to build blob dispatcher: %w", err)
	}
	dispatcher.SetMetrics(m)

	selfUUID := uuid.New()
	var scanner radio.Scanner
	var broadcaster radio.Broadcaster
	if cfg.Discovery.IsMDNSEnabled() {
		adapter := radio.NewMDNS(selfUUID, cfg.Discovery.ScanInterval)
		adapter.Start()
		defer adapter.Close()
		scanner, broadcaster = adapter, adapter
	} else {
		scanner, broadcaster = noopRadio{}, noopRadio{}
	}

	svc := nearby.New(node, scanner, broadcaster, st, ident, dispatcher, logResponder{}, selfUUID)
	svc.SetMetrics(m)
	if cfg.Telemetry.Audit.Enabled {
		svc.SetAudit(audit.New(slog.Default().Handler()))
	}

	fmt.Fprintf(stdout, "nearbyd %s\n", version)
	fmt.Fprintf(stdout, "Author:        %s\n", ident.Author())
	fmt.Fprintf(stdout, "Service name:  %s\n", cfg.Discovery.ServiceName)
	fmt.Fprintf(stdout, "mDNS enabled:  %v\n", cfg.Discovery.IsMDNSEnabled())
	fmt.Fprintln(stdout, "Running. Press Ctrl+C to stop.")

	if err := svc.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	svc.StartScanning()
	svc.SetBroadcasting(true)

	<-ctx.Done()

	if err := svc.Close(); err != nil {
		slog.Warn("nearbyd: close failed", "err", err)
	}
	fmt.Fprintln(stdout, "Stopped.")
	return nil
}

// noopRadio satisfies both radio.Scanner and radio.Broadcaster for a node
// running with mDNS discovery turned off: every method is a deliberate
// no-op rather than nil interfaces the service would have to nil-check.
type noopRadio struct{}

func (noopRadio) StartScanning()                        {}
func (noopRadio) StopScanning()                         {}
func (noopRadio) SetDelegate(d radio.Delegate)          {}
func (noopRadio) Start()                                {}
func (noopRadio) Stop()                                 {}
func (noopRadio) SetDocumentData(data []byte)           {}
func (noopRadio) SetAddressData(data []byte)            {}
func (noopRadio) SetPeerState(state peerdesc.PeerState) {}
