package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// captureExit overrides the package-level osExit variable so calls to
// osExit inside fn are intercepted instead of terminating the test binary.
func captureExit(fn func()) (code int, exited bool) {
	old := osExit
	defer func() { osExit = old }()

	osExit = func(c int) {
		panic(exitSentinel(c))
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				if s, ok := r.(exitSentinel); ok {
					code = int(s)
					exited = true
				} else {
					panic(r)
				}
			}
		}()
		fn()
	}()
	return code, exited
}

func TestDoInit_WritesConfigAndIdentity(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	if err := doInit([]string{"--dir", dir, "--service-name", "_test._udp"}, &out); err != nil {
		t.Fatalf("doInit: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("config.yaml not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "identity.key")); err != nil {
		t.Errorf("identity.key not written: %v", err)
	}
	if !strings.Contains(out.String(), "Your author id:") {
		t.Errorf("expected author id in output, got: %s", out.String())
	}
}

func TestDoInit_RefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	if err := doInit([]string{"--dir", dir}, &out); err != nil {
		t.Fatalf("first doInit: %v", err)
	}
	if err := doInit([]string{"--dir", dir}, &out); err == nil {
		t.Error("expected error reinitializing an existing config directory")
	}
}

func TestDoWhoami_MatchesInitAuthor(t *testing.T) {
	dir := t.TempDir()
	var initOut bytes.Buffer
	if err := doInit([]string{"--dir", dir}, &initOut); err != nil {
		t.Fatalf("doInit: %v", err)
	}

	cfgFile := filepath.Join(dir, "config.yaml")
	var whoamiOut bytes.Buffer
	if err := doWhoami([]string{"--config", cfgFile}, &whoamiOut); err != nil {
		t.Fatalf("doWhoami: %v", err)
	}

	author := strings.TrimSpace(whoamiOut.String())
	if author == "" {
		t.Fatal("doWhoami printed nothing")
	}
	if !strings.Contains(initOut.String(), author) {
		t.Errorf("whoami author %q not found in init output %q", author, initOut.String())
	}
}

func TestDoStatus_ReportsFreshNode(t *testing.T) {
	dir := t.TempDir()
	var initOut bytes.Buffer
	if err := doInit([]string{"--dir", dir}, &initOut); err != nil {
		t.Fatalf("doInit: %v", err)
	}

	cfgFile := filepath.Join(dir, "config.yaml")
	var statusOut bytes.Buffer
	if err := doStatus([]string{"--config", cfgFile}, &statusOut); err != nil {
		t.Fatalf("doStatus: %v", err)
	}

	got := statusOut.String()
	if !strings.Contains(got, "(none remembered)") {
		t.Errorf("expected a fresh node to report no remembered document, got: %s", got)
	}
	if !strings.Contains(got, "mDNS enabled:  true") {
		t.Errorf("expected mDNS enabled by default, got: %s", got)
	}
}

func TestDoRun_InitializesAndStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	var initOut bytes.Buffer
	if err := doInit([]string{"--dir", dir, "--service-name", "_test._udp"}, &initOut); err != nil {
		t.Fatalf("doInit: %v", err)
	}

	// Disable mDNS so the test never touches the network.
	cfgFile := filepath.Join(dir, "config.yaml")
	data, err := os.ReadFile(cfgFile)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	disabled := strings.Replace(string(data), "mdns_enabled: true", "mdns_enabled: false", 1)
	if err := os.WriteFile(cfgFile, []byte(disabled), 0600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var runOut bytes.Buffer
	if err := doRun(ctx, []string{"--config", cfgFile}, &runOut); err != nil {
		t.Fatalf("doRun: %v", err)
	}
	if !strings.Contains(runOut.String(), "Stopped.") {
		t.Errorf("expected graceful stop message, got: %s", runOut.String())
	}
}

func TestMain_UnknownCommandExits1(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"nearbyd", "bogus"}

	code, exited := captureExit(func() {
		main()
	})
	if !exited || code != 1 {
		t.Errorf("expected exit(1), got exited=%v code=%d", exited, code)
	}
}
