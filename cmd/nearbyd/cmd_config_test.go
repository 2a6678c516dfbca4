package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDoConfig_BackupThenRollback(t *testing.T) {
	dir := t.TempDir()
	var initOut bytes.Buffer
	if err := doInit([]string{"--dir", dir}, &initOut); err != nil {
		t.Fatalf("doInit: %v", err)
	}
	cfgFile := filepath.Join(dir, "config.yaml")

	var backupOut bytes.Buffer
	if err := doConfig([]string{"backup", "--config", cfgFile}, &backupOut); err != nil {
		t.Fatalf("doConfig backup: %v", err)
	}
	if !strings.Contains(backupOut.String(), "Backed up") {
		t.Errorf("expected backup confirmation, got: %s", backupOut.String())
	}

	original, err := os.ReadFile(cfgFile)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	mutated := strings.Replace(string(original), "mdns_enabled: true", "mdns_enabled: false", 1)
	if err := os.WriteFile(cfgFile, []byte(mutated), 0600); err != nil {
		t.Fatalf("mutate config: %v", err)
	}

	var rollbackOut bytes.Buffer
	if err := doConfig([]string{"rollback", "--config", cfgFile}, &rollbackOut); err != nil {
		t.Fatalf("doConfig rollback: %v", err)
	}
	if !strings.Contains(rollbackOut.String(), "Restored") {
		t.Errorf("expected rollback confirmation, got: %s", rollbackOut.String())
	}

	restored, err := os.ReadFile(cfgFile)
	if err != nil {
		t.Fatalf("read restored config: %v", err)
	}
	if string(restored) != string(original) {
		t.Errorf("rollback did not restore original config contents")
	}
}

func TestDoConfig_RollbackWithoutBackupFails(t *testing.T) {
	dir := t.TempDir()
	var initOut bytes.Buffer
	if err := doInit([]string{"--dir", dir}, &initOut); err != nil {
		t.Fatalf("doInit: %v", err)
	}
	cfgFile := filepath.Join(dir, "config.yaml")

	var out bytes.Buffer
	if err := doConfig([]string{"rollback", "--config", cfgFile}, &out); err == nil {
		t.Error("expected an error rolling back with no prior backup")
	}
}

func TestDoConfig_UnknownSubcommand(t *testing.T) {
	var out bytes.Buffer
	if err := doConfig([]string{"bogus"}, &out); err == nil {
		t.Error("expected an error for an unknown config subcommand")
	}
}

func TestDoConfig_NoArgs(t *testing.T) {
	var out bytes.Buffer
	if err := doConfig(nil, &out); err == nil {
		t.Error("expected an error when no subcommand is given")
	}
}
