// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if len(cfg.Listeners) != 1 {
		t.Fatalf("expected 1 default listener, got %d", len(cfg.Listeners))
	}
	if cfg.Listeners[0].Family != FamilyIPv4 {
		t.Errorf("expected default family=ipv4, got %s", cfg.Listeners[0].Family)
	}
	if cfg.Listeners[0].Port != 8675 {
		t.Errorf("expected default port=8675, got %d", cfg.Listeners[0].Port)
	}
	if cfg.ServerTimeout != 30*time.Second {
		t.Errorf("expected default server_timeout=30s, got %s", cfg.ServerTimeout)
	}
	if cfg.StoreFirst {
		t.Error("expected store_first=false by default")
	}
}

func TestLoad_RequiresAuditdConfig(t *testing.T) {
	origConfig := os.Getenv("AUDITD_CONFIG")
	defer os.Setenv("AUDITD_CONFIG", origConfig)

	os.Unsetenv("AUDITD_CONFIG")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when AUDITD_CONFIG not set, got nil")
	}

	expectedMsg := "AUDITD_CONFIG environment variable not set"
	if err.Error()[:len(expectedMsg)] != expectedMsg {
		t.Errorf("expected error message to start with %q, got %q", expectedMsg, err.Error())
	}
}

func TestLoad_WithAuditdConfig(t *testing.T) {
	origConfig := os.Getenv("AUDITD_CONFIG")
	defer os.Setenv("AUDITD_CONFIG", origConfig)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "logsrvd.yaml")

	configContent := `
listeners:
  - family: ipv4
    address: 127.0.0.1
    port: 9999
    tls: false
server_timeout: 10s
iolog_dir: ` + tmpDir + `/iolog
journal_dir: ` + tmpDir + `/journal
pid_file: ` + tmpDir + `/logsrvd.pid
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	os.Setenv("AUDITD_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Listeners[0].Port != 9999 {
		t.Errorf("expected port=9999, got %d", cfg.Listeners[0].Port)
	}
	if cfg.ServerTimeout != 10*time.Second {
		t.Errorf("expected server_timeout=10s, got %s", cfg.ServerTimeout)
	}
}

func TestLoadFile_RelayAndStoreFirst(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "logsrvd.yaml")

	configContent := `
listeners:
  - family: ipv4
    address: 0.0.0.0
    port: 8675
    tls: false
relay:
  - address: 10.0.0.1
    port: 8675
    tls: false
store_first: true
iolog_dir: ` + tmpDir + `/iolog
journal_dir: ` + tmpDir + `/journal
pid_file: ` + tmpDir + `/logsrvd.pid
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if len(cfg.Relay) != 1 {
		t.Fatalf("expected 1 relay endpoint, got %d", len(cfg.Relay))
	}
	if cfg.Relay[0].Address != "10.0.0.1" {
		t.Errorf("expected relay address=10.0.0.1, got %s", cfg.Relay[0].Address)
	}
	if !cfg.StoreFirst {
		t.Error("expected store_first=true")
	}
}

func TestLoadFile_StoreFirstWithoutRelayFails(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "logsrvd.yaml")

	configContent := `
listeners:
  - family: ipv4
    address: 0.0.0.0
    port: 8675
    tls: false
store_first: true
iolog_dir: ` + tmpDir + `/iolog
journal_dir: ` + tmpDir + `/journal
pid_file: ` + tmpDir + `/logsrvd.pid
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := LoadFile(configPath); err == nil {
		t.Fatal("expected validation error for store_first without relay")
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/logsrvd",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/logsrvd",
		},
		{
			input:    "${MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "no listeners",
			modify: func(c *Config) {
				c.Listeners = nil
			},
			wantErr: true,
		},
		{
			name: "invalid family",
			modify: func(c *Config) {
				c.Listeners[0].Family = "ipv5"
			},
			wantErr: true,
		},
		{
			name: "invalid port",
			modify: func(c *Config) {
				c.Listeners[0].Port = 0
			},
			wantErr: true,
		},
		{
			name: "tls without cert",
			modify: func(c *Config) {
				c.Listeners[0].TLS = true
			},
			wantErr: true,
		},
		{
			name: "zero server timeout",
			modify: func(c *Config) {
				c.ServerTimeout = 0
			},
			wantErr: true,
		},
		{
			name: "random drop probability out of range",
			modify: func(c *Config) {
				c.RandomDropProbability = 1.5
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnsurePaths(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := Default()
	cfg.IOLogDir = filepath.Join(tmpDir, "iolog")
	cfg.JournalDir = filepath.Join(tmpDir, "journal")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}

	for _, path := range []string{cfg.IOLogDir, cfg.JournalDir} {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("path %s not created: %v", path, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("path %s is not a directory", path)
		}
	}
}

func TestRandomDropFromPercent(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{input: "25", want: 0.25},
		{input: "0", want: 0},
		{input: "100", want: 1.0},
		{input: "-1", wantErr: true},
		{input: "101", wantErr: true},
		{input: "not-a-number", wantErr: true},
	}

	for _, tt := range tests {
		got, err := RandomDropFromPercent(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("RandomDropFromPercent(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("RandomDropFromPercent(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
