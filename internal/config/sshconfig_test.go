package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSSHConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "ssh_config")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSSHConfigMerge(t *testing.T) {
	dir := t.TempDir()
	path := writeSSHConfig(t, dir, `
Host dev.example.com
    HostName 10.0.0.5
    User sshuser
    Port 2222
    IdentityFile /keys/dev_ed25519
    ConnectTimeout 3
    ServerAliveInterval 15
`)
	r := testResolver(t, dir)

	raw := &RawConfig{
		Host:          "dev.example.com",
		SSHConfigPath: path,
	}

	cfg, err := r.Resolve(raw, "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.Host != "10.0.0.5" {
		t.Errorf("HostName must overwrite the host, got %q", cfg.Host)
	}
	if cfg.Username != "sshuser" {
		t.Errorf("User should fill undefined username, got %q", cfg.Username)
	}
	if cfg.Port != 2222 {
		t.Errorf("Port should fill undefined port, got %d", cfg.Port)
	}
	if cfg.PrivateKeyPath != "/keys/dev_ed25519" {
		t.Errorf("IdentityFile should fill undefined key path, got %q", cfg.PrivateKeyPath)
	}
	if cfg.ConnectTimeout != 3*time.Second {
		t.Errorf("ConnectTimeout seconds should convert, got %s", cfg.ConnectTimeout)
	}
	if cfg.KeepaliveInterval != 15*time.Second {
		t.Errorf("ServerAliveInterval should fill keepalive, got %s", cfg.KeepaliveInterval)
	}
}

func TestSSHConfigDoesNotOverwriteDefined(t *testing.T) {
	dir := t.TempDir()
	path := writeSSHConfig(t, dir, `
Host dev.example.com
    User sshuser
    Port 2222
`)
	r := testResolver(t, dir)

	raw := &RawConfig{
		Host:          "dev.example.com",
		Username:      "deploy",
		Port:          8022,
		SSHConfigPath: path,
	}

	cfg, err := r.Resolve(raw, "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.Username != "deploy" {
		t.Errorf("defined username overwritten: %q", cfg.Username)
	}
	if cfg.Port != 8022 {
		t.Errorf("defined port overwritten: %d", cfg.Port)
	}
}

func TestSSHConfigMatchedByOriginalAlias(t *testing.T) {
	dir := t.TempDir()
	path := writeSSHConfig(t, dir, `
Host shortname
    HostName real.example.com
    User sshuser
`)
	r := testResolver(t, dir)

	raw := &RawConfig{
		Host:          "shortname",
		SSHConfigPath: path,
	}

	cfg, err := r.Resolve(raw, "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.Host != "real.example.com" {
		t.Errorf("alias not expanded, got %q", cfg.Host)
	}
	if cfg.Username != "sshuser" {
		t.Errorf("user must come from the alias block, got %q", cfg.Username)
	}
}

func TestSSHConfigLibraryDefaultsFiltered(t *testing.T) {
	dir := t.TempDir()
	// the Host block sets nothing, so only library defaults would apply
	path := writeSSHConfig(t, dir, `
Host dev.example.com
`)
	r := testResolver(t, dir)

	raw := &RawConfig{
		Host:          "dev.example.com",
		Username:      "deploy",
		SSHConfigPath: path,
	}

	cfg, err := r.Resolve(raw, "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.PrivateKeyPath != "" {
		t.Errorf("library default identity file leaked in: %q", cfg.PrivateKeyPath)
	}
	if cfg.Port != 22 {
		t.Errorf("port should come from the protocol default, got %d", cfg.Port)
	}
}

func TestSSHConfigUnreadableDegrades(t *testing.T) {
	dir := t.TempDir()
	r := testResolver(t, dir)

	raw := &RawConfig{
		Host:          "dev.example.com",
		Username:      "deploy",
		SSHConfigPath: filepath.Join(dir, "missing"),
	}

	cfg, err := r.Resolve(raw, "")
	if err != nil {
		t.Fatalf("missing SSH config must not be fatal: %v", err)
	}
	if cfg.Host != "dev.example.com" {
		t.Fatalf("host changed despite missing file: %q", cfg.Host)
	}
}
