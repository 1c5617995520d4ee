package config

import (
	"os"
	"path/filepath"
	"strconv"

	ssh_config "github.com/kevinburke/ssh_config"
)

// DefaultSSHConfigPath returns ~/.ssh/config, the file consulted when the
// config does not name its own SSH client config.
func DefaultSSHConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "config")
}

// mergeSSHConfig overlays values from the Host block matching the
// currently resolved host. HostName overwrites the host unconditionally;
// every other key is applied only if still undefined. An unreadable or
// unparsable file degrades to the previous layer's result with a warning.
func (r *Resolver) mergeSSHConfig(merged *RawConfig, path string) {
	if path == "" {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		r.warnf("⚠️  cannot read SSH config %s: %v\n", path, err)
		return
	}
	defer f.Close()

	cfg, err := ssh_config.Decode(f)
	if err != nil {
		r.warnf("⚠️  cannot parse SSH config %s: %v\n", path, err)
		return
	}

	alias := merged.Host
	// get returns the configured value for our host alias, filtering out
	// the library's built-in per-key defaults so they cannot masquerade
	// as an explicit user setting.
	get := func(key string) string {
		v, err := cfg.Get(alias, key)
		if err != nil || v == "" || v == ssh_config.Default(key) {
			return ""
		}
		return v
	}

	if v := get("HostName"); v != "" {
		merged.Host = v
	}
	if merged.Username == "" {
		merged.Username = get("User")
	}
	if merged.PrivateKeyPath == "" {
		merged.PrivateKeyPath = get("IdentityFile")
	}
	if merged.Port == 0 {
		if v := get("Port"); v != "" {
			if port, err := strconv.Atoi(v); err == nil {
				merged.Port = port
			}
		}
	}
	if merged.ConnectTimeout == 0 {
		if v := get("ConnectTimeout"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil {
				merged.ConnectTimeout = secs * 1000
			}
		}
	}
	if merged.KeepaliveInterval == 0 {
		if v := get("ServerAliveInterval"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil {
				merged.KeepaliveInterval = secs
			}
		}
	}
}
