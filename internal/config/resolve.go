package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"remote-sync/internal/ignore"
	"remote-sync/internal/util"
)

// Resolver turns a RawConfig into a ServiceConfig. It is recreated
// cheaply and re-run on every GetConfig call because the result depends
// on mutable external state: the SSH config file, environment variables,
// and the active profile.
type Resolver struct {
	WorkspaceRoot string

	// Remotes resolves external remote-definition references. Nil means
	// references are an error.
	Remotes RemoteSource

	// IgnoreFiles caches ignore-file contents; defaults to the shared
	// process-wide cache.
	IgnoreFiles *ignore.FileCache

	// Env looks up environment placeholders; defaults to os.LookupEnv.
	Env func(string) (string, bool)

	// Validator checks the final config. A nil returned error means the
	// config is valid.
	Validator func(*ServiceConfig) error

	Printer *util.SafePrinter
}

// NewResolver creates a Resolver with the default collaborators for a
// workspace root: the workspace remotes.yaml registry, the shared
// ignore-file cache, the process environment, and the built-in validator.
func NewResolver(workspaceRoot string) *Resolver {
	return &Resolver{
		WorkspaceRoot: workspaceRoot,
		Remotes:       NewFileRemoteSource(filepath.Join(workspaceRoot, RemotesFileName)),
		IgnoreFiles:   ignore.SharedFileCache,
		Env:           os.LookupEnv,
		Validator:     ValidateServiceConfig,
		Printer:       util.Default,
	}
}

func (r *Resolver) warnf(format string, args ...interface{}) {
	p := r.Printer
	if p == nil {
		p = util.Default
	}
	p.Printf(format, args...)
}

func (r *Resolver) lookupEnv(name string) (string, bool) {
	if r.Env != nil {
		return r.Env(name)
	}
	return os.LookupEnv(name)
}

// Resolve merges the configuration layers for the given profile name (""
// selects raw.DefaultProfile, if any) and returns the normalized,
// validated ServiceConfig.
//
// Merge order: built-in defaults, the raw config, the active profile,
// the external remote definition, then SSH client config entries for the
// sftp protocol. Later layers fill only keys still undefined, except the
// profile overlay (profile wins) and SSH HostName (always wins).
func (r *Resolver) Resolve(raw *RawConfig, profile string) (*ServiceConfig, error) {
	merged := *raw
	merged.Ignore.Items = append([]string(nil), raw.Ignore.Items...)

	if profile == "" {
		profile = raw.DefaultProfile
	}
	if profile != "" {
		p, ok := raw.Profiles[profile]
		if !ok {
			return nil, configErrorf("unknown profile %q", profile)
		}
		r.overlayProfile(&merged, p)
	}

	if merged.Remote != "" {
		if r.Remotes == nil {
			return nil, configErrorf("config references remote %q but no remote source is available", merged.Remote)
		}
		def, err := r.Remotes.Lookup(merged.Remote)
		if err != nil {
			return nil, err
		}
		applyRemoteDefinition(&merged, def)
	}

	protocol := merged.Protocol
	if protocol == "" {
		protocol = DefaultProtocol
	}
	if protocol == ProtocolSFTP && merged.Host != "" {
		path := merged.SSHConfigPath
		if path == "" {
			path = DefaultSSHConfigPath()
		} else {
			path = r.resolvePath(path)
		}
		r.mergeSSHConfig(&merged, path)
	}

	applyDefaults(&merged)

	return r.finalize(&merged)
}

// overlayProfile applies a named profile onto the base config. Profile
// values win; the ignore lists are concatenated base-then-profile when
// both sides are well-formed lists, otherwise the profile's value
// replaces the base's with a logged warning.
func (r *Resolver) overlayProfile(dst *RawConfig, p *RawConfig) {
	if p.Protocol != "" {
		dst.Protocol = p.Protocol
	}
	if p.Host != "" {
		dst.Host = p.Host
	}
	if p.Port != 0 {
		dst.Port = p.Port
	}
	if p.Username != "" {
		dst.Username = p.Username
	}
	if p.Password != "" {
		dst.Password = p.Password
	}
	if p.PrivateKeyPath != "" {
		dst.PrivateKeyPath = p.PrivateKeyPath
	}
	if p.Passphrase != "" {
		dst.Passphrase = p.Passphrase
	}
	if p.Agent != "" {
		dst.Agent = p.Agent
	}
	if p.ConnectTimeout != 0 {
		dst.ConnectTimeout = p.ConnectTimeout
	}
	if p.KeepaliveInterval != 0 {
		dst.KeepaliveInterval = p.KeepaliveInterval
	}
	if p.Concurrency != 0 {
		dst.Concurrency = p.Concurrency
	}
	if p.RemotePath != "" {
		dst.RemotePath = p.RemotePath
	}
	if p.IgnoreFile != "" {
		dst.IgnoreFile = p.IgnoreFile
	}
	if p.Remote != "" {
		dst.Remote = p.Remote
	}
	if p.SSHConfigPath != "" {
		dst.SSHConfigPath = p.SSHConfigPath
	}
	if p.UploadOnSave != nil {
		dst.UploadOnSave = p.UploadOnSave
	}
	if p.UseTempFile != nil {
		dst.UseTempFile = p.UseTempFile
	}
	if p.DownloadOnOpen != nil {
		dst.DownloadOnOpen = p.DownloadOnOpen
	}
	if p.Watcher != nil {
		dst.Watcher = p.Watcher
	}
	if p.SyncOption != nil {
		dst.SyncOption = p.SyncOption
	}

	if p.Ignore.Defined {
		switch {
		case p.Ignore.Malformed || dst.Ignore.Malformed:
			r.warnf("⚠️  ignore option has inconsistent types across profile merge; replacing base value\n")
			dst.Ignore = StringList{
				Items:   append([]string(nil), p.Ignore.Items...),
				Defined: true,
			}
		default:
			dst.Ignore.Items = append(dst.Ignore.Items, p.Ignore.Items...)
			dst.Ignore.Defined = true
		}
	}
}

// applyRemoteDefinition fills any still-undefined connection key from an
// external remote definition. scheme is renamed to protocol; rootPath is
// dropped.
func applyRemoteDefinition(dst *RawConfig, def *RemoteDefinition) {
	if dst.Protocol == "" {
		dst.Protocol = def.Scheme
	}
	if dst.Host == "" {
		dst.Host = def.Host
	}
	if dst.Port == 0 {
		dst.Port = def.Port
	}
	if dst.Username == "" {
		dst.Username = def.Username
	}
	if dst.Password == "" {
		dst.Password = def.Password
	}
	if dst.PrivateKeyPath == "" {
		dst.PrivateKeyPath = def.PrivateKeyPath
	}
	if dst.Passphrase == "" {
		dst.Passphrase = def.Passphrase
	}
	if dst.ConnectTimeout == 0 {
		dst.ConnectTimeout = def.ConnectTimeout
	}
	if dst.RemotePath == "" {
		dst.RemotePath = def.RemotePath
	}
}

// applyDefaults fills the built-in defaults for keys no other layer set.
// The port default depends on the final protocol and is assigned in
// finalize instead.
func applyDefaults(m *RawConfig) {
	if m.Protocol == "" {
		m.Protocol = DefaultProtocol
	}
	if m.RemotePath == "" {
		m.RemotePath = DefaultRemotePath
	}
	if m.Concurrency == 0 {
		m.Concurrency = DefaultConcurrency
	}
	if m.ConnectTimeout == 0 {
		m.ConnectTimeout = DefaultConnectTimeout
	}
}

// finalize normalizes paths, resolves environment placeholders, assigns
// the protocol-dependent port, compiles the ignore predicate, and runs
// the validator.
func (r *Resolver) finalize(m *RawConfig) (*ServiceConfig, error) {
	cfg := &ServiceConfig{
		Name:       m.Name,
		Protocol:   m.Protocol,
		Host:       m.Host,
		Port:       m.Port,
		Username:   m.Username,
		Password:   m.Password,
		Passphrase: m.Passphrase,
		Agent:      m.Agent,

		ConnectTimeout:    time.Duration(m.ConnectTimeout) * time.Millisecond,
		KeepaliveInterval: time.Duration(m.KeepaliveInterval) * time.Second,
		Concurrency:       m.Concurrency,

		UploadOnSave:   m.UploadOnSave != nil && *m.UploadOnSave,
		UseTempFile:    m.UseTempFile != nil && *m.UseTempFile,
		DownloadOnOpen: m.DownloadOnOpen != nil && *m.DownloadOnOpen,
	}
	if m.Watcher != nil {
		cfg.Watcher = *m.Watcher
	}
	if m.SyncOption != nil {
		cfg.SyncOption = *m.SyncOption
	}

	cfg.LocalPath = r.WorkspaceRoot
	if m.Context != "" {
		cfg.LocalPath = r.resolvePath(m.Context)
	}

	rp := strings.TrimPrefix(m.RemotePath, "./")
	if rp == "" {
		rp = "."
	}
	cfg.RemotePath = rp

	if m.PrivateKeyPath != "" {
		cfg.PrivateKeyPath = r.resolvePath(m.PrivateKeyPath)
	}

	if strings.HasPrefix(m.Agent, "$") {
		name := strings.TrimPrefix(m.Agent, "$")
		v, ok := r.lookupEnv(name)
		if !ok {
			return nil, configErrorf("agent references environment variable %s which is not set", name)
		}
		cfg.Agent = v
	}
	if cfg.Agent != "" && cfg.PrivateKeyPath != "" {
		r.warnf("⚠️  both agent and privateKeyPath are configured; the agent takes precedence\n")
	}

	if cfg.Port == 0 {
		if cfg.Protocol == ProtocolFTP {
			cfg.Port = 21
		} else {
			cfg.Port = 22
		}
	}
	// FTP has no parallel channels; force serial transfers.
	if cfg.Protocol == ProtocolFTP {
		cfg.Concurrency = 1
	}

	patterns := append([]string(nil), m.Ignore.Items...)
	if m.IgnoreFile != "" {
		cache := r.IgnoreFiles
		if cache == nil {
			cache = ignore.SharedFileCache
		}
		lines, err := cache.Lines(r.resolvePath(m.IgnoreFile))
		if err != nil {
			return nil, wrapConfigError("ignore file", err)
		}
		patterns = append(patterns, lines...)
	}
	cfg.IgnorePatterns = patterns
	if len(patterns) > 0 {
		matcher := ignore.Compile(patterns, cfg.LocalPath, cfg.RemotePath)
		cfg.Ignore = matcher.Match
	}

	if r.Validator != nil {
		if err := r.Validator(cfg); err != nil {
			return nil, wrapConfigError("validation failed", err)
		}
	}
	return cfg, nil
}

// resolvePath expands a leading "~" and resolves relative paths against
// the workspace root.
func (r *Resolver) resolvePath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(r.WorkspaceRoot, p)
}
