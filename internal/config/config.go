package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ConfigFileName is the fixed name of the per-workspace configuration file.
const ConfigFileName = "remote-sync.json"

// Protocols understood by the transfer layer.
const (
	ProtocolSFTP  = "sftp"
	ProtocolFTP   = "ftp"
	ProtocolLocal = "local"
)

// Built-in defaults applied to any key left undefined by every other layer.
const (
	DefaultRemotePath     = "./"
	DefaultConcurrency    = 4
	DefaultConnectTimeout = 10000 // milliseconds
	DefaultProtocol       = ProtocolSFTP
)

// WatcherConfig configures filesystem-change monitoring for a workspace.
type WatcherConfig struct {
	Files      string `json:"files"`
	AutoUpload bool   `json:"autoUpload"`
	AutoDelete bool   `json:"autoDelete"`
}

// SyncOption tunes folder synchronization behavior.
type SyncOption struct {
	Delete         bool `json:"delete"`
	SkipCreate     bool `json:"skipCreate"`
	IgnoreExisting bool `json:"ignoreExisting"`
	Update         bool `json:"update"`
}

// StringList is a JSON string array that tolerates a malformed value.
// A wrong-typed value is recorded as malformed instead of failing the
// whole config decode, so merging can degrade with a warning.
type StringList struct {
	Items     []string
	Defined   bool
	Malformed bool
}

func (l *StringList) UnmarshalJSON(data []byte) error {
	l.Defined = true
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		l.Malformed = true
		l.Items = nil
		return nil
	}
	l.Items = items
	return nil
}

func (l StringList) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Items)
}

// RawConfig is the user-authored configuration layer as read from
// remote-sync.json. Zero values mean "undefined" for merge purposes;
// boolean flags use pointers so false remains distinguishable from unset.
type RawConfig struct {
	Name    string `json:"name"`
	Context string `json:"context"`

	Protocol       string `json:"protocol"`
	Host           string `json:"host"`
	Port           int    `json:"port"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	PrivateKeyPath string `json:"privateKeyPath"`
	Passphrase     string `json:"passphrase"`
	Agent          string `json:"agent"`

	ConnectTimeout    int `json:"connectTimeout"` // milliseconds
	KeepaliveInterval int `json:"keepaliveInterval"`
	Concurrency       int `json:"concurrency"`

	RemotePath string     `json:"remotePath"`
	Ignore     StringList `json:"ignore"`
	IgnoreFile string     `json:"ignoreFile"`

	UploadOnSave   *bool `json:"uploadOnSave"`
	UseTempFile    *bool `json:"useTempFile"`
	DownloadOnOpen *bool `json:"downloadOnOpen"`

	Watcher    *WatcherConfig `json:"watcher"`
	SyncOption *SyncOption    `json:"syncOption"`

	// Remote names an externally defined remote (remotes.yaml entry)
	// whose connection fields fill any key left undefined here.
	Remote string `json:"remote"`

	// SSHConfigPath overrides the SSH client config consulted for sftp.
	SSHConfigPath string `json:"sshConfigPath"`

	Profiles       map[string]*RawConfig `json:"profiles"`
	DefaultProfile string                `json:"defaultProfile"`
}

// ServiceConfig is the fully merged, normalized configuration handed to
// filesystem and transfer collaborators. Every field required downstream
// is present and typed; Ignore is nil or a pure predicate over absolute
// paths.
type ServiceConfig struct {
	Name     string
	Protocol string
	Host     string
	Port     int

	Username       string
	Password       string
	PrivateKeyPath string
	Passphrase     string
	Agent          string

	ConnectTimeout    time.Duration
	KeepaliveInterval time.Duration
	Concurrency       int

	LocalPath  string
	RemotePath string

	UploadOnSave   bool
	UseTempFile    bool
	DownloadOnOpen bool

	Watcher    WatcherConfig
	SyncOption SyncOption

	IgnorePatterns []string
	Ignore         func(path string) bool
}

// HostKey identifies the remote endpoint for connection pooling.
func (c *ServiceConfig) HostKey() string {
	return fmt.Sprintf("%s@%s:%d", c.Username, c.Host, c.Port)
}

// ConfigExists reports whether root contains a remote-sync.json.
func ConfigExists(root string) bool {
	_, err := os.Stat(filepath.Join(root, ConfigFileName))
	return !os.IsNotExist(err)
}

// Load reads the workspace config file under root. The file may hold a
// single object or an array of objects (one per declared remote); unknown
// keys are tolerated.
func Load(root string) ([]*RawConfig, error) {
	data, err := os.ReadFile(filepath.Join(root, ConfigFileName))
	if err != nil {
		return nil, wrapConfigError("failed to read "+ConfigFileName, err)
	}
	return Parse(data)
}

// Parse decodes a config document that is either one RawConfig object or
// an array of them.
func Parse(data []byte) ([]*RawConfig, error) {
	var many []*RawConfig
	if err := json.Unmarshal(data, &many); err == nil {
		return many, nil
	}
	var one RawConfig
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, wrapConfigError("failed to parse "+ConfigFileName, err)
	}
	return []*RawConfig{&one}, nil
}

// ProfileNames returns the declared profile names in sorted-stable order.
func (c *RawConfig) ProfileNames() []string {
	if len(c.Profiles) == 0 {
		return nil
	}
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
