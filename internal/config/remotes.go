package config

import (
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// RemotesFileName is the registry of externally defined remotes, a YAML
// mapping of name → definition kept under the workspace root.
const RemotesFileName = "remotes.yaml"

// RemoteDefinition is an externally managed remote endpoint. Scheme maps
// onto the config's protocol field; RootPath is a mount detail of the
// defining tool and is never merged.
type RemoteDefinition struct {
	Scheme         string `yaml:"scheme"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	PrivateKeyPath string `yaml:"privateKeyPath"`
	Passphrase     string `yaml:"passphrase"`
	ConnectTimeout int    `yaml:"connectTimeout"`
	RemotePath     string `yaml:"remotePath"`
	RootPath       string `yaml:"rootPath"`
}

// RemoteSource resolves a remote name to its definition.
type RemoteSource interface {
	Lookup(name string) (*RemoteDefinition, error)
}

// FileRemoteSource reads remote definitions from a YAML registry file.
// The file is parsed once, on first lookup.
type FileRemoteSource struct {
	Path string

	once sync.Once
	defs map[string]*RemoteDefinition
	err  error
}

// NewFileRemoteSource creates a source backed by the registry at path.
func NewFileRemoteSource(path string) *FileRemoteSource {
	return &FileRemoteSource{Path: path}
}

func (s *FileRemoteSource) load() {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		s.err = wrapConfigError("failed to read remote definitions "+s.Path, err)
		return
	}
	defs := map[string]*RemoteDefinition{}
	if err := yaml.Unmarshal(data, &defs); err != nil {
		s.err = wrapConfigError("failed to parse remote definitions "+s.Path, err)
		return
	}
	s.defs = defs
}

// Lookup returns the definition registered under name, or a ConfigError
// when the registry or the entry is missing.
func (s *FileRemoteSource) Lookup(name string) (*RemoteDefinition, error) {
	s.once.Do(s.load)
	if s.err != nil {
		return nil, s.err
	}
	def, ok := s.defs[name]
	if !ok {
		return nil, configErrorf("remote %q is not defined in %s", name, s.Path)
	}
	return def, nil
}
