package remotefs

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"remote-sync/internal/config"
)

// DialFunc establishes an SSH connection for a resolved config. It
// exists so tests can substitute the network.
type DialFunc func(ctx context.Context, cfg *config.ServiceConfig) (*ssh.Client, error)

// Pool shares SSH connections across services, keyed by host identity
// (user@host:port). Two simultaneous requests for the same host never
// race to open duplicate connections: the first caller dials while the
// others wait on the entry.
type Pool struct {
	dial DialFunc

	mu    sync.Mutex
	conns map[string]*poolEntry
}

type poolEntry struct {
	ready  chan struct{}
	client *ssh.Client
	err    error
}

// NewPool creates a Pool using the default SSH dialer.
func NewPool() *Pool {
	return NewPoolWithDialer(DialSSH)
}

// NewPoolWithDialer creates a Pool with a custom dialer.
func NewPoolWithDialer(dial DialFunc) *Pool {
	return &Pool{dial: dial, conns: map[string]*poolEntry{}}
}

// Get returns the shared connection for cfg's host identity, dialing it
// on first use. Concurrent callers for the same key share one dial.
func (p *Pool) Get(ctx context.Context, cfg *config.ServiceConfig) (*ssh.Client, error) {
	key := cfg.HostKey()

	p.mu.Lock()
	e, ok := p.conns[key]
	if !ok {
		e = &poolEntry{ready: make(chan struct{})}
		p.conns[key] = e
		p.mu.Unlock()

		e.client, e.err = p.dial(ctx, cfg)
		if e.err != nil {
			p.mu.Lock()
			delete(p.conns, key)
			p.mu.Unlock()
		}
		close(e.ready)
		return e.client, e.err
	}
	p.mu.Unlock()

	select {
	case <-e.ready:
		return e.client, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Forget closes and drops the connection for the given host key, if any.
func (p *Pool) Forget(key string) {
	p.mu.Lock()
	e, ok := p.conns[key]
	if ok {
		delete(p.conns, key)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	<-e.ready
	if e.client != nil {
		_ = e.client.Close()
	}
}

// Close tears down every pooled connection.
func (p *Pool) Close() {
	p.mu.Lock()
	conns := p.conns
	p.conns = map[string]*poolEntry{}
	p.mu.Unlock()
	for _, e := range conns {
		<-e.ready
		if e.client != nil {
			_ = e.client.Close()
		}
	}
}

// DialSSH opens an SSH connection from a resolved config. Auth methods
// are tried in order: agent socket, private key, password. The agent
// takes precedence over the private key when both are configured.
func DialSSH(ctx context.Context, cfg *config.ServiceConfig) (*ssh.Client, error) {
	var methods []ssh.AuthMethod

	if cfg.Agent != "" {
		sock, err := net.Dial("unix", cfg.Agent)
		if err != nil {
			return nil, fmt.Errorf("unable to reach ssh agent at %s: %w", cfg.Agent, err)
		}
		methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(sock).Signers))
	} else if cfg.PrivateKeyPath != "" {
		key, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read private key: %w", err)
		}
		var signer ssh.Signer
		if cfg.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(cfg.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(key)
		}
		if err != nil {
			return nil, fmt.Errorf("unable to parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("no auth method configured for %s", cfg.HostKey())
	}

	clientConfig := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.ConnectTimeout,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	d := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	return ssh.NewClient(c, chans, reqs), nil
}
