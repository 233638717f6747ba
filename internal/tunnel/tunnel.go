package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/sync/singleflight"
)

var ErrChannelUnavailable = errors.New("channel_unavailable")

type Config struct {
	SSHAddr     string
	SSHUser     string
	SSHPassword string
	KnownHosts  string
	DialTimeout time.Duration
	DatabaseURL string
}

// Channel is the one live path to the backing store: an authenticated
// SSH connection to the bastion and a pgx pool whose connections are
// dialed through it.
type Channel struct {
	SSH  *ssh.Client
	Pool *pgxpool.Pool
}

func (c *Channel) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
	if c.SSH != nil {
		_ = c.SSH.Close()
	}
}

// Manager hands out the shared Channel. The first caller establishes
// it; concurrent callers attach to the same in-flight attempt; later
// callers get the cached handle. A failed attempt caches nothing, so
// the next call starts fresh.
type Manager struct {
	connect func(ctx context.Context) (*Channel, error)

	group   singleflight.Group
	mu      sync.Mutex
	channel *Channel
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		connect: func(ctx context.Context) (*Channel, error) {
			return establish(ctx, cfg)
		},
	}
}

// NewManagerWithConnect swaps the connect primitive, used by tests to
// count establishment attempts.
func NewManagerWithConnect(connect func(ctx context.Context) (*Channel, error)) *Manager {
	return &Manager{connect: connect}
}

func (m *Manager) Get(ctx context.Context) (*Channel, error) {
	m.mu.Lock()
	cached := m.channel
	m.mu.Unlock()

	if cached != nil {
		if cached.Pool == nil || cached.Pool.Ping(ctx) == nil {
			return cached, nil
		}
		// Dead handle: drop it so the attempt below starts fresh.
		m.mu.Lock()
		if m.channel == cached {
			m.channel = nil
		}
		m.mu.Unlock()
		cached.Close()
	}

	value, err, _ := m.group.Do("channel", func() (interface{}, error) {
		m.mu.Lock()
		existing := m.channel
		m.mu.Unlock()
		if existing != nil {
			return existing, nil
		}

		channel, err := m.connect(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
		}

		m.mu.Lock()
		m.channel = channel
		m.mu.Unlock()
		return channel, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Channel), nil
}

func (m *Manager) Close() {
	m.mu.Lock()
	channel := m.channel
	m.channel = nil
	m.mu.Unlock()
	if channel != nil {
		channel.Close()
	}
}

func establish(ctx context.Context, cfg Config) (*Channel, error) {
	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHosts != "" {
		callback, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("known_hosts: %w", err)
		}
		hostKeyCallback = callback
	}

	sshConfig := &ssh.ClientConfig{
		User:            cfg.SSHUser,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.SSHPassword)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.DialTimeout,
	}

	sshClient, err := ssh.Dial("tcp", cfg.SSHAddr, sshConfig)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", cfg.SSHAddr, err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		_ = sshClient.Close()
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.ConnConfig.DialFunc = func(_ context.Context, network, addr string) (net.Conn, error) {
		return sshClient.Dial(network, addr)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		_ = sshClient.Close()
		return nil, fmt.Errorf("pool: %w", err)
	}

	pingCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		_ = sshClient.Close()
		return nil, fmt.Errorf("db handshake: %w", err)
	}

	return &Channel{SSH: sshClient, Pool: pool}, nil
}
