// Package socket connects the rbl CLI to the rbld daemon over a Unix domain
// socket.
package socket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/lc/rbl/internal/log"
)

var (
	// ErrAddressInUse is returned by Listen when another daemon already serves the socket.
	ErrAddressInUse = errors.New("address already in use")
	// ErrNotRunning is returned by Dial when the daemon cannot be reached.
	ErrNotRunning = errors.New("rbld not running")
)

// DaemonName is the executable name of the daemon.
const DaemonName = "rbld"

// startupGrace is how long Dial keeps retrying without asking whether the
// daemon process exists, so a daemon started alongside the CLI can come up.
const startupGrace = 2 * time.Second

// Options controls dialing and listening.
type Options struct {
	// StartupTimeout bounds how long Dial keeps retrying.
	StartupTimeout time.Duration
	// RetryInterval is the pause between dial attempts.
	RetryInterval time.Duration
	// Permissions is applied to the socket file by Listen.
	Permissions os.FileMode
	// ProcessName is the daemon executable Dial looks for while retrying.
	ProcessName string
}

// DefaultOptions returns the options used by the package-level helpers.
func DefaultOptions() Options {
	return Options{
		StartupTimeout: 5 * time.Second,
		RetryInterval:  250 * time.Millisecond,
		Permissions:    defaultPermissions(),
		ProcessName:    DaemonName,
	}
}

// Socket dials and listens on daemon sockets.
type Socket struct {
	opts    Options
	procs   ProcessChecker
	created time.Time
}

// New creates a Socket. procs may be nil, in which case Dial retries until
// StartupTimeout without consulting the process table.
func New(opts Options, procs ProcessChecker) *Socket {
	return &Socket{
		opts:    opts,
		procs:   procs,
		created: time.Now(),
	}
}

// Dial connects to the daemon at path with DefaultOptions.
func Dial(ctx context.Context, path string) (net.Conn, error) {
	return New(DefaultOptions(), NewProcessChecker()).Dial(ctx, path)
}

// Listen listens on path with DefaultOptions.
func Listen(path string) (net.Listener, error) {
	return New(DefaultOptions(), NewProcessChecker()).Listen(path)
}

// Dial connects to path, retrying while the daemon may still be starting.
// Once StartupTimeout has passed, or the daemon process is known to be
// absent, it gives up with ErrNotRunning.
func (s *Socket) Dial(ctx context.Context, path string) (net.Conn, error) {
	deadline := time.Now().Add(s.opts.StartupTimeout)
	var d net.Dialer

	for {
		conn, err := d.DialContext(ctx, "unix", path)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !s.retry(deadline) {
			return nil, fmt.Errorf("%w: %v", ErrNotRunning, err)
		}
		log.Debug("socket: retrying dial", "path", path, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.opts.RetryInterval):
		}
	}
}

// Listen creates the socket at path. A stale socket file left behind by a
// dead daemon is replaced; a live one yields ErrAddressInUse.
func (s *Socket) Listen(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating socket directory: %w", err)
	}
	if err := removeStale(path); err != nil {
		return nil, err
	}

	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("creating socket listener: %w", err)
	}
	if err := os.Chmod(path, s.opts.Permissions); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("setting socket permissions: %w", err)
	}

	log.Debug("socket: listening", "path", path, "mode", s.opts.Permissions)
	return l, nil
}

func (s *Socket) retry(deadline time.Time) bool {
	if time.Now().After(deadline) {
		return false
	}
	if time.Since(s.created) < startupGrace || s.procs == nil {
		return true
	}
	return s.procs.Running(s.opts.ProcessName)
}

func removeStale(path string) error {
	if conn, err := net.Dial("unix", path); err == nil {
		_ = conn.Close()
		return ErrAddressInUse
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket: %w", err)
	}
	return nil
}

// The socket is world-writable only where peer credentials are available.
func defaultPermissions() os.FileMode {
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd":
		return 0o666
	}
	return 0o600
}
