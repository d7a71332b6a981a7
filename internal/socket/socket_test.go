package socket_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/lc/rbl/internal/socket"
)

type SocketTestSuite struct {
	suite.Suite
	sockPath string
	procs    *fakeProcs
	sock     *socket.Socket
}

type fakeProcs struct {
	running bool
	asked   []string
}

func (f *fakeProcs) Running(name string) bool {
	f.asked = append(f.asked, name)
	return f.running
}

func (s *SocketTestSuite) SetupTest() {
	// Unix socket paths are length limited; keep them short.
	dir, err := os.MkdirTemp("", "rbl-")
	s.Require().NoError(err)
	s.T().Cleanup(func() { os.RemoveAll(dir) })

	s.sockPath = filepath.Join(dir, "run", "rbld.sock")
	s.procs = &fakeProcs{running: true}
	s.sock = socket.New(s.options(500*time.Millisecond), s.procs)
}

func (s *SocketTestSuite) options(timeout time.Duration) socket.Options {
	opts := socket.DefaultOptions()
	opts.StartupTimeout = timeout
	opts.RetryInterval = 50 * time.Millisecond
	return opts
}

func (s *SocketTestSuite) serve(l net.Listener) {
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
}

func (s *SocketTestSuite) TestDefaultOptions() {
	opts := socket.DefaultOptions()

	s.Equal(5*time.Second, opts.StartupTimeout)
	s.Equal(250*time.Millisecond, opts.RetryInterval)
	s.Equal("rbld", opts.ProcessName)
	s.Contains([]os.FileMode{0o666, 0o600}, opts.Permissions)
}

func (s *SocketTestSuite) TestListen() {
	l, err := s.sock.Listen(s.sockPath)
	s.Require().NoError(err)
	defer l.Close()

	fi, err := os.Stat(s.sockPath)
	s.Require().NoError(err)
	s.Equal(os.ModeSocket, fi.Mode().Type())
	s.Equal(socket.DefaultOptions().Permissions, fi.Mode().Perm())
}

func (s *SocketTestSuite) TestListenAddressInUse() {
	l, err := s.sock.Listen(s.sockPath)
	s.Require().NoError(err)
	defer l.Close()
	s.serve(l)

	_, err = s.sock.Listen(s.sockPath)
	s.ErrorIs(err, socket.ErrAddressInUse)
}

func (s *SocketTestSuite) TestListenReplacesStaleSocket() {
	s.Require().NoError(os.MkdirAll(filepath.Dir(s.sockPath), 0o755))
	s.Require().NoError(os.WriteFile(s.sockPath, nil, 0o600))

	l, err := s.sock.Listen(s.sockPath)
	s.Require().NoError(err)
	l.Close()
}

func (s *SocketTestSuite) TestListenDirectoryError() {
	parent := filepath.Dir(filepath.Dir(s.sockPath))
	s.Require().NoError(os.WriteFile(filepath.Join(parent, "run"), []byte("blocking"), 0o644))

	_, err := s.sock.Listen(s.sockPath)
	s.ErrorContains(err, "creating socket directory")
}

func (s *SocketTestSuite) TestDial() {
	l, err := s.sock.Listen(s.sockPath)
	s.Require().NoError(err)
	defer l.Close()
	s.serve(l)

	conn, err := s.sock.Dial(context.Background(), s.sockPath)
	s.Require().NoError(err)
	conn.Close()
}

func (s *SocketTestSuite) TestDialNotRunning() {
	s.procs.running = false

	start := time.Now()
	_, err := s.sock.Dial(context.Background(), s.sockPath)
	s.ErrorIs(err, socket.ErrNotRunning)
	s.GreaterOrEqual(time.Since(start), 500*time.Millisecond, "retries through the startup timeout")
}

func (s *SocketTestSuite) TestDialCancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.sock.Dial(ctx, s.sockPath)
	s.ErrorIs(err, context.Canceled)
}

func (s *SocketTestSuite) TestDialWaitsForListener() {
	s.sock = socket.New(s.options(2*time.Second), s.procs)
	start := time.Now()

	go func() {
		time.Sleep(500 * time.Millisecond)
		l, err := socket.New(s.options(time.Second), nil).Listen(s.sockPath)
		if err != nil {
			return
		}
		s.T().Cleanup(func() { l.Close() })
		s.serve(l)
	}()

	conn, err := s.sock.Dial(context.Background(), s.sockPath)
	elapsed := time.Since(start)

	s.Require().NoError(err)
	conn.Close()
	s.GreaterOrEqual(elapsed, 500*time.Millisecond)
	s.Less(elapsed, 2*time.Second)
}

func TestSocketSuite(t *testing.T) {
	suite.Run(t, new(SocketTestSuite))
}
