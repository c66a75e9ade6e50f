package listing

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/open-edge-platform/iso-manager/internal/utils/logger"
)

const (
	ftpPort       = "21"
	anonymousUser = "anonymous"
	anonymousPass = "anonymous"
)

// ftpConn is the subset of *ftp.ServerConn used for listings.
type ftpConn interface {
	Login(user, password string) error
	ChangeDir(path string) error
	NameList(path string) ([]string, error)
	Quit() error
}

// dialFTP is swapped out in tests.
var dialFTP = func(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error) {
	return ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(timeout))
}

// FTP is an anonymous, read-only FTP session.
type FTP struct {
	server  string
	conn    ftpConn
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

// FTPOpener returns an Opener that dials anonymous FTP sessions. A zero
// timeout uses DefaultTimeout.
func FTPOpener(timeout time.Duration) Opener {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return func(ctx context.Context, server string) (Session, error) {
		return OpenFTP(ctx, server, timeout)
	}
}

// OpenFTP connects to server and logs in anonymously.
func OpenFTP(ctx context.Context, server string, timeout time.Duration) (*FTP, error) {
	log := logger.Logger()

	addr := server
	if _, _, err := net.SplitHostPort(server); err != nil {
		addr = net.JoinHostPort(server, ftpPort)
	}

	log.Debugf("dialing ftp://%s", addr)
	conn, err := dialFTP(ctx, addr, timeout)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: dialing %s: %v", ErrConnection, addr, err)
	}
	if err := conn.Login(anonymousUser, anonymousPass); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("%w: anonymous login to %s: %v", ErrConnection, server, err)
	}

	return &FTP{server: server, conn: conn, timeout: timeout}, nil
}

// ChangeDir changes the working directory of the session.
func (f *FTP) ChangeDir(ctx context.Context, dir string) error {
	err := f.withDeadline(ctx, func() error { return f.conn.ChangeDir(dir) })
	if err != nil {
		return f.wrap(ctx, "changing directory to "+dir, err)
	}
	return nil
}

// List changes into dir (when not empty) and returns its name listing.
func (f *FTP) List(ctx context.Context, dir string) ([]string, error) {
	if dir != "" {
		if err := f.ChangeDir(ctx, dir); err != nil {
			return nil, err
		}
	}

	var names []string
	err := f.withDeadline(ctx, func() error {
		var err error
		names, err = f.conn.NameList("")
		return err
	})
	if err != nil {
		return nil, f.wrap(ctx, "listing "+dir, err)
	}

	entries := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		entries = append(entries, path.Base(n))
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: ftp://%s/%s", ErrEmptyListing, f.server, strings.TrimPrefix(dir, "/"))
	}
	return entries, nil
}

// Close ends the session. It does nothing when a timeout already dropped
// the connection.
func (f *FTP) Close() error {
	return f.quit()
}

func (f *FTP) quit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.conn.Quit()
}

func (f *FTP) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// withDeadline runs op and gives up once ctx is done or the session timeout
// elapses. The connection is closed on timeout so op returns promptly.
func (f *FTP) withDeadline(ctx context.Context, op func() error) error {
	if f.isClosed() {
		return fmt.Errorf("session to %s is closed", f.server)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- op() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = f.quit()
		return ctx.Err()
	}
}

// wrap classifies a failure on an established session. Cancellation of the
// caller's context is returned as is.
func (f *FTP) wrap(ctx context.Context, what string, err error) error {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return ctx.Err()
	}
	if isTimeout(err) {
		return fmt.Errorf("%w: %s on %s: %v", ErrTimeout, what, f.server, err)
	}
	var reply *textproto.Error
	if errors.As(err, &reply) {
		return fmt.Errorf("%w: %s on %s: %v", ErrRemote, what, f.server, err)
	}
	return fmt.Errorf("%s on %s: %w", what, f.server, err)
}
