// Package listing fetches raw, ordered entry names from remote locations:
// FTP name listings and the hyperlinks of HTML index pages.
package listing

import (
	"context"
	"errors"
	"net"
	"time"
)

var (
	// ErrConnection means no session could be established with the server.
	ErrConnection = errors.New("connection failed")
	// ErrTimeout means a session was established but the listing did not
	// complete in time.
	ErrTimeout = errors.New("listing timed out")
	// ErrEmptyListing means the remote location returned no entries.
	ErrEmptyListing = errors.New("empty listing")
	// ErrRemote means the server answered but refused the request, for
	// example a missing directory or page.
	ErrRemote = errors.New("remote request refused")
)

// DefaultTimeout bounds a single listing request.
const DefaultTimeout = 30 * time.Second

// Lister returns the raw entry names found at path, in remote order.
type Lister interface {
	List(ctx context.Context, path string) ([]string, error)
}

// Session is a Lister bound to one live connection. Paths passed to List and
// ChangeDir may be absolute or relative to the current directory.
type Session interface {
	Lister
	ChangeDir(ctx context.Context, path string) error
	Close() error
}

// Opener opens a Session against server. The resolver opens exactly one
// session per resolution call and closes it when done.
type Opener func(ctx context.Context, server string) (Session, error)

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
