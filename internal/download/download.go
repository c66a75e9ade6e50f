// Package download runs image downloads on a bounded pool of workers.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/open-edge-platform/iso-manager/internal/utils/file"
	"github.com/open-edge-platform/iso-manager/internal/utils/logger"
)

const (
	// ChunkSize is the default read size; cancellation is observed after
	// every chunk.
	ChunkSize = 32 * 1024
	// PartSuffix marks files that are still being (or were never fully)
	// downloaded.
	PartSuffix = ".part"
)

var (
	// ErrNoContentLength means the server did not announce a size, so
	// completion cannot be verified.
	ErrNoContentLength = errors.New("response has no content length")
	// ErrDuplicateDestination means two jobs would write the same file.
	ErrDuplicateDestination = errors.New("duplicate download destination")
	// ErrShortBody means the body ended before the announced size.
	ErrShortBody = errors.New("download ended before content length")
)

// Status is the final state of a task.
type Status int

const (
	Pending Status = iota
	Completed
	Failed
	Incomplete
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Incomplete:
		return "incomplete"
	default:
		return "pending"
	}
}

// Job asks for URL to be stored in directory Dir under the URL's file name.
type Job struct {
	Name string
	URL  string
	Dir  string
}

// Task is one running or finished download.
type Task struct {
	ID          string
	Name        string
	URL         string
	Destination string
	Total       int64
	Transferred int64
}

// Result reports how a task ended. Err is nil unless Status is Failed.
type Result struct {
	Task   Task
	Status Status
	Err    error
}

// Orchestrator downloads jobs concurrently. Progress is shared by all
// workers; everything else a worker touches belongs to its own task.
type Orchestrator struct {
	Workers   int
	Client    *http.Client
	ChunkSize int
	Timeout   time.Duration // per task, 0 for none
	UserAgent string
	Progress  *Progress
}

// New returns an orchestrator running at most workers downloads at once.
func New(workers int, progress *Progress) *Orchestrator {
	if progress == nil {
		progress = NewProgress(nil)
	}
	return &Orchestrator{
		Workers:   workers,
		Client:    &http.Client{},
		ChunkSize: ChunkSize,
		Progress:  progress,
	}
}

// Destination returns the file a job writes to.
func Destination(j Job) (string, error) {
	u, err := url.Parse(j.URL)
	if err != nil {
		return "", fmt.Errorf("parsing URL %q: %w", j.URL, err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", fmt.Errorf("URL %q has no file name", j.URL)
	}
	return filepath.Join(j.Dir, name), nil
}

// Run downloads jobs and returns one result per job, in job order. ctx is
// the cancellation signal: once it is done, running tasks stop after their
// current chunk and, like tasks that never started, end Incomplete.
// A job without a usable destination, or whose destination an earlier job
// already claimed, fails on its own without starting.
// The returned error aggregates failed tasks; cancellation is not an error.
func (o *Orchestrator) Run(ctx context.Context, jobs []Job) ([]Result, error) {
	log := logger.Logger()

	tasks := make([]Task, len(jobs))
	results := make([]Result, len(jobs))
	seen := make(map[string]string, len(jobs))
	var runnable []int
	for i, j := range jobs {
		tasks[i] = Task{ID: uuid.NewString(), Name: j.Name, URL: j.URL}
		dest, err := Destination(j)
		if err == nil {
			if prev, ok := seen[dest]; ok {
				err = fmt.Errorf("%w: %s (%s and %s)", ErrDuplicateDestination, dest, prev, j.URL)
			}
		}
		if err != nil {
			if tasks[i].Name == "" {
				tasks[i].Name = j.URL
			}
			results[i] = Result{Task: tasks[i], Status: Failed, Err: err}
			continue
		}
		seen[dest] = j.URL

		if tasks[i].Name == "" {
			tasks[i].Name = filepath.Base(dest)
		}
		tasks[i].Destination = dest
		o.progress().Start(tasks[i].ID, filepath.Base(dest))
		runnable = append(runnable, i)
	}

	workers := o.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(runnable) {
		workers = len(runnable)
	}

	queue := make(chan int, len(runnable))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				results[i] = o.fetch(ctx, tasks[i])
				o.progress().Finish(tasks[i].ID, results[i].Status)
			}
		}()
	}
	for _, i := range runnable {
		queue <- i
	}
	close(queue)
	wg.Wait()
	o.progress().Close()

	var errs *multierror.Error
	for _, r := range results {
		switch r.Status {
		case Completed:
			log.Infof("Downloaded %s (%d bytes)", r.Task.Destination, r.Task.Transferred)
		case Incomplete:
			log.Warnf("Download of %s interrupted after %d of %d bytes", r.Task.Name, r.Task.Transferred, r.Task.Total)
		case Failed:
			log.Errorf("Download of %s failed: %v", r.Task.URL, r.Err)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", r.Task.Name, r.Err))
		}
	}
	return results, errs.ErrorOrNil()
}

func (o *Orchestrator) progress() *Progress {
	if o.Progress == nil {
		o.Progress = NewProgress(nil)
	}
	return o.Progress
}

func (o *Orchestrator) fetch(ctx context.Context, t Task) Result {
	log := logger.Logger()
	incomplete := func() Result { return Result{Task: t, Status: Incomplete} }
	failed := func(err error) Result { return Result{Task: t, Status: Failed, Err: err} }

	if ctx.Err() != nil {
		return incomplete()
	}
	if err := file.EnsureDir(filepath.Dir(t.Destination)); err != nil {
		return failed(err)
	}

	reqCtx := ctx
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, t.URL, nil)
	if err != nil {
		return failed(err)
	}
	if o.UserAgent != "" {
		req.Header.Set("User-Agent", o.UserAgent)
	}

	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}
	log.Debugf("GET %s", t.URL)
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return incomplete()
		}
		return failed(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return failed(fmt.Errorf("bad status: %s", resp.Status))
	}
	if resp.ContentLength < 0 {
		return failed(fmt.Errorf("%w: %s", ErrNoContentLength, t.URL))
	}
	t.Total = resp.ContentLength
	o.progress().SetTotal(t.ID, t.Total)

	part := t.Destination + PartSuffix
	out, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return failed(err)
	}

	err = o.copy(ctx, out, resp.Body, &t)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = cerr
	}
	switch {
	case ctx.Err() != nil:
		// the .part file stays behind, never under the final name
		return incomplete()
	case err != nil:
		return failed(err)
	case t.Transferred != t.Total:
		return failed(fmt.Errorf("%w: got %d of %d bytes", ErrShortBody, t.Transferred, t.Total))
	}

	if err := file.RenameWithFallback(part, t.Destination); err != nil {
		return failed(err)
	}
	return Result{Task: t, Status: Completed}
}

// copy streams body into out chunk by chunk, stopping early once ctx is
// done.
func (o *Orchestrator) copy(ctx context.Context, out io.Writer, body io.Reader, t *Task) error {
	size := o.ChunkSize
	if size <= 0 {
		size = ChunkSize
	}
	buf := make([]byte, size)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if t.Transferred+int64(n) > t.Total {
				return fmt.Errorf("server sent more than %d bytes", t.Total)
			}
			if _, err := out.Write(buf[:n]); err != nil {
				return err
			}
			t.Transferred += int64(n)
			o.progress().Add(t.ID, int64(n))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}
