package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func payload(n int) []byte {
	return bytes.Repeat([]byte("iso!"), n/4+1)[:n]
}

func serveBytes(data []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		_, _ = w.Write(data)
	}
}

func TestRunDownloadsExactSize(t *testing.T) {
	data := payload(3*ChunkSize + 123)
	srv := httptest.NewServer(serveBytes(data))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "ubuntu")
	o := New(2, nil)
	results, err := o.Run(context.Background(), []Job{{Name: "ubuntu", URL: srv.URL + "/releases/ubuntu-24.04-desktop-amd64.iso", Dir: dir}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 || results[0].Status != Completed {
		t.Fatalf("unexpected results %+v", results)
	}

	dest := filepath.Join(dir, "ubuntu-24.04-desktop-amd64.iso")
	if results[0].Task.Destination != dest {
		t.Errorf("destination = %s, want %s", results[0].Task.Destination, dest)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if int64(len(got)) != results[0].Task.Total || !bytes.Equal(got, data) {
		t.Errorf("file has %d bytes, want %d", len(got), len(data))
	}
	if _, err := os.Stat(dest + PartSuffix); !os.IsNotExist(err) {
		t.Error("part file should be renamed away on completion")
	}

	snap := o.Progress.Snapshot()
	if snap.Total != int64(len(data)) || snap.Transferred != int64(len(data)) {
		t.Errorf("progress = %+v", snap)
	}
	if len(snap.Tasks) != 1 || !snap.Tasks[0].Done || snap.Tasks[0].Status != Completed {
		t.Errorf("task progress = %+v", snap.Tasks)
	}
}

func TestRunCancellationLeavesIncompletePart(t *testing.T) {
	const total = 10 * ChunkSize
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(total))
		_, _ = w.Write(payload(2 * ChunkSize))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	o := New(1, nil)
	type outcome struct {
		results []Result
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		results, err := o.Run(ctx, []Job{{URL: srv.URL + "/kali-linux-2024.2-installer-amd64.iso", Dir: dir}})
		done <- outcome{results, err}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for o.Progress.Snapshot().Transferred == 0 {
		if time.Now().After(deadline) {
			t.Fatal("download never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	var out outcome
	select {
	case out = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not observe cancellation")
	}

	if out.err != nil {
		t.Errorf("cancellation must not be reported as an error, got %v", out.err)
	}
	r := out.results[0]
	if r.Status != Incomplete || r.Err != nil {
		t.Fatalf("status = %s, err = %v, want incomplete", r.Status, r.Err)
	}
	dest := filepath.Join(dir, "kali-linux-2024.2-installer-amd64.iso")
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("incomplete download must not appear under its final name")
	}
	fi, err := os.Stat(dest + PartSuffix)
	if err != nil {
		t.Fatalf("part file missing: %v", err)
	}
	if fi.Size() > total || fi.Size() != r.Task.Transferred {
		t.Errorf("part file has %d bytes, transferred %d, total %d", fi.Size(), r.Task.Transferred, total)
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := New(2, nil).Run(ctx, []Job{
		{URL: srv.URL + "/a.iso", Dir: t.TempDir()},
		{URL: srv.URL + "/b.iso", Dir: t.TempDir()},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, r := range results {
		if r.Status != Incomplete {
			t.Errorf("%s: status %s, want incomplete", r.Task.Name, r.Status)
		}
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Errorf("server was contacted %d times after cancellation", hits)
	}
}

func TestRunNeverExceedsWorkerCount(t *testing.T) {
	const workers, jobs = 2, 7
	var active, peak int32
	data := payload(ChunkSize)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&active, 1)
		defer atomic.AddInt32(&active, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	dir := t.TempDir()
	var list []Job
	for i := 0; i < jobs; i++ {
		list = append(list, Job{URL: fmt.Sprintf("%s/img-%d.iso", srv.URL, i), Dir: dir})
	}
	results, err := New(workers, nil).Run(context.Background(), list)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, r := range results {
		if r.Status != Completed {
			t.Errorf("job %d: %s (%v)", i, r.Status, r.Err)
		}
		if want := fmt.Sprintf("img-%d.iso", i); filepath.Base(r.Task.Destination) != want {
			t.Errorf("results out of job order: %d -> %s", i, r.Task.Destination)
		}
	}
	if p := atomic.LoadInt32(&peak); p > workers {
		t.Errorf("%d downloads ran at once, limit %d", p, workers)
	}
}

func TestRunFailuresAreIsolated(t *testing.T) {
	data := payload(ChunkSize / 2)
	mux := http.NewServeMux()
	mux.HandleFunc("/ok.iso", serveBytes(data))
	mux.HandleFunc("/chunked.iso", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(data[:10])
		w.(http.Flusher).Flush()
		_, _ = w.Write(data[10:])
	})
	mux.HandleFunc("/short.iso", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)*2))
		_, _ = w.Write(data)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	results, err := New(3, nil).Run(context.Background(), []Job{
		{URL: srv.URL + "/chunked.iso", Dir: dir},
		{URL: srv.URL + "/ok.iso", Dir: dir},
		{URL: srv.URL + "/missing.iso", Dir: dir},
		{URL: srv.URL + "/short.iso", Dir: dir},
	})
	if !errors.Is(err, ErrNoContentLength) {
		t.Errorf("expected aggregated ErrNoContentLength, got %v", err)
	}

	want := []Status{Failed, Completed, Failed, Failed}
	for i, r := range results {
		if r.Status != want[i] {
			t.Errorf("job %d (%s): status %s, want %s (err %v)", i, r.Task.URL, r.Status, want[i], r.Err)
		}
	}
	if !errors.Is(results[0].Err, ErrNoContentLength) {
		t.Errorf("chunked response error = %v", results[0].Err)
	}
	if _, err := os.Stat(filepath.Join(dir, "ok.iso")); err != nil {
		t.Errorf("sibling download missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "short.iso")); !os.IsNotExist(err) {
		t.Error("truncated download must not appear under its final name")
	}
}

func TestRunTimeoutIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	o := New(1, nil)
	o.Timeout = 50 * time.Millisecond
	results, err := o.Run(context.Background(), []Job{{URL: srv.URL + "/slow.iso", Dir: t.TempDir()}})
	if err == nil || results[0].Status != Failed {
		t.Fatalf("expected timeout failure, got %s, %v", results[0].Status, err)
	}
}

func TestRunDuplicateDestinationFailsAlone(t *testing.T) {
	data := payload(100)
	srv := httptest.NewServer(serveBytes(data))
	defer srv.Close()

	dir := t.TempDir()
	results, err := New(2, nil).Run(context.Background(), []Job{
		{URL: srv.URL + "/a.iso", Dir: dir},
		{URL: srv.URL + "/b.iso", Dir: dir},
		{URL: srv.URL + "/x/b.iso", Dir: dir},
		{URL: "https://a.example.org/", Dir: dir},
	})
	if !errors.Is(err, ErrDuplicateDestination) {
		t.Fatalf("expected ErrDuplicateDestination, got %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected one result per job, got %d", len(results))
	}

	want := []Status{Completed, Completed, Failed, Failed}
	for i, r := range results {
		if r.Status != want[i] {
			t.Errorf("job %d (%s): status %s, want %s (err %v)", i, r.Task.URL, r.Status, want[i], r.Err)
		}
	}
	if !errors.Is(results[2].Err, ErrDuplicateDestination) {
		t.Errorf("duplicate job error = %v", results[2].Err)
	}
	if results[3].Err == nil {
		t.Error("expected error for URL without file name")
	}
	for _, name := range []string{"a.iso", "b.iso"} {
		got, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("%s not downloaded: %v", name, err)
			continue
		}
		if !bytes.Equal(got, data) {
			t.Errorf("%s has %d bytes, want %d", name, len(got), len(data))
		}
	}
}

func TestRunSendsUserAgent(t *testing.T) {
	var mu sync.Mutex
	var agent string
	data := payload(10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agent = r.UserAgent()
		mu.Unlock()
		serveBytes(data)(w, r)
	}))
	defer srv.Close()

	o := New(1, nil)
	o.UserAgent = "iso-manager/test"
	if _, err := o.Run(context.Background(), []Job{{URL: srv.URL + "/a.iso", Dir: t.TempDir()}}); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if agent != "iso-manager/test" {
		t.Errorf("User-Agent = %q", agent)
	}
}

func TestRunEmpty(t *testing.T) {
	results, err := New(3, nil).Run(context.Background(), nil)
	if err != nil || len(results) != 0 {
		t.Errorf("Run(nil) = %v, %v", results, err)
	}
}
