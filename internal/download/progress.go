package download

import (
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/open-edge-platform/iso-manager/internal/utils/logger"
)

// TaskProgress is a point-in-time view of one task.
type TaskProgress struct {
	ID          string
	Name        string
	Total       int64
	Transferred int64
	Status      Status
	Done        bool
}

// Snapshot is a point-in-time view of all tasks, in registration order.
type Snapshot struct {
	Total       int64
	Transferred int64
	Tasks       []TaskProgress
}

// Progress aggregates byte counters of concurrently running tasks behind a
// single mutex and renders them as one progress bar.
type Progress struct {
	mu    sync.Mutex
	w     io.Writer
	bar   *progressbar.ProgressBar
	tasks map[string]*TaskProgress
	order []string
	total int64
	done  int64
}

// NewProgress renders to w; a nil writer renders nothing.
func NewProgress(w io.Writer) *Progress {
	if w == nil {
		w = io.Discard
	}
	return &Progress{w: w, tasks: map[string]*TaskProgress{}}
}

// Start registers a task.
func (p *Progress) Start(id, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.tasks[id]; ok {
		return
	}
	p.tasks[id] = &TaskProgress{ID: id, Name: name}
	p.order = append(p.order, id)
}

// SetTotal records the expected size of a task once it is known.
func (p *Progress) SetTotal(id string, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tasks[id]
	if !ok || total <= 0 || t.Total > 0 {
		return
	}
	t.Total = total
	p.total += total

	if p.bar == nil {
		p.bar = progressbar.NewOptions64(p.total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionSetDescription("downloading"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
		if p.done > 0 {
			_ = p.bar.Add64(p.done)
		}
		return
	}
	p.bar.ChangeMax64(p.total)
}

// Add records n more bytes for a task. Counters never decrease.
func (p *Progress) Add(id string, n int64) {
	if n <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tasks[id]
	if !ok {
		return
	}
	t.Transferred += n
	p.done += n
	if p.bar != nil {
		p.bar.Describe(t.Name)
		if err := p.bar.Add64(n); err != nil {
			logger.Logger().Debugf("progress bar update failed: %v", err)
		}
	}
}

// Finish marks a task as ended with status.
func (p *Progress) Finish(id string, status Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.tasks[id]; ok {
		t.Status = status
		t.Done = true
	}
}

// Close completes the bar.
func (p *Progress) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
		_, _ = io.WriteString(p.w, "\n")
	}
}

// Snapshot returns a copy of the current counters.
func (p *Progress) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Snapshot{Total: p.total, Transferred: p.done}
	for _, id := range p.order {
		s.Tasks = append(s.Tasks, *p.tasks[id])
	}
	return s
}
