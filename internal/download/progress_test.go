package download

import (
	"bytes"
	"sync"
	"testing"
)

func TestProgressAggregates(t *testing.T) {
	var out bytes.Buffer
	p := NewProgress(&out)
	p.Start("a", "ubuntu.iso")
	p.Start("b", "arch.iso")
	p.Start("a", "duplicate registration is ignored")

	p.Add("a", 10) // before the size is known
	p.SetTotal("a", 100)
	p.SetTotal("a", 500) // totals are fixed once set
	p.SetTotal("b", 50)
	p.Add("b", 20)
	p.Add("b", -5)
	p.Add("unknown", 7)
	p.Finish("b", Failed)

	s := p.Snapshot()
	if s.Total != 150 || s.Transferred != 30 {
		t.Errorf("snapshot totals = %d/%d, want 30/150", s.Transferred, s.Total)
	}
	if len(s.Tasks) != 2 || s.Tasks[0].Name != "ubuntu.iso" || s.Tasks[1].Name != "arch.iso" {
		t.Fatalf("tasks = %+v", s.Tasks)
	}
	if s.Tasks[0].Done || !s.Tasks[1].Done || s.Tasks[1].Status != Failed {
		t.Errorf("task states = %+v", s.Tasks)
	}

	p.Close()
	if out.Len() == 0 {
		t.Error("progress bar rendered nothing")
	}
}

func TestProgressConcurrentUpdates(t *testing.T) {
	p := NewProgress(nil)
	const tasks, chunks = 8, 200
	ids := []string{"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7"}
	for _, id := range ids {
		p.Start(id, id)
		p.SetTotal(id, chunks)
	}

	var wg sync.WaitGroup
	var last int64
	var mu sync.Mutex
	decreased := false
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < chunks; i++ {
				p.Add(id, 1)
				mu.Lock()
				cur := p.Snapshot().Transferred
				if cur < last {
					decreased = true
				}
				if cur > last {
					last = cur
				}
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	if got := p.Snapshot().Transferred; got != tasks*chunks {
		t.Errorf("transferred = %d, want %d", got, tasks*chunks)
	}
	if decreased {
		t.Error("aggregate counter decreased")
	}
}
