package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-harvester/internal/worker"
)

type trackingProcessor struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
	panicOn  string
}

func (p *trackingProcessor) Process(_ context.Context, task worker.Task) worker.Outcome {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if task.URL == p.panicOn {
		panic("boom")
	}
	time.Sleep(p.delay)
	return worker.Outcome{URL: task.URL, Status: worker.StatusInserted}
}

func tasks(n int) []worker.Task {
	out := make([]worker.Task, n)
	for i := range out {
		out[i] = worker.Task{URL: fmt.Sprintf("https://blog.example.com/%d/", i)}
	}
	return out
}

func TestRunBoundsConcurrency(t *testing.T) {
	t.Parallel()

	p := &trackingProcessor{delay: 20 * time.Millisecond}
	d := New(p, 3)

	var mu sync.Mutex
	seen := map[string]bool{}
	n := d.Run(context.Background(), tasks(12), func(out worker.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		seen[out.URL] = true
	})

	require.Equal(t, 12, n)
	require.Len(t, seen, 12)
	require.LessOrEqual(t, p.peak.Load(), int32(3))
	require.Equal(t, int32(0), p.inFlight.Load())
}

func TestRunIsolatesPanics(t *testing.T) {
	t.Parallel()

	p := &trackingProcessor{panicOn: "https://blog.example.com/2/"}
	d := New(p, 2)

	statuses := map[worker.Status]int{}
	d.Run(context.Background(), tasks(5), func(out worker.Outcome) {
		statuses[out.Status]++
	})
	require.Equal(t, 4, statuses[worker.StatusInserted])
	require.Equal(t, 1, statuses[worker.StatusFailed])
}

func TestRunStopsDispatchingOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &trackingProcessor{}
	n := New(p, 2).Run(ctx, tasks(5), nil)
	require.Equal(t, 0, n)
}

func TestNewDefaultsConcurrency(t *testing.T) {
	t.Parallel()

	require.Equal(t, defaultConcurrency, New(&trackingProcessor{}, 0).Concurrency())
}
