// Package loop implements the single-threaded cooperative event loop every
// context runs its actor work on: a thread-safe Schedule/ScheduleAfter pair
// feeding one dedicated goroutine ("the loop thread") that runs every
// handler invocation, connect-completion callback, read callback, and timed
// callback to completion before starting the next one.
package loop

import (
	"container/heap"
	"sync"
	"time"

	"github.com/jabolina/goprocess/definition"
)

// Task is a unit of work posted to the loop.
type Task func()

type timerTask struct {
	at  time.Time
	seq uint64 // breaks ties between timers firing at the same instant
	fn  Task
}

type timerHeap []*timerTask

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(*timerTask)) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Loop is the per-context scheduler. The zero value is not usable; build one
// with New.
type Loop struct {
	log definition.Logger

	mu      sync.Mutex
	ready   []Task
	timers  timerHeap
	seq     uint64
	closing bool

	wake    chan struct{}
	started chan struct{}
	done    chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// New builds a Loop. It does not start running until Start is called.
func New(log definition.Logger) *Loop {
	return &Loop{
		log:     log,
		wake:    make(chan struct{}, 1),
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the loop thread and blocks the caller until it has entered
// its run state, so that Schedule/ScheduleAfter posted immediately after
// Start returns are guaranteed to be picked up.
func (l *Loop) Start() {
	l.startOnce.Do(func() {
		go l.run()
	})
	<-l.started
}

// Schedule appends a zero-delay task to the ready queue. Safe to call from
// any goroutine. Tasks scheduled from the same goroutine run in the order
// they were scheduled.
func (l *Loop) Schedule(fn Task) {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return
	}
	l.ready = append(l.ready, fn)
	l.mu.Unlock()
	l.signal()
}

// ScheduleAfter appends a task to fire no earlier than now+delay. Timed
// tasks fire in non-decreasing time order; ties are broken by post order.
func (l *Loop) ScheduleAfter(delay time.Duration, fn Task) {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return
	}
	l.seq++
	heap.Push(&l.timers, &timerTask{at: time.Now().Add(delay), seq: l.seq, fn: fn})
	l.mu.Unlock()
	l.signal()
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Stop halts the loop thread. Already-running tasks finish; tasks still
// waiting in the ready queue or the timer heap are discarded. Safe to call
// from any goroutine; blocks until the loop thread has exited.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.closing = true
		l.mu.Unlock()
		l.signal()
	})
	<-l.done
}

func (l *Loop) run() {
	close(l.started)
	defer close(l.done)

	for {
		l.mu.Lock()
		now := time.Now()
		for len(l.timers) > 0 && !l.timers[0].at.After(now) {
			t := heap.Pop(&l.timers).(*timerTask)
			l.ready = append(l.ready, t.fn)
		}

		if l.closing {
			l.mu.Unlock()
			return
		}

		if len(l.ready) == 0 {
			var timerC <-chan time.Time
			if len(l.timers) > 0 {
				timerC = time.After(time.Until(l.timers[0].at))
			}
			l.mu.Unlock()

			if timerC == nil {
				<-l.wake
			} else {
				select {
				case <-l.wake:
				case <-timerC:
				}
			}
			continue
		}

		task := l.ready[0]
		l.ready = l.ready[1:]
		l.mu.Unlock()

		l.runTask(task)
	}
}

func (l *Loop) runTask(task Task) {
	defer func() {
		if r := recover(); r != nil && l.log != nil {
			l.log.Errorf("recovered panic in scheduled task: %v", r)
		}
	}()
	task()
}
