package loop

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestSchedule_RunsInOrderFromSameGoroutine(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := New(nil)
	l.Start()
	defer l.Stop()

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	for i := 0; i < 10; i++ {
		i := i
		l.Schedule(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			if i == 9 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks never ran")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, expected sequential 0..9", order)
		}
	}
}

func TestScheduleAfter_FiresInTimeOrder(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := New(nil)
	l.Start()
	defer l.Stop()

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})

	l.ScheduleAfter(200*time.Millisecond, func() {
		mu.Lock()
		order = append(order, "slow")
		mu.Unlock()
	})
	l.ScheduleAfter(50*time.Millisecond, func() {
		mu.Lock()
		order = append(order, "fast")
		mu.Unlock()
		time.AfterFunc(250*time.Millisecond, func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timers never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "fast" || order[1] != "slow" {
		t.Fatalf("order = %v, want [fast slow]", order)
	}
}

func TestStop_HaltsTheLoop(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := New(nil)
	l.Start()

	ran := make(chan struct{}, 1)
	l.Schedule(func() { ran <- struct{}{} })
	<-ran

	l.Stop()

	// Scheduling after Stop must not panic or block, and must not run.
	after := make(chan struct{}, 1)
	l.Schedule(func() { after <- struct{}{} })
	select {
	case <-after:
		t.Fatal("task scheduled after Stop should not run")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStop_IsIdempotentAndConcurrencySafe(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := New(nil)
	l.Start()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Stop()
		}()
	}
	wg.Wait()
}
