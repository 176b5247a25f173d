package debounce

import (
	"testing"
	"time"
)

// TestDebouncer_CollapsesBurst verifies a burst of triggers runs once with the last argument.
func TestDebouncer_CollapsesBurst(t *testing.T) {
	got := make(chan string, 10)
	d := New(30*time.Millisecond, func(s string) { got <- s })

	for _, s := range []string{"k", "ko", "kol", "kolk"} {
		d.Trigger(s)
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case s := <-got:
		if s != "kolk" {
			t.Errorf("action arg = %q, want kolk", s)
		}
	case <-time.After(time.Second):
		t.Fatal("action never ran")
	}
	select {
	case s := <-got:
		t.Errorf("action ran twice, second arg %q", s)
	case <-time.After(80 * time.Millisecond):
	}
	if d.Pending() {
		t.Error("Pending() = true after run")
	}
}

func TestDebouncer_StopCancels(t *testing.T) {
	ran := make(chan struct{}, 1)
	d := New(20*time.Millisecond, func(struct{}) { ran <- struct{}{} })
	d.Trigger(struct{}{})
	if !d.Pending() {
		t.Error("Pending() = false after Trigger")
	}
	d.Stop()

	select {
	case <-ran:
		t.Error("action ran after Stop")
	case <-time.After(60 * time.Millisecond):
	}
}

// TestDebouncer_SeparatedTriggersEachRun verifies triggers further apart than the delay
// each run.
func TestDebouncer_SeparatedTriggersEachRun(t *testing.T) {
	got := make(chan int, 2)
	d := New(10*time.Millisecond, func(n int) { got <- n })
	for i := 1; i <= 2; i++ {
		d.Trigger(i)
		select {
		case n := <-got:
			if n != i {
				t.Errorf("run %d got %d", i, n)
			}
		case <-time.After(time.Second):
			t.Fatalf("run %d never happened", i)
		}
	}
}
