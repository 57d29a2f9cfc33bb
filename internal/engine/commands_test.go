package engine

import (
	"fmt"
	"sync"
	"testing"
)

func TestCommandQueue_ParseLine(t *testing.T) {
	q := NewCommandQueue()
	if err := q.RegisterCommand(&Command{Name: "warp", Owner: "modA", Handler: func(int, string, []string) {}}); err != nil {
		t.Fatalf("register: %v", err)
	}

	qc, err := q.parseLine(`@1 warp "Ghost Town" fast`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if qc.ScreenID != 1 || qc.Name != "warp" {
		t.Fatalf("routed: got screen=%d name=%q", qc.ScreenID, qc.Name)
	}
	if len(qc.Args) != 2 || qc.Args[0] != "Ghost Town" || qc.Args[1] != "fast" {
		t.Fatalf("args: got %v", qc.Args)
	}

	// No screen target defaults to the primary screen.
	qc, err = q.parseLine("warp Farm")
	if err != nil || qc.ScreenID != 0 {
		t.Fatalf("default screen: got %+v err=%v", qc, err)
	}

	// Blank lines are skipped silently.
	qc, err = q.parseLine("   ")
	if err != nil || qc != nil {
		t.Fatalf("blank line: got %+v err=%v", qc, err)
	}

	for _, bad := range []string{"nosuch", "@x warp", "@1", `warp "unterminated`} {
		if _, err := q.parseLine(bad); err == nil {
			t.Fatalf("parse %q: want error", bad)
		}
	}
}

func TestCommandQueue_DuplicateRegistration(t *testing.T) {
	q := NewCommandQueue()
	cmd := func() *Command {
		return &Command{Name: "Help", Owner: "host", Handler: func(int, string, []string) {}}
	}
	if err := q.RegisterCommand(cmd()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := q.RegisterCommand(cmd()); err == nil {
		t.Fatalf("duplicate name must be rejected")
	}
	// Lookup is case-insensitive.
	if q.lookup("HELP") == nil {
		t.Fatalf("case-insensitive lookup failed")
	}
}

func TestCommandQueue_ConcurrentEnqueueDrainedOnce(t *testing.T) {
	q := NewCommandQueue()
	const goroutines, perGoroutine = 8, 100

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				q.Enqueue(fmt.Sprintf("cmd-%d-%d", g, i))
			}
		}(g)
	}
	wg.Wait()

	seen := map[string]int{}
	for _, line := range q.drainRaw() {
		seen[line]++
	}
	if len(seen) != goroutines*perGoroutine {
		t.Fatalf("drained %d distinct entries, want %d", len(seen), goroutines*perGoroutine)
	}
	for line, n := range seen {
		if n != 1 {
			t.Fatalf("entry %q drained %d times, want 1", line, n)
		}
	}
	if left := q.drainRaw(); len(left) != 0 {
		t.Fatalf("second drain returned %d entries, want 0", len(left))
	}
}
