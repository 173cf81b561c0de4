package core

import (
	"testing"
	"time"
)

func TestClockOnlyAdvancesOnUpdate(t *testing.T) {
	now := time.Unix(1000, 0)
	c := &Clock{now: func() time.Time { return now }}

	c.Update()
	if c.Elapsed() != 0 {
		t.Fatalf("unstarted clock elapsed = %v", c.Elapsed())
	}

	c.Start()
	now = now.Add(1500 * time.Millisecond)
	if c.Elapsed() != 0 {
		t.Fatalf("elapsed moved without Update: %v", c.Elapsed())
	}
	c.Update()
	if c.Elapsed() != 1.5 {
		t.Fatalf("elapsed = %v, want 1.5", c.Elapsed())
	}

	c.Stop()
	now = now.Add(time.Second)
	c.Update()
	if c.Running() || c.Elapsed() != 1.5 {
		t.Fatalf("stopped clock: running = %v elapsed = %v", c.Running(), c.Elapsed())
	}

	c.Start()
	c.Update()
	if c.Elapsed() != 0 {
		t.Fatalf("restart did not reset: %v", c.Elapsed())
	}
}
