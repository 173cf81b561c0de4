package core

import "time"

// Clock measures seconds since Start. Elapsed only moves on Update, so every
// reader within one frame sees the same value.
type Clock struct {
	now     func() time.Time
	started time.Time
	running bool
	elapsed time.Duration
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Start resets the elapsed time to zero.
func (c *Clock) Start() {
	c.started = c.now()
	c.running = true
	c.elapsed = 0
}

// Update samples the time. A stopped clock keeps its last reading.
func (c *Clock) Update() {
	if c.running {
		c.elapsed = c.now().Sub(c.started)
	}
}

func (c *Clock) Stop() {
	c.running = false
}

func (c *Clock) Running() bool {
	return c.running
}

// Elapsed is the time between Start and the last Update, in seconds.
func (c *Clock) Elapsed() float64 {
	return c.elapsed.Seconds()
}
