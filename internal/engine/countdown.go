package engine

// Countdown tracks consecutive unhandled tick failures. It is decremented on
// failure and fully restored on any success; hitting zero is the only trigger
// for fatal shutdown. Tick-goroutine access only.
type Countdown struct {
	capacity  int
	remaining int
}

func NewCountdown(capacity int) *Countdown {
	return &Countdown{capacity: capacity, remaining: capacity}
}

// Decrement consumes one unit and reports whether any tolerance remains.
func (c *Countdown) Decrement() bool {
	if c.remaining > 0 {
		c.remaining--
	}
	return c.remaining > 0
}

// Reset restores full capacity. A single success anywhere undoes any run of
// failures; this is not a leaky bucket.
func (c *Countdown) Reset() {
	c.remaining = c.capacity
}

func (c *Countdown) Remaining() int { return c.remaining }
func (c *Countdown) Capacity() int  { return c.capacity }
