package counting

// Counter is the object sequence number. It runs from 1 up to the modulus;
// the crossing after the modulus wraps it to 0 and starts a new sampling
// cycle. Overflow and sampling restart are the same event.
type Counter struct {
	count   int
	modulus int
	samples *SampleSet
}

// NewCounter returns a zeroed counter that regenerates samples on wrap.
func NewCounter(modulus int, samples *SampleSet) (*Counter, error) {
	if modulus < 1 {
		return nil, configErr("loop_sample", modulus, "must be a positive integer")
	}
	return &Counter{modulus: modulus, samples: samples}, nil
}

// Increment advances the count by one confirmed crossing and returns the new
// value, with wrapped set when the count rolled over to 0.
func (c *Counter) Increment() (count int, wrapped bool) {
	if c.count >= c.modulus {
		c.count = 0
		c.samples.Refresh()
		return 0, true
	}
	c.count++
	return c.count, false
}

// Reset zeroes the count and regenerates the sample set.
func (c *Counter) Reset() {
	c.count = 0
	c.samples.Refresh()
}

// Count returns the current value.
func (c *Counter) Count() int { return c.count }

// Modulus returns the wrap point.
func (c *Counter) Modulus() int { return c.modulus }
