package collector

import "time"

// SetTicks replaces the interval ticker with ch.
func (c *Collector) SetTicks(ch <-chan time.Time) {
	c.ticks = ch
}
