package checkout

import (
	"fmt"
	"sync"
	"time"
)

// Countdown is the cosmetic payment window. Expiry only fires a callback; it
// never blocks detection or submission.
type Countdown struct {
	window time.Duration
	tick   time.Duration

	mu        sync.Mutex
	remaining time.Duration
	running   bool
	stop      chan struct{}
}

func NewCountdown(window, tick time.Duration) *Countdown {
	if tick <= 0 {
		tick = time.Second
	}
	return &Countdown{window: window, tick: tick, remaining: window}
}

// Start begins ticking. onExpire runs once when the window reaches zero.
// Starting a running countdown does nothing.
func (c *Countdown) Start(onExpire func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running || c.remaining <= 0 {
		return
	}
	c.running = true
	stop := make(chan struct{})
	c.stop = stop

	go func() {
		ticker := time.NewTicker(c.tick)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if c.advance() {
					if onExpire != nil {
						onExpire()
					}
					return
				}
			}
		}
	}()
}

// advance subtracts one tick and reports whether the window just expired.
func (c *Countdown) advance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remaining -= c.tick
	if c.remaining > 0 {
		return false
	}
	c.remaining = 0
	c.running = false
	return true
}

// Stop freezes the countdown.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	close(c.stop)
	c.running = false
}

func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) Expired() bool {
	return c.Remaining() <= 0
}

// FormatRemaining renders d as MM:SS.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
