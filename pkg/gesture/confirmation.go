package gesture

import (
	"sync"
	"time"
)

// Timer is the part of *time.Timer the confirmation display needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. Tests replace it to control time.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Confirmation is the human-readable text currently shown for the last
// recognised gesture.
type Confirmation struct {
	mu       sync.Mutex
	text     string
	seq      uint64
	timer    Timer
	after    AfterFunc
	onChange func(text string)
}

// NewConfirmation builds a display. after may be nil; onChange may be nil.
func NewConfirmation(after AfterFunc, onChange func(text string)) *Confirmation {
	if after == nil {
		after = realAfterFunc
	}
	return &Confirmation{after: after, onChange: onChange}
}

// Text returns what is displayed right now.
func (c *Confirmation) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// Show displays text until replaced or cleared.
func (c *Confirmation) Show(text string) {
	c.mu.Lock()
	changed := c.showLocked(text)
	notify := c.onChange
	c.mu.Unlock()
	if changed && notify != nil {
		notify(text)
	}
}

// Flash displays text and clears it after d, unless something else is shown first.
func (c *Confirmation) Flash(text string, d time.Duration) {
	c.mu.Lock()
	changed := c.showLocked(text)
	seq := c.seq
	c.timer = c.after(d, func() { c.expire(seq) })
	notify := c.onChange
	c.mu.Unlock()
	if changed && notify != nil {
		notify(text)
	}
}

func (c *Confirmation) showLocked(text string) bool {
	c.stopTimerLocked()
	c.seq++
	changed := c.text != text
	c.text = text
	return changed
}

// Clear removes the displayed text.
func (c *Confirmation) Clear() {
	c.Show("")
}

func (c *Confirmation) expire(seq uint64) {
	c.mu.Lock()
	if c.seq != seq || c.text == "" {
		c.mu.Unlock()
		return
	}
	c.text = ""
	c.timer = nil
	notify := c.onChange
	c.mu.Unlock()
	if notify != nil {
		notify("")
	}
}

func (c *Confirmation) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
