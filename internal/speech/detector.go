package speech

import (
	"sync"
	"time"
)

// SilenceDetector fires once if nothing is heard within the timeout after Arm.
type SilenceDetector struct {
	timeout  time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	onSilent func()
}

func NewSilenceDetector(timeout time.Duration) *SilenceDetector {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &SilenceDetector{timeout: timeout}
}

func (d *SilenceDetector) OnSilence(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onSilent = callback
}

func (d *SilenceDetector) Arm() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.timeout, func() {
		d.mu.Lock()
		callback := d.onSilent
		d.timer = nil
		d.mu.Unlock()

		if callback != nil {
			callback()
		}
	})
}

// Heard disarms the detector.
func (d *SilenceDetector) Heard() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
