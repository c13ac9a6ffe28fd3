package speech

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSilenceDetectorFiresWithoutSpeech(t *testing.T) {
	detector := NewSilenceDetector(30 * time.Millisecond)

	done := make(chan struct{}, 1)
	detector.OnSilence(func() {
		done <- struct{}{}
	})

	detector.Arm()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected silence callback to fire")
	}
}

func TestSilenceDetectorHeardDisarms(t *testing.T) {
	detector := NewSilenceDetector(80 * time.Millisecond)

	var fired atomic.Int32
	detector.OnSilence(func() {
		fired.Add(1)
	})

	detector.Arm()
	time.Sleep(20 * time.Millisecond)
	detector.Heard()

	time.Sleep(100 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("expected 0 callbacks after speech, got %d", fired.Load())
	}
}

func TestSilenceDetectorRearmRestartsTimer(t *testing.T) {
	detector := NewSilenceDetector(60 * time.Millisecond)

	var fired atomic.Int32
	detector.OnSilence(func() { fired.Add(1) })

	detector.Arm()
	time.Sleep(40 * time.Millisecond)
	detector.Arm()
	time.Sleep(40 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("expected rearm to postpone callback, got %d", fired.Load())
	}

	time.Sleep(80 * time.Millisecond)
	if fired.Load() != 1 {
		t.Fatalf("expected exactly one callback, got %d", fired.Load())
	}
}
