package timer

import (
	"testing"
	"time"
)

func TestExpiry(t *testing.T) {
	expired := make(chan struct{})
	tm := New(func() { close(expired) })

	tm.Start(1)

	select {
	case <-expired:
	case <-time.After(3 * time.Second):
		t.Fatal("timer never expired")
	}

	if rem, running := tm.Remaining(); rem != 0 || running {
		t.Errorf("Remaining() = (%d, %t) after expiry, want (0, false)", rem, running)
	}
}

func TestPauseAndReset(t *testing.T) {
	tm := New(nil)

	tm.Start(60)
	if rem, running := tm.Remaining(); rem != 60 || !running {
		t.Errorf("Remaining() = (%d, %t) after start, want (60, true)", rem, running)
	}

	tm.Pause()
	if _, running := tm.Remaining(); running {
		t.Error("timer still running after pause")
	}

	tm.Resume()
	if _, running := tm.Remaining(); !running {
		t.Error("timer not running after resume")
	}

	tm.Reset()
	if rem, running := tm.Remaining(); rem != 0 || running {
		t.Errorf("Remaining() = (%d, %t) after reset, want (0, false)", rem, running)
	}
}

func TestStartReplacesCountdown(t *testing.T) {
	tm := New(nil)

	tm.Start(30)
	tm.Start(90)

	if rem, running := tm.Remaining(); rem != 90 || !running {
		t.Errorf("Remaining() = (%d, %t), want (90, true)", rem, running)
	}
}
