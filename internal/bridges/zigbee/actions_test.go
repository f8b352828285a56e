package zigbee

import (
	"testing"
	"time"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		action     string
		wantButton int
		wantEvent  string
	}{
		{"single", 1, "single"},
		{"double", 1, "double"},
		{"hold", 1, "hold"},
		{"single_left", 1, "single"},
		{"double_right", 2, "double"},
		{"hold_both", 3, "hold"},
		{"1_single", 1, "single"},
		{"2_double", 2, "double"},
		{"4_hold", 4, "hold"},
		{"button_2_double", 2, "double"},
		{"button_1_single", 1, "single"},
		{"3_double_hold", 3, "double_hold"},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			button, event := parseAction(tt.action)
			if button != tt.wantButton || event != tt.wantEvent {
				t.Errorf("parseAction(%q) = %d/%q, want %d/%q",
					tt.action, button, event, tt.wantButton, tt.wantEvent)
			}
		})
	}
}

func TestActionTimersFire(t *testing.T) {
	timers := newActionTimers()
	defer timers.stopAll()

	fired := make(chan struct{})
	timers.schedule(1, 10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestActionTimersRescheduleReplaces(t *testing.T) {
	timers := newActionTimers()
	defer timers.stopAll()

	first := make(chan struct{}, 1)
	second := make(chan struct{}, 1)
	timers.schedule(1, 50*time.Millisecond, func() { first <- struct{}{} })
	timers.schedule(1, 10*time.Millisecond, func() { second <- struct{}{} })

	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("replacement timer never fired")
	}
	select {
	case <-first:
		t.Fatal("replaced timer fired anyway")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestActionTimersCancel(t *testing.T) {
	timers := newActionTimers()
	defer timers.stopAll()

	fired := make(chan struct{}, 1)
	timers.schedule(1, 20*time.Millisecond, func() { fired <- struct{}{} })
	timers.cancel(1)

	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestActionTimersIndependentDevices(t *testing.T) {
	timers := newActionTimers()
	defer timers.stopAll()

	fired := make(chan int, 2)
	timers.schedule(1, 10*time.Millisecond, func() { fired <- 1 })
	timers.schedule(2, 10*time.Millisecond, func() { fired <- 2 })

	seen := map[int]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-fired:
			seen[id] = true
		case <-time.After(time.Second):
			t.Fatal("timers did not both fire")
		}
	}
	if !seen[1] || !seen[2] {
		t.Errorf("fired devices = %v, want both 1 and 2", seen)
	}
}
