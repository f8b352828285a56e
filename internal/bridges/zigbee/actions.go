package zigbee

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// actionIdleDelay is how long after a button event the device returns
// to its idle state if no further event arrives.
const actionIdleDelay = 1 * time.Second

// parseAction splits a zigbee2mqtt action string into a button number
// and event name. Recognised shapes:
//
//	"single"            -> button 1, "single"
//	"double_left"       -> button 1, "double"
//	"hold_right"        -> button 2, "hold"
//	"single_both"       -> button 3, "single"
//	"1_single"          -> button 1, "single"
//	"button_2_double"   -> button 2, "double"
func parseAction(action string) (button int, event string) {
	parts := strings.Split(action, "_")
	if parts[0] == "button" && len(parts) >= 2 {
		parts = parts[1:]
	}

	if len(parts) == 1 {
		return 1, parts[0]
	}

	switch parts[1] {
	case "left":
		return 1, parts[0]
	case "right":
		return 2, parts[0]
	case "both":
		return 3, parts[0]
	}

	if n, err := strconv.Atoi(parts[0]); err == nil {
		return n, strings.Join(parts[1:], "_")
	}
	return 1, action
}

// actionTimers tracks one cancellable idle-reset timer per device.
// Scheduling a timer for a device cancels any timer already pending
// for it, so a rapid press sequence produces a single trailing reset.
type actionTimers struct {
	mu     sync.Mutex
	timers map[int]*time.Timer
}

func newActionTimers() *actionTimers {
	return &actionTimers{timers: make(map[int]*time.Timer)}
}

// schedule arms the idle reset for a device, replacing any pending one.
func (t *actionTimers) schedule(deviceID int, delay time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.timers[deviceID]; ok {
		existing.Stop()
	}
	t.timers[deviceID] = time.AfterFunc(delay, func() {
		t.mu.Lock()
		delete(t.timers, deviceID)
		t.mu.Unlock()
		fn()
	})
}

// cancel stops a pending reset for one device.
func (t *actionTimers) cancel(deviceID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.timers[deviceID]; ok {
		existing.Stop()
		delete(t.timers, deviceID)
	}
}

// stopAll cancels every pending reset. Used on shutdown.
func (t *actionTimers) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}
