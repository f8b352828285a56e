package zigbee

import (
	"strings"
	"sync"
)

// Filter sentinels. A filter list of ["ALL"] echoes every message, a
// list of ["NONE"] or an empty list echoes nothing.
const (
	FilterAll  = "ALL"
	FilterNone = "NONE"
)

// TopicFilter is a per-coordinator allow-list of friendly names whose
// raw MQTT traffic is echoed to the debug log.
type TopicFilter struct {
	mu    sync.RWMutex
	all   bool
	names map[string]struct{}
}

// NewTopicFilter builds a filter from a configured list of friendly
// names, honouring the ALL and NONE sentinels.
func NewTopicFilter(entries []string) *TopicFilter {
	f := &TopicFilter{}
	f.Replace(entries)
	return f
}

// Replace swaps the filter list wholesale.
func (f *TopicFilter) Replace(entries []string) {
	all := false
	names := make(map[string]struct{})
	for _, entry := range entries {
		switch strings.ToUpper(entry) {
		case FilterAll:
			all = true
		case FilterNone, "":
		default:
			names[entry] = struct{}{}
		}
	}

	f.mu.Lock()
	f.all = all
	f.names = names
	f.mu.Unlock()
}

// ShouldLog reports whether traffic for a friendly name is echoed.
func (f *TopicFilter) ShouldLog(friendlyName string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.all {
		return true
	}
	_, ok := f.names[friendlyName]
	return ok
}
