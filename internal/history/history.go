// Package history manages prompt input history with persistence.
package history

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
)

const maxEntries = 1000

// History holds past prompts and a navigation cursor.
type History struct {
	mu      sync.Mutex
	entries []string
	index   int    // Current position (-1 means new input).
	current string // Input saved when navigation starts.
	path    string
}

// New creates a History persisted at path and loads existing entries.
func New(path string) *History {
	h := &History{index: -1, path: path}
	h.load()
	return h
}

// load reads entries from the persistent file. Missing or corrupt files are
// treated as empty history.
func (h *History) load() {
	h.mu.Lock()
	defer h.mu.Unlock()

	raw, err := os.ReadFile(h.path)
	if err != nil {
		return
	}
	var entries []string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return
	}
	if len(entries) > maxEntries {
		entries = entries[len(entries)-maxEntries:]
	}
	h.entries = entries
}

// save writes entries to the persistent file. Failures are silent: losing
// input history is not worth interrupting a chat.
func (h *History) save() {
	h.mu.Lock()
	defer h.mu.Unlock()

	raw, err := json.Marshal(h.entries)
	if err != nil {
		return
	}
	_ = os.WriteFile(h.path, raw, 0600)
}

// Add records a new entry and resets navigation.
func (h *History) Add(entry string) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return
	}

	h.mu.Lock()
	// Skip duplicates of the last entry.
	if len(h.entries) > 0 && h.entries[len(h.entries)-1] == entry {
		h.index = -1
		h.current = ""
		h.mu.Unlock()
		return
	}

	h.entries = append(h.entries, entry)
	if len(h.entries) > maxEntries {
		h.entries = h.entries[len(h.entries)-maxEntries:]
	}
	h.index = -1
	h.current = ""
	h.mu.Unlock()

	h.save()
}

// Previous returns the previous entry. currentInput is saved when navigation
// starts so Next can restore it.
func (h *History) Previous(currentInput string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.entries) == 0 {
		return "", false
	}

	switch {
	case h.index == -1:
		h.current = currentInput
		h.index = len(h.entries) - 1
	case h.index > 0:
		h.index--
	default:
		// Already at the oldest entry.
		return h.entries[0], false
	}
	return h.entries[h.index], true
}

// Next returns the next entry toward the present, restoring the saved input
// past the newest one.
func (h *History) Next() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.index == -1 {
		return "", false
	}

	h.index++
	if h.index >= len(h.entries) {
		h.index = -1
		return h.current, true
	}
	return h.entries[h.index], true
}

// Reset clears the navigation cursor. Call when the input is modified.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.index = -1
	h.current = ""
}
