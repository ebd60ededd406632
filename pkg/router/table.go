// Package router implements the registration table and event loop of
// the CAN multiplexing daemon (spec.md §4.D, §4.E).
package router

import (
	"sync"

	"github.com/samsamfire/cand/pkg/canderr"
	"github.com/samsamfire/cand/pkg/mailbox"
)

// Entry is one occupied cell of the registration table: the sinks a
// registered channel receives frames through. StreamSink is nil for a
// channel that never registered streaming.
type Entry struct {
	CmdSink    *mailbox.Mailbox
	StreamSink *mailbox.Mailbox
}

// Table is the dense, three-dimensional registration array described in
// spec.md §4.D: [SlotID][FnType][FnCount-1] -> *Entry. It is chosen over
// a list for the same reason bus_manager.go's CAN-ID subscriber lookup
// is a flat array rather than a map: routing is on the hot path for
// every inbound frame and the three indices already bound the key
// space, so there is nothing a hash or a search would buy over direct
// indexing.
type Table struct {
	mu      sync.Mutex
	entries [32][32][15]*Entry
}

// NewTable returns an empty registration table.
func NewTable() *Table {
	return &Table{}
}

func inRange(slot, fnType, fnCount uint8) bool {
	return int(slot) < 32 && int(fnType) < 32 && fnCount >= 1 && int(fnCount) <= 15
}

// Register inserts entry at (slot, fnType, fnCount). It fails with
// canderr.ErrInvalidArgs if any index is out of range, and with
// canderr.ErrAlreadyRegistered if the cell is occupied.
func (t *Table) Register(slot, fnType, fnCount uint8, entry *Entry) error {
	if !inRange(slot, fnType, fnCount) {
		return canderr.ErrInvalidArgs
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entries[slot][fnType][fnCount-1] != nil {
		return canderr.ErrAlreadyRegistered
	}
	t.entries[slot][fnType][fnCount-1] = entry
	return nil
}

// Deregister releases the sinks at (slot, fnType, fnCount) and clears
// the cell. It fails with canderr.ErrNotRegistered if the cell is
// already empty.
func (t *Table) Deregister(slot, fnType, fnCount uint8) error {
	if !inRange(slot, fnType, fnCount) {
		return canderr.ErrInvalidArgs
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	entry := t.entries[slot][fnType][fnCount-1]
	if entry == nil {
		return canderr.ErrNotRegistered
	}
	closeEntry(entry)
	t.entries[slot][fnType][fnCount-1] = nil
	return nil
}

// Lookup returns the entry at (slot, fnType, fnCount), or nil if the
// cell is empty or out of range.
func (t *Table) Lookup(slot, fnType, fnCount uint8) *Entry {
	if !inRange(slot, fnType, fnCount) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[slot][fnType][fnCount-1]
}

// Count returns the number of occupied cells, for the
// cand_registered_channels gauge.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, bySlot := range t.entries {
		for _, byFnType := range bySlot {
			for _, e := range byFnType {
				if e != nil {
					n++
				}
			}
		}
	}
	return n
}

// Shutdown deregisters every occupied cell, per spec.md §4.D: "On daemon
// shutdown every occupied cell is deregistered."
func (t *Table) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for slot := range t.entries {
		for fnType := range t.entries[slot] {
			for i, e := range t.entries[slot][fnType] {
				if e != nil {
					closeEntry(e)
					t.entries[slot][fnType][i] = nil
				}
			}
		}
	}
}

func closeEntry(e *Entry) {
	_ = e.CmdSink.Close()
	if e.StreamSink != nil {
		_ = e.StreamSink.Close()
	}
}
