package worker

import (
	"sync"
	"time"
)

// Entry is one line of a slot journal.
type Entry struct {
	Time   time.Time `json:"time"`
	State  State     `json:"state"`
	Event  string    `json:"event"`
	JobID  int64     `json:"job_id,omitempty"`
	Status string    `json:"status,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// Journal keeps the most recent entries of a slot. It is safe for
// concurrent use.
type Journal struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

func NewJournal(size int) *Journal {
	if size < 1 {
		size = 1
	}
	return &Journal{entries: make([]Entry, size)}
}

// Add appends e, evicting the oldest entry once the journal is full.
func (j *Journal) Add(e Entry) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries[j.next] = e
	j.next = (j.next + 1) % len(j.entries)
	if j.next == 0 {
		j.full = true
	}
}

// Entries returns a copy of the journal, oldest first.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.full {
		return append([]Entry(nil), j.entries[:j.next]...)
	}
	out := make([]Entry, 0, len(j.entries))
	out = append(out, j.entries[j.next:]...)
	return append(out, j.entries[:j.next]...)
}

// Len returns the number of entries held.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.full {
		return len(j.entries)
	}
	return j.next
}
