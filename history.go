package relay

const DefaultHistorySize = 50

// History is a fixed-capacity FIFO of readings. It is not safe for
// concurrent use; Relay guards it with its own lock.
type History struct {
	entries []Reading
	head    int
	size    int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{entries: make([]Reading, capacity)}
}

// Append stores r at the tail, evicting the oldest entry when full.
func (h *History) Append(r Reading) {
	capacity := len(h.entries)
	if h.size < capacity {
		h.entries[(h.head+h.size)%capacity] = r
		h.size++
		return
	}
	h.entries[h.head] = r
	h.head = (h.head + 1) % capacity
}

// Snapshot returns an oldest-first copy that later appends do not touch.
func (h *History) Snapshot() []Reading {
	out := make([]Reading, h.size)
	n := copy(out, h.entries[h.head:min(h.head+h.size, len(h.entries))])
	copy(out[n:], h.entries[:h.size-n])
	return out
}

func (h *History) Len() int { return h.size }

func (h *History) Cap() int { return len(h.entries) }
