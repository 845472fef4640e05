// ABOUTME: FIFO of pending dialog output streams
// ABOUTME: Passive container; callers serialize access with the adapter's mutex
package dialog

// PlaybackQueue is an ordered queue of streams. The zero value is empty and ready.
// It does no locking of its own.
type PlaybackQueue struct {
	items []*OutputStream
}

// Push appends a stream to the tail
func (q *PlaybackQueue) Push(s *OutputStream) {
	q.items = append(q.items, s)
}

// Head returns the stream being drained, or nil
func (q *PlaybackQueue) Head() *OutputStream {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// PopHead removes and returns the head, or nil
func (q *PlaybackQueue) PopHead() *OutputStream {
	if len(q.items) == 0 {
		return nil
	}
	head := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return head
}

// Clear discards every queued stream and returns how many there were
func (q *PlaybackQueue) Clear() int {
	n := len(q.items)
	clear(q.items)
	q.items = nil
	return n
}

// Len returns the number of queued streams
func (q *PlaybackQueue) Len() int {
	return len(q.items)
}
