package bridge

import "sync"

// sendQueue is an unbounded FIFO of frame payloads feeding one writer
// goroutine. Put never blocks; there is no backpressure toward callers.
type sendQueue struct {
	mu     sync.Mutex
	items  [][]byte
	notify chan struct{}
	closed bool
}

func newSendQueue() *sendQueue {
	return &sendQueue{notify: make(chan struct{}, 1)}
}

// Put appends a payload. It reports false once the queue is closed.
func (q *sendQueue) Put(payload []byte) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, payload)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	q.mu.Unlock()
	return true
}

// Take blocks until a payload is available or the queue is closed.
// Payloads still queued at close are dropped.
func (q *sendQueue) Take() ([]byte, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.items = nil
			q.mu.Unlock()
			return nil, false
		}
		if len(q.items) > 0 {
			payload := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return payload, true
		}
		q.mu.Unlock()
		<-q.notify
	}
}

// Len returns the number of payloads waiting to be written.
func (q *sendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *sendQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.notify)
	q.mu.Unlock()
}
