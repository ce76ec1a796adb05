package pion

import (
	"sync"

	"github.com/Wyydra/duet/internal/core/domain"
)

// candidateQueue turns pion's gathering callback into an ordered channel.
// The queue is unbounded so the callback never waits on a slow reader.
type candidateQueue struct {
	mu    sync.Mutex
	items []domain.Candidate
	done  bool

	wake     chan struct{}
	quit     chan struct{}
	quitOnce sync.Once
	out      chan domain.Candidate
}

func newCandidateQueue() *candidateQueue {
	return &candidateQueue{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		out:  make(chan domain.Candidate),
	}
}

func (q *candidateQueue) push(c domain.Candidate) {
	q.mu.Lock()
	q.items = append(q.items, c)
	q.mu.Unlock()
	q.notify()
}

// finish marks gathering complete; out closes once the backlog drains.
func (q *candidateQueue) finish() {
	q.mu.Lock()
	q.done = true
	q.mu.Unlock()
	q.notify()
}

func (q *candidateQueue) stop() {
	q.quitOnce.Do(func() {
		close(q.quit)
	})
}

func (q *candidateQueue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *candidateQueue) run() {
	defer close(q.out)
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			done := q.done
			q.mu.Unlock()
			if done {
				return
			}
			select {
			case <-q.wake:
				continue
			case <-q.quit:
				return
			}
		}
		c := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- c:
		case <-q.quit:
			return
		}
	}
}
