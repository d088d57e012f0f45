package interview

import (
	"context"
	"errors"
	"sync"
)

// QueuedAnswer is one pre-seeded response a test hands to QueueInterviewer
// before the run it is driving starts.
type QueuedAnswer = Answer

// QueueInterviewer is a deterministic, queue-backed Interviewer for tests:
// every Ask call dequeues the next pre-seeded answer (FIFO) instead of
// blocking on an actual human, mirroring the teacher's signal-queue drain
// pattern generalized from a Temporal signal channel to a plain slice.
type QueueInterviewer struct {
	mu      sync.Mutex
	answers []QueuedAnswer
	asked   []Asked
}

// Asked is one recorded (prompt, options) pair a QueueInterviewer was asked.
type Asked struct {
	Prompt  string
	Options []Option
}

// NewQueueInterviewer returns a QueueInterviewer pre-seeded with answers,
// dequeued in order across successive Ask calls.
func NewQueueInterviewer(answers ...QueuedAnswer) *QueueInterviewer {
	return &QueueInterviewer{answers: append([]QueuedAnswer(nil), answers...)}
}

// Push appends another answer to the back of the queue.
func (q *QueueInterviewer) Push(a QueuedAnswer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.answers = append(q.answers, a)
}

// Ask implements Interviewer by dequeuing the next seeded answer. It
// records the (prompt, options) it was called with so tests can assert on
// what a wait-human node actually asked.
func (q *QueueInterviewer) Ask(ctx context.Context, prompt string, options []Option) (Answer, error) {
	select {
	case <-ctx.Done():
		return Answer{}, ctx.Err()
	default:
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.asked = append(q.asked, Asked{Prompt: prompt, Options: options})
	if len(q.answers) == 0 {
		return Answer{}, errors.New("interview: queue exhausted, no answer seeded for this Ask call")
	}
	next := q.answers[0]
	q.answers = q.answers[1:]
	return next, nil
}

// History returns every (prompt, options) pair this interviewer has been
// asked, in call order.
func (q *QueueInterviewer) History() []Asked {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Asked, len(q.asked))
	copy(out, q.asked)
	return out
}

// Pending reports how many seeded answers remain unconsumed.
func (q *QueueInterviewer) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.answers)
}
