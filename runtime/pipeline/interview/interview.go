// Package interview implements the Interviewer (spec §4.3 "Wait-human",
// C13): the contract a wait-human node uses to ask a person a question and
// get back one of the options it offered. The queue-backed implementation
// is grounded on the teacher's runtime/agent/interrupt.Controller
// signal-queue drain pattern, generalized from a Temporal signal channel to
// a plain Go channel/slice FIFO.
package interview

import "context"

// Option is one answer a wait-human node's outgoing edges make available,
// derived from an edge label of the form "[K] text" (spec §4.3).
type Option struct {
	Key   string
	Label string
}

// AnswerStatus is the outcome of an Ask call.
type AnswerStatus int

const (
	AnswerSelected AnswerStatus = iota
	AnswerSkipped
	AnswerInvalid
)

// Answer is what an Interviewer returns for a single Ask.
type Answer struct {
	Status AnswerStatus

	// Key is the chosen Option.Key, set only when Status == AnswerSelected.
	Key string
}

// Interviewer asks a human a question with a fixed set of options and
// returns their answer. Implementations may block on a terminal, a chat
// transport, or (for tests) an in-memory queue.
type Interviewer interface {
	Ask(ctx context.Context, prompt string, options []Option) (Answer, error)
}
