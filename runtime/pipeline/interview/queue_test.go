package interview

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueInterviewer_DequeuesInOrder(t *testing.T) {
	q := NewQueueInterviewer(
		Answer{Status: AnswerSelected, Key: "y"},
		Answer{Status: AnswerSkipped},
	)
	opts := []Option{{Key: "y", Label: "Yes"}, {Key: "n", Label: "No"}}

	a1, err := q.Ask(context.Background(), "proceed?", opts)
	require.NoError(t, err)
	assert.Equal(t, AnswerSelected, a1.Status)
	assert.Equal(t, "y", a1.Key)

	a2, err := q.Ask(context.Background(), "again?", opts)
	require.NoError(t, err)
	assert.Equal(t, AnswerSkipped, a2.Status)

	assert.Equal(t, 0, q.Pending())
	require.Len(t, q.History(), 2)
	assert.Equal(t, "proceed?", q.History()[0].Prompt)
}

func TestQueueInterviewer_ExhaustedQueueErrors(t *testing.T) {
	q := NewQueueInterviewer()
	_, err := q.Ask(context.Background(), "p", nil)
	require.Error(t, err)
}

func TestQueueInterviewer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q := NewQueueInterviewer(Answer{Status: AnswerSelected, Key: "y"})
	_, err := q.Ask(ctx, "p", nil)
	require.ErrorIs(t, err, context.Canceled)
}
