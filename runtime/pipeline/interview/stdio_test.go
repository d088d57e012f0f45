package interview

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdioInterviewer_SelectsOption(t *testing.T) {
	in := strings.NewReader("A\n")
	var out bytes.Buffer
	s := NewStdioInterviewer(in, &out)

	a, err := s.Ask(context.Background(), "approve?", []Option{{Key: "A", Label: "Approve"}, {Key: "R", Label: "Reject"}})
	require.NoError(t, err)
	assert.Equal(t, AnswerSelected, a.Status)
	assert.Equal(t, "A", a.Key)
	assert.Contains(t, out.String(), "Approve")
}

func TestStdioInterviewer_IsCaseInsensitive(t *testing.T) {
	in := strings.NewReader("a\n")
	var out bytes.Buffer
	s := NewStdioInterviewer(in, &out)

	a, err := s.Ask(context.Background(), "approve?", []Option{{Key: "A", Label: "Approve"}})
	require.NoError(t, err)
	assert.Equal(t, AnswerSelected, a.Status)
	assert.Equal(t, "A", a.Key)
}

func TestStdioInterviewer_BlankLineIsSkipped(t *testing.T) {
	in := strings.NewReader("\n")
	var out bytes.Buffer
	s := NewStdioInterviewer(in, &out)

	a, err := s.Ask(context.Background(), "approve?", []Option{{Key: "A", Label: "Approve"}})
	require.NoError(t, err)
	assert.Equal(t, AnswerSkipped, a.Status)
}

func TestStdioInterviewer_UnrecognizedThenInvalid(t *testing.T) {
	in := strings.NewReader("x\ny\n")
	var out bytes.Buffer
	s := NewStdioInterviewer(in, &out)

	a, err := s.Ask(context.Background(), "approve?", []Option{{Key: "A", Label: "Approve"}})
	require.NoError(t, err)
	assert.Equal(t, AnswerInvalid, a.Status)
	assert.Contains(t, out.String(), "unrecognized option")
}

func TestStdioInterviewer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewStdioInterviewer(strings.NewReader("A\n"), &bytes.Buffer{})
	_, err := s.Ask(ctx, "p", []Option{{Key: "A"}})
	require.ErrorIs(t, err, context.Canceled)
}
