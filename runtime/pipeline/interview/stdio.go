package interview

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// StdioInterviewer is the default Interviewer pipelinectl's `run`/`resume`
// subcommands use outside of tests: it prints the prompt and option keys to
// out and blocks on in for a line of input, grounded on
// cmd/nexus/handlers_setup.go's bufio.NewReader(os.Stdin) prompt loop.
type StdioInterviewer struct {
	in  *bufio.Reader
	out io.Writer
}

// NewStdioInterviewer returns a StdioInterviewer reading from in and
// writing prompts to out (typically os.Stdin/os.Stdout).
func NewStdioInterviewer(in io.Reader, out io.Writer) *StdioInterviewer {
	return &StdioInterviewer{in: bufio.NewReader(in), out: out}
}

// Ask implements Interviewer by printing the prompt and options, then
// reading one line of input and matching it against an Option key. A
// blank line is treated as AnswerSkipped; an unrecognized key is retried
// once more and then reported as AnswerInvalid.
func (s *StdioInterviewer) Ask(ctx context.Context, prompt string, options []Option) (Answer, error) {
	fmt.Fprintln(s.out, prompt)
	for _, opt := range options {
		fmt.Fprintf(s.out, "  [%s] %s\n", opt.Key, opt.Label)
	}

	for attempt := 0; attempt < 2; attempt++ {
		select {
		case <-ctx.Done():
			return Answer{}, ctx.Err()
		default:
		}
		fmt.Fprint(s.out, "> ")
		line, err := s.in.ReadString('\n')
		if err != nil && line == "" {
			return Answer{}, fmt.Errorf("interview: read answer: %w", err)
		}
		key := strings.TrimSpace(line)
		if key == "" {
			return Answer{Status: AnswerSkipped}, nil
		}
		for _, opt := range options {
			if strings.EqualFold(opt.Key, key) {
				return Answer{Status: AnswerSelected, Key: opt.Key}, nil
			}
		}
		fmt.Fprintf(s.out, "unrecognized option %q, try again\n", key)
	}
	return Answer{Status: AnswerInvalid}, nil
}
