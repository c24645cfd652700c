// Package confirm provides the yes/no gate in front of catalog writes.
package confirm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// Confirmer answers a yes/no question. Anything but an explicit yes is no.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// Func adapts a function to Confirmer.
type Func func(ctx context.Context, prompt string) bool

// Confirm calls f.
func (f Func) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

// AutoApprove says yes without asking.
var AutoApprove Confirmer = Func(func(context.Context, string) bool { return true })

// AutoDeny says no without asking.
var AutoDeny Confirmer = Func(func(context.Context, string) bool { return false })

// Terminal asks on Out and reads one line from In.
type Terminal struct {
	in     *bufio.Reader
	out    io.Writer
	accept []string
}

// NewTerminal returns a prompt reading from in. accept lists the answers
// taken as yes, compared case-insensitively after trimming; it defaults to
// "yes".
func NewTerminal(in io.Reader, out io.Writer, accept ...string) *Terminal {
	if len(accept) == 0 {
		accept = []string{"yes"}
	}
	norm := make([]string, len(accept))
	for i, a := range accept {
		norm[i] = strings.ToLower(strings.TrimSpace(a))
	}
	return &Terminal{in: bufio.NewReader(in), out: out, accept: norm}
}

// Confirm prints prompt and waits for an answer or for ctx to end.
func (t *Terminal) Confirm(ctx context.Context, prompt string) bool {
	fmt.Fprintf(t.out, "%s (%s/no): ", prompt, t.accept[0])

	answer := make(chan string, 1)
	go func() {
		line, err := t.in.ReadString('\n')
		if err != nil && line == "" {
			zap.L().Debug("confirm: no answer", zap.Error(err))
		}
		answer <- line
	}()

	select {
	case <-ctx.Done():
		return false
	case line := <-answer:
		return slices.Contains(t.accept, strings.ToLower(strings.TrimSpace(line)))
	}
}
