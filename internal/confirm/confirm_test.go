package confirm

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerminal(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		accept []string
		want   bool
	}{
		{name: "yes", input: "yes\n", want: true},
		{name: "uppercase with spaces", input: "  YES \n", want: true},
		{name: "y not accepted by default", input: "y\n", want: false},
		{name: "y accepted when listed", input: "y\n", accept: []string{"yes", "y"}, want: true},
		{name: "no", input: "no\n", want: false},
		{name: "anything else", input: "sure\n", want: false},
		{name: "empty line", input: "\n", want: false},
		{name: "eof", input: "", want: false},
		{name: "yes without newline", input: "yes", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			term := NewTerminal(strings.NewReader(tt.input), &out, tt.accept...)
			assert.Equal(t, tt.want, term.Confirm(context.Background(), "Apply 3 updates?"))
			assert.Contains(t, out.String(), "Apply 3 updates? (yes/no): ")
		})
	}
}

func TestTerminal_ContextCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	term := NewTerminal(pr, io.Discard)
	assert.False(t, term.Confirm(ctx, "Proceed?"))
}

func TestPolicies(t *testing.T) {
	ctx := context.Background()
	assert.True(t, AutoApprove.Confirm(ctx, "x"))
	assert.False(t, AutoDeny.Confirm(ctx, "x"))

	var asked string
	f := Func(func(_ context.Context, prompt string) bool {
		asked = prompt
		return true
	})
	assert.True(t, f.Confirm(ctx, "Create 2 cities?"))
	assert.Equal(t, "Create 2 cities?", asked)
}
