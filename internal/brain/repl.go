package brain

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// conversationalist is what the REPL needs from a Brain.
type conversationalist interface {
	Greet(ctx context.Context) (string, error)
	Reply(ctx context.Context, text string) (string, bool, error)
}

// RunREPL drives an interactive text conversation over in/out until the
// assistant hangs up, the input ends, or the context is cancelled.
func RunREPL(ctx context.Context, b conversationalist, in io.Reader, out io.Writer) error {
	greeting, err := b.Greet(ctx)
	if err != nil {
		return fmt.Errorf("greeting: %w", err)
	}
	fmt.Fprintf(out, "greta: %s\n", greeting)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reply, hangup, err := b.Reply(ctx, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "greta: %s\n", reply)
		if hangup {
			return nil
		}
	}
	return scanner.Err()
}
