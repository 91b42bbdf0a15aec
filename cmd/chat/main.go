// Command chat runs a mock interview in the terminal against the same
// conversation store and model endpoint the server uses.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"

	"github.com/stupiduntilnot/interviewcoach/internal/app"
	"github.com/stupiduntilnot/interviewcoach/internal/chat"
	"github.com/stupiduntilnot/interviewcoach/internal/config"
	"github.com/stupiduntilnot/interviewcoach/internal/llm"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatalf("[chat] %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := app.New(ctx, cfg, "chat")
	if err != nil {
		log.Fatalf("[chat] %v", err)
	}
	defer a.Close()

	id := os.Getenv("COACH_CONVERSATION_ID")
	if id == "" {
		id = uuid.NewString()
	}
	fmt.Fprintf(os.Stdout, "conversation %s\ncommands: /feedback /history /reset /quit\n", id)
	if err := run(ctx, a.Chat, id, os.Stdin, os.Stdout); err != nil {
		log.Printf("[chat] %v", err)
	}
}

// run reads one answer per line and prints the interviewer's reply as it
// streams in.
func run(ctx context.Context, svc *chat.Service, id string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit":
			return nil
		case "/reset":
			if err := svc.Reset(ctx, id); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			} else {
				fmt.Fprintln(out, "conversation cleared")
			}
			continue
		case "/history":
			msgs, err := svc.History(ctx, id)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			for _, m := range msgs {
				fmt.Fprintf(out, "[%s] %s\n", m.Role, m.Content)
			}
			continue
		case "/feedback":
			completion, err := svc.Feedback(ctx, id)
			if err != nil {
				fmt.Fprintf(out, "error: %s\n", llm.UserMessage(err))
				continue
			}
			fmt.Fprintln(out, completion.Content)
			continue
		}

		var printed int
		_, err := svc.Send(ctx, id, line, func(content string) {
			fmt.Fprint(out, content[printed:])
			printed = len(content)
		})
		fmt.Fprintln(out)
		if err != nil {
			fmt.Fprintf(out, "error: %s\n", llm.UserMessage(err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
