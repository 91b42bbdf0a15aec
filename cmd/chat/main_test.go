package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stupiduntilnot/interviewcoach/internal/chat"
	"github.com/stupiduntilnot/interviewcoach/internal/dummy"
	"github.com/stupiduntilnot/interviewcoach/internal/llm"
	"github.com/stupiduntilnot/interviewcoach/internal/store"
)

func newService(t *testing.T, script string) *chat.Service {
	t.Helper()
	up, err := dummy.NewUpstream(script)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)
	return chat.NewService(store.NewMemory(), llm.NewClient("k", srv.URL, "m"), chat.Options{})
}

func TestRun_StreamsReplies(t *testing.T) {
	svc := newService(t, "frame:What,frame: is Go?,done;status:429;frame:Good job.,done")
	in := strings.NewReader("hello\n\nanswer\n/history\n/feedback\n/reset\n/history\n/quit\nignored\n")
	var out bytes.Buffer

	if err := run(context.Background(), svc, "c1", in, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"What is Go?\n",
		"error: Rate limit exceeded, please try again later.",
		"[user] hello\n[assistant] What is Go?\n",
		"Good job.\n",
		"conversation cleared",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "[user] answer") {
		t.Fatalf("failed turn should not be persisted:\n%s", got)
	}
}

func TestRun_EOF(t *testing.T) {
	svc := newService(t, "")
	var out bytes.Buffer
	if err := run(context.Background(), svc, "c1", strings.NewReader(""), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
}
