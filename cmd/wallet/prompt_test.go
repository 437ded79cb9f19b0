package main

import (
	"bytes"
	"strings"
	"testing"

	"paywallet/internal/dispatch"
)

func TestPrompterLine(t *testing.T) {
	var out bytes.Buffer
	p := newPrompter(strings.NewReader("  bob@example.com \n500"), &out)

	got, err := p.line("Recipient")
	if err != nil || got != "bob@example.com" {
		t.Fatalf("line = %q, %v", got, err)
	}
	got, err = p.line("Amount")
	if err != nil || got != "500" {
		t.Fatalf("partial last line = %q, %v", got, err)
	}
	if _, err := p.line("More"); err == nil {
		t.Error("expected EOF")
	}
	if !strings.HasPrefix(out.String(), "Recipient: Amount: ") {
		t.Errorf("prompts = %q", out.String())
	}
}

func TestResultMark(t *testing.T) {
	for kind, want := range map[dispatch.Kind]string{
		dispatch.KindSuccess: "[ok]",
		dispatch.KindError:   "[error]",
		dispatch.KindWarning: "[warning]",
		dispatch.KindInfo:    "[info]",
	} {
		if got := resultMark(kind); got != want {
			t.Errorf("resultMark(%s) = %q, want %q", kind, got, want)
		}
	}
}
