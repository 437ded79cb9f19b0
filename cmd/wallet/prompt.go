package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	authzdomain "paywallet/internal/authz/domain"
	"paywallet/internal/failure"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// prompter reads answers from the terminal.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// line prints label and reads one trimmed line. EOF after partial input returns that input.
func (p *prompter) line(label string) (string, error) {
	if _, err := fmt.Fprint(p.out, label+": "); err != nil {
		return "", err
	}
	s, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(s) > 0 {
			return strings.TrimSpace(s), nil
		}
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// secret reads without echo when stdin is a terminal, otherwise falls back to line.
func (p *prompter) secret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return p.line(label)
	}
	if _, err := fmt.Fprint(p.out, label+": "); err != nil {
		return "", err
	}
	b, err := readPassword(fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// otpSession drives one attempt from OTPRequested to a terminal state.
type otpSession struct {
	ctx     context.Context
	rt      *runtime
	prompts *prompter
}

// authorize asks for codes until the attempt is verified, then commits it. Entering r resends
// the code and q cancels the attempt.
func (s *otpSession) authorize(a authzdomain.Attempt) (authzdomain.Attempt, error) {
	w := s.rt.wallet
	for a.State == authzdomain.StateOTPRequested {
		s.announce(a)
		input, err := s.prompts.line("Code (r to resend, q to cancel)")
		if err != nil {
			return a, err
		}
		switch strings.ToLower(input) {
		case "q":
			return w.Cancel(s.ctx, a.ID)
		case "r":
			next, err := w.Resend(s.ctx, a.ID)
			if err != nil {
				if !failure.Recoverable(err) {
					return next, err
				}
				fmt.Fprintln(s.prompts.out, failure.Message(err))
			}
			a = next
			continue
		}
		next, err := w.Submit(s.ctx, a.ID, input)
		if err != nil && !errors.Is(err, failure.ErrMismatch) {
			return next, err
		}
		if err != nil {
			fmt.Fprintln(s.prompts.out, "Invalid OTP, try again.")
		}
		a = next
	}
	if a.State != authzdomain.StateOTPVerified {
		return a, failure.New(failure.ErrInvalidTransition, "Request is %s", a.State)
	}
	return w.Confirm(s.ctx, a.ID)
}

func (s *otpSession) announce(a authzdomain.Attempt) {
	left := time.Until(a.ExpiresAt).Round(time.Second)
	fmt.Fprintf(s.prompts.out, "A code was sent via %s; it expires in %s.\n", a.DeliveredVia, left)
	if s.rt.dev == nil || a.Intent == nil {
		return
	}
	if code, ok := s.rt.dev.Peek(a.Intent.SubjectUserID(), a.Intent.Purpose()); ok {
		fmt.Fprintf(s.prompts.out, "(dev) code: %s\n", code)
	}
}
