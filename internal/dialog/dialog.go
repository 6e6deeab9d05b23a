// Package dialog abstracts the confirm and alert prompts the UI components raise.
package dialog

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(question string) bool
}

// Notifier shows the user a message.
type Notifier interface {
	Notify(message string)
}

// Terminal prompts on a line-oriented reader and writer pair. The reader is shared
// with the command shell, so it must be the same *bufio.Reader.
type Terminal struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewTerminal constructs a Terminal over in and out.
func NewTerminal(in *bufio.Reader, out io.Writer) *Terminal {
	return &Terminal{in: in, out: out}
}

// Confirm prints question and accepts "y" or "yes". EOF or a read error declines.
func (t *Terminal) Confirm(question string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.out, "%s [y/N]: ", question)
	line, err := t.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(t.out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// Notify prints message on its own line.
func (t *Terminal) Notify(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "! %s\n", message)
}

// Scripted is a headless Confirmer and Notifier that answers from a fixed script and
// records everything it was shown.
type Scripted struct {
	mu        sync.Mutex
	answers   []bool
	fallback  bool
	questions []string
	messages  []string
}

// NewScripted answers questions with answers in order, then with fallback.
func NewScripted(fallback bool, answers ...bool) *Scripted {
	return &Scripted{answers: answers, fallback: fallback}
}

// Confirm pops the next scripted answer.
func (s *Scripted) Confirm(question string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = append(s.questions, question)
	if len(s.answers) == 0 {
		return s.fallback
	}
	answer := s.answers[0]
	s.answers = s.answers[1:]
	return answer
}

// Notify records message.
func (s *Scripted) Notify(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
}

// Questions returns the questions asked so far.
func (s *Scripted) Questions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.questions...)
}

// Messages returns the notifications shown so far.
func (s *Scripted) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}
