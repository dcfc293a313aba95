package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	conversationApp "github.com/felixgeelhaar/counsel/internal/conversation/application"
	"github.com/google/uuid"
)

// commands maps slash commands to engine actions.
var commands = map[string]conversationApp.Action{
	"/new":      conversationApp.ActionNewProblem,
	"/skip":     conversationApp.ActionSkip,
	"/solution": conversationApp.ActionSolution,
	"/discuss":  conversationApp.ActionDiscuss,
	"/quit":     conversationApp.ActionQuit,
	"/exit":     conversationApp.ActionQuit,
}

// maxLineSize caps a single input line. Free-text answers can run far past
// the scanner's 64 KiB default.
const maxLineSize = 1 << 20

// TerminalInput reads one input per line. Lines starting with a known
// slash command become that action; everything else is free text.
type TerminalInput struct {
	scanner *bufio.Scanner
	prompt  io.Writer
}

// NewTerminalInput reads from r and writes a prompt to prompt when it is
// not nil.
func NewTerminalInput(r io.Reader, prompt io.Writer) *TerminalInput {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &TerminalInput{scanner: scanner, prompt: prompt}
}

func (t *TerminalInput) AwaitInput(ctx context.Context, _ uuid.UUID) (conversationApp.Input, error) {
	for {
		if err := ctx.Err(); err != nil {
			return conversationApp.Input{}, err
		}
		if t.prompt != nil {
			fmt.Fprint(t.prompt, "> ")
		}
		if !t.scanner.Scan() {
			if err := t.scanner.Err(); err != nil {
				return conversationApp.Input{}, err
			}
			return conversationApp.Input{}, io.EOF
		}
		line := strings.TrimSpace(t.scanner.Text())
		if line == "" {
			continue
		}
		return ParseInput(line), nil
	}
}

// ParseInput turns one line into an engine input.
func ParseInput(line string) conversationApp.Input {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "/") {
		if action, ok := commands[strings.ToLower(strings.Fields(line)[0])]; ok {
			return conversationApp.Input{Action: action}
		}
	}
	return conversationApp.Input{Action: conversationApp.ActionText, Text: line}
}

var _ conversationApp.InputSource = (*TerminalInput)(nil)

// TerminalPresenter prints outcomes followed by the commands they offer.
type TerminalPresenter struct {
	mu  sync.Mutex
	out io.Writer
}

func NewTerminalPresenter(out io.Writer) *TerminalPresenter {
	return &TerminalPresenter{out: out}
}

func (p *TerminalPresenter) Present(_ context.Context, _ uuid.UUID, o conversationApp.Outcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var b strings.Builder
	if o.Kind == conversationApp.OutcomeQuestion && o.Step > 0 {
		fmt.Fprintf(&b, "[%d] ", o.Step)
	}
	b.WriteString(o.Text)
	b.WriteString("\n")
	for _, opt := range o.Options {
		fmt.Fprintf(&b, "  %-12s %s\n", hint(opt.Action), opt.Label)
	}
	_, err := io.WriteString(p.out, b.String())
	return err
}

var _ conversationApp.Presenter = (*TerminalPresenter)(nil)

func hint(a conversationApp.Action) string {
	switch a {
	case conversationApp.ActionBuyPackage, conversationApp.ActionBuyDiscussions:
		return "(packages)"
	}
	for cmd, action := range commands {
		if action == a && cmd != "/exit" {
			return cmd
		}
	}
	return string(a)
}
