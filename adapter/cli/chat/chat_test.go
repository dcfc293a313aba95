package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/counsel/adapter/cli"
	internalApp "github.com/felixgeelhaar/counsel/internal/app"
	conversationApp "github.com/felixgeelhaar/counsel/internal/conversation/application"
	conversationDomain "github.com/felixgeelhaar/counsel/internal/conversation/domain"
	"github.com/felixgeelhaar/counsel/pkg/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct{}

func (stubGenerator) GenerateQuestion(_ context.Context, _ string, _ conversationDomain.History, step int) (string, error) {
	return fmt.Sprintf("question %d?", step), nil
}

func (stubGenerator) GenerateSolution(_ context.Context, description string, _ conversationDomain.History) (string, error) {
	return "plan for " + description, nil
}

func (stubGenerator) GenerateDiscussionAnswer(_ context.Context, req conversationApp.DiscussionRequest) (string, error) {
	return "answer to " + req.Question, nil
}

func setupApp(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "RABBITMQ_URL", "ANTHROPIC_API_KEY"} {
		t.Setenv(key, "")
	}
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "counsel.db"))
	cfg, err := config.Load()
	require.NoError(t, err)

	c, err := internalApp.NewContainer(context.Background(), cfg, internalApp.Options{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Generator: stubGenerator{},
	})
	require.NoError(t, err)

	cli.SetApp(&cli.App{Ledger: c.Ledger, NewEngine: c.NewEngine, CurrentUser: "tg-1"})
	t.Cleanup(func() {
		cli.SetApp(nil)
		c.Close()
	})
}

func TestParseInput(t *testing.T) {
	tests := []struct {
		line     string
		expected conversationApp.Input
	}{
		{"/skip", conversationApp.Input{Action: conversationApp.ActionSkip}},
		{"/SOLUTION", conversationApp.Input{Action: conversationApp.ActionSolution}},
		{"/discuss now", conversationApp.Input{Action: conversationApp.ActionDiscuss}},
		{"/new", conversationApp.Input{Action: conversationApp.ActionNewProblem}},
		{"/exit", conversationApp.Input{Action: conversationApp.ActionQuit}},
		{"  my boss  ", conversationApp.Input{Action: conversationApp.ActionText, Text: "my boss"}},
		{"/unknown", conversationApp.Input{Action: conversationApp.ActionText, Text: "/unknown"}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseInput(tt.line))
		})
	}
}

func TestTerminalInput_SkipsBlankLinesAndEndsWithEOF(t *testing.T) {
	var prompt strings.Builder
	in := NewTerminalInput(strings.NewReader("\n  \nhello\n"), &prompt)

	got, err := in.AwaitInput(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, "> > > ", prompt.String())

	_, err = in.AwaitInput(context.Background(), uuid.New())
	assert.ErrorIs(t, err, io.EOF)
}

func TestTerminalInput_AcceptsLongLines(t *testing.T) {
	long := strings.Repeat("word ", 40_000)
	in := NewTerminalInput(strings.NewReader(long+"\n"), nil)

	got, err := in.AwaitInput(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(long), got.Text)
}

func TestTerminalInput_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewTerminalInput(strings.NewReader("hello\n"), nil).AwaitInput(ctx, uuid.New())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTerminalPresenter(t *testing.T) {
	var out strings.Builder
	p := NewTerminalPresenter(&out)

	err := p.Present(context.Background(), uuid.New(), conversationApp.Outcome{
		Kind: conversationApp.OutcomeQuestion,
		Text: "Who is involved?",
		Step: 2,
		Options: []conversationApp.Option{
			{Action: conversationApp.ActionSkip, Label: "Skip question"},
			{Action: conversationApp.ActionBuyPackage, Label: "Buy a package"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "[2] Who is involved?\n  /skip        Skip question\n  (packages)   Buy a package\n", out.String())
}

func TestChatCmd_ScriptedSession(t *testing.T) {
	setupApp(t)

	lines := []string{"my team misses deadlines"}
	for i := 1; i <= conversationDomain.QuestionRounds; i++ {
		lines = append(lines, fmt.Sprintf("answer %d", i))
	}
	lines = append(lines, "/discuss", "where do I start?", "/quit", "never read")

	var out strings.Builder
	Cmd.SetContext(context.Background())
	Cmd.SetIn(strings.NewReader(strings.Join(lines, "\n") + "\n"))
	Cmd.SetOut(&out)

	require.NoError(t, Cmd.RunE(Cmd, nil))

	text := out.String()
	assert.Contains(t, text, "Describe the problem")
	assert.Contains(t, text, "[1] question 1?")
	assert.Contains(t, text, "[5] question 5?")
	assert.Contains(t, text, "plan for my team misses deadlines")
	assert.Contains(t, text, "Questions left: 5.")
	assert.Contains(t, text, "answer to where do I start?")
	assert.NotContains(t, text, "never read")

	var listing strings.Builder
	ProblemsCmd.SetContext(context.Background())
	ProblemsCmd.SetOut(&listing)
	require.NoError(t, ProblemsCmd.RunE(ProblemsCmd, nil))
	assert.Contains(t, listing.String(), "solved")
}

func TestChatCmd_ResumesOpenSession(t *testing.T) {
	setupApp(t)

	var first strings.Builder
	Cmd.SetContext(context.Background())
	Cmd.SetIn(strings.NewReader("/quit\n"))
	Cmd.SetOut(&first)
	require.NoError(t, Cmd.RunE(Cmd, nil))
	assert.Contains(t, first.String(), "Describe the problem")

	var second strings.Builder
	Cmd.SetIn(strings.NewReader("/quit\n"))
	Cmd.SetOut(&second)
	require.NoError(t, Cmd.RunE(Cmd, nil))
	assert.Contains(t, second.String(), "Resuming your conversation (awaiting_problem)")
}

func TestProblemsCmd_NoApp(t *testing.T) {
	cli.SetApp(nil)
	ProblemsCmd.SetContext(context.Background())
	assert.ErrorIs(t, ProblemsCmd.RunE(ProblemsCmd, nil), cli.ErrNoApp)
}
