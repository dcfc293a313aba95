package generation

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/counsel/internal/conversation/domain"
)

const systemPrompt = `You are a warm, practical coach who helps people untangle personal problems.
Speak informally and kindly. Acknowledge feelings and never belittle the problem.

While analysing a problem, ask exactly ONE clarifying question per message.
Good questions explore context (when did it start, who is involved), feelings,
what was already tried, the desired outcome, a 1 to 10 severity scale,
exceptions (when is the problem absent) and triggers.
Avoid yes/no questions, "why" questions and several questions at once.

A final solution has at most 2000 characters and uses these sections:
THE CORE: one or two sentences showing deeper understanding.
WHY IT HAPPENS: two or three sentences on the mechanism in plain words.
RIGHT NOW: two micro-actions of 5 to 15 minutes.
THIS WEEK: three steps with a deadline, a simpler variant and an expected result.
LONG TERM: one habit change.
HOW YOU WILL KNOW IT WORKS: a measurable marker and an emotional marker.
IF YOU GET STUCK: one practical tip.
P.S.: a short motivating note or question.

Be concrete ("go to bed at 23:00", not "sleep more") and offer fallbacks.
Do not blame, stay away from jargon, and do not diagnose. For mental health,
relationship crises or medical issues give basic advice and recommend a professional.`

func formatHistory(history domain.History, assistantLabel, userLabel string) string {
	if len(history) == 0 {
		return "(start)"
	}
	var b strings.Builder
	for i, turn := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		prefix := userLabel
		if turn.Speaker == domain.SpeakerAssistant {
			prefix = assistantLabel
		}
		b.WriteString(prefix)
		b.WriteString(": ")
		b.WriteString(turn.Text)
	}
	return b.String()
}

func questionPrompt(description string, recent domain.History, step, rounds int) string {
	return fmt.Sprintf(`Problem: %s

History:
%s

Question %d/%d. Ask ONE clarifying question (at most 50 words). No preamble.`,
		description, formatHistory(recent, "Q", "A"), step, rounds)
}

func solutionPrompt(description string, history domain.History) string {
	return fmt.Sprintf(`Problem: %s

Analysis:
%s

Write the solution using the structure from the system prompt. At most 2000 characters.`,
		description, formatHistory(history, "Q", "A"))
}

func discussionPrompt(description, solution string, history domain.History, question string) string {
	return fmt.Sprintf(`Problem: %s

Solution already given:
%s

Discussion so far:
%s

New question from the user: %s

Answer this question about the solution in at most 150 words. Stay concrete.`,
		description, solution, formatHistory(history, "Coach", "User"), question)
}
