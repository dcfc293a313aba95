package domain

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerAssistant Speaker = "assistant"
	SpeakerUser      Speaker = "user"
)

// Turn is one message of the dialogue.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// History is an append-only sequence of turns.
type History []Turn

// Append returns the history with a new turn. The receiver is not modified.
func (h History) Append(speaker Speaker, text string) History {
	out := make(History, len(h), len(h)+1)
	copy(out, h)
	return append(out, Turn{Speaker: speaker, Text: text})
}

// Recent returns at most the last n turns.
func (h History) Recent(n int) History {
	if n <= 0 || len(h) <= n {
		return h
	}
	return h[len(h)-n:]
}
