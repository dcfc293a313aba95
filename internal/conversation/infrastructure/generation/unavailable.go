package generation

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/counsel/internal/conversation/application"
	"github.com/felixgeelhaar/counsel/internal/conversation/domain"
)

// Unavailable is used when no API key is configured. Every call fails so
// the engine serves its fallback texts.
type Unavailable struct {
	Reason string
}

func (u Unavailable) err(op string) error {
	reason := u.Reason
	if reason == "" {
		reason = "generation not configured"
	}
	return fmt.Errorf("%w: %s: %s", domain.ErrGenerationFailed, op, reason)
}

func (u Unavailable) GenerateQuestion(context.Context, string, domain.History, int) (string, error) {
	return "", u.err("question")
}

func (u Unavailable) GenerateSolution(context.Context, string, domain.History) (string, error) {
	return "", u.err("solution")
}

func (u Unavailable) GenerateDiscussionAnswer(context.Context, application.DiscussionRequest) (string, error) {
	return "", u.err("discussion")
}

var _ application.Generator = Unavailable{}
