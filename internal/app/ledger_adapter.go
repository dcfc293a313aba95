package app

import (
	"context"
	"errors"
	"fmt"

	conversationApp "github.com/felixgeelhaar/counsel/internal/conversation/application"
	conversationDomain "github.com/felixgeelhaar/counsel/internal/conversation/domain"
	ledgerApp "github.com/felixgeelhaar/counsel/internal/ledger/application"
	ledgerDomain "github.com/felixgeelhaar/counsel/internal/ledger/domain"
	"github.com/google/uuid"
)

// conversationLedger exposes the ledger service through the port the
// conversation engine consumes.
type conversationLedger struct {
	svc *ledgerApp.Service
}

func (l conversationLedger) CanStartProblem(ctx context.Context, userID uuid.UUID) (bool, error) {
	return l.svc.CanStartProblem(ctx, userID)
}

func (l conversationLedger) DebitProblemCredit(ctx context.Context, userID uuid.UUID) (int, error) {
	remaining, err := l.svc.DebitProblemCredit(ctx, userID)
	if errors.Is(err, ledgerDomain.ErrInsufficientCredits) {
		return 0, fmt.Errorf("%w: %w", conversationDomain.ErrNoProblemCredits, err)
	}
	return remaining, err
}

func (l conversationLedger) DiscussionAllowance(ctx context.Context, userID uuid.UUID) (int, error) {
	return l.svc.DiscussionAllowance(ctx, userID)
}

func (l conversationLedger) DebitDiscussionUnit(ctx context.Context, userID uuid.UUID, sessionUsed int) (int, bool, error) {
	debit, err := l.svc.DebitDiscussionUnit(ctx, userID, sessionUsed)
	if err != nil {
		return 0, false, err
	}
	return debit.Remaining, debit.Purchased, nil
}

var _ conversationApp.Ledger = conversationLedger{}
