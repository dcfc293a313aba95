package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type txKey struct{}

// recordingUnitOfWork logs the calls it receives and fails on demand.
type recordingUnitOfWork struct {
	calls       []string
	beginErr    error
	commitErr   error
	rollbackErr error
}

func (u *recordingUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	u.calls = append(u.calls, "begin")
	if u.beginErr != nil {
		return ctx, u.beginErr
	}
	return context.WithValue(ctx, txKey{}, true), nil
}

func (u *recordingUnitOfWork) Commit(ctx context.Context) error {
	u.calls = append(u.calls, "commit")
	return u.commitErr
}

func (u *recordingUnitOfWork) Rollback(ctx context.Context) error {
	u.calls = append(u.calls, "rollback")
	return u.rollbackErr
}

func TestWithUnitOfWork(t *testing.T) {
	errDebit := errors.New("debit refused")
	errBegin := errors.New("database is locked")
	errCommit := errors.New("serialization failure")

	tests := []struct {
		name      string
		uow       *recordingUnitOfWork
		fnErr     error
		wantErr   error
		wantCalls []string
		wantRun   bool
	}{
		{
			name:      "commits on success",
			uow:       &recordingUnitOfWork{},
			wantCalls: []string{"begin", "commit"},
			wantRun:   true,
		},
		{
			name:      "rolls back when fn fails",
			uow:       &recordingUnitOfWork{},
			fnErr:     errDebit,
			wantErr:   errDebit,
			wantCalls: []string{"begin", "rollback"},
			wantRun:   true,
		},
		{
			name:      "rollback error does not mask fn error",
			uow:       &recordingUnitOfWork{rollbackErr: errors.New("conn closed")},
			fnErr:     errDebit,
			wantErr:   errDebit,
			wantCalls: []string{"begin", "rollback"},
			wantRun:   true,
		},
		{
			name:      "skips fn when begin fails",
			uow:       &recordingUnitOfWork{beginErr: errBegin},
			wantErr:   errBegin,
			wantCalls: []string{"begin"},
		},
		{
			name:      "returns commit error",
			uow:       &recordingUnitOfWork{commitErr: errCommit},
			wantErr:   errCommit,
			wantCalls: []string{"begin", "commit"},
			wantRun:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ran := false
			err := WithUnitOfWork(context.Background(), tt.uow, func(ctx context.Context) error {
				ran = true
				assert.Equal(t, true, ctx.Value(txKey{}), "fn must see the transactional context")
				return tt.fnErr
			})

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantRun, ran)
			assert.Equal(t, tt.wantCalls, tt.uow.calls)
		})
	}
}

func TestWithUnitOfWork_RollsBackOnPanic(t *testing.T) {
	uow := &recordingUnitOfWork{}

	assert.PanicsWithValue(t, "boom", func() {
		_ = WithUnitOfWork(context.Background(), uow, func(context.Context) error {
			panic("boom")
		})
	})
	assert.Equal(t, []string{"begin", "rollback"}, uow.calls)
}
