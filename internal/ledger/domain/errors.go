package domain

import "errors"

var (
	ErrInsufficientCredits  = errors.New("insufficient problem credits")
	ErrUnknownPackage       = errors.New("unknown package")
	ErrPackageKindMismatch  = errors.New("package kind does not match operation")
	ErrUserNotFound         = errors.New("user not found")
	ErrDuplicateReferral    = errors.New("referral already registered for user")
	ErrSelfReferral         = errors.New("user cannot refer themselves")
	ErrReferralCodeNotFound = errors.New("referral code not found")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrInvalidAmount        = errors.New("payment amount does not cover package price")
	ErrDuplicatePayment     = errors.New("payment already applied")
	ErrEmptyExternalID      = errors.New("external id cannot be empty")
	ErrConcurrentUpdate     = errors.New("user was modified concurrently")
	ErrReferralCodeTaken    = errors.New("referral code already assigned")
)
