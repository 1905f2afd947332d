package errors

import "errors"

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailExists         = errors.New("email already in use")
	ErrUsernameExists      = errors.New("username already in use")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrResearchNotFound    = errors.New("research not found")
	ErrFundingNotFound     = errors.New("funding not found")
	ErrMilestoneNotFound   = errors.New("milestone not found")
	ErrTransactionNotFound = errors.New("transaction not found or already verified")

	ErrNilFunding              = errors.New("funding is nil")
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrInvalidFundingStatus    = errors.New("invalid funding status")
	ErrInvalidFundingType      = errors.New("invalid funding type")
	ErrInvalidStatusTransition = errors.New("status transition not allowed")

	ErrMilestoneExceedsFunding  = errors.New("milestone amount exceeds funding amount")
	ErrMilestoneAlreadyReleased = errors.New("milestone already released")

	ErrForbidden    = errors.New("forbidden")
	ErrNoWallet     = errors.New("user has no wallet address")
	ErrInvalidInput = errors.New("invalid input")
	ErrBlockchain   = errors.New("blockchain error")
	ErrInternal     = errors.New("internal error")
)
