package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrAlreadyExists         = errors.New("already exists")
	ErrValidation            = errors.New("invalid input")
	ErrRoundInactive         = errors.New("round inactive")
	ErrArithmeticOverflow    = errors.New("arithmetic overflow")
	ErrPreconditionFailed    = errors.New("precondition failed")
	ErrInvariantViolation    = errors.New("invariant violation")
	ErrSlippageExceeded      = errors.New("slippage limit exceeded")
	ErrMarketFrozen          = errors.New("market frozen")
	ErrConditionResolved     = errors.New("condition already resolved")
	ErrConditionUnresolved   = errors.New("condition not resolved")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrLockHeld              = errors.New("lock already held")
	ErrContextDone           = errors.New("context cancelled")
)
