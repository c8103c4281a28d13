package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrValidation          = errors.New("invalid payload")
	ErrInsufficientPoints  = errors.New("insufficient points")
	ErrDurationUnknown     = errors.New("media duration unknown")
	ErrJobIDMismatch       = errors.New("orchestrator returned a different job id")
	ErrPricingRuleNotFound = errors.New("pricing rule not found")
	ErrUpstream            = errors.New("upstream failure")
)
