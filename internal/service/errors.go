package service

import "errors"

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("account is banned")
	ErrMaintenance       = errors.New("service is under maintenance")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidState      = errors.New("withdrawal already decided")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidDecision   = errors.New("invalid decision")
)
