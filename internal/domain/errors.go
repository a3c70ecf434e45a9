package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrNotActive           = errors.New("not active")
	ErrAuctionNotEnded     = errors.New("auction has not ended")
	ErrAuctionEnded        = errors.New("auction already ended")
	ErrBidAlreadyPlaced    = errors.New("bid already placed")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrInsufficientCustody = errors.New("amount exceeds remaining custody")
	ErrUnknownRole         = errors.New("unknown role")
	ErrRateLimited         = errors.New("rate limited")
	ErrLockHeld            = errors.New("lock already held")
)
