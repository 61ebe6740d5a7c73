package domain

import "errors"

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrConnectionExists   = errors.New("connection already registered")
	ErrUnknownRecipient   = errors.New("unknown recipient")
	ErrNoPeerAvailable    = errors.New("no peer available")
	ErrDuplicateCall      = errors.New("already in a call")
	ErrMalformedMessage   = errors.New("malformed message")
	ErrNoPendingCall      = errors.New("no pending call")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrSendQueueFull      = errors.New("send queue full")
)
