package service

import "errors"

var (
	ErrEmptyIdentity  = errors.New("service: identity is empty")
	ErrInvalidMessage = errors.New("service: invalid message")
	ErrShuttingDown   = errors.New("service: shutting down")
)
