package services

import "errors"

var (
	ErrValidation       = errors.New("validation error")
	ErrPollNotFound     = errors.New("poll not found")
	ErrOptionNotFound   = errors.New("option not found")
	ErrAlreadyVoted     = errors.New("user already voted in this poll")
	ErrStoreUnavailable = errors.New("poll store unavailable")
	ErrIdentityMismatch = errors.New("user id does not match the session")
	ErrUnauthenticated  = errors.New("no authenticated session")
)
