package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrAlreadyCheckedOut = errors.New("already checked out")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrDirectoryLookup   = errors.New("directory lookup failed")
)

// InvalidReason narrows why a presented credential was refused. All of
// these are client-correctable and reported with the specific sub-reason.
type InvalidReason string

const (
	ReasonInvalidOrExpired InvalidReason = "invalid_or_expired"
	ReasonNotFound         InvalidReason = "not_found"
	ReasonInactive         InvalidReason = "inactive"
	ReasonAlreadyUsed      InvalidReason = "already_used"
	ReasonExpired          InvalidReason = "expired"
)

type CredentialError struct {
	Reason InvalidReason
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("invalid credential: %s", e.Reason)
}

func credentialErr(reason InvalidReason) error {
	return &CredentialError{Reason: reason}
}
