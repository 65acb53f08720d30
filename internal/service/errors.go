package service

import (
	"errors"
	"fmt"

	"github.com/Gopher0727/GroupHub/internal/repository"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrAlreadyMember    = errors.New("user is already a member of this group")
	ErrCapacityExceeded = errors.New("group is full")
	ErrLastAdmin        = errors.New("group must keep at least one admin")
	ErrInviteInvalid    = errors.New("invalid invite code")
	ErrInviteExpired    = errors.New("invite link expired or exhausted")
	ErrValidation       = errors.New("validation failed")
	ErrRepository       = errors.New("repository failure")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrNotFound, "not_found"},
	{ErrPermissionDenied, "permission_denied"},
	{ErrAlreadyMember, "already_member"},
	{ErrCapacityExceeded, "capacity_exceeded"},
	{ErrLastAdmin, "last_admin"},
	{ErrInviteInvalid, "invite_invalid"},
	{ErrInviteExpired, "invite_expired"},
	{ErrValidation, "validation_error"},
	{ErrRepository, "repository_error"},
}

// Code returns the stable code of err's business kind. Unknown errors are
// reported as repository_error.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "repository_error"
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func denied(userID, capability string) error {
	return fmt.Errorf("%w: %s may not %s", ErrPermissionDenied, userID, capability)
}

// storeErr wraps an unexpected repository failure. Errors that already carry
// a business kind pass through untouched.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return err
		}
	}
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, op)
	}
	return fmt.Errorf("%w: %s: %v", ErrRepository, op, err)
}
