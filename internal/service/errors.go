package service

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrRequestNotFound      = errors.New("participation request not found")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRegistrationFailed   = errors.New("registration failed: username already exists")
	ErrDuplicateRequest     = errors.New("student already has an open participation request")
	ErrForbidden            = errors.New("operation not permitted for this user")
	ErrInvalidStudent       = errors.New("student id does not resolve to a student user")
	ErrInvalidRole          = errors.New("role must be student or instructor")
	ErrInternalServer       = errors.New("internal server error")
)
