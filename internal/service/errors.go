package service

import "errors"

var (
	// ErrValidation marks missing or malformed input. Returned errors wrap it
	// with a client-safe detail message.
	ErrValidation = errors.New("validation failed")
	// ErrEmailTaken is returned when registering with an email already in use.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUserNotFound is returned when no account matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrWrongPassword indicates the password does not match the stored hash.
	ErrWrongPassword = errors.New("wrong password")
)
