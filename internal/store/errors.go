package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateUsername is returned when an insert loses the username
// unique constraint.
var ErrDuplicateUsername = errors.New("username already taken")

// ErrDuplicateEmail is returned when an insert loses the email unique
// constraint.
var ErrDuplicateEmail = errors.New("email already registered")
