package service

import "errors"

// ErrNotFound is returned by stores when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the actor lacks the capability an operation
// requires.
var ErrForbidden = errors.New("forbidden")
