// Package repository defines the data access layer over database/sql and
// the error values shared across repositories. Handlers and services map
// these sentinels onto HTTP responses and lifecycle outcomes.
package repository

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when a row does not exist, or exists but
// belongs to another user. The two cases are not distinguished so that
// callers cannot probe other users' ids.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own and the resource's existence is already known
// to them (for example a session id they were handed earlier).
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an operation would violate a uniqueness
// invariant, such as creating a second assessment for a blocked user.
var ErrConflict = errors.New("conflict")

// ErrEmailExists is returned by UserRepo.Create for a taken email.
var ErrEmailExists = errors.New("email already exists")

// isDuplicate reports whether err is a unique-key violation on either
// supported driver (MySQL 1062, SQLite UNIQUE constraint).
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "1062") || strings.Contains(msg, "unique constraint failed")
}
