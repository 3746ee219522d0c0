// Package repository defines storage interfaces for domain entities.
// Each entity has a memory implementation for tests and single-process
// use, and a persistent implementation backed by internal/db.
package repository

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")
