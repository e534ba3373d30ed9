// Package repositories provides the persistence layer for the backend.
//
// UserRepository is the credential store: every token write is
// last-write-wins on the user row, and reads exclude soft-deleted users.
package repositories
