package types

import "errors"

// ErrIdentityNotFound is returned by identity resolvers when a user or guild
// id no longer maps to anyone reachable on the chat platform.
var ErrIdentityNotFound = errors.New("identity not found")

// User is a resolved chat-platform user.
type User struct {
	// Numeric platform identity, stable across renames
	ID int64

	// Account name
	Name string

	// Per-guild display name, may equal Name
	DisplayName string
}

// Guild is a resolved chat-platform group. One guild hosts one game.
type Guild struct {
	ID   int64
	Name string
}
