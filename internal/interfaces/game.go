package interfaces

import "github.com/user/weaverdice/internal/types"

// MessageSender defines the interface for sending messages
type MessageSender interface {
	SendMessage(recipient, message string) (string, error)
}

// IdentityResolver looks up chat-platform identities. The game core consumes
// this for save/load diagnostics and for dropping character records whose
// owner is no longer reachable; it never owns the capability itself.
//
// Implementations return types.ErrIdentityNotFound (possibly wrapped) when the
// id does not resolve.
type IdentityResolver interface {
	ResolveUser(id int64) (*types.User, error)
	ResolveGuild(id int64) (*types.Guild, error)
}
