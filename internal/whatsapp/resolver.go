package whatsapp

import (
	"fmt"
	"strconv"

	"github.com/user/weaverdice/internal/types"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
)

// jidUserID extracts the numeric platform id from a JID's user part. User
// JIDs carry a phone number there, group JIDs a numeric group id.
func jidUserID(jid waTypes.JID) (int64, error) {
	id, err := strconv.ParseInt(jid.User, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric JID user part %q: %w", jid.User, err)
	}
	return id, nil
}

// userJID rebuilds a user JID from a numeric id.
func userJID(id int64) waTypes.JID {
	return waTypes.NewJID(strconv.FormatInt(id, 10), waTypes.DefaultUserServer)
}

// groupJID rebuilds a group JID from a numeric id.
func groupJID(id int64) waTypes.JID {
	return waTypes.NewJID(strconv.FormatInt(id, 10), waTypes.GroupServer)
}

// Resolver resolves numeric user and guild ids against the connected WhatsApp
// client's contact and group stores. It implements interfaces.IdentityResolver
// for the game core.
type Resolver struct {
	clientManager *ClientManager
	logger        *zap.Logger
}

// NewResolver creates a resolver backed by the client manager's primary
// client.
func NewResolver(clientManager *ClientManager, logger *zap.Logger) *Resolver {
	return &Resolver{
		clientManager: clientManager,
		logger:        logger,
	}
}

// ResolveUser looks a user up in the contact store. Returns
// types.ErrIdentityNotFound when the contact is gone or no client is
// connected.
func (r *Resolver) ResolveUser(id int64) (*types.User, error) {
	client := r.clientManager.primaryClient()
	if client == nil {
		return nil, fmt.Errorf("%w: no connected client", types.ErrIdentityNotFound)
	}

	contact, err := client.Store.Contacts.GetContact(userJID(id))
	if err != nil {
		return nil, fmt.Errorf("contact lookup failed: %w", err)
	}
	if !contact.Found {
		return nil, types.ErrIdentityNotFound
	}

	name := contact.PushName
	if name == "" {
		name = contact.FullName
	}
	if name == "" {
		name = strconv.FormatInt(id, 10)
	}
	displayName := contact.FullName
	if displayName == "" {
		displayName = name
	}

	return &types.User{ID: id, Name: name, DisplayName: displayName}, nil
}

// ResolveGuild looks a group up through the connected client.
func (r *Resolver) ResolveGuild(id int64) (*types.Guild, error) {
	client := r.clientManager.primaryClient()
	if client == nil {
		return nil, fmt.Errorf("%w: no connected client", types.ErrIdentityNotFound)
	}

	info, err := client.GetGroupInfo(groupJID(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrIdentityNotFound, err)
	}

	return &types.Guild{ID: id, Name: info.Name}, nil
}
