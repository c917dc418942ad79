package game

import (
	"fmt"

	"github.com/user/weaverdice/internal/interfaces"
)

// guildLabel makes a "name (id)" label for log lines, tolerating guilds that
// no longer resolve.
func guildLabel(resolver interfaces.IdentityResolver, id int64) string {
	if resolver != nil {
		if guild, err := resolver.ResolveGuild(id); err == nil {
			return fmt.Sprintf("%s (%d)", guild.Name, id)
		}
	}
	return fmt.Sprintf("<unknown guild> (%d)", id)
}

// userLabel is guildLabel for users.
func userLabel(resolver interfaces.IdentityResolver, id int64) string {
	if resolver != nil {
		if user, err := resolver.ResolveUser(id); err == nil {
			return fmt.Sprintf("%s (%d)", user.Name, id)
		}
	}
	return fmt.Sprintf("<unknown user> (%d)", id)
}
