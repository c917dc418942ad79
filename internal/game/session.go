package game

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/user/weaverdice/internal/interfaces"
	"github.com/user/weaverdice/internal/types"
	"go.uber.org/zap"
)

// Game owns one guild's full state: the player character records keyed by
// owner identity, a reserved NPC collection and an option registry. One game
// per guild, created lazily and kept for the life of the process.
//
// Operations take no locks; callers are expected to dispatch one operation at
// a time per guild. In particular at most one Save or Load may be in flight
// for a given guild.
type Game struct {
	// GuildID is the guild's opaque external id, immutable after construction.
	GuildID int64

	// UserCharacters maps owner identity to that owner's single character.
	UserCharacters map[int64]*Character

	// NPCs is reserved and currently never populated.
	NPCs map[string]*Character

	// Options is this session's registry of configurable game rules.
	Options *Options

	dataDir  string
	resolver interfaces.IdentityResolver
	logger   *zap.Logger

	// Guild name as of the last successful load, for save-time diagnostics
	// when the guild itself no longer resolves.
	lastKnownName string
}

// NewGame creates a guild's game session and immediately attempts to load its
// persisted state. Load failures are logged, never escalated; the session
// starts empty in that case.
func NewGame(guildID int64, dataDir string, resolver interfaces.IdentityResolver, logger *zap.Logger) *Game {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Game{
		GuildID:        guildID,
		UserCharacters: make(map[int64]*Character),
		NPCs:           make(map[string]*Character),
		Options:        NewOptions(logger),
		dataDir:        dataDir,
		resolver:       resolver,
		logger:         logger,
	}
	g.logger.Info("guild created", zap.String("guild", g.guildLabel()))
	if err := g.Load(); err != nil {
		g.logger.Error("failed to load guild data",
			zap.String("guild", g.guildLabel()),
			zap.Error(err))
	}
	return g
}

func (g *Game) guildLabel() string {
	return guildLabel(g.resolver, g.GuildID)
}

// AddCharacter sets up a player character tied to the owner's identity. Any
// prior record for that owner is replaced whole: stats left unset in spec
// reset to their defaults rather than carrying over. Returns the confirmation
// text for the requesting user.
func (g *Game) AddCharacter(owner *types.User, spec CharacterSpec) string {
	oldChar := g.UserCharacters[owner.ID]

	newChar := NewCharacter(owner, spec)
	g.UserCharacters[owner.ID] = newChar

	lines := []string{"New character: " + newChar.Format()}
	if oldChar != nil {
		lines = append(lines, "Replaces: "+oldChar.Format())
	}
	return strings.Join(lines, "\n")
}

// Character returns the invoking owner's character record, if any.
func (g *Game) Character(ownerID int64) (*Character, bool) {
	c, ok := g.UserCharacters[ownerID]
	return c, ok
}

// Save persists the full session to the guild's save file. The write goes to
// a temporary file first and is hard-linked into place, so the save file is
// never observed half-written.
func (g *Game) Save() error {
	guildName := g.lastKnownName
	if guild, err := g.resolver.ResolveGuild(g.GuildID); err == nil {
		guildName = guild.Name
	}

	doc := &saveDocument{
		UserChars:     make(map[string]*characterDocument, len(g.UserCharacters)),
		GuildID:       g.GuildID,
		LastKnownName: guildName,
		Options:       g.Options.Serialize(),
	}
	for ownerID, c := range g.UserCharacters {
		doc.UserChars[strconv.FormatInt(ownerID, 10)] = c.document()
	}

	data, err := json.MarshalIndent(doc, "", " ")
	if err != nil {
		return fmt.Errorf("failed to marshal guild data: %w", err)
	}
	if err := writeLinked(g.dataDir, savePath(g.dataDir, g.GuildID), data); err != nil {
		return err
	}

	g.logger.Info("guild saved",
		zap.String("guild", g.guildLabel()),
		zap.Int("user_chars", len(g.UserCharacters)),
		zap.Int("npcs", len(g.NPCs)))
	return nil
}

// Load restores the session from the guild's save file. A missing file is
// normal for a brand-new guild and leaves the session empty. Characters whose
// owner no longer resolves are dropped with a warning; the options block is
// overlaid best-effort onto a fresh registry.
func (g *Game) Load() error {
	if len(g.UserCharacters) > 0 || len(g.NPCs) > 0 {
		g.logger.Error("load called on active game, live data will be overwritten",
			zap.String("guild", g.guildLabel()))
	}

	path := savePath(g.dataDir, g.GuildID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		g.logger.Info("no save data", zap.String("guild", g.guildLabel()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read save file: %w", err)
	}

	var doc saveDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse save file: %w", err)
	}
	g.lastKnownName = doc.LastKnownName

	g.UserCharacters = make(map[int64]*Character, len(doc.UserChars))
	for idStr, charDoc := range doc.UserChars {
		ownerID, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			g.logger.Warn("bad owner id in save file, dropping character record",
				zap.String("owner_id", idStr),
				zap.String("guild", g.guildLabel()))
			continue
		}

		owner, err := g.resolver.ResolveUser(ownerID)
		if err != nil {
			lastKnown := ""
			if charDoc.LastKnownDName != nil {
				lastKnown = *charDoc.LastKnownDName
			}
			charName := "INVALID"
			if charDoc.Name != nil {
				charName = *charDoc.Name
			}
			g.logger.Warn("character owner not found, dropping character record",
				zap.Int64("owner_id", ownerID),
				zap.String("last_known_name", lastKnown),
				zap.String("character", charName),
				zap.String("guild", g.guildLabel()))
			continue
		}

		g.UserCharacters[owner.ID] = characterFromDocument(owner, charDoc, func(field string) {
			charName := ""
			if charDoc.Name != nil {
				charName = *charDoc.Name
			}
			g.logger.Warn("character missing field",
				zap.String("field", field),
				zap.String("character", charName),
				zap.String("owner", userLabel(g.resolver, ownerID)),
				zap.String("guild", g.guildLabel()))
		})
	}

	g.Options = NewOptions(g.logger)
	if doc.Options != nil {
		g.Options.Apply(doc.Options, g.guildLabel())
	}

	g.logger.Info("guild loaded",
		zap.String("guild", g.guildLabel()),
		zap.Int("user_chars", len(g.UserCharacters)),
		zap.Int("npcs", len(g.NPCs)))
	return nil
}
