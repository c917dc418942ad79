package game

import (
	"sort"
	"sync"

	"github.com/user/weaverdice/internal/interfaces"
	"go.uber.org/zap"
)

// Registry is the process-scoped container of live game sessions, one per
// known guild. It is constructed once at startup and passed explicitly to the
// command layer; sessions are created lazily and live until shutdown.
//
// The map itself is guarded because chat-event delivery is not guaranteed to
// be single-threaded; the sessions inside are not, per the one-operation-at-a-
// time contract in Game.
type Registry struct {
	games    map[int64]*Game
	dataDir  string
	resolver interfaces.IdentityResolver
	logger   *zap.Logger
	mutex    sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry(dataDir string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		games:   make(map[int64]*Game),
		dataDir: dataDir,
		logger:  logger,
	}
}

// SetResolver wires the identity resolver. Must be called before any session
// is created; sessions are handed the resolver at construction.
func (r *Registry) SetResolver(resolver interfaces.IdentityResolver) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.resolver = resolver
}

// Get returns the live session for a guild, if one exists.
func (r *Registry) Get(guildID int64) (*Game, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	g, ok := r.games[guildID]
	return g, ok
}

// GetOrCreate returns the guild's session, creating and loading it on first
// sight.
func (r *Registry) GetOrCreate(guildID int64) *Game {
	r.mutex.RLock()
	g, ok := r.games[guildID]
	r.mutex.RUnlock()
	if ok {
		return g
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if g, ok := r.games[guildID]; ok {
		return g
	}
	g = NewGame(guildID, r.dataDir, r.resolver, r.logger)
	r.games[guildID] = g
	return g
}

// Populate creates sessions for every guild in ids, used at startup once the
// joined guilds are enumerated.
func (r *Registry) Populate(ids []int64) {
	for _, id := range ids {
		r.GetOrCreate(id)
	}
}

// All returns the live sessions in stable guild-id order.
func (r *Registry) All() []*Game {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ids := make([]int64, 0, len(r.games))
	for id := range r.games {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	games := make([]*Game, 0, len(ids))
	for _, id := range ids {
		games = append(games, r.games[id])
	}
	return games
}

// SaveAll persists every live session, logging failures rather than stopping.
// Returns the number of sessions saved successfully.
func (r *Registry) SaveAll() int {
	saved := 0
	for _, g := range r.All() {
		if err := g.Save(); err != nil {
			r.logger.Error("failed to save guild",
				zap.Int64("guild_id", g.GuildID),
				zap.Error(err))
			continue
		}
		saved++
	}
	return saved
}
