package game

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/user/weaverdice/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// stubResolver answers identity lookups from fixed maps.
type stubResolver struct {
	users  map[int64]*types.User
	guilds map[int64]*types.Guild
}

func (r *stubResolver) ResolveUser(id int64) (*types.User, error) {
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return nil, types.ErrIdentityNotFound
}

func (r *stubResolver) ResolveGuild(id int64) (*types.Guild, error) {
	if g, ok := r.guilds[id]; ok {
		return g, nil
	}
	return nil, types.ErrIdentityNotFound
}

func testResolver() *stubResolver {
	return &stubResolver{
		users: map[int64]*types.User{
			100: {ID: 100, Name: "alice", DisplayName: "Alice A."},
			200: {ID: 200, Name: "bob", DisplayName: "Bob B."},
		},
		guilds: map[int64]*types.Guild{
			1: {ID: 1, Name: "Test Guild"},
		},
	}
}

func TestAddCharacterReplaces(t *testing.T) {
	resolver := testResolver()
	g := NewGame(1, t.TempDir(), resolver, zap.NewNop())
	alice := resolver.users[100]

	// Test case 1: First character, no replacement line
	reply := g.AddCharacter(alice, CharacterSpec{Name: "Vex", Air: 5})
	assert.True(t, strings.HasPrefix(reply, "New character: "))
	assert.NotContains(t, reply, "Replaces:")
	assert.Len(t, g.UserCharacters, 1)

	// Test case 2: Second setup replaces whole, reporting the old record
	reply = g.AddCharacter(alice, CharacterSpec{Name: "Korra"})
	assert.Contains(t, reply, "New character: ")
	assert.Contains(t, reply, "Replaces: ")
	assert.Contains(t, reply, "Air: 5")
	assert.Len(t, g.UserCharacters, 1)

	// Test case 3: Unset stats reset to defaults rather than carrying over
	c, ok := g.Character(100)
	assert.True(t, ok)
	assert.Equal(t, "Korra", c.Name)
	assert.Equal(t, 0, c.Air)
	assert.Equal(t, 3, c.InitDice)

	// Test case 4: Other owners are untouched
	g.AddCharacter(resolver.users[200], CharacterSpec{Name: "Mako"})
	assert.Len(t, g.UserCharacters, 2)
	_, ok = g.Character(300)
	assert.False(t, ok)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	resolver := testResolver()

	g := NewGame(1, dir, resolver, zap.NewNop())
	g.AddCharacter(resolver.users[100], CharacterSpec{Name: "Vex", Token: "X", Earth: 1, Air: 2, Fire: 3, Water: 4, InitDice: 6})
	g.AddCharacter(resolver.users[200], CharacterSpec{Name: "Mako", Air: 7})
	g.UserCharacters[200].MaskAir = true
	assert.NoError(t, g.Options.Set("rolling_init", "enabled"))

	assert.NoError(t, g.Save())

	// The save directory holds exactly the guild file, no temporary leftovers
	entries, err := os.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "1.json", entries[0].Name())

	loaded := NewGame(1, dir, resolver, zap.NewNop())
	assert.Len(t, loaded.UserCharacters, 2)

	c, ok := loaded.Character(100)
	assert.True(t, ok)
	assert.Equal(t, "Vex", c.Name)
	assert.Equal(t, "X", c.Token)
	assert.Equal(t, 1, c.Earth)
	assert.Equal(t, 2, c.Air)
	assert.Equal(t, 3, c.Fire)
	assert.Equal(t, 4, c.Water)
	assert.Equal(t, 6, c.InitDice)
	assert.Equal(t, "alice", c.Owner.Name)

	c, ok = loaded.Character(200)
	assert.True(t, ok)
	assert.True(t, c.MaskAir)
	assert.False(t, c.MaskEarth)

	value, _ := loaded.Options.Get("rolling_init")
	assert.Equal(t, "enabled", value)
}

func TestLoadNoSaveFile(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	g := NewGame(1, t.TempDir(), testResolver(), zap.New(core))

	assert.Empty(t, g.UserCharacters)
	assert.Empty(t, g.NPCs)
	assert.Equal(t, 1, logs.FilterMessage("no save data").Len())
	assert.Equal(t, 0, logs.FilterMessage("failed to load guild data").Len())
}

func TestLoadDropsUnresolvedOwner(t *testing.T) {
	dir := t.TempDir()
	resolver := testResolver()

	g := NewGame(1, dir, resolver, zap.NewNop())
	g.AddCharacter(resolver.users[100], CharacterSpec{Name: "Vex"})
	g.AddCharacter(resolver.users[200], CharacterSpec{Name: "Mako"})
	assert.NoError(t, g.Save())

	// alice is gone from the platform now
	core, logs := observer.New(zap.WarnLevel)
	shrunk := &stubResolver{
		users:  map[int64]*types.User{200: resolver.users[200]},
		guilds: resolver.guilds,
	}
	loaded := NewGame(1, dir, shrunk, zap.New(core))

	assert.Len(t, loaded.UserCharacters, 1)
	_, ok := loaded.Character(100)
	assert.False(t, ok)
	_, ok = loaded.Character(200)
	assert.True(t, ok)

	dropped := logs.FilterMessage("character owner not found, dropping character record")
	assert.Equal(t, 1, dropped.Len())
	entry := dropped.All()[0].ContextMap()
	assert.Equal(t, int64(100), entry["owner_id"])
	assert.Equal(t, "alice", entry["last_known_name"])
	assert.Equal(t, "Vex", entry["character"])
}

func TestLoadToleratesMissingFields(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "1.json"), []byte(`{
 "userchars": {
  "100": {"name": "Vex", "token": "V", "init": 4}
 },
 "guildid": 1,
 "last_known_name": "Test Guild",
 "options": {"revision": "1"}
}`), 0644))

	core, logs := observer.New(zap.WarnLevel)
	g := NewGame(1, dir, testResolver(), zap.New(core))

	// The record loads with absent fields at their zero values
	c, ok := g.Character(100)
	assert.True(t, ok)
	assert.Equal(t, "Vex", c.Name)
	assert.Equal(t, "V", c.Token)
	assert.Equal(t, 4, c.InitDice)
	assert.Equal(t, 0, c.Earth)
	assert.False(t, c.MaskWater)

	// One warning per absent declared field: four stats plus four masks
	missing := logs.FilterMessage("character missing field")
	assert.Equal(t, 8, missing.Len())
}

func TestLoadBadOwnerID(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "1.json"), []byte(`{
 "userchars": {
  "not-a-number": {"name": "Ghost", "token": "G"}
 },
 "guildid": 1,
 "last_known_name": "Test Guild",
 "options": {"revision": "1"}
}`), 0644))

	core, logs := observer.New(zap.WarnLevel)
	g := NewGame(1, dir, testResolver(), zap.New(core))

	assert.Empty(t, g.UserCharacters)
	assert.Equal(t, 1, logs.FilterMessage("bad owner id in save file, dropping character record").Len())
}
