package whatsapp

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/user/weaverdice/config"
	"github.com/user/weaverdice/internal/game"
	"github.com/user/weaverdice/internal/types"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
)

// fakeResolver answers identity lookups from fixed maps.
type fakeResolver struct {
	users  map[int64]*types.User
	guilds map[int64]*types.Guild
}

func (r *fakeResolver) ResolveUser(id int64) (*types.User, error) {
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return nil, types.ErrIdentityNotFound
}

func (r *fakeResolver) ResolveGuild(id int64) (*types.Guild, error) {
	if g, ok := r.guilds[id]; ok {
		return g, nil
	}
	return nil, types.ErrIdentityNotFound
}

func setupCommands(t *testing.T) (*Commands, *game.Registry, commandContext) {
	t.Helper()

	resolver := &fakeResolver{
		users: map[int64]*types.User{
			5521999000111: {ID: 5521999000111, Name: "Alice", DisplayName: "Alice"},
		},
		guilds: map[int64]*types.Guild{
			12036302524612: {ID: 12036302524612, Name: "Test Group"},
		},
	}
	registry := game.NewRegistry(t.TempDir(), zap.NewNop())
	registry.SetResolver(resolver)

	cfg := config.DefaultConfig()
	h := NewCommands(registry, resolver, cfg, zap.NewNop())

	ctx := commandContext{
		sender:   waTypes.NewJID("5521999000111", waTypes.DefaultUserServer),
		chat:     waTypes.NewJID("12036302524612", waTypes.GroupServer),
		pushName: "Alice",
		isGroup:  true,
	}
	return h, registry, ctx
}

func TestMyCharRuleTable(t *testing.T) {
	h, registry, ctx := setupCommands(t)

	char := func() *game.Character {
		g, ok := registry.Get(12036302524612)
		assert.True(t, ok)
		c, ok := g.Character(5521999000111)
		assert.True(t, ok)
		return c
	}

	// Test case 1: Name only, all defaults
	reply := h.Dispatch(ctx, "mychar Vex")
	assert.Contains(t, reply, "New character: ")
	c := char()
	assert.Equal(t, "Vex", c.Name)
	assert.Equal(t, "V", c.Token)
	assert.Equal(t, 3, c.InitDice)

	// Test case 2: One number is air
	h.Dispatch(ctx, "mychar Vex 10")
	c = char()
	assert.Equal(t, 10, c.Air)
	assert.Equal(t, "V", c.Token)

	// Test case 3: Two numbers are air and init
	h.Dispatch(ctx, "mychar Vex 10 5")
	c = char()
	assert.Equal(t, 10, c.Air)
	assert.Equal(t, 5, c.InitDice)

	// Test case 4: Three numbers are earth, air, fire
	h.Dispatch(ctx, "mychar Vex 1 2 3")
	c = char()
	assert.Equal(t, 1, c.Earth)
	assert.Equal(t, 2, c.Air)
	assert.Equal(t, 3, c.Fire)
	assert.Equal(t, 0, c.Water)

	// Test case 5: Five numbers fill everything
	h.Dispatch(ctx, "mychar Vex 1 2 3 4 6")
	c = char()
	assert.Equal(t, 4, c.Water)
	assert.Equal(t, 6, c.InitDice)

	// Test case 6: A non-integer after the name is the token
	h.Dispatch(ctx, "mychar Vex X 7")
	c = char()
	assert.Equal(t, "X", c.Token)
	assert.Equal(t, 7, c.Air)

	// Test case 7: Quoted names keep their spaces
	h.Dispatch(ctx, `mychar "Lady Vex" 5`)
	c = char()
	assert.Equal(t, "Lady Vex", c.Name)
	assert.Equal(t, "L", c.Token)
}

func TestMyCharRejections(t *testing.T) {
	h, _, ctx := setupCommands(t)

	// Test case 1: Multi-character token
	reply := h.Dispatch(ctx, "mychar Vex XY 1")
	assert.Contains(t, reply, "Token must be one character")

	// Test case 2: Garbage among the numbers
	reply = h.Dispatch(ctx, "mychar Vex 1 banana")
	assert.Contains(t, reply, "is not a number")

	// Test case 3: Too many numbers
	reply = h.Dispatch(ctx, "mychar Vex 1 2 3 4 5 6")
	assert.Contains(t, reply, "too many numbers")

	// Test case 4: No name at all
	reply = h.Dispatch(ctx, "mychar")
	assert.Contains(t, reply, "missing character name")

	// Test case 5: Not in a group chat
	dm := ctx
	dm.isGroup = false
	reply = h.Dispatch(dm, "mychar Vex")
	assert.Equal(t, "Character setup only works in a group chat.", reply)
}

func TestCharAndInit(t *testing.T) {
	h, _, ctx := setupCommands(t)

	// Test case 1: No character yet
	reply := h.Dispatch(ctx, "char")
	assert.Contains(t, reply, "No character here yet")
	reply = h.Dispatch(ctx, "init")
	assert.Contains(t, reply, "No character here yet")

	// Test case 2: After setup, char echoes the summary
	h.Dispatch(ctx, "mychar Vex X 1 2 3")
	reply = h.Dispatch(ctx, "char")
	assert.Equal(t, "Character Vex, [X]. Init: 3 Stats: 1/2/3/0 Owner: Alice", reply)

	// Test case 3: Init rolls one d10 per initiative die
	reply = h.Dispatch(ctx, "init")
	assert.True(t, strings.HasPrefix(reply, "Init for Vex [X]: "))
	rolls := strings.Split(strings.TrimPrefix(reply, "Init for Vex [X]: "), ", ")
	assert.Len(t, rolls, 3)
}

func TestRollCommand(t *testing.T) {
	h, _, ctx := setupCommands(t)

	// Test case 1: Missing expression
	reply := h.Dispatch(ctx, "roll")
	assert.Contains(t, reply, "missing dice expression")

	// Test case 2: Unparseable expression
	reply = h.Dispatch(ctx, "roll banana")
	assert.True(t, strings.HasPrefix(reply, "**RollError**"))

	// Test case 3: A fixed roll produces a result line
	reply = h.Dispatch(ctx, "roll 1d1")
	assert.NotEmpty(t, reply)
	assert.False(t, strings.HasPrefix(reply, "**"))
}

func TestOptionCommand(t *testing.T) {
	h, registry, ctx := setupCommands(t)

	// Test case 1: Bare option lists the catalog
	reply := h.Dispatch(ctx, "option")
	assert.Contains(t, reply, "Reaction Rules")
	assert.Contains(t, reply, "Rolling Initiative Rule")

	// Test case 2: Setting a valid value
	reply = h.Dispatch(ctx, "option reaction_type 4.1")
	assert.Equal(t, "reaction_type = 4.1", reply)
	g, _ := registry.Get(12036302524612)
	value, _ := g.Options.Get("reaction_type")
	assert.Equal(t, "4.1", value)

	// Test case 3: Invalid value and unknown option get distinct kinds
	reply = h.Dispatch(ctx, "option reaction_type nope")
	assert.True(t, strings.HasPrefix(reply, "**BadValue**"))
	reply = h.Dispatch(ctx, "option ghost 1")
	assert.True(t, strings.HasPrefix(reply, "**BadOption**"))

	// Test case 4: The plural alias routes the same way
	reply = h.Dispatch(ctx, "options reaction_type")
	assert.Contains(t, reply, "Reaction Rules [reaction_type] = 4.1")
}

func TestSaveAndUnknownCommands(t *testing.T) {
	h, _, ctx := setupCommands(t)

	// Test case 1: Save reports completion
	h.Dispatch(ctx, "mychar Vex")
	reply := h.Dispatch(ctx, "save")
	assert.Equal(t, "Saved.", reply)

	// Test case 2: Unknown commands point at help
	reply = h.Dispatch(ctx, "dance")
	assert.Equal(t, "Unknown command. Try ]help.", reply)

	// Test case 3: Help lists every command
	reply = h.Dispatch(ctx, "help")
	for _, want := range []string{"]roll", "]mychar", "]char", "]init", "]option", "]save"} {
		assert.Contains(t, reply, want)
	}

	// Test case 4: Blank input is silently ignored
	assert.Equal(t, "", h.Dispatch(ctx, "   "))
}

func TestAdminSaveSerializedWithDispatch(t *testing.T) {
	h, registry, ctx := setupCommands(t)

	// Admin saves run concurrently with command dispatch; both must go
	// through the dispatch lock, so this holds up under the race detector
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			h.SaveAll()
			h.Summaries()
		}
	}()
	for i := 0; i < 50; i++ {
		h.Dispatch(ctx, "mychar Vex 1 2 3")
	}
	wg.Wait()

	assert.Equal(t, 1, h.SaveAll())
	g, ok := registry.Get(12036302524612)
	assert.True(t, ok)
	c, ok := g.Character(5521999000111)
	assert.True(t, ok)
	assert.Equal(t, "Vex", c.Name)
}

func TestGuildSummaries(t *testing.T) {
	h, _, ctx := setupCommands(t)

	// Test case 1: No sessions yet
	assert.Empty(t, h.Summaries())

	// Test case 2: One session with one character
	h.Dispatch(ctx, "mychar Vex")
	summaries := h.Summaries()
	assert.Len(t, summaries, 1)
	assert.Equal(t, int64(12036302524612), summaries[0].GuildID)
	assert.Equal(t, 1, summaries[0].UserChars)
	assert.Equal(t, 0, summaries[0].NPCs)
}

func TestSplitArgs(t *testing.T) {
	assert.Equal(t, []string{"mychar", "Vex", "1"}, splitArgs("mychar Vex 1"))
	assert.Equal(t, []string{"mychar", "Lady Vex", "5"}, splitArgs(`mychar "Lady Vex" 5`))
	assert.Empty(t, splitArgs("   "))
	assert.Equal(t, []string{"a", "b"}, splitArgs("  a   b  "))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abcd", 2))
	assert.Equal(t, "abcd", truncate("abcd", 0))

	// Clips whole runes, never leaves a partial UTF-8 sequence
	assert.Equal(t, "a", truncate("aüb", 2))
}
