package whatsapp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/justinian/dice"
	"github.com/user/weaverdice/config"
	"github.com/user/weaverdice/internal/game"
	"github.com/user/weaverdice/internal/interfaces"
	"github.com/user/weaverdice/internal/types"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
)

const mycharUsage = "mychar <name> [token] [(air | air init | earth air fire [water [init]])]"

// Commands turns inbound chat messages into game operations and renders the
// returned strings back to the requesting chat. All game-mutating handling is
// serialized behind a single mutex, which keeps the core's one-operation-at-
// a-time-per-guild contract without any locking inside the core.
type Commands struct {
	registry *game.Registry
	resolver interfaces.IdentityResolver
	config   config.Config
	logger   *zap.Logger
	dice     *game.DiceRoller

	dispatchMu sync.Mutex
}

// commandContext carries the identity of one inbound command.
type commandContext struct {
	sender   waTypes.JID
	chat     waTypes.JID
	pushName string
	isGroup  bool
}

// NewCommands creates the command dispatcher.
func NewCommands(registry *game.Registry, resolver interfaces.IdentityResolver, cfg config.Config, logger *zap.Logger) *Commands {
	return &Commands{
		registry: registry,
		resolver: resolver,
		config:   cfg,
		logger:   logger,
		dice:     game.NewDiceRoller(),
	}
}

func (h *Commands) prefix() string {
	return h.config.WhatsApp.CommandPrefix
}

// Dispatch routes one command line (already stripped of the command prefix)
// and returns the chat reply, or "" for no reply.
func (h *Commands) Dispatch(ctx commandContext, input string) string {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()

	input = strings.TrimSpace(input)
	fields := splitArgs(input)
	if len(fields) == 0 {
		return ""
	}
	name := strings.ToLower(fields[0])
	args := fields[1:]

	// Raw remainder, for commands whose argument may contain spaces
	rest := strings.TrimSpace(strings.TrimPrefix(input, fields[0]))

	switch name {
	case "roll":
		return h.handleRoll(rest)
	case "mychar":
		return h.handleMyChar(ctx, args)
	case "char":
		return h.handleChar(ctx)
	case "init":
		return h.handleInit(ctx)
	case "save":
		return h.handleSave()
	case "option", "options":
		return h.handleOption(ctx, args)
	case "help":
		return h.handleHelp()
	default:
		return "Unknown command. Try " + h.prefix() + "help."
	}
}

// SaveAll persists every live game on behalf of the admin surface and the
// shutdown path. Runs under the dispatch lock so a save never interleaves
// with a game mutation; the chat save command gets the same guarantee by
// running inside Dispatch.
func (h *Commands) SaveAll() int {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()
	return h.registry.SaveAll()
}

// GuildSummary is a point-in-time view of one live session.
type GuildSummary struct {
	GuildID   int64 `json:"guild_id"`
	UserChars int   `json:"user_chars"`
	NPCs      int   `json:"npcs"`
}

// Summaries snapshots every live session under the dispatch lock, so the
// counts never read a session mid-mutation.
func (h *Commands) Summaries() []GuildSummary {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()

	games := h.registry.All()
	summaries := make([]GuildSummary, 0, len(games))
	for _, g := range games {
		summaries = append(summaries, GuildSummary{
			GuildID:   g.GuildID,
			UserChars: len(g.UserCharacters),
			NPCs:      len(g.NPCs),
		})
	}
	return summaries
}

// handleRoll evaluates a dice expression. The grammar is the dice library's,
// not ours.
func (h *Commands) handleRoll(expression string) string {
	if expression == "" {
		return h.commandError("BadArgument", "missing dice expression", "roll <expression>")
	}

	result, reason, err := dice.Roll(expression)
	if err != nil {
		return h.commandError("RollError", err.Error(), "roll <expression>")
	}

	out := result.String()
	if reason != "" {
		out += " (" + reason + ")"
	}
	return out
}

// handleMyChar sets up the sender's character all in one go, replacing any
// prior record whole. The positional-number rule table:
//
//	0 numbers: no stats
//	1: air
//	2: air, init
//	3: earth, air, fire
//	4: earth, air, fire, water
//	5: earth, air, fire, water, init
//
// The first post-name argument is the token only when it does not parse as an
// integer.
func (h *Commands) handleMyChar(ctx commandContext, args []string) string {
	if !ctx.isGroup {
		return "Character setup only works in a group chat."
	}
	if len(args) < 1 {
		return h.commandError("BadArgument", "missing character name", mycharUsage)
	}

	spec := game.CharacterSpec{Name: args[0]}
	rest := args[1:]

	if len(rest) > 0 {
		if _, err := strconv.Atoi(rest[0]); err != nil {
			spec.Token = rest[0]
			rest = rest[1:]
		}
	}
	if spec.Token != "" && utf8.RuneCountInString(spec.Token) != 1 {
		return h.commandError("BadArgument", "Token must be one character", mycharUsage)
	}

	nums := make([]int, 0, len(rest))
	for _, arg := range rest {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return h.commandError("BadArgument", fmt.Sprintf("%q is not a number", arg), mycharUsage)
		}
		nums = append(nums, n)
	}

	switch len(nums) {
	case 0:
	case 1:
		spec.Air = nums[0]
	case 2:
		spec.Air = nums[0]
		spec.InitDice = nums[1]
	case 3:
		spec.Earth, spec.Air, spec.Fire = nums[0], nums[1], nums[2]
	case 4:
		spec.Earth, spec.Air, spec.Fire, spec.Water = nums[0], nums[1], nums[2], nums[3]
	case 5:
		spec.Earth, spec.Air, spec.Fire, spec.Water = nums[0], nums[1], nums[2], nums[3]
		spec.InitDice = nums[4]
	default:
		return h.commandError("BadArgument", "too many numbers", mycharUsage)
	}

	guild, err := h.guildGame(ctx)
	if err != nil {
		return h.commandError("BadGuild", err.Error(), "")
	}
	owner, err := h.senderUser(ctx)
	if err != nil {
		return h.commandError("BadUser", err.Error(), "")
	}

	return guild.AddCharacter(owner, spec)
}

// handleChar shows the sender's current character summary.
func (h *Commands) handleChar(ctx commandContext) string {
	if !ctx.isGroup {
		return "Characters live in group chats."
	}
	guild, err := h.guildGame(ctx)
	if err != nil {
		return h.commandError("BadGuild", err.Error(), "")
	}
	senderID, err := jidUserID(ctx.sender)
	if err != nil {
		return h.commandError("BadUser", err.Error(), "")
	}
	c, ok := guild.Character(senderID)
	if !ok {
		return "No character here yet. Set one up with " + h.prefix() + mycharUsage
	}
	return c.Format()
}

// handleInit rolls the sender's initiative dice.
func (h *Commands) handleInit(ctx commandContext) string {
	if !ctx.isGroup {
		return "Initiative lives in group chats."
	}
	guild, err := h.guildGame(ctx)
	if err != nil {
		return h.commandError("BadGuild", err.Error(), "")
	}
	senderID, err := jidUserID(ctx.sender)
	if err != nil {
		return h.commandError("BadUser", err.Error(), "")
	}
	c, ok := guild.Character(senderID)
	if !ok {
		return "No character here yet. Set one up with " + h.prefix() + mycharUsage
	}

	rolls := h.dice.RollInitiative(c)
	parts := make([]string, len(rolls))
	for i, roll := range rolls {
		parts[i] = strconv.Itoa(roll)
	}
	return fmt.Sprintf("Init for %s [%s]: %s", c.Name, c.Token, strings.Join(parts, ", "))
}

// handleSave persists every live game.
func (h *Commands) handleSave() string {
	h.registry.SaveAll()
	return "Saved."
}

// handleOption lists the option catalog, shows one option, or sets a value.
func (h *Commands) handleOption(ctx commandContext, args []string) string {
	if !ctx.isGroup {
		return "Game options live in group chats."
	}
	guild, err := h.guildGame(ctx)
	if err != nil {
		return h.commandError("BadGuild", err.Error(), "")
	}

	switch len(args) {
	case 0:
		var b strings.Builder
		for _, opt := range guild.Options.All() {
			b.WriteString(describeOption(opt))
			b.WriteString("\n")
		}
		b.WriteString("Set one with " + h.prefix() + "option <id> <value>")
		return b.String()
	case 1:
		for _, opt := range guild.Options.All() {
			if opt.ID == args[0] {
				return describeOption(opt)
			}
		}
		return h.commandError("BadOption", "no such option: "+args[0], "option [id] [value]")
	case 2:
		if err := guild.Options.Set(args[0], args[1]); err != nil {
			kind := "BadValue"
			if errors.Is(err, game.ErrUnknownOption) {
				kind = "BadOption"
			}
			return h.commandError(kind, err.Error(), "option <id> <value>")
		}
		return fmt.Sprintf("%s = %s", args[0], args[1])
	default:
		return h.commandError("BadArgument", "too many arguments", "option [id] [value]")
	}
}

func describeOption(opt *game.Option) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] = %s\n", opt.Name, opt.ID, opt.Value)
	fmt.Fprintf(&b, "  %s\n", opt.Desc)
	for i, choice := range opt.Choices {
		meaning := ""
		if i < len(opt.Meanings) {
			meaning = opt.Meanings[i]
		}
		fmt.Fprintf(&b, "  %s: %s\n", choice, meaning)
	}
	return b.String()
}

func (h *Commands) handleHelp() string {
	p := h.prefix()
	return strings.Join([]string{
		"WeaverDice commands:",
		p + "roll <expression> - roll a dice expression",
		p + mycharUsage + " - set up your character (replaces any prior one)",
		p + "char - show your character",
		p + "init - roll your initiative dice",
		p + "option [id] [value] - show or set game options",
		p + "save - save all games",
		p + "help - this text",
	}, "\n")
}

// guildGame resolves the invoking chat to its game session, creating one on
// first interaction.
func (h *Commands) guildGame(ctx commandContext) (*game.Game, error) {
	guildID, err := jidUserID(ctx.chat)
	if err != nil {
		return nil, err
	}
	return h.registry.GetOrCreate(guildID), nil
}

// senderUser builds the invoking user's identity from the message envelope,
// falling back to the resolver when the push name is absent.
func (h *Commands) senderUser(ctx commandContext) (*types.User, error) {
	senderID, err := jidUserID(ctx.sender)
	if err != nil {
		return nil, err
	}
	if ctx.pushName != "" {
		return &types.User{ID: senderID, Name: ctx.pushName, DisplayName: ctx.pushName}, nil
	}
	if user, rerr := h.resolver.ResolveUser(senderID); rerr == nil {
		return user, nil
	}
	return &types.User{ID: senderID, Name: ctx.sender.User, DisplayName: ctx.sender.User}, nil
}

// commandError formats a failure the way it is surfaced to the chat, clipped
// to the transport message limit.
func (h *Commands) commandError(kind, message, usage string) string {
	out := fmt.Sprintf("**%s**: %s", kind, message)
	if usage != "" {
		out += " `" + h.prefix() + usage + "`"
	}
	return truncate(out, h.config.Game.MessageLimit)
}

// truncate clips a reply to the transport's message-size limit.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	// Clip on a rune boundary
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

// splitArgs splits a command line on whitespace, honoring "quoted multi-word"
// arguments.
func splitArgs(s string) []string {
	var args []string
	var cur strings.Builder
	inQuote := false

	flush := func() {
		if cur.Len() > 0 {
			args = append(args, cur.String())
			cur.Reset()
		}
	}

	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
		case unicode.IsSpace(r) && !inQuote:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return args
}
