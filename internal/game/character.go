package game

import (
	"fmt"
	"strconv"

	"github.com/user/weaverdice/internal/types"
)

// Character represents one player's character in one guild's game.
//
// The four stat axes are the raw 0-255 sheet values. The token is a single
// character used as a short label on an initiative tracker. Each stat carries
// a visibility mask; a masked stat renders as "???" instead of its value.
type Character struct {
	// Owner is the resolved platform user controlling this character.
	Owner *types.User

	Name  string
	Token string

	Earth int
	Air   int
	Fire  int
	Water int

	// InitDice is the number of dice rolled for initiative.
	InitDice int

	MaskEarth bool
	MaskAir   bool
	MaskFire  bool
	MaskWater bool
}

// CharacterSpec carries the optional fields of a character setup request.
// Zero values take the documented defaults: name falls back to the owner's
// account name, token to the first character of the name, stats to 0 and
// InitDice to 3. Token length validation belongs to the caller; a spec that
// reaches construction is trusted.
type CharacterSpec struct {
	Name  string
	Token string
	Earth int
	Air   int
	Fire  int
	Water int
	// InitDice of 0 means "unset" and takes the default of 3.
	InitDice int
}

// NewCharacter builds a character for owner, filling unset spec fields with
// their defaults. No side effects beyond the in-memory record.
func NewCharacter(owner *types.User, spec CharacterSpec) *Character {
	name := spec.Name
	if name == "" {
		name = owner.Name
	}
	token := spec.Token
	if token == "" {
		runes := []rune(name)
		if len(runes) > 0 {
			token = string(runes[:1])
		}
	}
	initDice := spec.InitDice
	if initDice == 0 {
		initDice = 3
	}
	return &Character{
		Owner:    owner,
		Name:     name,
		Token:    token,
		Earth:    spec.Earth,
		Air:      spec.Air,
		Fire:     spec.Fire,
		Water:    spec.Water,
		InitDice: initDice,
	}
}

func statValue(value int, masked bool) string {
	if masked {
		return "???"
	}
	return strconv.Itoa(value)
}

// Format makes the publicly printable one-line character summary.
//
// The detail policy: all four stats when any of earth/fire/water is nonzero,
// just the air stat when only air is nonzero, otherwise no stat section.
func (c *Character) Format() string {
	earth := statValue(c.Earth, c.MaskEarth)
	air := statValue(c.Air, c.MaskAir)
	fire := statValue(c.Fire, c.MaskFire)
	water := statValue(c.Water, c.MaskWater)

	var statsline string
	switch {
	case c.Earth != 0 || c.Fire != 0 || c.Water != 0:
		statsline = fmt.Sprintf("Stats: %s/%s/%s/%s", earth, air, fire, water)
	case c.Air != 0:
		statsline = fmt.Sprintf("Air: %s", air)
	}

	return fmt.Sprintf("Character %s, [%s]. Init: %d %s Owner: %s",
		c.Name, c.Token, c.InitDice, statsline, c.Owner.Name)
}

// document emits every declared save field plus a snapshot of the owner's
// current names. The snapshots are diagnostic only, used when the owner later
// fails to resolve.
func (c *Character) document() *characterDocument {
	return &characterDocument{
		Token:          &c.Token,
		Name:           &c.Name,
		Init:           &c.InitDice,
		Earth:          &c.Earth,
		Air:            &c.Air,
		Fire:           &c.Fire,
		Water:          &c.Water,
		MaskEarth:      &c.MaskEarth,
		MaskAir:        &c.MaskAir,
		MaskFire:       &c.MaskFire,
		MaskWater:      &c.MaskWater,
		LastKnownDName: &c.Owner.Name,
		LastKnownGName: &c.Owner.DisplayName,
	}
}

// characterFromDocument rebuilds a character from its persisted form. The
// save file is a trusted input: fields present in the document are applied
// without re-validation, and missing declared fields are reported through
// missing and left at their zero value.
func characterFromDocument(owner *types.User, doc *characterDocument, missing func(field string)) *Character {
	c := &Character{Owner: owner}

	if doc.Token != nil {
		c.Token = *doc.Token
	} else {
		missing("token")
	}
	if doc.Name != nil {
		c.Name = *doc.Name
	} else {
		missing("name")
	}
	if doc.Init != nil {
		c.InitDice = *doc.Init
	} else {
		missing("init")
	}
	if doc.Earth != nil {
		c.Earth = *doc.Earth
	} else {
		missing("earth")
	}
	if doc.Air != nil {
		c.Air = *doc.Air
	} else {
		missing("air")
	}
	if doc.Fire != nil {
		c.Fire = *doc.Fire
	} else {
		missing("fire")
	}
	if doc.Water != nil {
		c.Water = *doc.Water
	} else {
		missing("water")
	}
	if doc.MaskEarth != nil {
		c.MaskEarth = *doc.MaskEarth
	} else {
		missing("maskearth")
	}
	if doc.MaskAir != nil {
		c.MaskAir = *doc.MaskAir
	} else {
		missing("maskair")
	}
	if doc.MaskFire != nil {
		c.MaskFire = *doc.MaskFire
	} else {
		missing("maskfire")
	}
	if doc.MaskWater != nil {
		c.MaskWater = *doc.MaskWater
	} else {
		missing("maskwater")
	}

	return c
}
