package game

import (
	"math/rand"
	"time"
)

// DiceRoller handles dice rolling for the game
type DiceRoller struct {
	rng *rand.Rand
}

// NewDiceRoller creates a new dice roller with a seeded random number generator
func NewDiceRoller() *DiceRoller {
	return &DiceRoller{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Roll rolls a dice with the specified number of sides
func (dr *DiceRoller) Roll(sides int) int {
	return dr.rng.Intn(sides) + 1
}

// RollN rolls count dice with the specified number of sides
func (dr *DiceRoller) RollN(count, sides int) []int {
	results := make([]int, count)
	for i := range results {
		results[i] = dr.Roll(sides)
	}
	return results
}

// RollInitiative rolls a character's initiative dice (d10s)
func (dr *DiceRoller) RollInitiative(c *Character) []int {
	return dr.RollN(c.InitDice, 10)
}
