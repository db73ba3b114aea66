package rules_test

import (
	"testing"

	"github.com/herohde/ccamc/pkg/rules"
	"github.com/stretchr/testify/assert"
)

func TestRank(t *testing.T) {
	assert.True(t, rules.Rank1.IsValid())
	assert.True(t, rules.Rank3.IsValid())
	assert.True(t, rules.Rank8.IsValid())
	assert.False(t, rules.Rank(8).IsValid())

	assert.Equal(t, rules.Rank1.String(), "1")
	assert.Equal(t, rules.Rank7.String(), "7")
	assert.Equal(t, rules.Rank(4).String(), "5")
}

func TestFile(t *testing.T) {
	assert.True(t, rules.FileA.IsValid())
	assert.True(t, rules.FileB.IsValid())
	assert.True(t, rules.FileH.IsValid())
	assert.False(t, rules.File(8).IsValid())

	assert.Equal(t, rules.FileA.String(), "A")
	assert.Equal(t, rules.FileG.String(), "G")
	assert.Equal(t, rules.File(3).String(), "D")
}

func TestSquare(t *testing.T) {
	assert.Equal(t, rules.C2, rules.NewSquare(rules.FileC, rules.Rank2))
	assert.Equal(t, rules.G5, rules.NewSquare(rules.FileG, rules.Rank5))

	assert.True(t, rules.H1.IsValid())
	assert.True(t, rules.D4.IsValid())
	assert.True(t, rules.A8.IsValid())
	assert.False(t, rules.Square(64).IsValid())

	assert.Equal(t, rules.H1.String(), "H1")
	assert.Equal(t, rules.A1.String(), "A1")
	assert.Equal(t, rules.Square(3).String(), "D1")

	// square = rank*8 + file, matching pkg/codec's numbering directly.
	assert.Equal(t, rules.Square(0), rules.A1)
	assert.Equal(t, rules.Square(63), rules.H8)
}
