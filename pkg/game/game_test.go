package game_test

import (
	"testing"

	"github.com/herohde/ccamc/pkg/game"
	"github.com/herohde/ccamc/pkg/rules"
	"github.com/stretchr/testify/assert"
)

func TestTreeHeader(t *testing.T) {
	tr := &game.Tree{Headers: []game.Header{{Tag: "White", Value: "Fischer"}}}

	v, ok := tr.Header("White")
	assert.True(t, ok)
	assert.Equal(t, "Fischer", v)

	_, ok = tr.Header("Black")
	assert.False(t, ok)
}

func TestAnnotationTypes(t *testing.T) {
	assert.Equal(t, game.AnnotationComment, game.Comment{}.Type())
	assert.Equal(t, game.AnnotationNAG, game.NAG{}.Type())
	assert.Equal(t, game.AnnotationVariation, game.Variation{}.Type())
	assert.Equal(t, game.AnnotationNewline, game.Newline{}.Type())
}

func TestMoveAnnotationOrdering(t *testing.T) {
	tr := &game.Tree{
		Moves: []rules.Move{{}, {}},
		Annotations: []game.MoveAnnotation{
			{MoveIndex: 0, Value: game.Comment{Text: "opening"}},
			{MoveIndex: 0, Value: game.NAG{Code: 1}},
			{MoveIndex: 1, Value: game.Variation{Tree: &game.Tree{}}},
		},
	}

	var atZero int
	for _, a := range tr.Annotations {
		if a.MoveIndex == 0 {
			atZero++
		}
	}
	assert.Equal(t, 2, atZero)
	assert.Equal(t, game.AnnotationComment, tr.Annotations[0].Value.Type())
	assert.Equal(t, game.AnnotationNAG, tr.Annotations[1].Value.Type())
}
