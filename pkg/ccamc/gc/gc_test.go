package gc_test

import (
	"context"
	"testing"

	"github.com/herohde/ccamc/pkg/ccamc"
	"github.com/herohde/ccamc/pkg/ccamc/gc"
	"github.com/herohde/ccamc/pkg/game"
	"github.com/herohde/ccamc/pkg/rules"
	"github.com/herohde/ccamc/pkg/rules/fen"
	"github.com/stretchr/testify/require"
)

func legalMove(t *testing.T, pos *rules.Position, turn rules.Color, uci string) rules.Move {
	t.Helper()
	want, err := rules.ParseMove(uci)
	require.NoError(t, err)

	var found *rules.Move
	for _, cand := range pos.PseudoLegalMoves(turn) {
		if cand.From != want.From || cand.To != want.To || cand.Promotion != want.Promotion {
			continue
		}
		if _, ok := pos.Move(cand); !ok {
			continue
		}
		c := cand
		found = &c
	}
	require.NotNil(t, found)
	return *found
}

func play(t *testing.T, uciMoves ...string) []rules.Move {
	t.Helper()
	pos, turn, _, _, err := fen.Decode(fen.Initial)
	require.NoError(t, err)

	var moves []rules.Move
	for _, u := range uciMoves {
		m := legalMove(t, pos, turn, u)
		moves = append(moves, m)
		next, ok := pos.Move(m)
		require.True(t, ok)
		pos = next
		turn = turn.Opponent()
	}
	return moves
}

func TestRunOnEmptyStoreSweepsCleanly(t *testing.T) {
	ctx := context.Background()
	w, err := ccamc.OpenWriter(ctx, t.TempDir())
	require.NoError(t, err)
	defer w.Close(ctx)

	stats, err := gc.Run(ctx, w)
	require.NoError(t, err)
	require.Equal(t, 0, stats.LiveBlobs)
	require.Equal(t, 0, stats.LiveMetadata)
}

func TestRunPreservesRegisteredGameAfterSweep(t *testing.T) {
	ctx := context.Background()
	w, err := ccamc.OpenWriter(ctx, t.TempDir())
	require.NoError(t, err)
	defer w.Close(ctx)

	_, err = w.Ingest(ctx, "only-game", &game.Tree{Moves: play(t, "e2e4", "e7e5", "g1f3")})
	require.NoError(t, err)
	require.NoError(t, w.Flush(ctx))

	stats, err := gc.Run(ctx, w)
	require.NoError(t, err)
	require.Greater(t, stats.LiveBlobs, 0)

	tree, err := w.Reconstruct(ctx, "only-game")
	require.NoError(t, err)
	require.Len(t, tree.Moves, 3)

	report, err := w.Verify(ctx)
	require.NoError(t, err)
	require.True(t, report.OK())
}
