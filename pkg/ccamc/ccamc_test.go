package ccamc_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/herohde/ccamc/pkg/catalog"
	"github.com/herohde/ccamc/pkg/ccamc"
	"github.com/herohde/ccamc/pkg/ccamc/gc"
	"github.com/herohde/ccamc/pkg/ccerr"
	"github.com/herohde/ccamc/pkg/game"
	"github.com/herohde/ccamc/pkg/rules"
	"github.com/herohde/ccamc/pkg/rules/fen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// legalMove resolves a UCI move string (e.g. "e2e4") against pos, mirroring
// how decodeMove recovers a full rules.Move from a position-blind pair of
// squares, so tests can build move lists without depending on SAN parsing.
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
	require.NotNil(t, found, "no legal move %v for %v", uci, turn)
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

func TestOpenWriterThenReaderLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	w, err := ccamc.OpenWriter(ctx, dir)
	require.NoError(t, err)
	require.NoError(t, w.Close(ctx))

	r, err := ccamc.OpenReader(ctx, dir)
	require.NoError(t, err)
	require.NoError(t, r.Close(ctx))
}

func TestOpenWriterTwiceFails(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	w, err := ccamc.OpenWriter(ctx, dir)
	require.NoError(t, err)
	defer w.Close(ctx)

	_, err = ccamc.OpenWriter(ctx, dir)
	assert.Error(t, err)
}

func TestIngestReconstructMainlineRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	w, err := ccamc.OpenWriter(ctx, dir)
	require.NoError(t, err)
	defer w.Close(ctx)

	moves := play(t, "e2e4", "e7e5", "g1f3", "b8c6")
	tree := &game.Tree{
		Headers: []game.Header{{Tag: "Event", Value: "Test Open"}, {Tag: "Result", Value: "1-0"}},
		Moves:   moves,
	}

	entry, err := w.Ingest(ctx, "game-1", tree)
	require.NoError(t, err)
	assert.NotZero(t, entry.FinalBlob)

	got, err := w.Reconstruct(ctx, "game-1")
	require.NoError(t, err)
	require.Len(t, got.Moves, len(moves))
	for i, m := range moves {
		assert.True(t, m.Equals(got.Moves[i]), "move %d mismatch: %v vs %v", i, m, got.Moves[i])
	}

	ev, ok := got.Header("Event")
	require.True(t, ok)
	assert.Equal(t, "Test Open", ev)
	res, ok := got.Header("Result")
	require.True(t, ok)
	assert.Equal(t, "1-0", res)
}

func TestIngestReconstructWithAnnotationsAndVariation(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	w, err := ccamc.OpenWriter(ctx, dir)
	require.NoError(t, err)
	defer w.Close(ctx)

	mainline := play(t, "e2e4", "e7e5", "g1f3")
	variation := play(t, "e2e4", "c7c5")

	tree := &game.Tree{
		Headers: []game.Header{{Tag: "White", Value: "Alice"}, {Tag: "Black", Value: "Bob"}},
		Moves:   mainline,
		Annotations: []game.MoveAnnotation{
			{MoveIndex: 1, Value: game.Comment{Text: "a classical reply", Pre: false}},
			{MoveIndex: 1, Value: game.Variation{Tree: &game.Tree{Moves: variation[1:]}}},
			{MoveIndex: 2, Value: game.NAG{Code: 1}},
		},
	}

	_, err = w.Ingest(ctx, "game-2", tree)
	require.NoError(t, err)

	got, err := w.Reconstruct(ctx, "game-2")
	require.NoError(t, err)
	require.Len(t, got.Moves, len(mainline))
	require.Len(t, got.Annotations, 3)

	var sawComment, sawVariation, sawNAG bool
	for _, a := range got.Annotations {
		switch v := a.Value.(type) {
		case game.Comment:
			sawComment = true
			assert.Equal(t, "a classical reply", v.Text)
		case game.Variation:
			sawVariation = true
			require.Len(t, v.Tree.Moves, len(variation)-1)
			assert.True(t, variation[1].Equals(v.Tree.Moves[0]))
		case game.NAG:
			sawNAG = true
			assert.EqualValues(t, 1, v.Code)
		}
	}
	assert.True(t, sawComment)
	assert.True(t, sawVariation)
	assert.True(t, sawNAG)
}

func TestIngestZeroMoveGame(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	w, err := ccamc.OpenWriter(ctx, dir)
	require.NoError(t, err)
	defer w.Close(ctx)

	tree := &game.Tree{
		Headers: []game.Header{{Tag: "Event", Value: "Forfeit"}, {Tag: "Result", Value: "1/2-1/2"}},
	}

	entry, err := w.Ingest(ctx, "empty", tree)
	require.NoError(t, err)
	assert.NotEqual(t, w.InitHash(), entry.FinalBlob, "a zero-move game still gets its own terminal blob")

	got, err := w.Reconstruct(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, got.Moves)
	res, ok := got.Header("Result")
	require.True(t, ok)
	assert.Equal(t, "1/2-1/2", res)
}

// TestIngestBlobBoundaries: a game of exactly one blob's worth of moves
// stays a single blob, and one more move spills into a second.
func TestIngestBlobBoundaries(t *testing.T) {
	// Knight shuffles are legal indefinitely, so any ply count is reachable.
	shuffle := func(n int) []string {
		cycle := []string{"g1f3", "g8f6", "f3g1", "f6g8"}
		var out []string
		for len(out) < n {
			out = append(out, cycle[len(out)%len(cycle)])
		}
		return out
	}

	tests := []struct {
		name      string
		plies     int
		wantBlobs int
	}{
		{"exactly one blob", 22, 1},
		{"one move over", 23, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()

			w, err := ccamc.OpenWriter(ctx, t.TempDir())
			require.NoError(t, err)
			defer w.Close(ctx)

			moves := play(t, shuffle(tt.plies)...)
			_, err = w.Ingest(ctx, "g", &game.Tree{Moves: moves})
			require.NoError(t, err)
			require.NoError(t, w.Flush(ctx))

			stats, err := gc.Run(ctx, w)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBlobs, stats.LiveBlobs)

			got, err := w.Reconstruct(ctx, "g")
			require.NoError(t, err)
			assert.Len(t, got.Moves, tt.plies)
		})
	}
}

func TestIngestDuplicateGameIdRejected(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	w, err := ccamc.OpenWriter(ctx, dir)
	require.NoError(t, err)
	defer w.Close(ctx)

	tree := &game.Tree{Moves: play(t, "e2e4")}
	_, err = w.Ingest(ctx, "dup", tree)
	require.NoError(t, err)

	_, err = w.Ingest(ctx, "dup", tree)
	assert.True(t, ccerr.Is(err, ccerr.DuplicateGameId))
}

func TestVerifyPassesForHealthyStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	w, err := ccamc.OpenWriter(ctx, dir)
	require.NoError(t, err)
	defer w.Close(ctx)

	_, err = w.Ingest(ctx, "a", &game.Tree{Moves: play(t, "e2e4", "e7e5")})
	require.NoError(t, err)
	_, err = w.Ingest(ctx, "b", &game.Tree{Moves: play(t, "d2d4", "d7d5")})
	require.NoError(t, err)

	report, err := w.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 2, report.Checked)
}

// TestIngestSharedOpeningDedupsAnchorBlob checks that two games sharing an
// opening-catalog line dedup the opening-anchor blob and each append exactly
// one tail blob of their own, for a total of 3 blobs.
func TestIngestSharedOpeningDedupsAnchorBlob(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	w, err := ccamc.OpenWriter(ctx, dir)
	require.NoError(t, err)
	defer w.Close(ctx)

	const tsv = "Ruy Lopez\t1. e4 e5 2. Nf3 Nc6 3. Bb5\n" +
		"Ruy Lopez Main\t1. e4 e5 2. Nf3 Nc6 3. Bb5 a6 4. Ba4 Nf6\n"
	require.NoError(t, w.LoadCatalog(ctx, func(c *catalog.Catalog) error {
		return c.Load(ctx, strings.NewReader(tsv))
	}))

	opening := []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1b5", "a7a6", "b5a4", "g8f6"}
	xMoves := play(t, append(append([]string{}, opening...), "e1g1", "f8e7", "f1e1")...)
	yMoves := play(t, append(append([]string{}, opening...), "e1g1", "b7b5", "a4b3")...)

	_, err = w.Ingest(ctx, "X", &game.Tree{Moves: xMoves})
	require.NoError(t, err)
	require.NoError(t, w.Flush(ctx))

	beforeY, err := gc.Run(ctx, w)
	require.NoError(t, err)

	_, err = w.Ingest(ctx, "Y", &game.Tree{Moves: yMoves})
	require.NoError(t, err)
	require.NoError(t, w.Flush(ctx))

	afterY, err := gc.Run(ctx, w)
	require.NoError(t, err)

	assert.Equal(t, 2, beforeY.LiveBlobs, "opening anchor + X's tail")
	assert.Equal(t, 3, afterY.LiveBlobs, "anchor reused, only Y's tail is new")

	gotX, err := w.Reconstruct(ctx, "X")
	require.NoError(t, err)
	assert.Len(t, gotX.Moves, len(xMoves))
	gotY, err := w.Reconstruct(ctx, "Y")
	require.NoError(t, err)
	assert.Len(t, gotY.Moves, len(yMoves))
}

// TestIngestSameGameTwiceSharesAllStorage: re-ingesting an identical game
// under a new id adds no blobs and no metadata, only a registry entry.
func TestIngestSameGameTwiceSharesAllStorage(t *testing.T) {
	ctx := context.Background()

	w, err := ccamc.OpenWriter(ctx, t.TempDir())
	require.NoError(t, err)
	defer w.Close(ctx)

	tree := &game.Tree{
		Headers: []game.Header{{Tag: "Event", Value: "Rematch"}},
		Moves:   play(t, "e2e4", "e7e5", "g1f3", "b8c6"),
	}

	first, err := w.Ingest(ctx, "first", tree)
	require.NoError(t, err)
	require.NoError(t, w.Flush(ctx))
	before, err := gc.Run(ctx, w)
	require.NoError(t, err)

	second, err := w.Ingest(ctx, "second", tree)
	require.NoError(t, err)
	require.NoError(t, w.Flush(ctx))
	after, err := gc.Run(ctx, w)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, before.LiveBlobs, after.LiveBlobs)
	assert.Equal(t, before.LiveMetadata, after.LiveMetadata)
}

// TestIngestGameEqualToOpeningLine: a game whose moves exactly equal a
// catalog entry reuses the opening-anchor blob as its own terminal blob
// rather than appending a duplicate, so a longer game sharing the opening
// and the exact-length game together produce just two blobs.
func TestIngestGameEqualToOpeningLine(t *testing.T) {
	ctx := context.Background()

	w, err := ccamc.OpenWriter(ctx, t.TempDir())
	require.NoError(t, err)
	defer w.Close(ctx)

	const tsv = "Ruy Lopez Main\t1. e4 e5 2. Nf3 Nc6 3. Bb5 a6 4. Ba4 Nf6\n"
	require.NoError(t, w.LoadCatalog(ctx, func(c *catalog.Catalog) error {
		return c.Load(ctx, strings.NewReader(tsv))
	}))

	opening := []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1b5", "a7a6", "b5a4", "g8f6"}

	_, err = w.Ingest(ctx, "long", &game.Tree{Moves: play(t, append(append([]string{}, opening...), "e1g1")...)})
	require.NoError(t, err)
	_, err = w.Ingest(ctx, "exact", &game.Tree{Moves: play(t, opening...)})
	require.NoError(t, err)
	require.NoError(t, w.Flush(ctx))

	stats, err := gc.Run(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.LiveBlobs, "anchor (shared) + long game's tail")

	got, err := w.Reconstruct(ctx, "exact")
	require.NoError(t, err)
	assert.Len(t, got.Moves, len(opening))
}

func TestGCSweepRetainsReferencedGames(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	w, err := ccamc.OpenWriter(ctx, dir)
	require.NoError(t, err)
	defer w.Close(ctx)

	_, err = w.Ingest(ctx, "keep", &game.Tree{Moves: play(t, "e2e4", "c7c5")})
	require.NoError(t, err)
	require.NoError(t, w.Flush(ctx))

	stats, err := gc.Run(ctx, w)
	require.NoError(t, err)
	assert.Greater(t, stats.LiveBlobs, 0)

	got, err := w.Reconstruct(ctx, "keep")
	require.NoError(t, err)
	assert.Len(t, got.Moves, 2)
}

// TestVerifyReportsPerGameCorruptionWithoutAborting corrupts the on-disk
// move-data byte of one game's sole blob and checks that Verify flags only
// the affected game's IntegrityError while still fully checking the other
// registered game.
func TestVerifyReportsPerGameCorruptionWithoutAborting(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	w, err := ccamc.OpenWriter(ctx, dir)
	require.NoError(t, err)

	_, err = w.Ingest(ctx, "corrupted", &game.Tree{Moves: play(t, "e2e4", "e7e5")})
	require.NoError(t, err)
	_, err = w.Ingest(ctx, "healthy", &game.Tree{Moves: play(t, "d2d4", "d7d5")})
	require.NoError(t, err)
	require.NoError(t, w.Flush(ctx))
	require.NoError(t, w.Close(ctx))

	// "corrupted"'s blob was appended first, so it sits at the first pack
	// slot; flip a byte inside its move-data region (pack header is 16
	// bytes, move-data starts 18 bytes into each 64-byte record).
	packPath := dir + "/moves"
	data, err := os.ReadFile(packPath)
	require.NoError(t, err)
	data[16+20] ^= 0xFF
	require.NoError(t, os.WriteFile(packPath, data, 0644))

	r, err := ccamc.OpenReader(ctx, dir)
	require.NoError(t, err)
	defer r.Close(ctx)

	report, verr := r.Verify(ctx)
	require.NoError(t, verr)
	assert.Equal(t, 2, report.Checked)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "corrupted", report.Errors[0].GameID)
	assert.True(t, ccerr.Is(report.Errors[0].Err, ccerr.IntegrityError))

	_, err = r.Reconstruct(ctx, "healthy")
	assert.NoError(t, err)
}
