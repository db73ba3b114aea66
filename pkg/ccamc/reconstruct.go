package ccamc

import (
	"context"

	"github.com/herohde/ccamc/pkg/blob"
	"github.com/herohde/ccamc/pkg/ccerr"
	"github.com/herohde/ccamc/pkg/game"
	"github.com/herohde/ccamc/pkg/metadata"
	"github.com/herohde/ccamc/pkg/rules"
	"github.com/seekerror/logw"
)

var resultTagNames = map[blob.Result]string{
	blob.WhiteWins: "1-0",
	blob.BlackWins: "0-1",
	blob.Draw:      "1/2-1/2",
}

// Reconstruct replays the stored blob chain and metadata for game id back
// into an abstract game tree.
func (s *Store) Reconstruct(ctx context.Context, id string) (*game.Tree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.reg.Lookup(id)
	if err != nil {
		return nil, err
	}

	startPos, startTurn, _, _, err := initialPosition()
	if err != nil {
		return nil, ccerr.New(ccerr.IntegrityError, "ccamc.Reconstruct", err)
	}

	tree, err := s.reconstructTree(entry.FinalBlob, entry.Metadata, s.initHash, startPos, startTurn, true)
	if err != nil {
		return nil, err
	}

	logw.Infof(ctx, "Reconstructed game %q: plies=%d", id, len(tree.Moves))
	return tree, nil
}

func (s *Store) reconstructTree(finalHash blob.Hash, metaHash metadata.Hash, root blob.Hash, pos *rules.Position, turn rules.Color, isTopLevel bool) (*game.Tree, error) {
	chain, err := s.walkChain(finalHash, root)
	if err != nil {
		return nil, err
	}

	tree := &game.Tree{}

	zh := s.zt.Hash(pos, turn)
	cur := pos
	t := turn
	for _, b := range chain {
		for i := 0; i < int(b.MoveCount); i++ {
			m, err := decodeMove(cur, t, b.Moves[i])
			if err != nil {
				return nil, err
			}
			next, ok := cur.Move(m)
			if !ok {
				return nil, ccerr.Newf(ccerr.ChainError, "ccamc.reconstructTree", "decoded move %v illegal at ply %d", m, len(tree.Moves))
			}
			zh = s.zt.Move(zh, cur, m)
			cur = next
			t = t.Opponent()
			tree.Moves = append(tree.Moves, m)
		}
		if uint64(zh) != b.Zobrist {
			return nil, ccerr.Newf(ccerr.IntegrityError, "ccamc.reconstructTree", "zobrist mismatch at blob boundary: got %x, stored %x", uint64(zh), b.Zobrist)
		}
	}

	var md metadata.Metadata
	if metaHash != 0 {
		md, err = s.meta.Get(metaHash)
		if err != nil {
			return nil, err
		}
	}

	if isTopLevel {
		for _, st := range md.STR {
			if int(st.TagID) >= len(game.STRTags) {
				return nil, ccerr.Newf(ccerr.IntegrityError, "ccamc.reconstructTree", "invalid STR tag id %d", st.TagID)
			}
			v, err := s.strs.Lookup(st.Value)
			if err != nil {
				return nil, err
			}
			tree.Headers = append(tree.Headers, game.Header{Tag: game.STRTags[st.TagID], Value: string(v)})
		}
		for _, e := range md.Extra {
			name, err := s.strs.Lookup(e.Name)
			if err != nil {
				return nil, err
			}
			val, err := s.strs.Lookup(e.Value)
			if err != nil {
				return nil, err
			}
			tree.Headers = append(tree.Headers, game.Header{Tag: string(name), Value: string(val)})
		}
	}

	for _, rec := range md.Records {
		idx := int(rec.MoveIndex)

		var ann game.Annotation
		switch rec.Type {
		case metadata.RecordComment:
			text, err := s.strs.Lookup(rec.Text)
			if err != nil {
				return nil, err
			}
			ann = game.Comment{Text: string(text), Pre: rec.Pre, Semicolon: rec.Semicolon, NewlineAfter: rec.NewlineAfter}

		case metadata.RecordNAG:
			ann = game.NAG{Code: rec.NAGCode}

		case metadata.RecordNewline:
			ann = game.Newline{}

		case metadata.RecordVariation:
			// Mirrors ingestTree's varParent choice: a variation at move 0
			// continues from the real enclosing root, any later branch point
			// was stored rooted at blob.Orphan.
			varParent := root
			if idx > 0 {
				varParent = blob.Orphan
			}
			subPos, subTurn, err := replayPrefix(pos, turn, tree.Moves, idx)
			if err != nil {
				return nil, err
			}
			subTree, err := s.reconstructTree(rec.VariationFinal, rec.VariationMeta, varParent, subPos, subTurn, false)
			if err != nil {
				return nil, err
			}
			ann = game.Variation{Tree: subTree}

		default:
			return nil, ccerr.Newf(ccerr.IntegrityError, "ccamc.reconstructTree", "unknown record type %d", rec.Type)
		}

		tree.Annotations = append(tree.Annotations, game.MoveAnnotation{MoveIndex: idx, Value: ann})
	}

	if isTopLevel {
		if _, already := tree.Header("Result"); !already {
			// The STR roster carries the original Result tag verbatim when the
			// ingested game had one; this only fills in a result for games
			// ingested without an explicit Result header.
			if last, ok := lastGameEndBlob(chain); ok {
				if name, ok := resultTagNames[last.Result]; ok {
					tree.Headers = append(tree.Headers, game.Header{Tag: "Result", Value: name})
				}
			}
		}
	}

	return tree, nil
}

func lastGameEndBlob(chain []blob.Blob) (blob.Blob, bool) {
	if len(chain) == 0 {
		return blob.Blob{}, false
	}
	last := chain[len(chain)-1]
	if !last.IsGameEnd() {
		return blob.Blob{}, false
	}
	return last, true
}
