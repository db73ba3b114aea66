package ccamc

import (
	"context"

	"github.com/herohde/ccamc/pkg/blob"
	"github.com/herohde/ccamc/pkg/ccerr"
	"github.com/herohde/ccamc/pkg/game"
	"github.com/herohde/ccamc/pkg/metadata"
	"github.com/herohde/ccamc/pkg/registry"
	"github.com/herohde/ccamc/pkg/rules"
	"github.com/seekerror/logw"
)

var resultTagValues = map[string]blob.Result{
	"1-0":     blob.WhiteWins,
	"0-1":     blob.BlackWins,
	"1/2-1/2": blob.Draw,
}

// Ingest stores tree under game id, returning its registry entry. Fails with
// ccerr.DuplicateGameId if id is already registered. Only valid on a writer
// store.
func (s *Store) Ingest(ctx context.Context, id string, tree *game.Tree) (registry.Entry, error) {
	if !s.isWriter {
		return registry.Entry{}, ccerr.Newf(ccerr.IOError, "ccamc.Ingest", "store %v was not opened for writing", s.dir)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.reg.Lookup(id); err == nil {
		return registry.Entry{}, ccerr.Newf(ccerr.DuplicateGameId, "ccamc.Ingest", "game id %q already registered", id)
	}

	startPos, startTurn, _, _, err := initialPosition()
	if err != nil {
		return registry.Entry{}, ccerr.New(ccerr.IntegrityError, "ccamc.Ingest", err)
	}

	finalHash, metaHash, err := s.ingestTree(ctx, tree, s.initHash, startPos, startTurn, true)
	if err != nil {
		return registry.Entry{}, err
	}

	entry := registry.Entry{FinalBlob: finalHash, Metadata: metaHash}
	if err := s.reg.Register(id, entry); err != nil {
		return registry.Entry{}, err
	}

	if err := s.maybeAutoFlush(ctx); err != nil {
		return registry.Entry{}, err
	}

	logw.Infof(ctx, "Ingested game %q: final=%x metadata=%x plies=%d", id, uint64(finalHash), uint64(metaHash), len(tree.Moves))
	return entry, nil
}

func (s *Store) ingestTree(ctx context.Context, tree *game.Tree, parent blob.Hash, pos *rules.Position, turn rules.Color, isTopLevel bool) (blob.Hash, metadata.Hash, error) {
	var result *blob.Result
	if isTopLevel {
		if v, ok := tree.Header("Result"); ok {
			if r, ok := resultTagValues[v]; ok {
				result = &r
			}
		}
	}

	finalHash, err := s.appendChain(parent, pos, turn, tree.Moves, result, isTopLevel, isTopLevel)
	if err != nil {
		return 0, 0, err
	}

	md := metadata.Metadata{FinalBlob: finalHash}

	if isTopLevel {
		for i, tag := range game.STRTags {
			v, ok := tree.Header(tag)
			if !ok {
				continue
			}
			h, err := s.strs.Intern([]byte(v))
			if err != nil {
				return 0, 0, err
			}
			md.STR = append(md.STR, metadata.StrTag{TagID: uint8(i), Value: h})
		}
		for _, h := range tree.Headers {
			if isSTRTag(h.Tag) {
				continue
			}
			nameHash, err := s.strs.Intern([]byte(h.Tag))
			if err != nil {
				return 0, 0, err
			}
			valHash, err := s.strs.Intern([]byte(h.Value))
			if err != nil {
				return 0, 0, err
			}
			md.Extra = append(md.Extra, metadata.ExtraTag{Name: nameHash, Value: valHash})
		}
	}

	for _, a := range tree.Annotations {
		rec := metadata.Record{MoveIndex: uint32(a.MoveIndex)}

		switch v := a.Value.(type) {
		case game.Comment:
			rec.Type = metadata.RecordComment
			rec.Pre = v.Pre
			rec.Semicolon = v.Semicolon
			rec.NewlineAfter = v.NewlineAfter
			h, err := s.strs.Intern([]byte(v.Text))
			if err != nil {
				return 0, 0, err
			}
			rec.Text = h

		case game.NAG:
			rec.Type = metadata.RecordNAG
			rec.NAGCode = v.Code

		case game.Newline:
			rec.Type = metadata.RecordNewline

		case game.Variation:
			rec.Type = metadata.RecordVariation

			// A variation starting at move 0 continues from the real enclosing
			// parent; any later branch point roots at blob.Orphan instead of an
			// interior blob hash, so identical variation fragments dedup across
			// unrelated games regardless of where they branch from.
			varParent := parent
			if a.MoveIndex > 0 {
				varParent = blob.Orphan
			}
			subPos, subTurn, err := replayPrefix(pos, turn, tree.Moves, a.MoveIndex)
			if err != nil {
				return 0, 0, err
			}

			subFinal, subMeta, err := s.ingestTree(ctx, v.Tree, varParent, subPos, subTurn, false)
			if err != nil {
				return 0, 0, err
			}
			rec.VariationFinal = subFinal
			rec.VariationMeta = subMeta

		default:
			return 0, 0, ccerr.Newf(ccerr.InvalidBlob, "ccamc.ingestTree", "unknown annotation type %T", a.Value)
		}

		md.Records = append(md.Records, rec)
	}

	if !isTopLevel && len(md.Records) == 0 {
		// A variation without annotations has no metadata record; its
		// variation-metadata hash is zero.
		return finalHash, 0, nil
	}

	metaHash, err := s.meta.Put(md)
	if err != nil {
		return 0, 0, err
	}
	return finalHash, metaHash, nil
}

func isSTRTag(tag string) bool {
	for _, t := range game.STRTags {
		if t == tag {
			return true
		}
	}
	return false
}
