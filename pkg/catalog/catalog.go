// Package catalog implements the opening catalog: a trie over packed move
// sequences used to recognize well-known openings during ingestion and to
// decide when a blob may be tagged as an opening anchor. Entries are loaded
// from an external tab-separated listing of opening name to SAN move
// sequence, resolved against the rules engine once at load time so lookups
// at ingestion time are pure packed-move comparisons.
package catalog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/herohde/ccamc/pkg/codec"
	"github.com/herohde/ccamc/pkg/rules"
	"github.com/herohde/ccamc/pkg/rules/fen"
	"github.com/seekerror/logw"
)

// DefaultPlyThreshold is the minimum number of plies a catalog match must
// cover before a blob chain may be considered anchored to a named opening.
const DefaultPlyThreshold = 6

type trieNode struct {
	children map[uint16]*trieNode
	name     string
	hasName  bool
}

func newTrieNode() *trieNode {
	return &trieNode{children: map[uint16]*trieNode{}}
}

// Catalog is a trie of packed move sequences, one path per known opening.
type Catalog struct {
	root         *trieNode
	plyThreshold int
}

// New returns an empty catalog using plyThreshold as the minimum match depth
// for MatchPrefix. A non-positive threshold falls back to DefaultPlyThreshold.
func New(plyThreshold int) *Catalog {
	if plyThreshold <= 0 {
		plyThreshold = DefaultPlyThreshold
	}
	return &Catalog{root: newTrieNode(), plyThreshold: plyThreshold}
}

// PlyThreshold returns the minimum ply depth MatchPrefix requires.
func (c *Catalog) PlyThreshold() int {
	return c.plyThreshold
}

// Insert adds one opening line to the trie. Deeper lines sharing a prefix
// with a shallower entry overwrite the name recorded at the shared nodes only
// where they themselves end; the longest-common-prefix walk in MatchPrefix
// always prefers the deepest named node it passes through.
func (c *Catalog) Insert(name string, moves []uint16) {
	n := c.root
	for _, mv := range moves {
		child, ok := n.children[mv]
		if !ok {
			child = newTrieNode()
			n.children[mv] = child
		}
		n = child
	}
	n.name = name
	n.hasName = true
}

// MatchPrefix walks moves against the trie and returns the name and ply depth
// of the deepest named node reached, provided that depth is at least the
// catalog's ply threshold.
func (c *Catalog) MatchPrefix(moves []uint16) (name string, matchedPly int, ok bool) {
	matches := c.MatchPrefixes(moves)
	if len(matches) == 0 {
		return "", 0, false
	}
	last := matches[len(matches)-1]
	return last.Name, last.Plies, true
}

// Match is one opening catalog entry matched against a game's move sequence:
// name and the number of plies of moves it covers.
type Match struct {
	Name  string
	Plies int
}

// MatchPrefixes returns every opening catalog entry whose move sequence is a
// prefix of moves (an entry covering all of moves included), ordered by
// increasing ply length (so each entry is
// itself a prefix of the next), filtering out entries shorter than the
// catalog's ply threshold.
func (c *Catalog) MatchPrefixes(moves []uint16) []Match {
	var matches []Match
	n := c.root
	for i, mv := range moves {
		child, exists := n.children[mv]
		if !exists {
			break
		}
		n = child
		if n.hasName && i+1 >= c.plyThreshold {
			matches = append(matches, Match{Name: n.name, Plies: i + 1})
		}
	}
	return matches
}

// Load parses a tab-separated opening listing, one line per entry: an
// opening name, a tab, and a SAN move sequence such as "1. e4 e5 2. Nf3 Nc6".
// Each line is replayed from the initial position through the rules engine
// to resolve SAN into packed moves. Blank lines and lines starting with '#'
// are skipped silently; a malformed or unresolvable line is skipped with a
// logged warning so that one bad entry never prevents loading the rest of
// the listing. Only a failure to read from r itself is fatal.
func (c *Catalog) Load(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if strings.TrimSpace(text) == "" || strings.HasPrefix(strings.TrimSpace(text), "#") {
			continue
		}

		fields := strings.SplitN(text, "\t", 2)
		if len(fields) != 2 {
			logw.Warningf(ctx, "Skipping opening catalog line %d: expected name<TAB>moves, got %q", line, text)
			continue
		}
		name := strings.TrimSpace(fields[0])

		moves, err := replaySAN(fields[1])
		if err != nil {
			logw.Warningf(ctx, "Skipping opening catalog line %d (%v): %v", line, name, err)
			continue
		}
		c.Insert(name, moves)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("catalog.Load: %w", err)
	}
	return nil
}

func replaySAN(movetext string) ([]uint16, error) {
	pos, turn, _, _, err := fen.Decode(fen.Initial)
	if err != nil {
		return nil, err
	}

	var packed []uint16
	for _, tok := range strings.Fields(movetext) {
		tok = strings.TrimSpace(tok)
		if tok == "" || isMoveNumber(tok) {
			continue
		}

		m, err := rules.DecodeSAN(pos, turn, tok)
		if err != nil {
			return nil, fmt.Errorf("token %q: %w", tok, err)
		}

		promo := codec.None
		if m.Promotion.IsValid() {
			switch m.Promotion {
			case rules.Queen:
				promo = codec.Queen
			case rules.Rook:
				promo = codec.Rook
			case rules.Bishop:
				promo = codec.Bishop
			case rules.Knight:
				promo = codec.Knight
			}
		}
		v, err := codec.Pack(uint8(m.From), uint8(m.To), promo)
		if err != nil {
			return nil, err
		}
		packed = append(packed, v)

		next, ok := pos.Move(m)
		if !ok {
			return nil, fmt.Errorf("token %q: illegal in replay", tok)
		}
		pos = next
		turn = turn.Opponent()
	}
	return packed, nil
}

// isMoveNumber reports whether tok is a PGN move-number marker like "1." or
// "12...".
func isMoveNumber(tok string) bool {
	i := strings.IndexFunc(tok, func(r rune) bool { return r < '0' || r > '9' })
	if i == 0 {
		return false
	}
	if i < 0 {
		return true // all digits, no dot: treat defensively as a bare number
	}
	rest := tok[i:]
	return strings.Trim(rest, ".") == ""
}
